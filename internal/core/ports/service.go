package ports

import (
	"context"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
)

type EnrollmentService interface {
	CreateUnit(ctx context.Context, spec domain.UnitCreateSpec, actor domain.User) (*domain.Unit, error)
	JoinUnit(ctx context.Context, unitID string, actor domain.User) (*domain.Unit, error)
	LeaveUnit(ctx context.Context, unitID string, actor domain.User) (*domain.Unit, error)
}

type UnitQueryService interface {
	UserUnits(ctx context.Context, actor domain.User) ([]domain.Unit, error)
	AvailableUnits(ctx context.Context, actor domain.User) ([]domain.AvailableUnit, error)
}

// DiscoveryCache is a best-effort snapshot cache for discovery listings.
// Implementations must tolerate being unavailable; a miss just means the
// caller recomputes from the repository.
type DiscoveryCache interface {
	GetAvailable(ctx context.Context, userID string) ([]domain.AvailableUnit, bool)
	SetAvailable(ctx context.Context, userID string, units []domain.AvailableUnit)

	// Invalidate drops all cached listings. Called after every successful
	// mutation so same-session read-after-write reflects the write.
	Invalidate(ctx context.Context)
}
