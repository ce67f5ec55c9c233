package ports

import (
	"context"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
)

// OutboxMessage is an event recorded in the same transaction as the unit
// mutation that produced it. The relay drains these to the message broker.
type OutboxMessage struct {
	EventType string
	Payload   []byte
}

// UnitMutator is a check-and-apply step run inside the repository's per-unit
// critical section. It inspects the current unit state, either returns a
// domain error (nothing is persisted) or mutates the unit in place and
// returns the outbox message to record alongside the update.
type UnitMutator func(unit *domain.Unit) (*OutboxMessage, error)

type UnitRepository interface {
	Create(ctx context.Context, unit *domain.Unit, outbox *OutboxMessage) error
	GetByID(ctx context.Context, id string) (*domain.Unit, error)
	List(ctx context.Context) ([]domain.Unit, error)

	// Mutate applies fn to the unit identified by id atomically with respect
	// to concurrent Mutate calls on the same unit. It returns the updated
	// unit, domain.ErrUnitNotFound when the id does not resolve, or the
	// error fn returned.
	Mutate(ctx context.Context, id string, fn UnitMutator) (*domain.Unit, error)
}
