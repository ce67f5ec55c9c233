package services

import (
	"context"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

// UnitQueryService serves the read projections. Listings are recomputed
// from repository state on every call; the discovery listing additionally
// goes through the snapshot cache when one is wired.
type UnitQueryService struct {
	units ports.UnitRepository
	cache ports.DiscoveryCache
}

var _ ports.UnitQueryService = (*UnitQueryService)(nil)

func NewUnitQueryService(units ports.UnitRepository, cache ports.DiscoveryCache) *UnitQueryService {
	return &UnitQueryService{
		units: units,
		cache: cache,
	}
}

// UserUnits returns the units the user teaches, is enrolled in, or created.
func (s *UnitQueryService) UserUnits(ctx context.Context, actor domain.User) ([]domain.Unit, error) {
	all, err := s.units.List(ctx)
	if err != nil {
		return nil, err
	}

	mine := []domain.Unit{}
	for _, unit := range all {
		if unit.LecturerID == actor.ID || unit.HasStudent(actor.ID) || unit.CreatedBy == actor.ID {
			mine = append(mine, unit)
		}
	}
	return mine, nil
}

// AvailableUnits returns the discovery listing for the user. Restricted
// units stay visible to students but are flagged so the client can disable
// the join action.
func (s *UnitQueryService) AvailableUnits(ctx context.Context, actor domain.User) ([]domain.AvailableUnit, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetAvailable(ctx, actor.ID); ok {
			return cached, nil
		}
	}

	all, err := s.units.List(ctx)
	if err != nil {
		return nil, err
	}

	available := []domain.AvailableUnit{}
	for _, unit := range all {
		if !availableTo(&unit, actor) {
			continue
		}
		available = append(available, domain.AvailableUnit{
			Unit:         unit,
			IsRestricted: unit.RestrictedFor(actor),
		})
	}

	if s.cache != nil {
		s.cache.SetAvailable(ctx, actor.ID, available)
	}
	return available, nil
}

func availableTo(unit *domain.Unit, actor domain.User) bool {
	switch actor.Role {
	case domain.RoleStudent:
		return !unit.HasStudent(actor.ID) && unit.CreatedBy != actor.ID
	case domain.RoleLecturer:
		// Unassigned units are open to any lecturer; units assigned to
		// someone else surface only on explicit invitation.
		if unit.LecturerID == actor.ID {
			return false
		}
		return unit.LecturerID == "" || unit.HasInvitedLecturer(actor.Email)
	default:
		return false
	}
}
