package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

// EnrollmentService owns the create/join/leave decisions. All roster and
// lecturer-slot checks run inside the repository's per-unit critical section
// so concurrent joins on the same unit cannot both pass the same check.
type EnrollmentService struct {
	units ports.UnitRepository
	cache ports.DiscoveryCache
}

var _ ports.EnrollmentService = (*EnrollmentService)(nil)

func NewEnrollmentService(units ports.UnitRepository, cache ports.DiscoveryCache) *EnrollmentService {
	return &EnrollmentService{
		units: units,
		cache: cache,
	}
}

func (s *EnrollmentService) CreateUnit(ctx context.Context, spec domain.UnitCreateSpec, actor domain.User) (*domain.Unit, error) {
	if err := validateCreateSpec(spec); err != nil {
		return nil, err
	}

	unit := &domain.Unit{
		ID:               uuid.NewString(),
		Code:             strings.TrimSpace(spec.Code),
		Name:             strings.TrimSpace(spec.Name),
		Description:      strings.TrimSpace(spec.Description),
		University:       strings.TrimSpace(spec.University),
		Time:             strings.TrimSpace(spec.Time),
		Date:             strings.TrimSpace(spec.Date),
		Venue:            strings.TrimSpace(spec.Venue),
		CreatedBy:        actor.ID,
		CreatedAt:        time.Now().UTC(),
		RestrictedTo:     spec.RestrictedTo,
		InvitedLecturers: spec.InvitedLecturers,
		Students:         []string{},
	}

	// The creator takes the lecturer slot or a roster seat depending on
	// role; the roster never holds the lecturer's id.
	switch actor.Role {
	case domain.RoleLecturer:
		unit.LecturerID = actor.ID
	case domain.RoleStudent:
		unit.Students = []string{actor.ID}
	default:
		return nil, domain.ErrInvalidRole
	}

	outbox, err := enrollmentOutbox(ports.EventUnitCreated, unit, actor)
	if err != nil {
		return nil, err
	}
	if err := s.units.Create(ctx, unit, outbox); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return unit, nil
}

func (s *EnrollmentService) JoinUnit(ctx context.Context, unitID string, actor domain.User) (*domain.Unit, error) {
	updated, err := s.units.Mutate(ctx, unitID, func(unit *domain.Unit) (*ports.OutboxMessage, error) {
		switch actor.Role {
		case domain.RoleStudent:
			// Restriction is checked before the duplicate check: a
			// restricted, already-enrolled student sees the restriction
			// message.
			if unit.Restricted() && !unit.AdmitsAdmissionNumber(actor.AdmissionNumber) {
				return nil, &domain.AccessRestrictedError{
					RequiredPrefixes: unit.RestrictedTo,
					AdmissionNumber:  actor.AdmissionNumber,
				}
			}
			if unit.HasStudent(actor.ID) {
				return nil, domain.ErrAlreadyEnrolled
			}
			unit.Students = append(unit.Students, actor.ID)
			return enrollmentOutbox(ports.EventStudentJoined, unit, actor)

		case domain.RoleLecturer:
			if unit.LecturerID == actor.ID {
				return nil, domain.ErrAlreadyAssigned
			}
			if unit.LecturerID != "" {
				return nil, domain.ErrSlotOccupied
			}
			unit.LecturerID = actor.ID
			return enrollmentOutbox(ports.EventLecturerAssigned, unit, actor)

		default:
			return nil, domain.ErrInvalidRole
		}
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return updated, nil
}

// LeaveUnit removes a student from the roster. Lecturers have no vacate
// path: the slot is claimed for good, so a lecturer leave is rejected.
func (s *EnrollmentService) LeaveUnit(ctx context.Context, unitID string, actor domain.User) (*domain.Unit, error) {
	if actor.Role != domain.RoleStudent {
		return nil, domain.ErrInvalidRole
	}

	updated, err := s.units.Mutate(ctx, unitID, func(unit *domain.Unit) (*ports.OutboxMessage, error) {
		if !unit.HasStudent(actor.ID) {
			return nil, domain.ErrNotEnrolled
		}
		roster := unit.Students[:0]
		for _, id := range unit.Students {
			if id != actor.ID {
				roster = append(roster, id)
			}
		}
		unit.Students = roster
		return enrollmentOutbox(ports.EventStudentLeft, unit, actor)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return updated, nil
}

func (s *EnrollmentService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func validateCreateSpec(spec domain.UnitCreateSpec) error {
	required := []struct {
		field, value string
	}{
		{"code", spec.Code},
		{"name", spec.Name},
		{"description", spec.Description},
		{"university", spec.University},
		{"time", spec.Time},
		{"date", spec.Date},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &domain.ValidationError{Field: f.field}
		}
	}
	return nil
}

func enrollmentOutbox(eventType string, unit *domain.Unit, actor domain.User) (*ports.OutboxMessage, error) {
	payload, err := json.Marshal(ports.EnrollmentEvent{
		UnitID:     unit.ID,
		UnitCode:   unit.Code,
		UserID:     actor.ID,
		Role:       string(actor.Role),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &ports.OutboxMessage{EventType: eventType, Payload: payload}, nil
}
