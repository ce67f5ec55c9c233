package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
	"github.com/skola-app/unit-enrollment-service/internal/mocks"
)

var (
	studentCreator = domain.User{ID: "3", Role: domain.RoleStudent, AdmissionNumber: "CS2023001"}
	studentCS      = domain.User{ID: "4", Role: domain.RoleStudent, AdmissionNumber: "CS2023002"}
	studentEng     = domain.User{ID: "5", Role: domain.RoleStudent, AdmissionNumber: "ENG2023001"}
	lecturerOne    = domain.User{ID: "1", Role: domain.RoleLecturer, Email: "one@uni.edu"}
	lecturerTwo    = domain.User{ID: "2", Role: domain.RoleLecturer, Email: "two@uni.edu"}
)

func validSpec() domain.UnitCreateSpec {
	return domain.UnitCreateSpec{
		Code:         "CS101",
		Name:         "Intro to Computer Science",
		Description:  "Foundations",
		University:   "Nairobi University",
		Time:         "10:00",
		Date:         "Monday",
		RestrictedTo: []string{"CS2023"},
	}
}

func TestCreateUnit_StudentCreator(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)

	unit, err := svc.CreateUnit(context.Background(), validSpec(), studentCreator)
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}

	if unit.CreatedBy != "3" {
		t.Errorf("CreatedBy = %q, want %q", unit.CreatedBy, "3")
	}
	if unit.LecturerID != "" {
		t.Errorf("LecturerID = %q, want empty", unit.LecturerID)
	}
	if len(unit.Students) != 1 || unit.Students[0] != "3" {
		t.Errorf("Students = %v, want [3]", unit.Students)
	}
	if len(repo.Outbox) != 1 || repo.Outbox[0].EventType != ports.EventUnitCreated {
		t.Errorf("expected one %s outbox message, got %v", ports.EventUnitCreated, repo.Outbox)
	}
}

func TestCreateUnit_LecturerCreatorTakesSlot(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)

	unit, err := svc.CreateUnit(context.Background(), validSpec(), lecturerOne)
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}

	if unit.LecturerID != lecturerOne.ID {
		t.Errorf("LecturerID = %q, want %q", unit.LecturerID, lecturerOne.ID)
	}
	if len(unit.Students) != 0 {
		t.Errorf("roster must not contain the lecturer, got %v", unit.Students)
	}
}

func TestCreateUnit_Validation(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)

	tests := []struct {
		field  string
		mutate func(*domain.UnitCreateSpec)
	}{
		{"code", func(s *domain.UnitCreateSpec) { s.Code = "  " }},
		{"name", func(s *domain.UnitCreateSpec) { s.Name = "" }},
		{"description", func(s *domain.UnitCreateSpec) { s.Description = "\t" }},
		{"university", func(s *domain.UnitCreateSpec) { s.University = "" }},
		{"time", func(s *domain.UnitCreateSpec) { s.Time = " " }},
		{"date", func(s *domain.UnitCreateSpec) { s.Date = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)

			_, err := svc.CreateUnit(context.Background(), spec, studentCreator)

			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", validationErr.Field, tt.field)
			}
		})
	}

	if len(repo.CreateCalls) != 0 {
		t.Errorf("invalid specs must not reach the repository, got %d calls", len(repo.CreateCalls))
	}
}

func seedRestrictedUnit(repo *mocks.MockUnitRepository) *domain.Unit {
	unit := &domain.Unit{
		ID:           "u1",
		Code:         "CS101",
		Name:         "Intro to Computer Science",
		Description:  "Foundations",
		University:   "Nairobi University",
		Time:         "10:00",
		Date:         "Monday",
		CreatedBy:    "3",
		RestrictedTo: []string{"CS2023"},
		Students:     []string{"3"},
	}
	repo.SeedUnit(unit)
	return unit
}

func TestJoinUnit_StudentMatchingPrefix(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	unit, err := svc.JoinUnit(context.Background(), "u1", studentCS)
	if err != nil {
		t.Fatalf("JoinUnit: %v", err)
	}

	want := []string{"3", "4"}
	if len(unit.Students) != len(want) || unit.Students[0] != want[0] || unit.Students[1] != want[1] {
		t.Errorf("Students = %v, want %v", unit.Students, want)
	}
	if len(repo.Outbox) != 1 || repo.Outbox[0].EventType != ports.EventStudentJoined {
		t.Errorf("expected %s outbox message, got %v", ports.EventStudentJoined, repo.Outbox)
	}
}

func TestJoinUnit_StudentWrongPrefix(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	_, err := svc.JoinUnit(context.Background(), "u1", studentEng)

	var restrictedErr *domain.AccessRestrictedError
	if !errors.As(err, &restrictedErr) {
		t.Fatalf("expected AccessRestrictedError, got %v", err)
	}
	if restrictedErr.AdmissionNumber != "ENG2023001" {
		t.Errorf("AdmissionNumber = %q, want ENG2023001", restrictedErr.AdmissionNumber)
	}
	if len(restrictedErr.RequiredPrefixes) != 1 || restrictedErr.RequiredPrefixes[0] != "CS2023" {
		t.Errorf("RequiredPrefixes = %v, want [CS2023]", restrictedErr.RequiredPrefixes)
	}

	got, _ := repo.GetByID(context.Background(), "u1")
	if len(got.Students) != 1 {
		t.Errorf("rejected join must not change the roster, got %v", got.Students)
	}
}

func TestJoinUnit_StudentMissingAdmissionNumber(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	noNumber := domain.User{ID: "9", Role: domain.RoleStudent}
	_, err := svc.JoinUnit(context.Background(), "u1", noNumber)

	var restrictedErr *domain.AccessRestrictedError
	if !errors.As(err, &restrictedErr) {
		t.Fatalf("expected AccessRestrictedError for missing admission number, got %v", err)
	}
}

func TestJoinUnit_UnrestrictedAdmitsAnyStudent(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	repo.SeedUnit(&domain.Unit{ID: "open", CreatedBy: "3", Students: []string{}})

	if _, err := svc.JoinUnit(context.Background(), "open", studentEng); err != nil {
		t.Fatalf("unrestricted unit rejected student: %v", err)
	}

	noNumber := domain.User{ID: "9", Role: domain.RoleStudent}
	if _, err := svc.JoinUnit(context.Background(), "open", noNumber); err != nil {
		t.Fatalf("unrestricted unit rejected student without admission number: %v", err)
	}
}

func TestJoinUnit_DuplicateStudent(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	if _, err := svc.JoinUnit(context.Background(), "u1", studentCS); err != nil {
		t.Fatalf("first join: %v", err)
	}

	_, err := svc.JoinUnit(context.Background(), "u1", studentCS)
	if !errors.Is(err, domain.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), "u1")
	if len(got.Students) != 2 {
		t.Errorf("duplicate join must not grow the roster, got %v", got.Students)
	}
}

// The restriction check precedes the duplicate check: an enrolled student
// whose admission number no longer matches sees the restriction message.
func TestJoinUnit_RestrictionPrecedesDuplicate(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	repo.SeedUnit(&domain.Unit{
		ID:           "u2",
		CreatedBy:    "9",
		RestrictedTo: []string{"CS2023"},
		Students:     []string{studentEng.ID},
	})

	_, err := svc.JoinUnit(context.Background(), "u2", studentEng)

	var restrictedErr *domain.AccessRestrictedError
	if !errors.As(err, &restrictedErr) {
		t.Fatalf("expected AccessRestrictedError before duplicate check, got %v", err)
	}
}

func TestJoinUnit_NotFound(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)

	_, err := svc.JoinUnit(context.Background(), "missing", studentCS)
	if !errors.Is(err, domain.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestJoinUnit_LecturerClaimsEmptySlot(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	unit, err := svc.JoinUnit(context.Background(), "u1", lecturerOne)
	if err != nil {
		t.Fatalf("JoinUnit: %v", err)
	}

	if unit.LecturerID != "1" {
		t.Errorf("LecturerID = %q, want %q", unit.LecturerID, "1")
	}
	if unit.HasStudent("1") {
		t.Error("lecturer must not appear in the student roster")
	}
	if len(repo.Outbox) != 1 || repo.Outbox[0].EventType != ports.EventLecturerAssigned {
		t.Errorf("expected %s outbox message, got %v", ports.EventLecturerAssigned, repo.Outbox)
	}
}

func TestJoinUnit_LecturerAlreadyAssigned(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	if _, err := svc.JoinUnit(context.Background(), "u1", lecturerOne); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := svc.JoinUnit(context.Background(), "u1", lecturerOne)
	if !errors.Is(err, domain.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
}

func TestJoinUnit_SlotOccupied(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	if _, err := svc.JoinUnit(context.Background(), "u1", lecturerOne); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := svc.JoinUnit(context.Background(), "u1", lecturerTwo)
	if !errors.Is(err, domain.ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), "u1")
	if got.LecturerID != lecturerOne.ID {
		t.Errorf("slot holder changed: %q", got.LecturerID)
	}
}

func TestJoinUnit_InvalidRole(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	_, err := svc.JoinUnit(context.Background(), "u1", domain.User{ID: "9", Role: "admin"})
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

// Re-issuing a failed join with unchanged state yields the same error kind.
func TestJoinUnit_RejectionIsIdempotent(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	for i := 0; i < 3; i++ {
		_, err := svc.JoinUnit(context.Background(), "u1", studentEng)
		var restrictedErr *domain.AccessRestrictedError
		if !errors.As(err, &restrictedErr) {
			t.Fatalf("attempt %d: expected AccessRestrictedError, got %v", i, err)
		}
	}
}

// Two lecturers racing for the same empty slot: exactly one claim succeeds,
// the other observes the occupied slot.
func TestJoinUnit_LecturerSlotRace(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	seedRestrictedUnit(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, lecturer := range []domain.User{lecturerOne, lecturerTwo} {
		wg.Add(1)
		go func(i int, lecturer domain.User) {
			defer wg.Done()
			_, errs[i] = svc.JoinUnit(context.Background(), "u1", lecturer)
		}(i, lecturer)
	}
	wg.Wait()

	var successes, occupied int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrSlotOccupied):
			occupied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || occupied != 1 {
		t.Fatalf("want exactly one success and one ErrSlotOccupied, got %d/%d", successes, occupied)
	}

	got, _ := repo.GetByID(context.Background(), "u1")
	if got.LecturerID != lecturerOne.ID && got.LecturerID != lecturerTwo.ID {
		t.Errorf("slot holder = %q, want one of the racing lecturers", got.LecturerID)
	}
}

func TestLeaveUnit(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	repo.SeedUnit(&domain.Unit{ID: "u1", CreatedBy: "9", Students: []string{"3", "4"}})

	unit, err := svc.LeaveUnit(context.Background(), "u1", studentCreator)
	if err != nil {
		t.Fatalf("LeaveUnit: %v", err)
	}

	if len(unit.Students) != 1 || unit.Students[0] != "4" {
		t.Errorf("Students = %v, want [4]", unit.Students)
	}
	if len(repo.Outbox) != 1 || repo.Outbox[0].EventType != ports.EventStudentLeft {
		t.Errorf("expected %s outbox message, got %v", ports.EventStudentLeft, repo.Outbox)
	}
}

func TestLeaveUnit_NotEnrolled(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	repo.SeedUnit(&domain.Unit{ID: "u1", CreatedBy: "9", Students: []string{"4"}})

	_, err := svc.LeaveUnit(context.Background(), "u1", studentCreator)
	if !errors.Is(err, domain.ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

// Lecturers have no vacate path for the slot they hold.
func TestLeaveUnit_LecturerRejected(t *testing.T) {
	repo := mocks.NewMockUnitRepository()
	svc := NewEnrollmentService(repo, nil)
	repo.SeedUnit(&domain.Unit{ID: "u1", CreatedBy: "9", LecturerID: "1", Students: []string{}})

	_, err := svc.LeaveUnit(context.Background(), "u1", lecturerOne)
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if len(repo.MutateCalls) != 0 {
		t.Error("lecturer leave must be rejected before touching the repository")
	}
}
