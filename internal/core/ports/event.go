package ports

import (
	"context"
	"time"
)

const (
	EventUnitCreated      = "unit.created"
	EventStudentJoined    = "unit.student_joined"
	EventStudentLeft      = "unit.student_left"
	EventLecturerAssigned = "unit.lecturer_assigned"
)

// EnrollmentEvent is the payload published for every enrollment change.
// Consumers (notifications, timetable) key off the event type.
type EnrollmentEvent struct {
	UnitID     string    `json:"unit_id"`
	UnitCode   string    `json:"unit_code"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}

type EnrollmentEventPublisher interface {
	Publish(ctx context.Context, eventType string, evt EnrollmentEvent) error
}
