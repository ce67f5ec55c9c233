package mocks

import (
	"context"
	"sync"

	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

// MockPublisher implements ports.EnrollmentEventPublisher and records every
// published event.
type MockPublisher struct {
	mu sync.Mutex

	Published []PublishedEvent

	PublishError error
}

type PublishedEvent struct {
	EventType string
	Event     ports.EnrollmentEvent
}

var _ ports.EnrollmentEventPublisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, evt ports.EnrollmentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishError != nil {
		return m.PublishError
	}
	m.Published = append(m.Published, PublishedEvent{EventType: eventType, Event: evt})
	return nil
}
