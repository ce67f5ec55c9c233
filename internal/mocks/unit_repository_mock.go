// Package mocks provides in-memory implementations of the port interfaces
// for testing. Services depend on the interfaces only, so tests swap the
// Postgres/Redis/RabbitMQ adapters for these without touching the core.
package mocks

import (
	"context"
	"sync"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

// MockUnitRepository implements ports.UnitRepository in memory. A single
// mutex serializes Mutate calls, matching the per-unit atomicity the
// Postgres adapter provides with row locks.
type MockUnitRepository struct {
	mu    sync.Mutex
	units map[string]*domain.Unit

	// Call tracking for verification
	CreateCalls []domain.Unit
	MutateCalls []string
	Outbox      []ports.OutboxMessage

	// Error injection for testing error scenarios
	CreateError error
	GetError    error
	ListError   error
	MutateError error
}

var _ ports.UnitRepository = (*MockUnitRepository)(nil)

func NewMockUnitRepository() *MockUnitRepository {
	return &MockUnitRepository{
		units: make(map[string]*domain.Unit),
	}
}

// SeedUnit adds a unit to the mock repository for test setup.
func (m *MockUnitRepository) SeedUnit(unit *domain.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[unit.ID] = unit.Clone()
}

func (m *MockUnitRepository) Create(ctx context.Context, unit *domain.Unit, outbox *ports.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, *unit)

	if m.CreateError != nil {
		return m.CreateError
	}

	m.units[unit.ID] = unit.Clone()
	if outbox != nil {
		m.Outbox = append(m.Outbox, *outbox)
	}
	return nil
}

func (m *MockUnitRepository) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}

	unit, ok := m.units[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return unit.Clone(), nil
}

func (m *MockUnitRepository) List(ctx context.Context) ([]domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListError != nil {
		return nil, m.ListError
	}

	units := make([]domain.Unit, 0, len(m.units))
	for _, unit := range m.units {
		units = append(units, *unit.Clone())
	}
	return units, nil
}

// Mutate runs fn on a copy of the stored unit and commits the copy only on
// success, so a rejected mutation leaves the stored state untouched.
func (m *MockUnitRepository) Mutate(ctx context.Context, id string, fn ports.UnitMutator) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MutateCalls = append(m.MutateCalls, id)

	if m.MutateError != nil {
		return nil, m.MutateError
	}

	stored, ok := m.units[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}

	working := stored.Clone()
	outbox, err := fn(working)
	if err != nil {
		return nil, err
	}

	m.units[id] = working
	if outbox != nil {
		m.Outbox = append(m.Outbox, *outbox)
	}
	return working.Clone(), nil
}

// Reset clears all stored data and call tracking.
func (m *MockUnitRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.units = make(map[string]*domain.Unit)
	m.CreateCalls = nil
	m.MutateCalls = nil
	m.Outbox = nil
	m.CreateError = nil
	m.GetError = nil
	m.ListError = nil
	m.MutateError = nil
}
