package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

const unitColumns = `id, code, name, description, university, schedule_time, schedule_date, venue,
	lecturer_id, created_by, created_at, restricted_to, students, invited_lecturers`

// UnitRepository is the Postgres unit registry. Every mutation that changes
// the roster or the lecturer slot runs under a per-row lock and records its
// outbox event in the same transaction, so the relay never sees an event
// for a change that did not commit.
type UnitRepository struct {
	db *sql.DB
}

var _ ports.UnitRepository = (*UnitRepository)(nil)

func NewUnitRepository(db *sql.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) Create(ctx context.Context, unit *domain.Unit, outbox *ports.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO units (id, code, name, description, university, schedule_time, schedule_date, venue,
			lecturer_id, created_by, created_at, restricted_to, students, invited_lecturers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		unit.ID,
		unit.Code,
		unit.Name,
		unit.Description,
		unit.University,
		unit.Time,
		unit.Date,
		unit.Venue,
		unit.LecturerID,
		unit.CreatedBy,
		unit.CreatedAt,
		pq.Array(unit.RestrictedTo),
		pq.Array(unit.Students),
		pq.Array(unit.InvitedLecturers),
	)
	if err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *UnitRepository) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, id)
	return scanUnit(row)
}

func (r *UnitRepository) List(ctx context.Context) ([]domain.Unit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *unit)
	}
	return units, rows.Err()
}

// Mutate locks the unit row, runs fn against the current state, and writes
// the updated roster/slot plus the outbox event in one transaction. The row
// lock serializes concurrent joins on the same unit: the second caller
// blocks until the first commits and then sees the claimed slot.
func (r *UnitRepository) Mutate(ctx context.Context, id string, fn ports.UnitMutator) (*domain.Unit, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1 FOR UPDATE`, id)
	unit, err := scanUnit(row)
	if err != nil {
		return nil, err
	}

	outbox, err := fn(unit)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE units SET lecturer_id = $2, students = $3 WHERE id = $1`,
		unit.ID,
		unit.LecturerID,
		pq.Array(unit.Students),
	)
	if err != nil {
		return nil, err
	}

	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return unit, nil
}

// insertOutbox records the event row; a database trigger NOTIFYs the relay
// on outbox_channel after commit.
func insertOutbox(ctx context.Context, tx *sql.Tx, outbox *ports.OutboxMessage) error {
	if outbox == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, NOW())`,
		uuid.NewString(),
		outbox.EventType,
		outbox.Payload,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*domain.Unit, error) {
	var unit domain.Unit
	err := row.Scan(
		&unit.ID,
		&unit.Code,
		&unit.Name,
		&unit.Description,
		&unit.University,
		&unit.Time,
		&unit.Date,
		&unit.Venue,
		&unit.LecturerID,
		&unit.CreatedBy,
		&unit.CreatedAt,
		pq.Array(&unit.RestrictedTo),
		pq.Array(&unit.Students),
		pq.Array(&unit.InvitedLecturers),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}
