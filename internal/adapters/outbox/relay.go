package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/skola-app/unit-enrollment-service/internal/config"
	"github.com/skola-app/unit-enrollment-service/internal/core/ports"
)

const (
	// PostgreSQL NOTIFY/LISTEN configuration
	listenerMinReconnectInterval = 10 * time.Second
	listenerMaxReconnectInterval = time.Minute
	outboxChannelName            = "outbox_channel"

	// Event processing timeouts
	eventProcessTimeout     = 30 * time.Second
	batchProcessTimeout     = 60 * time.Second
	periodicProcessInterval = 90 * time.Second

	// Health check configuration
	healthCheckStaleThreshold = 5 * time.Minute

	// Batch processing limits
	maxEventsPerBatch = 100

	enrollmentEventPrefix = "unit."
)

// Relay listens for PostgreSQL NOTIFY signals on the outbox channel and
// publishes enrollment events to RabbitMQ.
type Relay struct {
	db            *sql.DB
	publisher     ports.EnrollmentEventPublisher
	listener      *pq.Listener
	dbURL         string
	dbCB          *gobreaker.CircuitBreaker
	log           *zap.Logger
	lastProcessed time.Time
	isHealthy     bool
}

func NewRelay(db *sql.DB, dbURL string, publisher ports.EnrollmentEventPublisher, log *zap.Logger) *Relay {
	return &Relay{
		db:            db,
		dbURL:         dbURL,
		publisher:     publisher,
		dbCB:          config.NewCircuitBreaker("Relay-PostgreSQL", log),
		log:           log,
		lastProcessed: time.Now(),
		isHealthy:     true,
	}
}

// IsHealthy reports whether the relay process is alive and responding.
// Used for liveness probes; an open circuit breaker does not fail this
// check because a degraded dependency is recoverable.
func (r *Relay) IsHealthy() bool {
	return r.isHealthy
}

// IsReady reports whether the relay can currently process events.
func (r *Relay) IsReady() bool {
	if r.dbCB.State() == gobreaker.StateOpen {
		return false
	}
	if time.Since(r.lastProcessed) > healthCheckStaleThreshold {
		return false
	}
	return r.isHealthy
}

// Start begins listening for outbox notifications and processing events.
// This is a blocking call that runs until the context is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.log.Error("outbox listener error", zap.Error(err))
		}
	}

	r.listener = pq.NewListener(r.dbURL, listenerMinReconnectInterval, listenerMaxReconnectInterval, reportProblem)
	defer r.listener.Close()

	if err := r.listener.Listen(outboxChannelName); err != nil {
		return err
	}

	r.log.Info("outbox relay listening", zap.String("channel", outboxChannelName))

	// Process any unprocessed events on startup (catch-up)
	if err := r.processUnprocessedEvents(ctx); err != nil {
		r.log.Error("startup backlog processing failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay shutting down")
			return ctx.Err()

		case notification := <-r.listener.Notify:
			if notification == nil {
				r.log.Warn("received nil notification, listener reconnecting")
				r.isHealthy = false
				continue
			}

			if err := r.processEventByID(ctx, notification.Extra); err != nil {
				r.log.Error("event processing failed",
					zap.String("event_id", notification.Extra), zap.Error(err))
			} else {
				r.lastProcessed = time.Now()
				r.isHealthy = true
			}

		case <-time.After(periodicProcessInterval):
			// Periodic ping keeps the connection alive and catches missed
			// notifications.
			go r.listener.Ping()

			if err := r.processUnprocessedEvents(ctx); err != nil {
				r.log.Error("periodic processing failed", zap.Error(err))
			} else {
				r.lastProcessed = time.Now()
			}
		}
	}
}

// dispatchResult classifies what the relay did with one outbox row.
type dispatchResult int

const (
	// dispatchSkipped: event type outside the enrollment namespace, mark
	// the row processed without publishing.
	dispatchSkipped dispatchResult = iota
	// dispatchPublished: event delivered to the broker, mark processed.
	dispatchPublished
	// dispatchBadPayload: undecodable payload, mark processed so the row
	// never blocks the backlog.
	dispatchBadPayload
	// dispatchRetry: publish failed, leave the row unprocessed for the
	// next pass.
	dispatchRetry
)

// dispatch decides what to do with a single outbox row. Only enrollment
// events (the unit.* namespace) are published.
func (r *Relay) dispatch(ctx context.Context, eventID, eventType string, payload []byte) (dispatchResult, error) {
	if !strings.HasPrefix(eventType, enrollmentEventPrefix) {
		return dispatchSkipped, nil
	}

	var evt ports.EnrollmentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.log.Warn("invalid outbox payload, marking processed",
			zap.String("event_id", eventID), zap.Error(err))
		return dispatchBadPayload, nil
	}

	if err := r.publisher.Publish(ctx, eventType, evt); err != nil {
		return dispatchRetry, err
	}
	return dispatchPublished, nil
}

// processEventByID processes a single event by its ID.
func (r *Relay) processEventByID(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, eventProcessTimeout)
	defer cancel()

	_, err := r.dbCB.Execute(func() (interface{}, error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		var id, eventType string
		var payload []byte
		err = tx.QueryRowContext(ctx, `
			SELECT id, event_type, payload
			FROM outbox_events
			WHERE id = $1 AND processed_at IS NULL
			FOR UPDATE SKIP LOCKED`, eventID).Scan(&id, &eventType, &payload)

		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if res, err := r.dispatch(ctx, id, eventType, payload); res == dispatchRetry {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id); err != nil {
			return nil, err
		}

		return nil, tx.Commit()
	})
	return err
}

// processUnprocessedEvents processes all unprocessed events (catch-up/recovery).
func (r *Relay) processUnprocessedEvents(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, batchProcessTimeout)
	defer cancel()

	_, err := r.dbCB.Execute(func() (interface{}, error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT id, event_type, payload
			FROM outbox_events
			WHERE processed_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, maxEventsPerBatch)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		type record struct {
			ID        string
			EventType string
			Payload   []byte
		}

		var records []record
		for rows.Next() {
			var rec record
			if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Payload); err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, rec := range records {
			res, err := r.dispatch(ctx, rec.ID, rec.EventType, rec.Payload)
			if res == dispatchRetry {
				r.log.Error("publish failed, will retry",
					zap.String("event_id", rec.ID), zap.Error(err))
				continue
			}

			if _, err := tx.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, rec.ID); err != nil {
				return nil, err
			}
		}

		return nil, tx.Commit()
	})
	return err
}
