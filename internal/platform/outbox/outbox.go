// Package outbox implements the transactional outbox: services enqueue
// domain events in the transaction that changes the data, and the relay
// delivers them to the broker afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
)

// Event types.
const (
	UserRegistered      = "user.registered"
	MotherDeactivated   = "mother.deactivated"
	VaccinationRecorded = "vaccination.recorded"
	VisitScheduled      = "visit.scheduled"
)

// Channel is the NOTIFY channel raised by the insert trigger.
const Channel = "outbox_events"

type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// Writer inserts events through the transaction bound to the context.
type Writer struct {
	conn func(ctx context.Context) db.Querier
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{conn: func(ctx context.Context) db.Querier { return db.Conn(ctx, pool) }}
}

// Record enqueues eventType with payload marshalled as JSON.
func (w *Writer) Record(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = w.conn(ctx).Exec(ctx,
		`INSERT INTO outbox_events (id, event_type, payload) VALUES ($1, $2, $3)`,
		uuid.New(), eventType, body)
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}
