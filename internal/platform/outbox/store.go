package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome reports the delivery result for one event. A nil Err marks the
// event processed.
type Outcome struct {
	ID  uuid.UUID
	Err error
}

// Store hands out batches of pending events. The rows stay locked while
// deliver runs, so concurrent relays never publish the same event.
type Store interface {
	Batch(ctx context.Context, limit int, deliver func(ctx context.Context, events []Event) []Outcome) (int, error)
}

// DefaultMaxAttempts is how many failed deliveries an event gets before
// the relay stops claiming it.
const DefaultMaxAttempts = 10

// PGStore claims events with FOR UPDATE SKIP LOCKED.
type PGStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPGStore(pool *pgxpool.Pool, maxAttempts int) *PGStore {
	return &PGStore{pool: pool, maxAttempts: maxAttempts}
}

func (s *PGStore) Batch(ctx context.Context, limit int, deliver func(ctx context.Context, events []Event) []Outcome) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, payload, created_at, attempts
		FROM outbox_events
		WHERE processed_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, s.maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt, &e.Attempts)
		return e, err
	})
	if err != nil {
		return 0, fmt.Errorf("scan outbox events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	delivered := 0
	for _, o := range deliver(ctx, events) {
		if o.Err == nil {
			delivered++
			_, err = tx.Exec(ctx, `UPDATE outbox_events SET processed_at = NOW(), last_error = NULL WHERE id = $1`, o.ID)
		} else {
			_, err = tx.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, o.ID, o.Err.Error())
		}
		if err != nil {
			return 0, fmt.Errorf("update outbox event %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return delivered, nil
}

// PGListener waits for NOTIFY on Channel over a dedicated pool connection.
type PGListener struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func NewPGListener(pool *pgxpool.Pool) *PGListener {
	return &PGListener{pool: pool}
}

// Wait blocks until a notification arrives or ctx is done. A broken
// connection is released and re-established on the next call.
func (l *PGListener) Wait(ctx context.Context) error {
	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire listener connection: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
			conn.Release()
			return fmt.Errorf("listen %s: %w", Channel, err)
		}
		l.conn = conn
	}

	_, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil && ctx.Err() == nil {
		l.Close()
	}
	return err
}

func (l *PGListener) Close() {
	if l.conn != nil {
		// The session still holds LISTEN state; drop it rather than
		// returning it to the pool.
		_ = l.conn.Conn().Close(context.Background())
		l.conn.Release()
		l.conn = nil
	}
}
