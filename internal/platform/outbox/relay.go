package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mcare/mcare/internal/platform/telemetry"
)

// Publisher delivers one event body to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType, messageID string, body []byte) error
}

// Listener blocks until new events may be available.
type Listener interface {
	Wait(ctx context.Context) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves pending events from the store to the publisher. It wakes on
// NOTIFY and also polls, so events missed while disconnected are still
// delivered.
type Relay struct {
	store     Store
	publisher Publisher
	listener  Listener
	breaker   *gobreaker.CircuitBreaker
	cfg       RelayConfig
	logger    zerolog.Logger
}

func NewRelay(store Store, publisher Publisher, listener Listener, breaker *gobreaker.CircuitBreaker, cfg RelayConfig, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		listener:  listener,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox-relay").Logger(),
	}
}

// Run processes the backlog and then loops until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Int("batch_size", r.cfg.BatchSize).Msg("relay started")
	for {
		if _, err := r.drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox batch failed")
		}
		if err := r.wait(ctx); err != nil {
			r.logger.Info().Msg("relay stopped")
			return nil
		}
	}
}

// drain runs batches until one comes back short or nothing in a full
// batch could be published.
func (r *Relay) drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, claimed, err := r.ProcessOnce(ctx)
		total += n
		if err != nil || claimed < r.cfg.BatchSize || n == 0 {
			return total, err
		}
	}
}

func (r *Relay) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.PollInterval)
	defer cancel()

	if r.listener != nil {
		err := r.listener.Wait(waitCtx)
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("outbox listener unavailable, polling")
		}
	}
	<-waitCtx.Done()
	return ctx.Err()
}

// ProcessOnce delivers one batch and reports how many events were
// published and how many were claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (published, claimed int, err error) {
	deliver := func(ctx context.Context, events []Event) []Outcome {
		claimed = len(events)
		out := make([]Outcome, 0, len(events))
		for _, e := range events {
			perr := r.publisher.Publish(ctx, e.Type, e.ID.String(), e.Payload)
			if perr != nil {
				telemetry.OutboxFailed.Inc()
				r.logger.Warn().Err(perr).Str("event_id", e.ID.String()).Str("event_type", e.Type).Int("attempts", e.Attempts+1).Msg("publish failed")
			} else {
				telemetry.OutboxPublished.Inc()
				r.logger.Debug().Str("event_id", e.ID.String()).Str("event_type", e.Type).Msg("event published")
			}
			out = append(out, Outcome{ID: e.ID, Err: perr})
		}
		return out
	}

	run := func() (int, error) { return r.store.Batch(ctx, r.cfg.BatchSize, deliver) }
	if r.breaker == nil {
		published, err = run()
		return published, claimed, err
	}
	res, err := r.breaker.Execute(func() (interface{}, error) { return run() })
	if err != nil {
		return 0, claimed, err
	}
	return res.(int), claimed, nil
}
