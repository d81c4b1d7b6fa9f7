// Package resilience wraps calls to optional infrastructure (redis, the
// message broker) in circuit breakers.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker names used across the service.
const (
	BreakerRedis    = "redis-revocation"
	BreakerRabbitMQ = "rabbitmq-publish"
	BreakerOutboxDB = "outbox-postgres"
)

func timeoutFor(name string) time.Duration {
	switch name {
	case BreakerRedis:
		return 5 * time.Second
	case BreakerOutboxDB:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// NewCircuitBreaker opens after three consecutive failures and lets three
// trial requests through once the timeout for name has elapsed.
func NewCircuitBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeoutFor(name),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}
