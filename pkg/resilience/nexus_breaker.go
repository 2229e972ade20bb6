// Package resilience provides fault tolerance helpers for external
// service calls.
package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	"nexus_server/pkg/logger"
)

// NewBreaker returns a circuit breaker tuned for third-party HTTP APIs:
// trip after 5 consecutive failures or a 60% failure ratio over at
// least 10 requests, stay open 30s, allow 3 probes half-open.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
	})
}
