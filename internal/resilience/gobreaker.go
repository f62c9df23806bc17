package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// ExternalBreaker wraps sony/gobreaker for collaborators this module
// does not own the retry/backoff policy for, specifically the external
// embedding model endpoint. The hand-rolled CircuitBreaker in
// circuit_breaker.go, with its half-open in-flight cap and explicit
// state machine, is not wired in front of any adapter (relational,
// vector, object, keyword); gobreaker's simpler counts-based policy
// fits a single outbound HTTP collaborator.
type ExternalBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewExternalBreaker constructs an ExternalBreaker named name, tripping
// once consecutive failures reach threshold and resetting after
// resetTimeout.
func NewExternalBreaker(name string, threshold uint32, resetTimeout time.Duration) *ExternalBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	return &ExternalBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open breaker returns a
// transient error so a caller's retry policy (rag_ingest wraps Embed in
// Retry) treats it the same way as a direct connection failure.
func (b *ExternalBreaker) Execute(ctx context.Context, fn func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Wrap(apperrors.KindTransient, "FR-EMBED-003", err)
		}
		return nil, err
	}
	vec, _ := result.([]float32)
	return vec, nil
}
