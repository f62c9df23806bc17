package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// RetryConfig controls the exponential backoff Retry applies to calls
// that fail with apperrors.KindTransient, retried up to a small bound
// rather than surfaced immediately. rag_ingest uses it around embedding
// generation; the backend adapters do not call Retry.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the standard retry policy: 3 attempts,
// factor 2, starting at 1 second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, Multiplier: 2}
}

// Retry invokes fn, retrying only apperrors.KindTransient failures with
// exponential backoff bounded by cfg.MaxAttempts. Any other error kind
// returns immediately without retrying.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	bounded := backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if apperrors.KindOf(err) != apperrors.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)
}
