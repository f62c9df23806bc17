package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/resilience"
)

func fastRetryConfig(maxAttempts int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: maxAttempts, InitialInterval: time.Millisecond, Multiplier: 1}
}

func TestRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientErrorsUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return apperrors.Wrap(apperrors.KindTransient, "FR-TEST-001", errors.New("temporary"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), fastRetryConfig(5), func() error {
		calls++
		if calls < 3 {
			return apperrors.Wrap(apperrors.KindTransient, "FR-TEST-001", errors.New("temporary"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_DoesNotRetryNonTransientErrors(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return apperrors.Validation("field", "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
