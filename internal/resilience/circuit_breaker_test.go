package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/resilience"
)

func testConfig() resilience.Config {
	return resilience.Config{
		FailureThreshold:    3,
		FailureRatio:        0.6,
		ResetTimeout:        20 * time.Millisecond,
		SuccessThreshold:    2,
		TimeoutThreshold:    100 * time.Millisecond,
		MaxRequestsHalfOpen: 5,
		MinimumRequestCount: 100,
	}
}

func TestCircuitBreaker_StartsClosedAndAllowsSuccess(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test", testConfig(), nil, nil)
	assert.Equal(t, resilience.StateClosed, cb.State())

	result, err := cb.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test", testConfig(), nil, nil)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, errors.New("boom")
		})
		require.Error(t, err)
	}

	assert.Equal(t, resilience.StateOpen, cb.State())

	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return "unreachable", nil })
	assert.ErrorIs(t, err, resilience.ErrOpen)
}

func TestCircuitBreaker_HalfOpenAfterResetTimeoutThenCloses(t *testing.T) {
	cfg := testConfig()
	cb := resilience.NewCircuitBreaker("test", cfg, nil, nil)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("boom") })
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)

	for i := 0; i < cfg.SuccessThreshold; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
		require.NoError(t, err)
	}

	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := testConfig()
	cb := resilience.NewCircuitBreaker("test", cfg, nil, nil)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("boom") })
	}
	time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)

	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("still broken") })
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cfg := testConfig()
	cb := resilience.NewCircuitBreaker("test", cfg, nil, nil)
	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("boom") })
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestManager_CreatesBreakerLazilyWithDefaultConfig(t *testing.T) {
	m := resilience.NewManager(nil, nil, nil)
	cb := m.Get("vector_index")
	require.NotNil(t, cb)
	assert.Same(t, cb, m.Get("vector_index"))
}
