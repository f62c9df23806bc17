package ratelimit_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/cache"
	"github.com/ragforge/rag-mcp/internal/ratelimit"
)

func newTestRedisCache(t *testing.T) cache.Cache {
	t.Helper()
	server := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLimiter_AllowsWithinBudget(t *testing.T) {
	c := newTestRedisCache(t)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, DefaultPerMinute: 5, LocalBurst: 5}, c, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	}
}

func TestLimiter_RejectsOverBudget(t *testing.T) {
	c := newTestRedisCache(t)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, DefaultPerMinute: 3, LocalBurst: 3}, c, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	}

	err := limiter.Allow(context.Background(), "tenant-a", 0)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRateLimited, appErr.Kind)
}

func TestLimiter_PerTenantBudgetsAreIndependent(t *testing.T) {
	c := newTestRedisCache(t)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, DefaultPerMinute: 1, LocalBurst: 1}, c, nil)

	require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	require.Error(t, limiter.Allow(context.Background(), "tenant-a", 0))
	require.NoError(t, limiter.Allow(context.Background(), "tenant-b", 0))
}

func TestLimiter_DisabledNeverRejects(t *testing.T) {
	c := newTestRedisCache(t)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: false, DefaultPerMinute: 1}, c, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	}
}

func TestLimiter_PerTenantOverrideWins(t *testing.T) {
	c := newTestRedisCache(t)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, DefaultPerMinute: 1000}, c, nil)

	require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 2))
	require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 2))
	require.Error(t, limiter.Allow(context.Background(), "tenant-a", 2))
}

func TestLimiter_FallsBackToLocalWithoutIncrementerCache(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, DefaultPerMinute: 2, LocalBurst: 2}, cache.NewNoopCache(), nil)

	require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	require.NoError(t, limiter.Allow(context.Background(), "tenant-a", 0))
	require.Error(t, limiter.Allow(context.Background(), "tenant-a", 0))
}
