// Package ratelimit enforces the per-tenant requests-per-minute budget,
// ahead of the authorization stage in the dispatch pipeline.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/cache"
	"github.com/ragforge/rag-mcp/internal/observability"
)

// incrementer is satisfied by cache.RedisCache and cache.MemoryCache; it
// is kept unexported since it is an implementation detail of the cache
// used, not part of the cache.Cache contract every backend must satisfy.
type incrementer interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Config configures the Limiter.
type Config struct {
	Enabled           bool
	DefaultPerMinute  int
	LocalBurst        int
}

// DefaultConfig returns the platform-wide default of 60 requests/min
// per tenant, overridable per tenant via
// TenantConfiguration.RateLimitPerMinute.
func DefaultConfig() Config {
	return Config{Enabled: true, DefaultPerMinute: 60, LocalBurst: 10}
}

// Limiter enforces a fixed-window per-tenant-per-minute request budget,
// backed by a shared cache counter when available and a local
// token-bucket fallback when the cache is unreachable.
type Limiter struct {
	config Config
	cache  cache.Cache
	logger observability.Logger

	mu     sync.Mutex
	local  map[string]*rate.Limiter
}

// NewLimiter constructs a Limiter. c may implement incrementer (as
// cache.RedisCache and cache.MemoryCache do) to use the shared counter
// path; otherwise every call falls back to the local limiter.
func NewLimiter(config Config, c cache.Cache, logger observability.Logger) *Limiter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Limiter{config: config, cache: c, logger: logger, local: make(map[string]*rate.Limiter)}
}

// Allow checks whether tenantID may make another request this minute,
// given its configured per-minute budget (0 means use the platform
// default). It returns an apperrors.KindRateLimited error when the
// budget is exhausted.
func (l *Limiter) Allow(ctx context.Context, tenantID string, perMinute int) error {
	if !l.config.Enabled {
		return nil
	}
	if perMinute <= 0 {
		perMinute = l.config.DefaultPerMinute
	}

	if inc, ok := l.cache.(incrementer); ok {
		return l.allowCache(ctx, inc, tenantID, perMinute)
	}
	return l.allowLocal(tenantID, perMinute)
}

func (l *Limiter) allowCache(ctx context.Context, inc incrementer, tenantID string, perMinute int) error {
	bucket := time.Now().UTC().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("ratelimit:%s:%d", tenantID, bucket)

	count, err := inc.Incr(ctx, key, time.Minute)
	if err != nil {
		l.logger.Warn("rate limiter cache error, falling back to local limiter", map[string]interface{}{"error": err.Error()})
		return l.allowLocal(tenantID, perMinute)
	}
	if count > int64(perMinute) {
		return apperrors.New(apperrors.KindRateLimited, "FR-ERROR-004",
			fmt.Sprintf("tenant %s exceeded %d requests/minute", tenantID, perMinute))
	}
	return nil
}

func (l *Limiter) allowLocal(tenantID string, perMinute int) error {
	l.mu.Lock()
	lim, ok := l.local[tenantID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), l.config.LocalBurst)
		l.local[tenantID] = lim
	}
	l.mu.Unlock()

	if !lim.Allow() {
		return apperrors.New(apperrors.KindRateLimited, "FR-ERROR-004",
			fmt.Sprintf("tenant %s exceeded %d requests/minute", tenantID, perMinute))
	}
	return nil
}
