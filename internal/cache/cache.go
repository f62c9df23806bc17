// Package cache provides the caching abstraction used by authentication,
// rate limiting, and the analytics/health endpoints.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a key that is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the minimal surface every backing store (Redis, in-process)
// implements. Values are opaque to the cache: callers marshal/unmarshal.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
