// Package cache defines the port for the snapshot response cache.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized inspection responses keyed by store generation.
// Implementations are free to evict at any time; callers must treat every
// miss as a recompute, never as an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
