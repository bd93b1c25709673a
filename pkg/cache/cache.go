package cache

import (
	"context"
	"time"
)

// Cache is a key-value cache whose entries expire after a TTL fixed at
// construction.
type Cache[V any] interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V) error
	Delete(ctx context.Context, key string) error
}

// DefaultTTL applies when a constructor gets a non-positive TTL.
const DefaultTTL = 5 * time.Minute
