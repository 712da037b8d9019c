// Package cache stores fetched avatars and rendered cards.
//
// All backends implement [Cache], a byte-oriented key/value store with
// per-entry TTL:
//   - [NullCache]: stores nothing; used with --no-cache
//   - [FileCache]: JSON entries under a directory; the CLI default
//   - [MemoryCache]: bounded LRU for a single server process
//   - [RedisCache]: shared cache for multi-instance servers
//   - [MongoCache]: shared cache backed by a TTL-indexed collection
//
// Keys are produced by a [Keyer] so that backends shared between
// deployments can be namespaced with [NewScopedKeyer].
package cache

import (
	"context"
	"time"
)

// Cache is a key/value store for opaque bytes.
//
// Get reports a miss as (nil, false, nil). A ttl of zero means the entry
// does not expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}
