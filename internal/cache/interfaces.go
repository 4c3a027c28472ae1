package cache

import (
	"context"
	"time"
)

// Cache holds decoded sheet tables between grid reads. A MemoryCache
// serves one process; a Broadcaster around it spreads invalidations to
// every process reading the same spreadsheet.
type Cache interface {
	// Get returns the cached table or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set caches a table for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete drops a table after a write to its sheet.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live entry is cached.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrSet returns the cached table or loads it with fn. A load that
	// raced a Delete is returned to the caller but not cached.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	// Clear drops every table.
	Clear(ctx context.Context) error
}

type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss means the table must be read from the grid.
	ErrCacheMiss CacheError = "cache miss"
)
