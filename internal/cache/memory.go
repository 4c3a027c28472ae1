package cache

import (
	"context"
	"sync"
	"time"

	"keysaccounting-api/internal/metrics"

	"github.com/jonboulle/clockwork"
)

// cacheEntry represents a cached value with expiration.
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// isExpired checks if the entry has expired.
func (e *cacheEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// version identifies the invalidation state of a key.
type version struct {
	epoch uint64
	gen   uint64
}

// MemoryCache is an in-memory implementation of Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	gens    map[string]uint64
	epoch   uint64

	clock           clockwork.Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewMemoryCacheWithClock creates a memory cache that reads time from clock.
func NewMemoryCacheWithClock(clock clockwork.Clock) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*cacheEntry),
		gens:            make(map[string]uint64),
		clock:           clock,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a value by key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.clock.Now()) {
		return nil, ErrCacheMiss
	}

	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

// Set stores a value with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(key, value, ttl)
	return nil
}

// Delete removes a value by key and bumps its generation, so loads that
// started before the delete cannot store their result.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	c.gens[key]++
	metrics.CacheOperations.WithLabelValues(key, "invalidate").Inc()
	return nil
}

// Exists checks if a key exists and is not expired.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.clock.Now()) {
		return false, nil
	}

	return true, nil
}

// GetOrSet retrieves a value or computes and stores it if missing.
func (c *MemoryCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if value, err := c.Get(ctx, key); err == nil {
		metrics.CacheOperations.WithLabelValues(key, "hit").Inc()
		return value, nil
	}
	metrics.CacheOperations.WithLabelValues(key, "miss").Inc()

	before := c.version(key)

	value, err := fn()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.versionLocked(key) == before {
		c.store(key, value, ttl)
	}
	c.mu.Unlock()

	return value, nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.epoch++
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	n := 0
	for _, entry := range c.entries {
		if !entry.isExpired(now) {
			n++
		}
	}
	return n
}

// Close stops the background cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
	return nil
}

func (c *MemoryCache) version(key string) version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versionLocked(key)
}

func (c *MemoryCache) versionLocked(key string) version {
	return version{epoch: c.epoch, gen: c.gens[key]}
}

// store writes an entry. Caller holds the write lock.
func (c *MemoryCache) store(key string, value []byte, ttl time.Duration) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.entries[key] = &cacheEntry{
		value:     valueCopy,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *MemoryCache) cleanup() {
	ticker := c.clock.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// removeExpired removes all expired entries.
func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
