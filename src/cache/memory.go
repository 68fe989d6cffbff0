package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryCache is an in-memory implementation of Cache with lazy expiry.
// Useful for testing and for running without Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// failPuts makes Put fail. Test hook for the processor's best-effort
	// cache handling.
	failPuts bool
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// FailPuts toggles Put failures.
func (c *MemoryCache) FailPuts(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPuts = fail
}

// Put implements Cache.
func (c *MemoryCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failPuts {
		return errors.New("cache unavailable")
	}

	copied := make([]byte, len(value))
	copy(copied, value)
	c.entries[key] = memoryEntry{value: copied, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	return nil
}
