package cache

import (
	"context"
	"sync"
	"time"
)

type memoryCache struct {
	fallbackTTL time.Duration

	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory returns the process-local backend. Expired entries die logically
// at lookup time; there is no background sweeper because the working set is
// bounded by the channel population a deployment actually serves.
func NewMemory(fallbackTTL time.Duration) StatusCache {
	if fallbackTTL <= 0 {
		fallbackTTL = 30 * time.Second
	}
	return &memoryCache{fallbackTTL: fallbackTTL, entries: make(map[string]Entry)}
}

func (c *memoryCache) Lookup(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *memoryCache) Store(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt.Add(c.fallbackTTL)
	}
	c.entries[key] = entry
	return nil
}

func (c *memoryCache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.entries)), nil
}

func (c *memoryCache) Close(context.Context) error {
	return nil
}
