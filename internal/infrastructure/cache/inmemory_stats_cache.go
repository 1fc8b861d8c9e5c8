package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tripdesk/backend/internal/application/billing"
)

// InMemoryStatsCache implements StatsCache with a process-local map.
// Intended for single-instance deployments and tests; entries are
// evicted lazily on read.
type InMemoryStatsCache struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewInMemoryStatsCache creates a new in-memory stats cache
func NewInMemoryStatsCache() *InMemoryStatsCache {
	return &InMemoryStatsCache{
		entries: make(map[string]inMemoryEntry),
	}
}

// Get loads the cached value into dest, returning true on a hit
func (c *InMemoryStatsCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the value with a TTL
func (c *InMemoryStatsCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = inMemoryEntry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Delete removes a key
func (c *InMemoryStatsCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Ensure InMemoryStatsCache implements StatsCache
var _ billing.StatsCache = (*InMemoryStatsCache)(nil)
