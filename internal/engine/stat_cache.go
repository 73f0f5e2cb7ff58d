package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultHistoryTTL is how long a computed HistoricalStat stays usable.
const DefaultHistoryTTL = 5 * 24 * time.Hour

// KeyValueStore is the persisted cache tier. Set replaces the value for a
// key atomically.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// HistoryKey is the persisted-tier key of a (region, type) stat.
func HistoryKey(regionID, typeID int32) string {
	return fmt.Sprintf("market-history/%d/%d", regionID, typeID)
}

type statKey struct {
	regionID int32
	typeID   int32
}

// StatCache is the in-memory tier of historical stats.
type StatCache struct {
	mu      sync.RWMutex
	entries map[statKey]CacheEntry
}

// NewStatCache returns an empty cache.
func NewStatCache() *StatCache {
	return &StatCache{entries: make(map[statKey]CacheEntry)}
}

// Get returns the entry for (region, type) if present.
func (c *StatCache) Get(regionID, typeID int32) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[statKey{regionID, typeID}]
	return e, ok
}

// Put stores e for the type, replacing any earlier entry.
func (c *StatCache) Put(regionID, typeID int32, e CacheEntry) {
	c.mu.Lock()
	c.entries[statKey{regionID, typeID}] = e
	c.mu.Unlock()
}

// Len returns the number of cached stats.
func (c *StatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops entries that are stale at now and returns how many went.
func (c *StatCache) Purge(now time.Time, ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !e.Fresh(now, ttl) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
