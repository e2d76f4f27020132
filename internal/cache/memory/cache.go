// Package memory provides an in-memory snapshot cache for development and
// single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// SnapshotCache stores page snapshots with a per-entry TTL. Expiry is checked
// on read and a background sweep evicts dead entries; an expired entry is
// never returned.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   qadoc.Clock
}

type entry struct {
	snapshot  qadoc.PageSnapshot
	expiresAt time.Time
}

// NewSnapshotCache constructs a SnapshotCache.
func NewSnapshotCache(clock qadoc.Clock) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Get returns the cached snapshot for key if it has not expired.
func (c *SnapshotCache) Get(_ context.Context, key string) (qadoc.PageSnapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return qadoc.PageSnapshot{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher Put may have replaced it.
		if cur, still := c.entries[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return qadoc.PageSnapshot{}, false
	}
	return e.snapshot, true
}

// Put stores a snapshot under key for ttl. A non-positive ttl disables
// caching for the entry.
func (c *SnapshotCache) Put(_ context.Context, key string, snapshot qadoc.PageSnapshot, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{
		snapshot:  snapshot,
		expiresAt: c.clock.Now().Add(ttl),
	}
	c.mu.Unlock()
}

// Len reports the number of live entries, for metrics and tests.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep evicts expired entries. Run periodically from a background goroutine.
func (c *SnapshotCache) Sweep() {
	now := c.clock.Now()
	c.mu.Lock()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Run sweeps on the given interval until the context finishes.
func (c *SnapshotCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
