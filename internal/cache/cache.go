// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package cache provides a thread-safe TTL cache with request coalescing.
//
// Ranking recomputation is expensive; the cache amortizes it two ways:
//
//   - TTL expiry bounds staleness without recomputing on every read.
//   - Coalescing guarantees at most one concurrent recompute per key: all
//     callers racing on an expired key block on the single outstanding
//     computation and share its result.
//
// On recompute failure the last stale value keeps being served when one
// exists - stale-but-present beats an error for a ranking display.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/minbar/tagcore/internal/metrics"
)

// staleRetention is how long an expired entry is kept around to serve as a
// degraded fallback after recompute failures before the janitor drops it.
const staleRetention = 30 * time.Minute

// entry is a cached value with its expiry.
type entry struct {
	data      interface{}
	expiresAt time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Coalesced   int64
	StaleServed int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Cache is a thread-safe in-memory TTL cache with per-key recompute
// coalescing. Distinct keys are fully independent.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	statsMu sync.Mutex
	stats   Stats

	cleanupInterval time.Duration
}

// New creates a Cache. The janitor loop is not started here; run Serve
// under the supervisor, or call Cleanup manually in tests.
func New() *Cache {
	return &Cache{
		entries:         make(map[string]entry),
		cleanupInterval: 5 * time.Minute,
		stats:           Stats{LastCleanup: time.Now()},
	}
}

// GetOrCompute returns the cached value for key, recomputing it via compute
// when absent or expired. Concurrent callers for the same expired key share
// a single compute invocation. cached reports whether the value came from
// the cache (fresh or stale) rather than this call's computation.
//
// When compute fails and a stale value exists, the stale value is returned
// with a nil error. The error is only surfaced when there is nothing at all
// to serve.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (value interface{}, cached bool, err error) {
	if v, ok := c.lookup(key, false); ok {
		c.recordHit()
		return v, true, nil
	}
	c.recordMiss()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		fresh, computeErr := compute()
		if computeErr != nil {
			return nil, computeErr
		}
		c.set(key, fresh, ttl)
		return fresh, nil
	})
	if shared {
		c.recordCoalesced()
	}
	if err == nil {
		return v, false, nil
	}

	// Recompute failed: degrade to the stale entry when one survives.
	if stale, ok := c.lookup(key, true); ok {
		c.recordStaleServed()
		metrics.CacheStaleServed.Inc()
		return stale, true, nil
	}
	return nil, false, err
}

// Get returns the fresh cached value for key, if any.
func (c *Cache) Get(key string) (interface{}, bool) {
	if v, ok := c.lookup(key, false); ok {
		c.recordHit()
		return v, true
	}
	c.recordMiss()
	return nil, false
}

// Delete drops a key immediately. Used for administrative forced refresh;
// normal freshness relies on TTL expiry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.recordEvictions(1)
}

// DeletePrefix drops every key with the given prefix and returns how many
// entries were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()
	c.recordEvictions(int64(removed))
	return removed
}

// Serve runs the janitor loop until the context is canceled, making Cache a
// suture service.
func (c *Cache) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String names the service in supervisor logs.
func (c *Cache) String() string {
	return "ranking-cache-janitor"
}

// Cleanup removes entries whose stale-retention grace has passed.
// Freshly-expired entries are kept so they can serve as degraded fallbacks.
func (c *Cache) Cleanup() {
	now := time.Now()
	c.mu.Lock()
	evicted := int64(0)
	for key, e := range c.entries {
		if now.After(e.expiresAt.Add(staleRetention)) {
			delete(c.entries, key)
			evicted++
		}
	}
	remaining := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.TotalKeys = remaining
	c.stats.LastCleanup = now
	c.statsMu.Unlock()
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	total := int64(len(c.entries))
	c.mu.RUnlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	snapshot := c.stats
	snapshot.TotalKeys = total
	return snapshot
}

// lookup fetches an entry. With allowStale it also returns expired entries.
func (c *Cache) lookup(key string, allowStale bool) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !allowStale && time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// set stores a value with the given TTL.
func (c *Cache) set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Cache) recordHit() {
	metrics.CacheHits.Inc()
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	metrics.CacheMisses.Inc()
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *Cache) recordCoalesced() {
	metrics.CacheCoalesced.Inc()
	c.statsMu.Lock()
	c.stats.Coalesced++
	c.statsMu.Unlock()
}

func (c *Cache) recordStaleServed() {
	c.statsMu.Lock()
	c.stats.StaleServed++
	c.statsMu.Unlock()
}

func (c *Cache) recordEvictions(n int64) {
	if n == 0 {
		return
	}
	c.statsMu.Lock()
	c.stats.Evictions += n
	c.statsMu.Unlock()
}
