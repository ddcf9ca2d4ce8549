// Package hotcache implements the hot-shard LRU cache (C4): a bounded
// in-memory map from shard ID to RoutingEntry that the shard router
// consults before falling back to the routing index. Grounded on the
// teacher's hashicorp/golang-lru/v2 usage in internal/embed/cached.go and
// internal/search/classifier.go.
package hotcache

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mosaicdb/mosaicdb/internal/routing"
)

// DefaultCapacity is the hot-shard cache's default size (spec.md §4.4).
const DefaultCapacity = 10000

// Source loads RoutingEntry values the cache doesn't hold, and is used both
// to preload the cache at startup and to fall back on a miss.
type Source interface {
	ActiveShardsAtLevel(ctx context.Context, level string) ([]routing.RoutingEntry, error)
	TopByQueryCount(ctx context.Context, n int) ([]routing.RoutingEntry, error)
}

// Cache is the bounded, LRU-evicted shard-entry cache.
type Cache struct {
	lru *lru.Cache[string, routing.RoutingEntry]

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache with the given capacity, defaulting to DefaultCapacity
// when capacity <= 0.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[string, routing.RoutingEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Preload fills the cache with the top-n shards by query_count, as spec.md
// §4.4 requires at startup.
func Preload(ctx context.Context, c *Cache, src Source, n int) error {
	entries, err := src.TopByQueryCount(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		c.lru.Add(e.Shard.ID, e)
	}
	return nil
}

// Get returns the entry for shardID, promoting it to most-recently-used on
// a hit.
func (c *Cache) Get(shardID string) (routing.RoutingEntry, bool) {
	v, ok := c.lru.Get(shardID)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Admit inserts or refreshes an entry, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Admit(entry routing.RoutingEntry) {
	c.lru.Add(entry.Shard.ID, entry)
}

// Remove evicts an entry, used when a shard is deregistered.
func (c *Cache) Remove(shardID string) {
	c.lru.Remove(shardID)
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats reports cumulative hit/miss counts for internal/telemetry.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns the cache's cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
