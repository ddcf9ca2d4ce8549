// Package resultcache implements the result cache (C13): a TTL-bounded
// cache of serialized query results keyed by a fingerprint of the query
// text, normalized options, and ranker identity. Grounded on the teacher's
// hashicorp/golang-lru/v2 usage (internal/hotcache, internal/embed/cached.go),
// here using the library's expirable variant for TTL eviction rather than
// pure LRU capacity eviction.
package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCapacity and DefaultTTL are spec.md §4.13's documented defaults.
const (
	DefaultCapacity = 1000
	DefaultTTL      = 300 * time.Second
)

// Cache is the bounded, TTL-evicted result cache.
type Cache struct {
	lru *lru.LRU[string, []byte]

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache with the given capacity and TTL, defaulting to
// DefaultCapacity/DefaultTTL when either is non-positive.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: lru.NewLRU[string, []byte](capacity, nil, ttl)}
}

// Fingerprint derives the cache key from spec.md §4.13's triple: query
// text, a canonical (sorted) rendering of option key-value pairs, and the
// ranker identity string. Options map iteration order is not stable in Go,
// so keys are sorted before hashing to keep the fingerprint deterministic.
func Fingerprint(queryText string, options map[string]string, rankerIdentity string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(queryText))
	h.Write([]byte{0})
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(options[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte(rankerIdentity))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached serialized result for key, if present and not
// expired, tracking the hit/miss for Stats.
func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores a serialized result under key, evicting by TTL/LRU as needed.
func (c *Cache) Put(key string, value []byte) {
	c.lru.Add(key, value)
}

// Clear invalidates the entire cache. Called on shard registration per
// spec.md §4.13's documented coarse-invalidation contract; finer-grained
// invalidation is explicitly out of scope.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len returns the number of entries currently cached (for telemetry).
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats reports cumulative hit/miss counts for GET /metrics.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns the cache's cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
