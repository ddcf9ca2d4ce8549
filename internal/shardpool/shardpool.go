// Package shardpool implements the per-shard connection pool (C5): a
// bounded stack of idle shardstore.Store handles per shard, with checkout/
// checkin and close-on-drop. Grounded on the teacher's lazy-open-and-reuse
// pattern in internal/store (SQLiteBM25Index's single-writer handle reuse),
// generalized here to a per-shard pool keeping up to P idle handles rather
// than one process-wide handle. Only idle handles are capped; the number of
// handles checked out for one shard at the same time is not limited.
package shardpool

import (
	"sync"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

// DefaultMaxHandles is P, the default cap on idle handles kept per shard
// (spec.md §4.5).
const DefaultMaxHandles = 5

// Pool manages, per shard path, a bounded stack of open shardstore.Store
// handles.
type Pool struct {
	mu         sync.Mutex
	maxHandles int
	idle       map[string][]*shardstore.Store
}

// New creates a Pool keeping at most maxHandles idle handles per shard,
// defaulting to DefaultMaxHandles when maxHandles <= 0.
func New(maxHandles int) *Pool {
	if maxHandles <= 0 {
		maxHandles = DefaultMaxHandles
	}
	return &Pool{
		maxHandles: maxHandles,
		idle:       make(map[string][]*shardstore.Store),
	}
}

// Checkout returns an idle handle for shardPath if one exists, without
// probing it again, else opens a new one (shardstore.Open probes a newly
// opened handle). On open failure the shard is reported unavailable
// rather than the error bubbling up uninterpreted.
func (p *Pool) Checkout(shardPath string) (*shardstore.Store, error) {
	p.mu.Lock()
	if handles := p.idle[shardPath]; len(handles) > 0 {
		h := handles[len(handles)-1]
		p.idle[shardPath] = handles[:len(handles)-1]
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	store, err := shardstore.Open(shardPath)
	if err != nil {
		return nil, merrors.New(merrors.ShardUnavailable, "open shard handle", err)
	}
	return store, nil
}

// Checkin returns a handle to the pool, closing it instead if the shard's
// idle stack is already at capacity.
func (p *Pool) Checkin(shardPath string, h *shardstore.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle[shardPath]) >= p.maxHandles {
		_ = h.Close()
		return
	}
	p.idle[shardPath] = append(p.idle[shardPath], h)
}

// CloseAll closes every idle handle across every shard, guaranteeing
// close-on-drop on process shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, handles := range p.idle {
		for _, h := range handles {
			_ = h.Close()
		}
		delete(p.idle, path)
	}
}

// IdleCount reports how many idle handles are currently pooled for
// shardPath, used by tests and internal/telemetry.
func (p *Pool) IdleCount(shardPath string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[shardPath])
}
