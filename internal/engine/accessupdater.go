package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mosaicdb/mosaicdb/internal/routing"
)

// DefaultAccessFlushInterval bounds how stale query_count can get before a
// batch write lands, per spec.md §4.6 step 5's "buffered" access-stat
// update.
const DefaultAccessFlushInterval = 2 * time.Second

// bufferedAccessUpdater implements shardrouter.AccessUpdater by
// accumulating per-shard hit counts in memory and flushing them as one
// batched routing.Index.UpdateAccessStats transaction on a ticker,
// grounded on the teacher's internal/async.BackgroundIndexer start/stop
// goroutine lifecycle (a stop channel plus a done channel rather than a
// raw context, so Stop can guarantee the final flush lands before
// returning).
type bufferedAccessUpdater struct {
	idx    *routing.Index
	logger *slog.Logger

	mu      sync.Mutex
	deltas  map[string]int64
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newBufferedAccessUpdater(idx *routing.Index, logger *slog.Logger) *bufferedAccessUpdater {
	return &bufferedAccessUpdater{
		idx:    idx,
		logger: logger,
		deltas: make(map[string]int64),
	}
}

// Record implements shardrouter.AccessUpdater.
func (u *bufferedAccessUpdater) Record(shardID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deltas[shardID]++
}

// Start begins the periodic flush goroutine. Safe to call once.
func (u *bufferedAccessUpdater) Start() {
	u.stopCh = make(chan struct{})
	u.doneCh = make(chan struct{})
	go u.run()
}

func (u *bufferedAccessUpdater) run() {
	defer close(u.doneCh)
	ticker := time.NewTicker(DefaultAccessFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.flush()
		case <-u.stopCh:
			u.flush()
			return
		}
	}
}

func (u *bufferedAccessUpdater) flush() {
	u.mu.Lock()
	if len(u.deltas) == 0 {
		u.mu.Unlock()
		return
	}
	stats := make([]routing.AccessStat, 0, len(u.deltas))
	for id, delta := range u.deltas {
		stats = append(stats, routing.AccessStat{ShardID: id, Delta: delta})
	}
	u.deltas = make(map[string]int64)
	u.mu.Unlock()

	if err := u.idx.UpdateAccessStats(context.Background(), stats); err != nil {
		u.logger.Warn("flush access stats failed", "error", err)
	}
}

// Stop signals the flush goroutine to run one final flush and exit,
// blocking until it has.
func (u *bufferedAccessUpdater) Stop() {
	if u.stopCh == nil {
		return
	}
	close(u.stopCh)
	<-u.doneCh
}
