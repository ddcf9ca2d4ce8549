package engine

import (
	"context"

	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/telemetry"
)

// ShardInfo is the JSON-facing shape of one GET /shards entry.
type ShardInfo struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	DocCount   int64  `json:"doc_count"`
	QueryCount int64  `json:"query_count"`
}

// ShardsResponse is spec.md §6's GET /shards body.
type ShardsResponse struct {
	Count  int         `json:"count"`
	Shards []ShardInfo `json:"shards"`
}

// ListShards implements spec.md §6's GET /shards, computing doc_count by
// querying each active shard directly (the routing index only durably
// tracks query_count, per spec.md §3's Shard attributes being
// core-immutable except query_count/last_accessed).
func (e *Engine) ListShards(ctx context.Context) (ShardsResponse, error) {
	entries, err := e.routingIdx.ActiveShardsAtLevel(ctx, shardrouter.DefaultLevel)
	if err != nil {
		return ShardsResponse{}, err
	}

	infos := make([]ShardInfo, 0, len(entries))
	for _, entry := range entries {
		info := ShardInfo{ID: entry.Shard.ID, Path: entry.Shard.Path, QueryCount: entry.Shard.QueryCount}
		if count, err := e.shardDocCount(ctx, entry.Shard.Path); err == nil {
			info.DocCount = count
		} else {
			e.logger.Warn("doc count query failed", "shard_id", entry.Shard.ID, "error", err)
		}
		infos = append(infos, info)
	}

	telemetry.SetShardCount(len(infos))
	return ShardsResponse{Count: len(infos), Shards: infos}, nil
}

func (e *Engine) shardDocCount(ctx context.Context, shardPath string) (int64, error) {
	handle, err := e.pool.Checkout(shardPath)
	if err != nil {
		return 0, err
	}
	defer e.pool.Checkin(shardPath, handle)

	rows, err := handle.Query(ctx, "SELECT COUNT(*) FROM chunks")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// MetricsResponse is spec.md §6's GET /metrics body.
type MetricsResponse struct {
	CacheHits          int64                            `json:"cache_hits"`
	CacheMisses        int64                            `json:"cache_misses"`
	ShardCount         int                              `json:"shard_count"`
	AttachedShardCount int                              `json:"attached_shard_count"`
	QueryMetrics       *telemetry.QueryMetricsSnapshot  `json:"query_metrics,omitempty"`
}

// Metrics implements spec.md §6's GET /metrics. cache_hits/cache_misses
// report the query-result cache (internal/resultcache), the cache spec.md
// §6 and §4.13 mean by "cache" — not the routing layer's hot-shard cache,
// whose counts are kept by hotcache.Cache.Stats and not reported here. query_metrics
// surfaces spec.md §4.9/§9's per-query-type, latency, and repetition
// telemetry the coordinator accumulates in memory.
func (e *Engine) Metrics(ctx context.Context) (MetricsResponse, error) {
	stats := e.resultCache.Stats()
	entries, err := e.routingIdx.ActiveShardsAtLevel(ctx, shardrouter.DefaultLevel)
	if err != nil {
		return MetricsResponse{}, err
	}
	attached := e.bridge.AttachedCount()
	telemetry.SetAttachedShardCount(attached)

	var snapshot *telemetry.QueryMetricsSnapshot
	if e.metrics != nil {
		snapshot = e.metrics.Snapshot()
	}

	return MetricsResponse{
		CacheHits:          stats.Hits,
		CacheMisses:        stats.Misses,
		ShardCount:         len(entries),
		AttachedShardCount: attached,
		QueryMetrics:       snapshot,
	}, nil
}
