package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus gauges/counters for the coordinator's ambient operational
// metrics, grounded on other_examples' sourcegraph-zoekt shards.go
// (package-level promauto vars registered to the default registerer,
// named <service>_<subject>[_total] for counters). These cover the
// signals spec.md's HTTP surface and resultcache/shardpool exercise and
// are distinct from the per-query telemetry QueryMetrics tracks.
var (
	metricCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaicdb_result_cache_hits_total",
		Help: "Result cache lookups that found a cached, unexpired entry.",
	})
	metricCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaicdb_result_cache_misses_total",
		Help: "Result cache lookups that found nothing or an expired entry.",
	})
	metricShardCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mosaicdb_shard_count",
		Help: "Number of shards currently registered in the routing index.",
	})
	metricAttachedShardCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mosaicdb_attached_shard_count",
		Help: "Number of shards currently ATTACHed to the analytics bridge.",
	})
	metricAllShardsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaicdb_all_shards_failed_total",
		Help: "Fan-out or aggregate calls where every shard failed.",
	})
)

// RecordCacheHit and RecordCacheMiss feed the result cache's hit/miss
// counter pair.
func RecordCacheHit()  { metricCacheHitsTotal.Inc() }
func RecordCacheMiss() { metricCacheMissesTotal.Inc() }

// SetShardCount reports the routing index's current registered-shard
// count.
func SetShardCount(n int) { metricShardCount.Set(float64(n)) }

// SetAttachedShardCount reports the analytics bridge's current
// attached-shard count.
func SetAttachedShardCount(n int) { metricAttachedShardCount.Set(float64(n)) }

// RecordAllShardsFailed increments the all-shards-failed counter; callers
// call this when a fan-out or aggregate call returns
// merrors.AllShardsFailed.
func RecordAllShardsFailed() { metricAllShardsFailedTotal.Inc() }
