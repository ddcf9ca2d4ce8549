// Package engine wires every MosaicDB component into one coordinator
// value: the routing index, hot-shard cache, connection pool, embedder,
// shard router, fan-out executor, analytics bridge, query router, result
// cache, and query telemetry. Grounded on the teacher's
// internal/search/engine.go Engine: a functional-options struct
// constructed once at startup and handed to every caller (MCP server, or
// here, the HTTP API) as a single dependency.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mosaicdb/mosaicdb/internal/analytics"
	"github.com/mosaicdb/mosaicdb/internal/config"
	"github.com/mosaicdb/mosaicdb/internal/embedder"
	"github.com/mosaicdb/mosaicdb/internal/fanout"
	"github.com/mosaicdb/mosaicdb/internal/hotcache"
	"github.com/mosaicdb/mosaicdb/internal/qrouter"
	"github.com/mosaicdb/mosaicdb/internal/rank"
	"github.com/mosaicdb/mosaicdb/internal/resultcache"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
	"github.com/mosaicdb/mosaicdb/internal/telemetry"
	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

// Engine is the top-level coordinator: every query the HTTP API (or any
// other front end) serves flows through it.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	routingIdx  *routing.Index
	hotCache    *hotcache.Cache
	pool        *shardpool.Pool
	embed       embedder.Embedder
	shardRouter *shardrouter.Router
	fanoutExec  *fanout.Executor
	bridge      *analytics.Bridge
	router      *qrouter.Router
	resultCache *resultcache.Cache
	metrics     *telemetry.QueryMetrics
	access      *bufferedAccessUpdater
}

// Option configures optional Engine fields beyond what New wires from cfg.
type Option func(*Engine)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics overrides the query telemetry collector New otherwise builds
// automatically (an in-memory, unpersisted telemetry.QueryMetrics). Use
// this to attach a store-backed collector instead.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine from cfg, opening the routing index and wiring
// every collaborator in dependency order. The caller owns the returned
// Engine's lifetime and must call Close.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	routingIdx, err := routing.Open(cfg.Routing.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open routing index: %w", err)
	}
	e.routingIdx = routingIdx

	hotCache, err := hotcache.New(cfg.HotCache.Capacity)
	if err != nil {
		_ = routingIdx.Close()
		return nil, fmt.Errorf("engine: create hot cache: %w", err)
	}
	e.hotCache = hotCache

	if err := hotcache.Preload(context.Background(), hotCache, routingIdx, cfg.HotCache.Capacity); err != nil {
		e.logger.Warn("hot cache preload failed", "error", err)
	}

	e.pool = shardpool.New(cfg.ShardPool.MaxHandlesPerShard)
	e.embed = embedder.New(cfg.Vector.Dimensions)
	e.shardRouter = shardrouter.New(hotCache, routingIdx)
	e.fanoutExec = fanout.New(e.pool)

	bridge, err := analytics.Open()
	if err != nil {
		_ = routingIdx.Close()
		return nil, fmt.Errorf("engine: open analytics bridge: %w", err)
	}
	e.bridge = bridge

	e.access = newBufferedAccessUpdater(routingIdx, e.logger)

	scorers := []rank.Scorer{
		&rank.VectorSimilarityScorer{W: 0.5},
		&rank.PageRankScorer{W: 0.2, PRMax: cfg.Rank.PageRankMax},
		&rank.FreshnessScorer{W: 0.15, HalfLife: cfg.Rank.FreshnessHalfLife},
		&rank.TextMatchScorer{W: 0.15},
	}
	rankOpts := rank.Options{Strategy: rank.Strategy(cfg.Rank.DefaultFusion), RRFConstant: cfg.Rank.RRFConstant}

	router, err := qrouter.New(e.embed, e.shardRouter, e.fanoutExec, e.pool, e.bridge, routingIdx,
		qrouter.WithScorers(scorers, rankOpts),
		qrouter.WithAccessUpdater(e.access),
	)
	if err != nil {
		_ = bridge.Close()
		_ = routingIdx.Close()
		return nil, fmt.Errorf("engine: create query router: %w", err)
	}
	e.router = router

	e.resultCache = resultcache.New(cfg.Cache.Capacity, cfg.Cache.TTL)
	if e.metrics == nil {
		// No store wired: query telemetry lives in memory for this
		// process's lifetime, per telemetry.NewQueryMetrics's documented
		// nil-store fallback. Nothing in spec.md requires surviving a
		// restart, and the coordinator has no dedicated telemetry
		// database to hand it.
		e.metrics = telemetry.NewQueryMetrics(nil)
	}
	e.access.Start()

	return e, nil
}

// Close releases every owned resource.
func (e *Engine) Close() error {
	e.access.Stop()
	e.pool.CloseAll()
	_ = e.metrics.Close()
	if err := e.bridge.Close(); err != nil {
		return err
	}
	return e.routingIdx.Close()
}

// RegisterShard opens a newly-ingested shard's storage file and registers
// it in the routing index at the given level, invalidating the result
// cache (spec.md §4.13's coarse-invalidation-on-registration contract).
// Ingest itself (populating the shard's contents) is opaque to the core
// per spec.md §6; this only makes an already-populated shard file
// queryable.
func (e *Engine) RegisterShard(ctx context.Context, id, path, level string, centroid []float32) error {
	store, err := shardstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entry := routing.RoutingEntry{
		Shard: routing.Shard{ID: id, Path: path, Level: level},
		Centroid: routing.ShardCentroid{
			ShardID: id,
			Vector:  centroid,
			Norm:    vecmath.Norm(centroid),
		},
	}
	if err := e.routingIdx.Register(ctx, entry); err != nil {
		return err
	}
	e.resultCache.Clear()
	return nil
}
