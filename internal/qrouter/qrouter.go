// Package qrouter implements the query router (C10): the dispatch layer
// that classifies an incoming query and routes it to the component that
// actually answers it — the shard router + fan-out + ranker pipeline for
// vector and hybrid search, the in-process aggregator or the analytics
// bridge for analytical SQL, and a federated concatenate-everything path
// for plain SQL. Grounded on the teacher's internal/search/engine.go
// Engine: a functional-options struct wiring together a fixed set of
// collaborators behind one Search-shaped entry point.
package qrouter

import (
	"context"
	"errors"

	"github.com/mosaicdb/mosaicdb/internal/analytics"
	"github.com/mosaicdb/mosaicdb/internal/classify"
	"github.com/mosaicdb/mosaicdb/internal/embedder"
	"github.com/mosaicdb/mosaicdb/internal/fanout"
	"github.com/mosaicdb/mosaicdb/internal/rank"
	"github.com/mosaicdb/mosaicdb/internal/rankctx"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
)

// ErrNilDependency mirrors the teacher's Engine constructor check: every
// collaborator New requires is mandatory.
var ErrNilDependency = errors.New("qrouter: nil dependency")

// ShardLister is the subset of the routing index the router needs to
// enumerate active shards for the simple_sql and analytics paths, which
// bypass shard-router narrowing entirely and address every active shard.
type ShardLister interface {
	ActiveShardsAtLevel(ctx context.Context, level string) ([]routing.RoutingEntry, error)
}

// DefaultScorers returns the C8 scorer set with spec.md-unspecified but
// conventional default weights: vector similarity dominates, the other
// three signals contribute smaller adjustments.
func DefaultScorers() []rank.Scorer {
	return []rank.Scorer{
		&rank.VectorSimilarityScorer{W: 0.5},
		&rank.PageRankScorer{W: 0.2, PRMax: rank.DefaultPageRankMax},
		&rank.FreshnessScorer{W: 0.15, HalfLife: rank.DefaultFreshnessHalfLifeDays},
		&rank.TextMatchScorer{W: 0.15},
	}
}

// Router dispatches a classified query to its executing component.
type Router struct {
	embedder    embedder.Embedder
	shardRouter *shardrouter.Router
	fanoutExec  *fanout.Executor
	pool        *shardpool.Pool
	bridge      *analytics.Bridge
	lister      ShardLister

	scorers  []rank.Scorer
	rankOpts rank.Options
	updater  shardrouter.AccessUpdater
}

// Option configures optional Router fields beyond the mandatory
// collaborators New requires.
type Option func(*Router)

// WithScorers overrides the default scorer set and ranking options.
func WithScorers(scorers []rank.Scorer, opts rank.Options) Option {
	return func(r *Router) {
		r.scorers = scorers
		r.rankOpts = opts
	}
}

// WithAccessUpdater wires the buffered access-stats recorder the shard
// router uses on every route call (spec.md §4.6 step 5).
func WithAccessUpdater(u shardrouter.AccessUpdater) Option {
	return func(r *Router) { r.updater = u }
}

// New builds a Router from its mandatory collaborators, applying opts
// afterward. Every positional argument is required; a nil one is rejected
// rather than deferred to a later nil-pointer panic.
func New(embed embedder.Embedder, sr *shardrouter.Router, fx *fanout.Executor, pool *shardpool.Pool, bridge *analytics.Bridge, lister ShardLister, opts ...Option) (*Router, error) {
	if embed == nil || sr == nil || fx == nil || pool == nil || bridge == nil || lister == nil {
		return nil, ErrNilDependency
	}

	r := &Router{
		embedder:    embed,
		shardRouter: sr,
		fanoutExec:  fx,
		pool:        pool,
		bridge:      bridge,
		lister:      lister,
		scorers:     DefaultScorers(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Options configures a single Execute call.
type Options struct {
	Level         string
	MinSimilarity float32
	Limit         int
	ForceClass    classify.Class
}

// Result is the outcome of an Execute call. Exactly one of Scored (for
// vector_search/hybrid_search) or Rows (for simple_sql/analytics) is
// populated, identified by Class.
type Result struct {
	Class  classify.Class
	Scored []rank.Scored
	Rows   []Row
}

// Row is one result row from the simple_sql or analytics path: an ordered
// list of column names and their decoded values, preserving the source
// query's column order rather than an unordered map (spec.md §9's "define
// a small row abstraction with named accessors" guidance). ShardID is set
// only for simple_sql's per-shard concatenation, empty otherwise.
type Row struct {
	Columns []string
	Values  []any
	ShardID string
}

// Execute runs the C10 dispatch algorithm: classify, then route to
// whichever component answers that class.
func (r *Router) Execute(ctx context.Context, query string, opts Options) (Result, error) {
	class, err := classify.Classify(query, classify.Options{ForceClass: opts.ForceClass})
	if err != nil {
		return Result{}, err
	}

	switch class {
	case classify.VectorSearch:
		scored, err := r.executeVectorSearch(ctx, query, "", opts)
		return Result{Class: class, Scored: scored}, err
	case classify.HybridSearch:
		form, err := classify.ParseSemanticForm(query)
		if err != nil {
			return Result{Class: class}, err
		}
		scored, err := r.executeVectorSearch(ctx, form.Text, form.Filter, opts)
		return Result{Class: class, Scored: scored}, err
	case classify.Analytics:
		rows, err := r.executeAnalytics(ctx, query, opts)
		return Result{Class: class, Rows: rows}, err
	default:
		rows, err := r.executeSimpleSQL(ctx, query, opts)
		return Result{Class: class, Rows: rows}, err
	}
}

// executeVectorSearch implements spec.md §4.10's vector_search and
// hybrid_search branches, both of which boil down to "embed, route,
// fan-out (with an optional filter), rank" — the only difference between
// them is whether a filter fragment was parsed out of the query text.
func (r *Router) executeVectorSearch(ctx context.Context, text, filter string, opts Options) ([]rank.Scored, error) {
	vec := r.embedder.Encode(ctx, text)

	routeOpts := shardrouter.Options{
		Level:         opts.Level,
		MinSimilarity: opts.MinSimilarity,
		QueryTerms:    rankctx.ExtractTerms(text),
		Limit:         opts.Limit,
	}
	if routeOpts.Limit <= 0 {
		routeOpts.Limit = 10
	}

	candidates, err := r.shardRouter.Route(ctx, vec, routeOpts, r.updater)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Empty corpus or nothing met min_similarity: spec.md §8 scenario 1
		// requires an empty result set, not a surfaced error.
		return nil, nil
	}

	fanoutResult, err := r.fanoutExec.Run(ctx, candidates, vec, fanout.Options{
		Level:  opts.Level,
		Filter: filter,
		Limit:  opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]rank.Doc, 0, len(fanoutResult.Candidates))
	for _, c := range fanoutResult.Candidates {
		docs = append(docs, rank.Doc{
			ID:               c.ChunkID,
			ShardID:          c.ShardID,
			Text:             c.Text,
			PageRank:         c.PageRank,
			Datetime:         c.Datetime,
			VectorSimilarity: c.Similarity,
		})
	}

	rankCtx := rank.Context{QueryTerms: rankctx.ExtractTerms(text)}
	return rank.Rank(docs, r.scorers, rankCtx, r.rankOpts), nil
}
