// Package shardrouter implements the shard router (C6): given a query
// vector, it narrows the full shard set down to a small, similarity-ranked
// candidate list the fan-out executor then queries. Grounded on the
// teacher's internal/search/engine.go dispatch shape, generalized from
// "pick a BM25/vector backend" to "pick candidate shards by centroid
// similarity."
package shardrouter

import (
	"context"
	"sort"

	"github.com/mosaicdb/mosaicdb/internal/bloom"
	"github.com/mosaicdb/mosaicdb/internal/hotcache"
	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

// DefaultLevel and DefaultMinSimilarity are spec.md §4.6's documented
// defaults.
const (
	DefaultLevel         = "paragraph"
	DefaultMinSimilarity = 0.1
)

// Candidate is a shard annotated with its similarity to the query vector.
type Candidate struct {
	Shard      routing.Shard
	Similarity float32
}

// Options configures a single routing call.
type Options struct {
	Level         string
	MinSimilarity float32
	QueryTerms    []string
	Limit         int
}

// RoutingSource is the durable routing index the router reads on every
// Route call (spec.md §4.6 step 1); the hot cache only supplies the entry
// for a shard it already holds.
type RoutingSource interface {
	ActiveShardsAtLevel(ctx context.Context, level string) ([]routing.RoutingEntry, error)
}

// Router selects candidate shards for a query vector.
type Router struct {
	cache  *hotcache.Cache
	source RoutingSource
}

// New creates a Router backed by the given hot-shard cache and routing
// index.
func New(cache *hotcache.Cache, source RoutingSource) *Router {
	return &Router{cache: cache, source: source}
}

// AccessUpdater batches query-count increments rather than writing
// synchronously on every route call (spec.md §4.6 step 5: "Update access
// stats (buffered)").
type AccessUpdater interface {
	Record(shardID string)
}

// Route runs the C6 algorithm: routing-index fetch with cached entries
// substituted, bloom
// pruning, centroid similarity filtering, sort, tie-break, truncate.
func (r *Router) Route(ctx context.Context, queryVector []float32, opts Options, updater AccessUpdater) ([]Candidate, error) {
	level := opts.Level
	if level == "" {
		level = DefaultLevel
	}
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = DefaultMinSimilarity
	}
	limit := opts.Limit
	if limit <= 0 {
		return nil, merrors.New(merrors.InvalidInput, "limit must be > 0", nil)
	}

	entries, err := r.fetchEntries(ctx, level, limit)
	if err != nil {
		return nil, err
	}

	if len(opts.QueryTerms) > 0 {
		entries = filterByBloom(entries, opts.QueryTerms)
	}

	queryNorm := vecmath.Norm(queryVector)
	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		sim, err := vecmath.CosineSimilarity(queryVector, queryNorm, e.Centroid.Vector, e.Centroid.Norm)
		if err != nil {
			continue // dimension mismatch: skip rather than fail the whole query
		}
		// shard router convention: 1 - cosine_distance/2, i.e. similarity
		// rescaled to [0,1] from cosine similarity's [-1,1] range. This is
		// deliberately distinct from the fan-out executor's 1/(1+distance)
		// convention (see internal/rankctx.DistanceToSimilarity) — spec.md
		// §9 retains both rather than unifying them.
		scaled := 1 - (1-sim)/2
		if scaled < minSim {
			continue
		}
		candidates = append(candidates, Candidate{Shard: e.Shard, Similarity: scaled})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].Shard.QueryCount != candidates[j].Shard.QueryCount {
			return candidates[i].Shard.QueryCount > candidates[j].Shard.QueryCount
		}
		return candidates[i].Shard.ID < candidates[j].Shard.ID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if updater != nil {
		for _, c := range candidates {
			updater.Record(c.Shard.ID)
		}
	}

	return candidates, nil
}

// fetchEntries reads every active shard at level from the routing index,
// then uses the hot cache's entry for each shard the cache holds and admits
// the others into the cache (§4.4's "fetched entries are admitted to the
// cache"). The index is read on every call whatever the cache holds, and
// limit does not bound the fetch.
func (r *Router) fetchEntries(ctx context.Context, level string, limit int) ([]routing.RoutingEntry, error) {
	fromIndex, err := r.source.ActiveShardsAtLevel(ctx, level)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "fetch active shards", err)
	}

	entries := make([]routing.RoutingEntry, 0, len(fromIndex))
	for _, full := range fromIndex {
		if cached, ok := r.cache.Get(full.Shard.ID); ok {
			entries = append(entries, cached)
			continue
		}
		r.cache.Admit(full)
		entries = append(entries, full)
	}
	return entries, nil
}

func filterByBloom(entries []routing.RoutingEntry, terms []string) []routing.RoutingEntry {
	out := make([]routing.RoutingEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.BloomBytes) == 0 {
			out = append(out, e) // no filter recorded: don't prune on absence
			continue
		}
		f, err := bloom.Unmarshal(e.BloomBytes)
		if err != nil {
			out = append(out, e)
			continue
		}
		if f.ContainsAny(terms) {
			out = append(out, e)
		}
	}
	return out
}
