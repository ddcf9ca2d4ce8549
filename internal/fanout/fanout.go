// Package fanout implements the fan-out executor (C7): given a candidate
// shard list and a query vector, it runs a bounded-concurrency
// vector-distance query against each shard's storage handle and merges the
// per-shard top-K rows into a single unordered candidate list, tolerating
// partial shard failure. Grounded on
// other_examples/65a98f70_sourcegraph-zoekt__shards-shards.go.go, which
// pairs golang.org/x/sync/errgroup with golang.org/x/sync/semaphore.Weighted
// for the same bounded-parallel-then-merge shape; the teacher's own
// internal/search/multi_query.go and internal/search/engine.go use the
// errgroup half of this pattern (a channel-based semaphore) but not
// semaphore.Weighted.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/rankctx"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

// DefaultParallelism is F, the default bound on concurrently-queried
// shards (spec.md §5).
const DefaultParallelism = 16

// DefaultTimeout is T, the default overall fan-out deadline (spec.md §4.7).
const DefaultTimeout = 5 * time.Second

// DefaultLimitMultiplier derives K (the per-shard result cap) from the
// caller's requested limit when K isn't given explicitly (spec.md §4.7:
// "K (default limit × 3)").
const DefaultLimitMultiplier = 3

// annOverfetch widens the HNSW accelerator's candidate set beyond k before
// the SQL layer applies its own filter, so a restrictive filter fragment
// still leaves enough rows to satisfy k.
const annOverfetch = 4

// CandidateResult is one chunk-level hit returned from a single shard's
// vector-distance query.
type CandidateResult struct {
	ShardID    string
	ChunkID    string
	Text       string
	Metadata   []byte
	PageRank   float64
	Datetime   string
	Distance   float32
	Similarity float32
}

// Options configures a single fan-out call.
type Options struct {
	// Level is the granularity the shards were routed at (document,
	// paragraph or sentence), defaulting to shardrouter.DefaultLevel; the
	// per-shard query does not filter on it.
	Level string
	// Filter is an optional SQL WHERE-clause fragment, applied per-shard
	// only. See doc.go for the trust model this assumes.
	Filter string
	// Limit is the caller's desired result count; K defaults to
	// Limit * DefaultLimitMultiplier when PerShardLimit is unset.
	Limit int
	// PerShardLimit overrides the derived K when > 0.
	PerShardLimit int
	// Parallelism overrides DefaultParallelism when > 0.
	Parallelism int
	// Timeout overrides DefaultTimeout when > 0.
	Timeout time.Duration
}

// Executor runs the C7 algorithm across a candidate shard list.
type Executor struct {
	pool *shardpool.Pool
}

// New creates an Executor backed by the given connection pool.
func New(pool *shardpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Result is the outcome of a fan-out call: the merged candidates plus the
// set of shards that failed or timed out (logged, not fatal, unless every
// shard failed).
type Result struct {
	Candidates []CandidateResult
	Failed     []string
}

// Run executes opts against every candidate shard concurrently, bounded by
// opts.Parallelism (default DefaultParallelism), under an overall deadline
// of opts.Timeout (default DefaultTimeout). A shard that errors or times
// out is logged and skipped; Run only returns merrors.ErrAllShardsFailed
// when every shard in candidates failed.
func (ex *Executor) Run(ctx context.Context, candidates []shardrouter.Candidate, queryVector []float32, opts Options) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, merrors.New(merrors.NotFound, "no candidate shards", nil)
	}

	level := opts.Level
	if level == "" {
		level = shardrouter.DefaultLevel
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	perShardLimit := opts.PerShardLimit
	if perShardLimit <= 0 {
		perShardLimit = limit * DefaultLimitMultiplier
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sem := semaphore.NewWeighted(int64(parallelism))
	g, gctx := errgroup.WithContext(fctx)

	type shardOutcome struct {
		shardID string
		rows    []CandidateResult
		err     error
	}
	outcomes := make([]shardOutcome, len(candidates))

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = shardOutcome{shardID: cand.Shard.ID, err: err}
				return nil
			}
			defer sem.Release(1)

			rows, err := ex.queryShard(gctx, cand.Shard.ID, cand.Shard.Path, queryVector, level, opts.Filter, perShardLimit)
			outcomes[i] = shardOutcome{shardID: cand.Shard.ID, rows: rows, err: err}
			return nil // never fail the group on a single shard's error
		})
	}

	// Every goroutine above returns nil, including when sem.Acquire fails,
	// so g.Wait never returns an error; per-shard errors are carried in
	// outcomes and handled below.
	_ = g.Wait()

	result := Result{}
	for _, o := range outcomes {
		if o.err != nil {
			slog.Warn("fanout_shard_failed",
				slog.String("shard_id", o.shardID),
				slog.String("error", o.err.Error()))
			result.Failed = append(result.Failed, o.shardID)
			continue
		}
		result.Candidates = append(result.Candidates, o.rows...)
	}

	if len(result.Failed) == len(candidates) {
		return result, merrors.New(merrors.AllShardsFailed, "all shards failed or timed out", nil).
			WithDetail("shard_count", fmt.Sprintf("%d", len(candidates)))
	}

	return result, nil
}

// queryShard runs steps 1-5 of spec.md §4.7 for a single shard: checkout,
// ANN-narrowed filtered distance query ordered by distance ascending
// limited to k, convert rows, checkin. level is accepted but not filtered
// on here: a shard's storage handle holds one granularity already, since
// the shard router (internal/shardrouter) selected it at that level.
//
// Per spec.md §4.5a, the shard's HNSW graph (internal/shardstore) is
// consulted first as an ANN accelerator to narrow the candidate set; the
// SQL layer then re-scores and applies filter/k exactly over that narrowed
// set rather than a full-table scan. ANN over-fetches by annOverfetch so
// the subsequent SQL filter still has enough rows to satisfy k.
func (ex *Executor) queryShard(ctx context.Context, shardID, shardPath string, queryVector []float32, level, filter string, k int) ([]CandidateResult, error) {
	handle, err := ex.pool.Checkout(shardPath)
	if err != nil {
		return nil, err
	}
	defer ex.pool.Checkin(shardPath, handle)

	qvec := vecmath.EncodeFloat32s(queryVector)

	query := `
SELECT id, text, metadata, datetime, pagerank, vec_distance(vector, ?) AS distance
FROM chunks`
	args := []any{qvec}

	var clauses []string
	if strings.TrimSpace(filter) != "" {
		clauses = append(clauses, "("+filter+")")
	}

	if neighbors, err := handle.SearchVectors(queryVector, k*annOverfetch); err == nil && len(neighbors) > 0 {
		placeholders := make([]string, len(neighbors))
		for i, n := range neighbors {
			placeholders[i] = "?"
			args = append(args, n.ChunkID)
		}
		clauses = append(clauses, "id IN ("+strings.Join(placeholders, ",")+")")
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, k)

	rows, err := handle.Query(ctx, query, args...)
	if err != nil {
		return nil, merrors.New(merrors.ShardUnavailable, "shard vector query", err)
	}
	defer rows.Close()

	var out []CandidateResult
	for rows.Next() {
		var (
			id, text, datetime string
			metadata           []byte
			pagerank           float64
			distance           float64
		)
		if err := rows.Scan(&id, &text, &metadata, &datetime, &pagerank, &distance); err != nil {
			return nil, merrors.New(merrors.Internal, "scan fan-out row", err)
		}
		d := float32(distance)
		out = append(out, CandidateResult{
			ShardID:    shardID,
			ChunkID:    id,
			Text:       text,
			Metadata:   metadata,
			PageRank:   pagerank,
			Datetime:   datetime,
			Distance:   d,
			Similarity: rankctx.DistanceToSimilarity(&d),
		})
	}
	return out, rows.Err()
}
