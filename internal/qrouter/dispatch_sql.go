package qrouter

import (
	"context"

	"github.com/mosaicdb/mosaicdb/internal/aggregate"
	"github.com/mosaicdb/mosaicdb/internal/analytics"
	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// activeShards resolves the full active shard set at level, defaulting to
// the shard router's default granularity when level is empty. Unlike the
// vector_search/hybrid_search path, simple_sql and analytics address
// every active shard rather than a similarity-narrowed subset.
func (r *Router) activeShards(ctx context.Context, level string) ([]routing.Shard, error) {
	if level == "" {
		level = shardrouter.DefaultLevel
	}
	entries, err := r.lister.ActiveShardsAtLevel(ctx, level)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "list active shards", err)
	}
	shards := make([]routing.Shard, 0, len(entries))
	for _, e := range entries {
		shards = append(shards, e.Shard)
	}
	return shards, nil
}

// executeSimpleSQL implements spec.md §4.10's simple_sql branch: the same
// SQL is run against every active shard concurrently and the rows are
// concatenated, with no scoring or merging. Grounded on the fan-out
// executor's errgroup+semaphore.Weighted shape (internal/fanout.Run), but
// without the distance-query specialization or partial-failure tolerance
// a search fan-out needs: a SQL error here is a query error, not a
// shard-availability concern, so the first failure aborts the group.
func (r *Router) executeSimpleSQL(ctx context.Context, query string, opts Options) ([]Row, error) {
	shards, err := r.activeShards(ctx, opts.Level)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, merrors.New(merrors.NotFound, "no active shards for simple_sql dispatch", nil)
	}

	sem := semaphore.NewWeighted(int64(fanoutParallelism(opts)))
	g, gctx := errgroup.WithContext(ctx)

	perShard := make([][]Row, len(shards))
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			handle, err := r.pool.Checkout(shard.Path)
			if err != nil {
				return merrors.New(merrors.ShardUnavailable, "checkout shard for simple_sql", err).WithDetail("shard_id", shard.ID)
			}
			defer r.pool.Checkin(shard.Path, handle)

			rows, err := handle.Query(gctx, query)
			if err != nil {
				return merrors.New(merrors.Internal, "execute simple_sql query", err).WithDetail("shard_id", shard.ID)
			}
			defer rows.Close()

			scanned, err := scanGenericRows(rows, shard.ID)
			if err != nil {
				return err
			}
			perShard[i] = scanned
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Row
	for _, rows := range perShard {
		out = append(out, rows...)
	}
	return out, nil
}

func fanoutParallelism(opts Options) int {
	if opts.Limit > 0 && opts.Limit < 16 {
		return opts.Limit
	}
	return 16
}

// executeAnalytics implements spec.md §4.10's analytics branch. Per
// spec.md §4.12, a query simple enough for the in-process aggregator
// (COUNT/SUM/MIN/MAX/AVG, at most one GROUP BY key, no JOIN/HAVING/
// window/subquery) skips the analytics bridge entirely; anything else
// escalates to the federated UNION ALL rewrite.
func (r *Router) executeAnalytics(ctx context.Context, query string, opts Options) ([]Row, error) {
	if parsed, ok := parseSimpleAggregate(query); ok {
		return r.executeSimpleAggregate(ctx, parsed, opts)
	}

	shards, err := r.activeShards(ctx, opts.Level)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, merrors.New(merrors.NotFound, "no active shards for analytics dispatch", nil)
	}

	active := make([]analytics.ActiveShard, len(shards))
	for i, s := range shards {
		active[i] = analytics.ActiveShard{ID: s.ID, Path: s.Path}
	}

	rows, err := r.bridge.Query(ctx, query, active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGenericRows(rows, "")
}

func (r *Router) executeSimpleAggregate(ctx context.Context, parsed simpleAggregateQuery, opts Options) ([]Row, error) {
	shards, err := r.activeShards(ctx, opts.Level)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(shards))
	for i, s := range shards {
		paths[i] = s.Path
	}

	perShard, err := aggregate.ExecutePerShard(ctx, r.pool, paths, parsed.ShardQuery)
	if err != nil {
		return nil, err
	}

	merged := aggregate.Merge(perShard, parsed.Spec)
	out := make([]Row, 0, len(merged))
	for _, row := range merged {
		var value any
		if row.Present {
			value = row.Value
		}
		if parsed.Spec.GroupBy {
			out = append(out, Row{
				Columns: []string{"group_key", "value"},
				Values:  []any{row.GroupKey, value},
			})
			continue
		}
		out = append(out, Row{
			Columns: []string{"value"},
			Values:  []any{value},
		})
	}
	return out, nil
}
