// Package aggregate implements the aggregator (C12): the in-process
// fast path for simple cross-shard aggregates (COUNT/SUM/MIN/MAX/AVG,
// with at most a single GROUP BY key), executed per shard and merged
// without invoking the analytics bridge. Grounded on
// internal/telemetry/store.go's SQLiteMetricsStore, which runs the same
// SQL shape ("SELECT key, agg(col) ... GROUP BY key") against a single
// SQLite handle and scans rows generically; generalized here to merge
// those per-shard partial aggregates across many shard handles.
package aggregate

import (
	"context"
	"database/sql"
	"sort"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
)

// Func is one of the five aggregate functions spec.md §4.12 supports for
// the in-process merge path.
type Func string

const (
	Count Func = "count"
	Sum   Func = "sum"
	Min   Func = "min"
	Max   Func = "max"
	Avg   Func = "avg"
)

// Row is a single aggregate result row, either ungrouped (GroupKey == "")
// or one group of a single-key GROUP BY.
type Row struct {
	GroupKey string
	Value    float64
	Present  bool // false means every shard returned NULL for this group
}

// Spec describes how to merge per-shard partial rows into the final
// cross-shard result.
type Spec struct {
	Func      Func
	GroupBy   bool
	OrderDesc bool
	Limit     int
}

// ExecutePerShard runs query against every shard in shardPaths (the same
// SQL against each, per spec.md §4.12's "execute the query per shard"),
// collecting each shard's partial rows. A shard that fails to open or
// query is skipped, matching the fan-out executor's partial-failure
// tolerance; ExecutePerShard only fails if every shard fails.
func ExecutePerShard(ctx context.Context, pool *shardpool.Pool, shardPaths []string, query string, args ...any) ([][]Row, error) {
	if len(shardPaths) == 0 {
		return nil, merrors.New(merrors.NotFound, "no shards to aggregate over", nil)
	}

	results := make([][]Row, 0, len(shardPaths))
	failures := 0
	for _, path := range shardPaths {
		rows, err := queryOneShard(ctx, pool, path, query, args...)
		if err != nil {
			failures++
			continue
		}
		results = append(results, rows)
	}

	if failures == len(shardPaths) {
		return nil, merrors.New(merrors.AllShardsFailed, "all shards failed during aggregation", nil)
	}
	return results, nil
}

func queryOneShard(ctx context.Context, pool *shardpool.Pool, path, query string, args ...any) ([]Row, error) {
	handle, err := pool.Checkout(path)
	if err != nil {
		return nil, err
	}
	defer pool.Checkin(path, handle)

	rows, err := handle.Query(ctx, query, args...)
	if err != nil {
		return nil, merrors.New(merrors.ShardUnavailable, "shard aggregate query", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows reads either a single aggregate column (ungrouped) or a
// (group_key, aggregate) pair per spec.md §4.12's "GROUP BY (single key +
// single aggregate)" scope.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, merrors.New(merrors.Internal, "read aggregate columns", err)
	}
	grouped := len(cols) >= 2

	var out []Row
	for rows.Next() {
		var r Row
		var value sql.NullFloat64
		if grouped {
			var key sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				return nil, merrors.New(merrors.Internal, "scan grouped aggregate row", err)
			}
			r.GroupKey = key.String
		} else {
			if err := rows.Scan(&value); err != nil {
				return nil, merrors.New(merrors.Internal, "scan aggregate row", err)
			}
		}
		r.Value = value.Float64
		r.Present = value.Valid
		out = append(out, r)
	}
	return out, rows.Err()
}

// accumulator tracks the running merge state for one group key.
type accumulator struct {
	sum        float64
	count      int
	min, max   float64
	haveMinMax bool
	shardMeans []float64 // for the documented Avg approximation
}

// Merge combines per-shard partial rows into the final cross-shard result,
// per spec.md §4.12: COUNT/SUM sum, MIN/MAX min/max with nulls ignored,
// AVG as the documented equal-weight mean of per-shard means (NOT the
// correct SUM/COUNT-weighted mean — see spec.md §9 open question 1 and
// DESIGN.md; fixing this would require shipping SUM and COUNT alongside
// AVG from each shard, which changes the per-shard query shape this
// package is handed). Finally applies optional ORDER BY / LIMIT.
func Merge(perShard [][]Row, spec Spec) []Row {
	acc := make(map[string]*accumulator)
	var order []string

	for _, shardRows := range perShard {
		for _, r := range shardRows {
			a, ok := acc[r.GroupKey]
			if !ok {
				a = &accumulator{}
				acc[r.GroupKey] = a
				order = append(order, r.GroupKey)
			}
			mergeInto(a, spec.Func, r)
		}
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		out = append(out, finalize(acc[key], spec.Func, key))
	}

	sort.Slice(out, func(i, j int) bool {
		if spec.OrderDesc {
			return out[i].Value > out[j].Value
		}
		return out[i].Value < out[j].Value
	})

	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out
}

func mergeInto(a *accumulator, fn Func, r Row) {
	switch fn {
	case Count, Sum:
		a.sum += r.Value
	case Min:
		if !r.Present {
			return
		}
		if !a.haveMinMax || r.Value < a.min {
			a.min = r.Value
		}
		a.haveMinMax = true
	case Max:
		if !r.Present {
			return
		}
		if !a.haveMinMax || r.Value > a.max {
			a.max = r.Value
		}
		a.haveMinMax = true
	case Avg:
		if !r.Present {
			return
		}
		a.shardMeans = append(a.shardMeans, r.Value)
	}
	a.count++
}

func finalize(a *accumulator, fn Func, key string) Row {
	switch fn {
	case Count, Sum:
		return Row{GroupKey: key, Value: a.sum, Present: true}
	case Min:
		return Row{GroupKey: key, Value: a.min, Present: a.haveMinMax}
	case Max:
		return Row{GroupKey: key, Value: a.max, Present: a.haveMinMax}
	case Avg:
		if len(a.shardMeans) == 0 {
			return Row{GroupKey: key, Present: false}
		}
		var sum float64
		for _, m := range a.shardMeans {
			sum += m
		}
		return Row{GroupKey: key, Value: sum / float64(len(a.shardMeans)), Present: true}
	default:
		return Row{GroupKey: key}
	}
}
