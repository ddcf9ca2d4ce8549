package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mosaicdb/mosaicdb/internal/classify"
	"github.com/mosaicdb/mosaicdb/internal/qrouter"
	"github.com/mosaicdb/mosaicdb/internal/rank"
	"github.com/mosaicdb/mosaicdb/internal/resultcache"
	"github.com/mosaicdb/mosaicdb/internal/telemetry"
)

// rankerIdentity is the ranker-configuration fingerprint component
// resultcache.Fingerprint expects; all Engine instances currently share
// one scorer/fusion configuration, so this is a constant rather than a
// derived string.
const rankerIdentity = "mosaicdb-qrouter-v1"

// ScoredResult is the JSON-facing shape of one ranked vector/hybrid search
// hit.
type ScoredResult struct {
	ID      string             `json:"id"`
	ShardID string             `json:"shard_id"`
	Text    string             `json:"text,omitempty"`
	Score   float64            `json:"score"`
	Scores  map[string]float64 `json:"scores,omitempty"`
}

// Response is the uniform envelope every query-facing endpoint returns:
// either a list of ScoredResult (vector_search/hybrid_search) or a list of
// positional row tuples (simple_sql/analytics), tagged with which storage
// path answered it.
type Response struct {
	Results any    `json:"results"`
	Path    string `json:"path"`
}

// SearchOptions mirrors spec.md §6's POST /search and /search/hybrid body
// fields.
type SearchOptions struct {
	Limit         int
	MinSimilarity float32
	Level         string
}

func (o SearchOptions) fingerprintFields() map[string]string {
	return map[string]string{
		"limit":          fmt.Sprintf("%d", o.Limit),
		"min_similarity": fmt.Sprintf("%g", o.MinSimilarity),
		"level":          o.Level,
	}
}

func pathFor(class classify.Class) string {
	if class == classify.VectorSearch || class == classify.HybridSearch {
		return "hot"
	}
	return "warm"
}

func renderScored(scored []rank.Scored) []ScoredResult {
	out := make([]ScoredResult, 0, len(scored))
	for _, s := range scored {
		out = append(out, ScoredResult{
			ID:      s.Doc.ID,
			ShardID: s.Doc.ShardID,
			Text:    s.Doc.Text,
			Score:   s.FinalScore,
			Scores:  s.PerScorer,
		})
	}
	return out
}

func renderRows(rows []qrouter.Row) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values)
	}
	return out
}

// execute wraps a single qrouter.Execute call with spec.md §4.13's result
// cache (keyed by query text, caller options, and the "mosaicdb-qrouter-v1"
// ranker identity) and spec.md §4.9/§9 query telemetry recording, so every
// HTTP-facing entry point gets both without repeating the bookkeeping.
func (e *Engine) execute(ctx context.Context, queryText string, qopts qrouter.Options, fields map[string]string) (Response, error) {
	key := resultcacheFingerprint(queryText, fields)
	if cached, ok := e.resultCache.Get(key); ok {
		telemetry.RecordCacheHit()
		var resp Response
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp, nil
		}
	}
	telemetry.RecordCacheMiss()

	start := time.Now()
	res, err := e.router.Execute(ctx, queryText, qopts)
	latency := time.Since(start)

	resultCount := 0
	if err == nil {
		resultCount = len(res.Scored) + len(res.Rows)
	}
	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       queryText,
			QueryType:   classOrForced(res.Class, qopts.ForceClass),
			ResultCount: resultCount,
			Latency:     latency,
			Timestamp:   time.Now(),
		})
	}
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if res.Class == classify.VectorSearch || res.Class == classify.HybridSearch {
		resp = Response{Results: renderScored(res.Scored), Path: pathFor(res.Class)}
	} else {
		resp = Response{Results: renderRows(res.Rows), Path: pathFor(res.Class)}
	}

	if encoded, err := json.Marshal(resp); err == nil {
		e.resultCache.Put(key, encoded)
	}
	return resp, nil
}

func classOrForced(class, forced classify.Class) classify.Class {
	if class != "" {
		return class
	}
	return forced
}

func resultcacheFingerprint(queryText string, fields map[string]string) string {
	return resultcache.Fingerprint(queryText, fields, rankerIdentity)
}

// Search runs spec.md §6's POST /search: a forced vector_search dispatch.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (Response, error) {
	return e.execute(ctx, query, qrouter.Options{
		Level:         opts.Level,
		MinSimilarity: opts.MinSimilarity,
		Limit:         opts.Limit,
		ForceClass:    classify.VectorSearch,
	}, opts.fingerprintFields())
}

// SearchHybrid runs spec.md §6's POST /search/hybrid: query text plus a
// SQL filter fragment, forced through the hybrid_search dispatch by
// building the `SEMANTIC '<text>' WHERE <filter>` textual form the query
// router's classifier expects.
func (e *Engine) SearchHybrid(ctx context.Context, query, where string, opts SearchOptions) (Response, error) {
	form := fmt.Sprintf("SEMANTIC '%s' WHERE %s", query, where)
	fields := opts.fingerprintFields()
	fields["where"] = where
	return e.execute(ctx, form, qrouter.Options{
		Level:         opts.Level,
		MinSimilarity: opts.MinSimilarity,
		Limit:         opts.Limit,
		ForceClass:    classify.HybridSearch,
	}, fields)
}

// Query runs spec.md §6's POST /query: dispatch by the classifier's own
// judgment rather than a forced class.
func (e *Engine) Query(ctx context.Context, sql string, opts SearchOptions) (Response, error) {
	return e.execute(ctx, sql, qrouter.Options{
		Level:         opts.Level,
		MinSimilarity: opts.MinSimilarity,
		Limit:         opts.Limit,
	}, opts.fingerprintFields())
}

// Analytics runs spec.md §6's POST /analytics: a forced analytics
// dispatch, regardless of what the classifier would otherwise pick.
func (e *Engine) Analytics(ctx context.Context, sql string, opts SearchOptions) (Response, error) {
	return e.execute(ctx, sql, qrouter.Options{
		Level:      opts.Level,
		Limit:      opts.Limit,
		ForceClass: classify.Analytics,
	}, opts.fingerprintFields())
}
