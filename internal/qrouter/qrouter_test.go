package qrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/analytics"
	"github.com/mosaicdb/mosaicdb/internal/classify"
	"github.com/mosaicdb/mosaicdb/internal/embedder"
	"github.com/mosaicdb/mosaicdb/internal/fanout"
	"github.com/mosaicdb/mosaicdb/internal/hotcache"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

type testEnv struct {
	router *Router
	idx    *routing.Index
	bridge *analytics.Bridge
	pool   *shardpool.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	embed := embedder.New(8)

	pathA := dir + "/a.db"
	pathB := dir + "/b.db"

	storeA, err := shardstore.Open(pathA)
	require.NoError(t, err)
	require.NoError(t, storeA.Put(context.Background(), shardstore.Chunk{
		ID: "a1", Text: "alpha beta", Vector: embed.Encode(context.Background(), "alpha beta"), PageRank: 3, Datetime: "2026-01-01",
	}))
	require.NoError(t, storeA.Close())

	storeB, err := shardstore.Open(pathB)
	require.NoError(t, err)
	require.NoError(t, storeB.Put(context.Background(), shardstore.Chunk{
		ID: "b1", Text: "gamma delta", Vector: embed.Encode(context.Background(), "gamma delta"), PageRank: 7, Datetime: "2026-01-01",
	}))
	require.NoError(t, storeB.Close())

	idx, err := routing.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	for _, s := range []struct {
		id, path string
		vec      []float32
	}{
		{"a", pathA, embed.Encode(context.Background(), "alpha beta")},
		{"b", pathB, embed.Encode(context.Background(), "gamma delta")},
	} {
		require.NoError(t, idx.Register(context.Background(), routing.RoutingEntry{
			Shard:    routing.Shard{ID: s.id, Path: s.path, Level: shardrouter.DefaultLevel},
			Centroid: routing.ShardCentroid{ShardID: s.id, Vector: s.vec, Norm: 1},
		}))
	}

	cache, err := hotcache.New(10)
	require.NoError(t, err)

	pool := shardpool.New(10)
	t.Cleanup(pool.CloseAll)

	sr := shardrouter.New(cache, idx)
	fx := fanout.New(pool)

	bridge, err := analytics.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bridge.Close() })

	r, err := New(embed, sr, fx, pool, bridge, idx)
	require.NoError(t, err)

	return &testEnv{router: r, idx: idx, bridge: bridge, pool: pool}
}

func TestExecuteVectorSearchOnEmptyCorpusReturnsEmptyNoError(t *testing.T) {
	embed := embedder.New(8)
	idx, err := routing.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	cache, err := hotcache.New(10)
	require.NoError(t, err)
	pool := shardpool.New(10)
	t.Cleanup(pool.CloseAll)
	sr := shardrouter.New(cache, idx)
	fx := fanout.New(pool)
	bridge, err := analytics.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bridge.Close() })

	r, err := New(embed, sr, fx, pool, bridge, idx)
	require.NoError(t, err)

	res, err := r.Execute(context.Background(), "SEMANTIC 'anything'", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, classify.VectorSearch, res.Class)
	assert.Empty(t, res.Scored)
}

func TestNewRejectsNilDependency(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestExecuteVectorSearchRanksAcrossShards(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SEMANTIC 'alpha beta'", Options{Limit: 10, MinSimilarity: -1})
	require.NoError(t, err)
	assert.Equal(t, classify.VectorSearch, res.Class)
	require.NotEmpty(t, res.Scored)
	assert.Equal(t, "a1", res.Scored[0].Doc.ID)
}

func TestExecuteHybridSearchParsesFilterAndRanks(t *testing.T) {
	env := newTestEnv(t)

	query := "SEMANTIC 'alpha beta' WHERE pagerank > 0"
	res, err := env.router.Execute(context.Background(), query, Options{Limit: 10, MinSimilarity: -1})
	require.NoError(t, err)
	assert.Equal(t, classify.HybridSearch, res.Class)
	assert.NotEmpty(t, res.Scored)
}

func TestExecuteAnalyticsFederatesDocumentCountAcrossShards(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SELECT COUNT(*) FROM documents", Options{ForceClass: classify.Analytics})
	require.NoError(t, err)
	assert.Equal(t, classify.Analytics, res.Class)
	require.NotEmpty(t, res.Rows)
}

func TestExecuteSimpleSQLConcatenatesRowsAcrossShards(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SELECT id FROM chunks", Options{})
	require.NoError(t, err)
	assert.Equal(t, classify.SimpleSQL, res.Class)
	assert.Len(t, res.Rows, 2)
}

func TestExecuteAnalyticsSimpleAggregateBypassesBridge(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SELECT id, COUNT(*) FROM chunks GROUP BY id", Options{})
	require.NoError(t, err)
	assert.Equal(t, classify.Analytics, res.Class)
	require.NotEmpty(t, res.Rows)
	assert.Equal(t, []string{"group_key", "value"}, res.Rows[0].Columns)
}

func TestExecuteAnalyticsComplexQueryUsesBridge(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SELECT id FROM chunks GROUP BY id HAVING COUNT(*) > 0", Options{})
	require.NoError(t, err)
	assert.Equal(t, classify.Analytics, res.Class)
	assert.NotNil(t, res.Rows)
}

func TestExecuteForcesClassOverridingClassifier(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Execute(context.Background(), "SELECT id FROM chunks", Options{ForceClass: classify.Analytics})
	require.NoError(t, err)
	assert.Equal(t, classify.Analytics, res.Class)
}

func TestParseSimpleAggregateRecognizesGroupedForm(t *testing.T) {
	parsed, ok := parseSimpleAggregate("SELECT category, SUM(value) FROM chunks WHERE value > 0 GROUP BY category ORDER BY category DESC LIMIT 5")
	require.True(t, ok)
	assert.True(t, parsed.Spec.GroupBy)
	assert.True(t, parsed.Spec.OrderDesc)
	assert.Equal(t, 5, parsed.Spec.Limit)
	assert.Contains(t, parsed.ShardQuery, "GROUP BY category")
}

func TestParseSimpleAggregateRejectsJoins(t *testing.T) {
	_, ok := parseSimpleAggregate("SELECT COUNT(*) FROM chunks a JOIN other b ON a.id = b.id")
	assert.False(t, ok)
}

func TestParseSimpleAggregateRejectsMismatchedGroupColumn(t *testing.T) {
	_, ok := parseSimpleAggregate("SELECT COUNT(*) FROM chunks GROUP BY category")
	assert.False(t, ok)
}
