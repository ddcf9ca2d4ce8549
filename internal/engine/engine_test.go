package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/config"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Routing.IndexPath = filepath.Join(dir, "routing.db")
	cfg.Storage.Root = dir
	cfg.Vector.Dimensions = 8
	cfg.Cache.Capacity = 100

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seedShard(t *testing.T, e *Engine, id, text string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), id+".db")
	vec := e.embed.Encode(context.Background(), text)

	store, err := shardstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), shardstore.Chunk{
		ID: id + "-chunk", Text: text, Vector: vec, PageRank: 1, Datetime: "2026-01-01",
	}))
	require.NoError(t, store.Close())

	require.NoError(t, e.RegisterShard(context.Background(), id, path, shardrouter.DefaultLevel, vec))
}

func TestNewBuildsAnEngineAndClosesCleanly(t *testing.T) {
	e := newTestEngine(t)
	assert.NotNil(t, e.router)
}

func TestSearchReturnsHotPathResults(t *testing.T) {
	e := newTestEngine(t)
	seedShard(t, e, "s1", "alpha beta search text")

	resp, err := e.Search(context.Background(), "SEMANTIC 'alpha beta'", SearchOptions{Limit: 5, MinSimilarity: -1})
	require.NoError(t, err)
	assert.Equal(t, "hot", resp.Path)
	results, ok := resp.Results.([]ScoredResult)
	require.True(t, ok)
	assert.NotEmpty(t, results)
}

func TestAnalyticsReturnsWarmPathTuples(t *testing.T) {
	e := newTestEngine(t)
	seedShard(t, e, "s1", "alpha beta")
	seedShard(t, e, "s2", "gamma delta")

	resp, err := e.Analytics(context.Background(), "SELECT COUNT(*) FROM chunks", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "warm", resp.Path)
	rows, ok := resp.Results.([][]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(2), rows[0][0])
}

func TestQueryResultIsCachedOnSecondCall(t *testing.T) {
	e := newTestEngine(t)
	seedShard(t, e, "s1", "alpha beta")

	first, err := e.Query(context.Background(), "SELECT id FROM chunks", SearchOptions{})
	require.NoError(t, err)

	second, err := e.Query(context.Background(), "SELECT id FROM chunks", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, int64(1), e.resultCache.Stats().Hits)
}

func TestListShardsReportsDocCounts(t *testing.T) {
	e := newTestEngine(t)
	seedShard(t, e, "s1", "alpha beta")

	resp, err := e.ListShards(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Shards, 1)
	assert.Equal(t, int64(1), resp.Shards[0].DocCount)
}

func TestMetricsReportsShardAndCacheCounts(t *testing.T) {
	e := newTestEngine(t)
	seedShard(t, e, "s1", "alpha beta")

	m, err := e.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.ShardCount)
}
