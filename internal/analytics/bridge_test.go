package analytics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

func seedAnalyticsShard(t *testing.T, path string, chunks ...shardstore.Chunk) {
	t.Helper()
	s, err := shardstore.Open(path)
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, s.Put(context.Background(), c))
	}
	require.NoError(t, s.Close())
}

func TestBridgeQueryFederatesAcrossAttachedShards(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	pathB := filepath.Join(dir, "b.db")
	seedAnalyticsShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0}, PageRank: 5})
	seedAnalyticsShard(t, pathB, shardstore.Chunk{ID: "b1", Text: "beta", Vector: []float32{0, 1}, PageRank: 9})

	b, err := Open()
	require.NoError(t, err)
	defer b.Close()

	shards := []ActiveShard{{ID: "a", Path: pathA}, {ID: "b", Path: pathB}}
	rows, err := b.Query(context.Background(), `SELECT id FROM chunks ORDER BY id`, shards)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"a1", "b1"}, ids)
}

func TestBridgeQueryIsIncrementalOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	seedAnalyticsShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0}})

	b, err := Open()
	require.NoError(t, err)
	defer b.Close()

	shards := []ActiveShard{{ID: "a", Path: pathA}}
	_, err = b.Query(context.Background(), `SELECT id FROM chunks`, shards)
	require.NoError(t, err)
	assert.Len(t, b.attached, 1)

	// second call with the same shard set should not re-attach (already attached).
	_, err = b.Query(context.Background(), `SELECT id FROM chunks`, shards)
	require.NoError(t, err)
	assert.Len(t, b.attached, 1)
}

func TestBridgeRefreshReattachesFromScratch(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	seedAnalyticsShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0}})

	b, err := Open()
	require.NoError(t, err)
	defer b.Close()

	shards := []ActiveShard{{ID: "a", Path: pathA}}
	require.NoError(t, b.Refresh(context.Background(), shards))
	assert.Len(t, b.attached, 1)
}
