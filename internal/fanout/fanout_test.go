package fanout

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/routing"
	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardrouter"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

func seedShard(t *testing.T, path string, chunks ...shardstore.Chunk) {
	t.Helper()
	s, err := shardstore.Open(path)
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, s.Put(context.Background(), c))
	}
	require.NoError(t, s.Close())
}

func candidateFor(id, path string) shardrouter.Candidate {
	return shardrouter.Candidate{Shard: routing.Shard{ID: id, Path: path}}
}

func TestRunMergesResultsAcrossShards(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	pathB := filepath.Join(dir, "b.db")
	seedShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0, 0}})
	seedShard(t, pathB, shardstore.Chunk{ID: "b1", Text: "beta", Vector: []float32{0, 1, 0}})

	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	candidates := []shardrouter.Candidate{candidateFor("a", pathA), candidateFor("b", pathB)}
	result, err := ex.Run(context.Background(), candidates, []float32{1, 0, 0}, Options{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Candidates, 2)

	ids := map[string]bool{}
	for _, c := range result.Candidates {
		ids[c.ChunkID] = true
	}
	assert.True(t, ids["a1"])
	assert.True(t, ids["b1"])
}

// brokenShardPath returns a path whose parent directory can never be
// created, so shardstore.Open's MkdirAll fails and Checkout reports the
// shard unavailable.
func brokenShardPath(t *testing.T, dir string) string {
	t.Helper()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	return filepath.Join(blocker, "nope.db")
}

func TestRunSkipsUnavailableShardButSucceeds(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	seedShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0, 0}})

	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	candidates := []shardrouter.Candidate{
		candidateFor("a", pathA),
		candidateFor("missing", brokenShardPath(t, dir)),
	}
	result, err := ex.Run(context.Background(), candidates, []float32{1, 0, 0}, Options{Limit: 5})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "a1", result.Candidates[0].ChunkID)
	assert.Equal(t, []string{"missing"}, result.Failed)
}

func TestRunReturnsAllShardsFailedWhenEveryShardFails(t *testing.T) {
	dir := t.TempDir()
	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	candidates := []shardrouter.Candidate{
		candidateFor("a", brokenShardPath(t, dir)),
	}
	_, err := ex.Run(context.Background(), candidates, []float32{1, 0, 0}, Options{Limit: 5})
	require.Error(t, err)
	assert.Equal(t, merrors.AllShardsFailed, merrors.KindOf(err))
}

func TestRunRejectsEmptyCandidateList(t *testing.T) {
	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	_, err := ex.Run(context.Background(), nil, []float32{1}, Options{Limit: 5})
	require.Error(t, err)
	assert.Equal(t, merrors.NotFound, merrors.KindOf(err))
}

func TestRunAppliesFilterOnTopOfANNCandidates(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	seedShard(t, pathA,
		shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0, 0}, PageRank: 5},
		shardstore.Chunk{ID: "a2", Text: "alpha two", Vector: []float32{1, 0, 0}, PageRank: 0},
	)

	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	candidates := []shardrouter.Candidate{candidateFor("a", pathA)}
	result, err := ex.Run(context.Background(), candidates, []float32{1, 0, 0}, Options{
		Limit:  5,
		Filter: "pagerank > 1",
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "a1", result.Candidates[0].ChunkID)
}

func TestRunRespectsTimeout(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	seedShard(t, pathA, shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0, 0}})

	pool := shardpool.New(2)
	defer pool.CloseAll()
	ex := New(pool)

	candidates := []shardrouter.Candidate{candidateFor("a", pathA)}
	result, err := ex.Run(context.Background(), candidates, []float32{1, 0, 0}, Options{
		Limit:   5,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
}
