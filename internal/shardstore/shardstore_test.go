package shardstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shard.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutThenSearchVectorsFindsNearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Chunk{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}}))
	require.NoError(t, s.Put(ctx, Chunk{ID: "b", Text: "beta", Vector: []float32{0, 1, 0}}))

	neighbors, err := s.SearchVectors([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "a", neighbors[0].ChunkID)
}

func TestQueryExposesVecDistanceFunction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Chunk{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}}))

	rows, err := s.Query(ctx, `SELECT id, vec_distance(vector, vector) FROM chunks WHERE id = ?`, "a")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var id string
	var dist float64
	require.NoError(t, rows.Scan(&id, &dist))
	assert.Equal(t, "a", id)
	assert.InDelta(t, 0, dist, 1e-6, "a vector's distance to itself must be ~0")
}

func TestPutMirrorsRowIntoDocumentsTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Chunk{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}}))
	require.NoError(t, s.Put(ctx, Chunk{ID: "b", Text: "beta", Vector: []float32{0, 1, 0}}))

	rows, err := s.Query(ctx, `SELECT COUNT(*) FROM documents`)
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var count int
	require.NoError(t, rows.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSearchVectorsEmptyGraph(t *testing.T) {
	s := newTestStore(t)
	neighbors, err := s.SearchVectors([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}
