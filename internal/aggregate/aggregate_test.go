package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/shardpool"
	"github.com/mosaicdb/mosaicdb/internal/shardstore"
)

func TestMergeSumAcrossShards(t *testing.T) {
	perShard := [][]Row{
		{{Value: 3, Present: true}},
		{{Value: 5, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Sum})
	require.Len(t, out, 1)
	assert.Equal(t, 8.0, out[0].Value)
}

func TestMergeCountAcrossShards(t *testing.T) {
	perShard := [][]Row{
		{{Value: 10, Present: true}},
		{{Value: 7, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Count})
	require.Len(t, out, 1)
	assert.Equal(t, 17.0, out[0].Value)
}

func TestMergeMinIgnoresNulls(t *testing.T) {
	perShard := [][]Row{
		{{Value: 2, Present: true}},
		{{Present: false}},
		{{Value: 1, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Min})
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Value)
}

func TestMergeMaxIgnoresNulls(t *testing.T) {
	perShard := [][]Row{
		{{Value: 2, Present: true}},
		{{Present: false}},
		{{Value: 9, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Max})
	require.Len(t, out, 1)
	assert.Equal(t, 9.0, out[0].Value)
}

func TestMergeAvgIsEqualWeightMeanOfMeans(t *testing.T) {
	perShard := [][]Row{
		{{Value: 10, Present: true}}, // shard A mean
		{{Value: 20, Present: true}}, // shard B mean
	}
	out := Merge(perShard, Spec{Func: Avg})
	require.Len(t, out, 1)
	assert.Equal(t, 15.0, out[0].Value, "approximation is the equal-weight mean of per-shard means, not a weighted mean")
}

func TestMergeGroupByHashMergesOnKey(t *testing.T) {
	perShard := [][]Row{
		{{GroupKey: "a", Value: 3, Present: true}, {GroupKey: "b", Value: 1, Present: true}},
		{{GroupKey: "a", Value: 4, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Sum})
	require.Len(t, out, 2)

	byKey := map[string]float64{}
	for _, r := range out {
		byKey[r.GroupKey] = r.Value
	}
	assert.Equal(t, 7.0, byKey["a"])
	assert.Equal(t, 1.0, byKey["b"])
}

func TestExecutePerShardMergesRealShardCounts(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	pathB := filepath.Join(dir, "b.db")

	sA, err := shardstore.Open(pathA)
	require.NoError(t, err)
	require.NoError(t, sA.Put(context.Background(), shardstore.Chunk{ID: "a1", Text: "alpha", Vector: []float32{1, 0}}))
	require.NoError(t, sA.Put(context.Background(), shardstore.Chunk{ID: "a2", Text: "alpha2", Vector: []float32{1, 1}}))
	require.NoError(t, sA.Close())

	sB, err := shardstore.Open(pathB)
	require.NoError(t, err)
	require.NoError(t, sB.Put(context.Background(), shardstore.Chunk{ID: "b1", Text: "beta", Vector: []float32{0, 1}}))
	require.NoError(t, sB.Close())

	pool := shardpool.New(2)
	defer pool.CloseAll()

	perShard, err := ExecutePerShard(context.Background(), pool, []string{pathA, pathB}, "SELECT COUNT(*) FROM chunks")
	require.NoError(t, err)
	require.Len(t, perShard, 2)

	merged := Merge(perShard, Spec{Func: Count})
	require.Len(t, merged, 1)
	assert.Equal(t, 3.0, merged[0].Value)
}

func TestMergeAppliesOrderByDescAndLimit(t *testing.T) {
	perShard := [][]Row{
		{{GroupKey: "a", Value: 1, Present: true}, {GroupKey: "b", Value: 9, Present: true}, {GroupKey: "c", Value: 5, Present: true}},
	}
	out := Merge(perShard, Spec{Func: Sum, OrderDesc: true, Limit: 2})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].GroupKey)
	assert.Equal(t, "c", out[1].GroupKey)
}
