package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEmptyTextReturnsZeroVector(t *testing.T) {
	e := New(8)
	v := e.Encode(context.Background(), "   ")
	require.Len(t, v, 8)
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	e := New(32)
	v1 := e.Encode(context.Background(), "federated shard routing")
	v2 := e.Encode(context.Background(), "federated shard routing")
	assert.Equal(t, v1, v2)
}

func TestEncodeDifferentTextDiffers(t *testing.T) {
	e := New(32)
	v1 := e.Encode(context.Background(), "vector search")
	v2 := e.Encode(context.Background(), "completely unrelated analytics query")
	assert.NotEqual(t, v1, v2)
}

func TestEncodeCanceledContextReturnsZeroVector(t *testing.T) {
	e := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := e.Encode(ctx, "some text")
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestEncodeBatch(t *testing.T) {
	e := New(16)
	vs := e.EncodeBatch(context.Background(), []string{"a query", "another query"})
	require.Len(t, vs, 2)
	assert.NotEqual(t, vs[0], vs[1])
}

func TestCachedReturnsSameVectorWithoutRecomputing(t *testing.T) {
	inner := New(16)
	c := NewCached(inner, 4)
	ctx := context.Background()

	v1 := c.Encode(ctx, "mosaic shard")
	v2 := c.Encode(ctx, "mosaic shard")
	assert.Equal(t, v1, v2)
}

func TestDefaultDimensions(t *testing.T) {
	e := New(0)
	assert.Equal(t, 384, e.Dimensions())
}
