package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTableFindsFromReference(t *testing.T) {
	table, err := detectTable(`SELECT id, text FROM chunks WHERE pagerank > 0.5`)
	require.NoError(t, err)
	assert.Equal(t, "chunks", table)
}

func TestDetectTableRejectsMissingReference(t *testing.T) {
	_, err := detectTable(`SELECT 1`)
	require.Error(t, err)
}

func TestSplitOuterClausesStripsOrderByAndLimit(t *testing.T) {
	body, orderBy, limit := splitOuterClauses(`SELECT id FROM chunks WHERE pagerank > 0.1 ORDER BY pagerank DESC LIMIT 10`)
	assert.Equal(t, `SELECT id FROM chunks WHERE pagerank > 0.1`, body)
	assert.Equal(t, "pagerank DESC", orderBy)
	assert.Equal(t, "10", limit)
}

func TestSplitOuterClausesHandlesNeitherPresent(t *testing.T) {
	body, orderBy, limit := splitOuterClauses(`SELECT id FROM chunks`)
	assert.Equal(t, `SELECT id FROM chunks`, body)
	assert.Empty(t, orderBy)
	assert.Empty(t, limit)
}

func TestRewriteComposesFederatedUnionAll(t *testing.T) {
	out, err := Rewrite(`SELECT id FROM chunks WHERE pagerank > 0.1 ORDER BY pagerank DESC LIMIT 5`, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Contains(t, out, "WITH federated AS (")
	assert.Contains(t, out, "FROM shard_s1.chunks")
	assert.Contains(t, out, "FROM shard_s2.chunks")
	assert.Contains(t, out, "UNION ALL")
	assert.Contains(t, out, "ORDER BY pagerank DESC")
	assert.Contains(t, out, "LIMIT 5")
}

func TestRewriteRejectsNoShards(t *testing.T) {
	_, err := Rewrite(`SELECT id FROM chunks`, nil)
	require.Error(t, err)
}

func TestShardAliasSanitizesNonAlphanumeric(t *testing.T) {
	assert.Equal(t, "shard_1", shardAlias("shard-1"))
	assert.Equal(t, "abc123", shardAlias("abc123"))
}
