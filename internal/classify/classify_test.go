package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

func TestClassifyVectorSearchNoWhere(t *testing.T) {
	c, err := Classify(`SEMANTIC 'federated search'`, Options{})
	require.NoError(t, err)
	assert.Equal(t, VectorSearch, c)
}

func TestClassifyHybridSearchWithWhere(t *testing.T) {
	c, err := Classify(`SEMANTIC 'federated search' WHERE shard_level = 'paragraph'`, Options{})
	require.NoError(t, err)
	assert.Equal(t, HybridSearch, c)
}

func TestClassifyAnalyticsByKeyword(t *testing.T) {
	c, err := Classify(`SELECT shard_id, COUNT(*) FROM chunks GROUP BY shard_id`, Options{})
	require.NoError(t, err)
	assert.Equal(t, Analytics, c)
}

func TestClassifyAnalyticsByMultipleAggregates(t *testing.T) {
	c, err := Classify(`SELECT COUNT(*), AVG(pagerank) FROM chunks`, Options{})
	require.NoError(t, err)
	assert.Equal(t, Analytics, c)
}

func TestClassifySimpleSQLDefault(t *testing.T) {
	c, err := Classify(`SELECT id, text FROM chunks WHERE pagerank > 0.5`, Options{})
	require.NoError(t, err)
	assert.Equal(t, SimpleSQL, c)
}

func TestClassifySingleAggregateIsNotAnalytics(t *testing.T) {
	c, err := Classify(`SELECT COUNT(*) FROM chunks`, Options{})
	require.NoError(t, err)
	assert.Equal(t, SimpleSQL, c)
}

func TestClassifyForcedClassOverrides(t *testing.T) {
	c, err := Classify(`SELECT * FROM chunks`, Options{ForceClass: Analytics})
	require.NoError(t, err)
	assert.Equal(t, Analytics, c)
}

func TestClassifyRejectsInvalidForcedClass(t *testing.T) {
	_, err := Classify(`SELECT * FROM chunks`, Options{ForceClass: Class("bogus")})
	require.Error(t, err)
	assert.Equal(t, merrors.ClassifierBypass, merrors.KindOf(err))
}

func TestParseSemanticFormExtractsTextAndFilter(t *testing.T) {
	form, err := ParseSemanticForm(`SEMANTIC 'federated routing' WHERE pagerank > 0.5`)
	require.NoError(t, err)
	assert.Equal(t, "federated routing", form.Text)
	assert.Equal(t, "pagerank > 0.5", form.Filter)
}

func TestParseSemanticFormWithoutFilter(t *testing.T) {
	form, err := ParseSemanticForm(`SEMANTIC 'federated routing'`)
	require.NoError(t, err)
	assert.Equal(t, "federated routing", form.Text)
	assert.Empty(t, form.Filter)
}

func TestParseSemanticFormRejectsMalformed(t *testing.T) {
	_, err := ParseSemanticForm(`not a semantic query`)
	require.Error(t, err)
	assert.Equal(t, merrors.InvalidInput, merrors.KindOf(err))
}
