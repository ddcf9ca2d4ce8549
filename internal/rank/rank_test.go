package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVectorSimilarityScorerClampsNegative(t *testing.T) {
	s := VectorSimilarityScorer{W: 1}
	assert.Equal(t, 0.0, s.Score(Doc{VectorSimilarity: -0.5}, Context{}))
	assert.Equal(t, 0.8, s.Score(Doc{VectorSimilarity: 0.8}, Context{}))
}

func TestPageRankScorerNormalizesAndClamps(t *testing.T) {
	s := PageRankScorer{W: 1, PRMax: 100}
	assert.Equal(t, 0.5, s.Score(Doc{PageRank: 50}, Context{}))
	assert.Equal(t, 1.0, s.Score(Doc{PageRank: 500}, Context{}))
}

func TestFreshnessScorerMissingDateIsNeutral(t *testing.T) {
	s := FreshnessScorer{W: 1, HalfLife: 30}
	assert.Equal(t, 0.5, s.Score(Doc{Datetime: ""}, Context{}))
}

func TestFreshnessScorerDecaysByHalfLife(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	s := FreshnessScorer{W: 1, HalfLife: 30, Now: fixedNow(now)}
	thirtyDaysAgo := now.Add(-30 * 24 * time.Hour).Format(time.RFC3339)
	require.InDelta(t, 0.5, s.Score(Doc{Datetime: thirtyDaysAgo}, Context{}), 1e-9)
}

func TestTextMatchScorerFractionOfTerms(t *testing.T) {
	s := TextMatchScorer{W: 1}
	score := s.Score(Doc{Text: "federated shard routing engine"}, Context{QueryTerms: []string{"shard", "missing"}})
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestRankWeightedSumOrdersByFinalScore(t *testing.T) {
	docs := []Doc{
		{ID: "low", VectorSimilarity: 0.1},
		{ID: "high", VectorSimilarity: 0.9},
	}
	scorers := []Scorer{VectorSimilarityScorer{W: 1}}
	out := Rank(docs, scorers, Context{}, Options{Strategy: WeightedSum, MinScore: -1})
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Doc.ID)
	assert.Equal(t, "low", out[1].Doc.ID)
}

func TestRankReciprocalRankFusesAcrossScorers(t *testing.T) {
	docs := []Doc{
		{ID: "a", VectorSimilarity: 0.9, PageRank: 10},
		{ID: "b", VectorSimilarity: 0.1, PageRank: 90},
	}
	scorers := []Scorer{
		VectorSimilarityScorer{W: 1},
		PageRankScorer{W: 1, PRMax: 100},
	}
	out := Rank(docs, scorers, Context{}, Options{Strategy: ReciprocalRank, MinScore: -1})
	require.Len(t, out, 2)
	// both docs rank 1st under one scorer and 2nd under the other, so RRF
	// ties them; tie-break falls through to vector similarity.
	assert.Equal(t, "a", out[0].Doc.ID)
}

func TestRankMaxScoreTakesBestSignal(t *testing.T) {
	docs := []Doc{{ID: "a", VectorSimilarity: 0.2, PageRank: 100}}
	scorers := []Scorer{
		VectorSimilarityScorer{W: 1},
		PageRankScorer{W: 1, PRMax: 100},
	}
	out := Rank(docs, scorers, Context{}, Options{Strategy: MaxScore, MinScore: -1})
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].FinalScore, 1e-9)
}

func TestRankFiltersByMinScore(t *testing.T) {
	docs := []Doc{
		{ID: "keep", VectorSimilarity: 0.9},
		{ID: "drop", VectorSimilarity: 0.01},
	}
	scorers := []Scorer{VectorSimilarityScorer{W: 1}}
	out := Rank(docs, scorers, Context{}, Options{Strategy: WeightedSum, MinScore: 0.5})
	require.Len(t, out, 1)
	assert.Equal(t, "keep", out[0].Doc.ID)
}

func TestRankDefaultsToReciprocalRankStrategy(t *testing.T) {
	docs := []Doc{{ID: "a", VectorSimilarity: 0.5}}
	scorers := []Scorer{VectorSimilarityScorer{W: 1}}
	out := Rank(docs, scorers, Context{}, Options{MinScore: -1})
	require.Len(t, out, 1)
	assert.Greater(t, out[0].FinalScore, 0.0)
}
