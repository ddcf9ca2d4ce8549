// Package rank implements the ranker (C8): a composable set of per-document
// scorers plus a selectable fusion strategy (weighted_sum, reciprocal_rank,
// max_score). Grounded on pkg/searcher/fusion.go's FusionSearcher, which
// fuses BM25 and vector result lists by Reciprocal Rank Fusion; generalized
// here from "fuse two fixed searchers" to "fuse N named, weighted scorers
// under any of three strategies," per spec.md §4.8.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mosaicdb/mosaicdb/internal/rankctx"
)

// Doc is the scorer input: a fan-out candidate's fields relevant to
// ranking, detached from internal/fanout.CandidateResult so this package
// has no dependency on the executor.
type Doc struct {
	ID               string
	ShardID          string
	Text             string
	PageRank         float64
	Datetime         string
	VectorSimilarity float32
}

// Context carries per-query state a scorer may need beyond the document
// itself (currently just the extracted query terms for text_match).
type Context struct {
	QueryTerms []string
}

// Scorer is one ranking signal. Score must return a value in [0,1].
type Scorer interface {
	Name() string
	Weight() float64
	Score(d Doc, ctx Context) float64
}

// Strategy selects how per-scorer scores combine into a final score.
type Strategy string

const (
	WeightedSum    Strategy = "weighted_sum"
	ReciprocalRank Strategy = "reciprocal_rank"
	MaxScore       Strategy = "max_score"
)

// DefaultPageRankMax and DefaultFreshnessHalfLifeDays are spec.md §4.8's
// documented scorer constants.
const (
	DefaultPageRankMax          = 100.0
	DefaultFreshnessHalfLifeDays = 30.0
	DefaultRRFConstant          = 60
)

// VectorSimilarityScorer passes the fan-out executor's already-normalized
// similarity through, clamped to [0,1] (negative values, which shouldn't
// occur but aren't trusted blindly, become 0).
type VectorSimilarityScorer struct {
	W float64
}

func (s VectorSimilarityScorer) Name() string   { return "vector_similarity" }
func (s VectorSimilarityScorer) Weight() float64 { return s.W }
func (s VectorSimilarityScorer) Score(d Doc, _ Context) float64 {
	v := float64(d.VectorSimilarity)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PageRankScorer normalizes a raw pagerank value against a configured
// ceiling, clamping at 1.0.
type PageRankScorer struct {
	W     float64
	PRMax float64
}

func (s PageRankScorer) Name() string   { return "pagerank" }
func (s PageRankScorer) Weight() float64 { return s.W }
func (s PageRankScorer) Score(d Doc, _ Context) float64 {
	prMax := s.PRMax
	if prMax <= 0 {
		prMax = DefaultPageRankMax
	}
	v := d.PageRank / prMax
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// FreshnessScorer decays a document's score by age, half-life H. A missing
// or unparseable datetime is neutral (0.5) rather than penalized, since
// many chunks carry no timestamp at all. Now defaults to time.Now when
// unset; tests set it to a fixed instant for determinism.
type FreshnessScorer struct {
	W        float64
	HalfLife float64
	Now      func() time.Time
}

func (s FreshnessScorer) Name() string    { return "freshness" }
func (s FreshnessScorer) Weight() float64 { return s.W }
func (s FreshnessScorer) Score(d Doc, _ Context) float64 {
	t := rankctx.ParseDatetime(d.Datetime)
	if t == nil {
		return 0.5
	}
	halfLife := s.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultFreshnessHalfLifeDays
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	ageDays := now().Sub(*t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLife)
}

// TextMatchScorer scores the case-insensitive fraction of query terms
// present in the document's text.
type TextMatchScorer struct {
	W float64
}

func (s TextMatchScorer) Name() string   { return "text_match" }
func (s TextMatchScorer) Weight() float64 { return s.W }
func (s TextMatchScorer) Score(d Doc, ctx Context) float64 {
	if len(ctx.QueryTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(d.Text)
	matched := 0
	for _, term := range ctx.QueryTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			matched++
		}
	}
	return float64(matched) / float64(len(ctx.QueryTerms))
}

// Scored pairs a document with its final fused score.
type Scored struct {
	Doc         Doc
	FinalScore  float64
	PerScorer   map[string]float64
}

// Options configures a single Rank call.
type Options struct {
	Strategy     Strategy
	RRFConstant  int
	MinScore     float64
}

// Rank scores docs under every scorer, fuses per Options.Strategy, sorts
// by final score descending (ties: original vector similarity, then id),
// and filters out anything below Options.MinScore.
func Rank(docs []Doc, scorers []Scorer, ctx Context, opts Options) []Scored {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = ReciprocalRank
	}

	perScorerScores := make([]map[string]float64, len(docs))
	for i, d := range docs {
		m := make(map[string]float64, len(scorers))
		for _, s := range scorers {
			m[s.Name()] = s.Score(d, ctx)
		}
		perScorerScores[i] = m
	}

	var finals []float64
	switch strategy {
	case WeightedSum:
		finals = weightedSumFuse(scorers, perScorerScores)
	case MaxScore:
		finals = maxScoreFuse(perScorerScores)
	default:
		k := opts.RRFConstant
		if k <= 0 {
			k = DefaultRRFConstant
		}
		finals = reciprocalRankFuse(scorers, perScorerScores, k)
	}

	out := make([]Scored, 0, len(docs))
	for i, d := range docs {
		if finals[i] < opts.MinScore {
			continue
		}
		out = append(out, Scored{Doc: d, FinalScore: finals[i], PerScorer: perScorerScores[i]})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].Doc.VectorSimilarity != out[j].Doc.VectorSimilarity {
			return out[i].Doc.VectorSimilarity > out[j].Doc.VectorSimilarity
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})

	return out
}

// weightedSumFuse computes Σ weight_s · score_s(doc) per spec.md §4.8.
func weightedSumFuse(scorers []Scorer, perDoc []map[string]float64) []float64 {
	out := make([]float64, len(perDoc))
	for i, scores := range perDoc {
		var sum float64
		for _, s := range scorers {
			sum += s.Weight() * scores[s.Name()]
		}
		out[i] = sum
	}
	return out
}

// maxScoreFuse computes max_s score_s(doc) per spec.md §4.8.
func maxScoreFuse(perDoc []map[string]float64) []float64 {
	out := make([]float64, len(perDoc))
	for i, scores := range perDoc {
		var max float64
		for _, v := range scores {
			if v > max {
				max = v
			}
		}
		out[i] = max
	}
	return out
}

// reciprocalRankFuse implements spec.md §4.8's RRF: for each scorer, rank
// documents by that scorer's score descending, then sum 1/(k+rank) across
// scorers. Unlike the teacher's weighted RRF variant
// (pkg/searcher/fusion.go, Σ weight_i/(k+rank_i)), spec.md's formula has no
// per-scorer weight term, so this implementation omits it to match the
// spec exactly; weighted_sum is the strategy that honors scorer weights.
func reciprocalRankFuse(scorers []Scorer, perDoc []map[string]float64, k int) []float64 {
	out := make([]float64, len(perDoc))
	n := len(perDoc)
	type ranked struct {
		idx   int
		score float64
	}
	for _, s := range scorers {
		order := make([]ranked, n)
		for i := 0; i < n; i++ {
			order[i] = ranked{idx: i, score: perDoc[i][s.Name()]}
		}
		sort.SliceStable(order, func(i, j int) bool {
			return order[i].score > order[j].score
		})
		for rank, r := range order {
			out[r.idx] += 1.0 / float64(k+rank+1)
		}
	}
	return out
}
