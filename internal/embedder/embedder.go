// Package embedder provides the Embedder collaborator spec.md §1 and §9
// describe (encode/encode_batch, zero-vector on failure) plus a concrete,
// dependency-free implementation so the vector-path control flow in
// internal/engine has something real to call. Grounded on the teacher's
// internal/embed/static.go hash-based embedder, generalized to
// MosaicDB's configurable dimensionality and wrapped with the teacher's
// hashicorp/golang-lru/v2 caching pattern from internal/embed/cached.go.
package embedder

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

// Embedder turns text into fixed-dimension dense vectors. On failure or
// timeout, per spec.md §9, callers get a zero vector rather than an error —
// search degrades to low quality but stays non-fatal.
type Embedder interface {
	Encode(ctx context.Context, text string) []float32
	EncodeBatch(ctx context.Context, texts []string) [][]float32
	Dimensions() int
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// HashEmbedder is a deterministic, network-free stand-in for a real
// embedding model: it hashes tokens and character n-grams into buckets of
// a fixed-dimension vector, then normalizes. It exists so the coordinator
// has a concrete, always-available Embedder to exercise end to end.
type HashEmbedder struct {
	dimensions int
}

// New creates a HashEmbedder producing vectors of the given dimensionality.
func New(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Dimensions returns the embedder's output vector length.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Encode returns a zero vector for empty/whitespace-only text, matching
// spec.md §9's "embedder returns a zero vector" failure contract.
func (e *HashEmbedder) Encode(ctx context.Context, text string) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimensions)
	}
	select {
	case <-ctx.Done():
		return make([]float32, e.dimensions)
	default:
	}
	return vecmath.Normalize(e.generateVector(trimmed))
}

// EncodeBatch encodes each text independently; a canceled context yields
// zero vectors for all remaining entries.
func (e *HashEmbedder) EncodeBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Encode(ctx, t)
	}
	return out
}

func (e *HashEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dimensions)

	tokens := tokenRegex.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		vector[e.hashToIndex(tok)] += tokenWeight
	}

	for _, ng := range charNGrams(strings.ToLower(text), ngramSize) {
		vector[e.hashToIndex(ng)] += ngramWeight
	}

	return vector
}

func (e *HashEmbedder) hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dimensions))
}

func charNGrams(s string, n int) []string {
	if len(s) < n {
		return nil
	}
	grams := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		grams = append(grams, s[i:i+n])
	}
	return grams
}

// Cached wraps an Embedder with an LRU cache keyed on the input text, so
// repeated queries skip re-hashing. Grounded on the teacher's CachedEmbedder
// (internal/embed/cached.go).
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// DefaultCacheSize mirrors the teacher's default embedding cache size.
const DefaultCacheSize = 1000

// NewCached wraps inner with an LRU cache of the given size, defaulting to
// DefaultCacheSize when size <= 0.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

// Dimensions delegates to the wrapped embedder.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Encode returns the cached vector for text if present, else computes,
// caches, and returns it.
func (c *Cached) Encode(ctx context.Context, text string) []float32 {
	if v, ok := c.cache.Get(text); ok {
		return v
	}
	v := c.inner.Encode(ctx, text)
	c.cache.Add(text, v)
	return v
}

// EncodeBatch encodes each text via Encode, reusing the per-text cache.
func (c *Cached) EncodeBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.Encode(ctx, t)
	}
	return out
}

var _ Embedder = (*HashEmbedder)(nil)
var _ Embedder = (*Cached)(nil)
