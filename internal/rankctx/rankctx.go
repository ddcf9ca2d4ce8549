// Package rankctx holds the small, stateless helpers shared across the
// shard router, fan-out executor, and ranker: query term extraction,
// tolerant metadata decoding, distance/similarity conversions, and
// timestamp parsing. Grounded on the teacher's tokenizer/extractor
// conventions (internal/store/tokenizer.go, internal/chunk/extractor.go).
package rankctx

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// minTermLength discards tokens at or below this length (spec.md §4.14).
const minTermLength = 2

var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ExtractTerms lowercases text, splits on runs of non-word characters, and
// discards tokens of length <= 2.
func ExtractTerms(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	pieces := nonWordRun.Split(lower, -1)

	terms := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if len(p) <= minTermLength {
			continue
		}
		terms = append(terms, p)
	}
	return terms
}

// DecodeMetadata is a tolerant JSON decoder: malformed or empty input
// yields an empty map rather than an error, since metadata is an
// auxiliary display concern, never required for correctness.
func DecodeMetadata(blob []byte) map[string]string {
	if len(blob) == 0 {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(blob, &m); err != nil {
		return map[string]string{}
	}
	if m == nil {
		return map[string]string{}
	}
	return m
}

// DistanceToSimilarity maps a vector distance to a bounded [0,1] similarity
// via 1/(1+d); this is the fan-out executor's convention (spec.md §4.7
// step 4), distinct from the shard router's 1 − distance/2 convention
// (spec.md §4.6, §9 open question 3). A negative distance is not a valid
// input; callers are expected to pass SQL-computed distances, which are
// never negative.
func DistanceToSimilarity(d *float32) float32 {
	if d == nil {
		return 0
	}
	if *d < 0 {
		return 0
	}
	return 1 / (1 + *d)
}

// ParseDatetime parses an ISO-8601 timestamp, returning nil on any
// malformed or empty input rather than an error — callers (the freshness
// scorer) treat a missing date as neutral, not as a failure.
func ParseDatetime(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
