// Package classify implements the query classifier (C9): a regex-based,
// case-insensitive, priority-ordered dispatch of a raw query string into
// one of four classes. Grounded on the teacher's internal/search package,
// which classifies with a dedicated PatternClassifier
// (internal/search/patterns.go) consulted as the LLM-unavailable fallback;
// generalized here from "lexical vs semantic vs mixed" to spec.md §4.9's
// vector_search/hybrid_search/analytics/simple_sql classes, which matter
// for dispatch rather than scoring weight selection.
package classify

import (
	"strings"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

// Class is one of the four query classes spec.md §4.9 defines, in
// descending priority order.
type Class string

const (
	VectorSearch Class = "vector_search"
	HybridSearch Class = "hybrid_search"
	Analytics    Class = "analytics"
	SimpleSQL    Class = "simple_sql"
)

// Options lets a caller force a class, bypassing the classifier entirely
// (spec.md §4.9: "Callers may force a class via an option").
type Options struct {
	ForceClass Class
}

var validClasses = map[Class]bool{
	VectorSearch: true,
	HybridSearch: true,
	Analytics:    true,
	SimpleSQL:    true,
}

// Classify determines query's class. A forced class in opts is validated
// and returned as-is; an invalid forced class is a ClassifierBypass error
// per spec.md §7.
func Classify(query string, opts Options) (Class, error) {
	if opts.ForceClass != "" {
		if !validClasses[opts.ForceClass] {
			return "", merrors.New(merrors.ClassifierBypass, "unknown forced query class", nil).
				WithDetail("class", string(opts.ForceClass))
		}
		return opts.ForceClass, nil
	}

	hasSemantic := semanticMarkerPattern.MatchString(query)
	hasWhere := wherePattern.MatchString(query)

	switch {
	case hasSemantic && !hasWhere:
		return VectorSearch, nil
	case hasSemantic && hasWhere:
		return HybridSearch, nil
	case isAnalytics(query):
		return Analytics, nil
	default:
		return SimpleSQL, nil
	}
}

// isAnalytics implements spec.md §4.9 class 3: any analytics keyword, or
// more than one aggregate function call.
func isAnalytics(query string) bool {
	if analyticsKeywordPattern.MatchString(query) {
		return true
	}
	return len(aggregateFuncPattern.FindAllStringIndex(query, -1)) > 1
}

// SemanticForm is the parsed `SEMANTIC '<text>' WHERE <sql>` textual form
// spec.md §4.10 describes for hybrid_search dispatch.
type SemanticForm struct {
	Text   string
	Filter string
}

// ParseSemanticForm extracts the semantic text and optional SQL filter
// from a hybrid_search query string.
func ParseSemanticForm(query string) (SemanticForm, error) {
	m := semanticFormPattern.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return SemanticForm{}, merrors.New(merrors.InvalidInput, "query does not match SEMANTIC '<text>' [WHERE <sql>] form", nil)
	}
	return SemanticForm{Text: m[1], Filter: strings.TrimSpace(m[2])}, nil
}
