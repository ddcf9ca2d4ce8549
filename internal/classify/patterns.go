package classify

import "regexp"

// Compiled regex patterns for query classification, isolated in their own
// file per spec.md §9's "regexes isolated to internal/classify/patterns.go"
// guidance. Grounded on the teacher's internal/search/patterns.go, which
// keeps its own classification regexes in a dedicated file compiled once
// at package init.
var (
	semanticMarkerPattern = regexp.MustCompile(`(?i)\b(SEMANTIC|VECTOR_SEARCH|SIMILAR\s+TO|vec_distance)\b`)
	wherePattern          = regexp.MustCompile(`(?i)\bWHERE\b`)

	analyticsKeywordPattern = regexp.MustCompile(`(?i)\b(GROUP\s+BY|HAVING|WINDOW|JOIN|UNION|INTERSECT|EXCEPT)\b|OVER\s*\(|WITH\s+\w+\s+AS\s*\(`)
	aggregateFuncPattern    = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)

	semanticFormPattern = regexp.MustCompile(`(?is)^\s*SEMANTIC\s+'(.*?)'\s*(?:WHERE\s+(.*))?$`)
)
