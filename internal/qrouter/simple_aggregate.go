package qrouter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mosaicdb/mosaicdb/internal/aggregate"
)

// simpleAggregatePattern recognizes the narrow shape spec.md §4.12
// describes: a single aggregate call, one source table, an optional WHERE
// fragment, an optional single-key GROUP BY, and optional outer ORDER
// BY/LIMIT. Anything outside this shape (joins, subqueries, multiple
// aggregates, HAVING, window functions) falls through to the analytics
// bridge — the classifier's own keyword check already routes those
// queries away from here in the common case, but this is the definitive
// gate since the classifier only inspects keywords, not full SQL shape.
var simpleAggregatePattern = regexp.MustCompile(
	`(?is)^\s*SELECT\s+(?:([a-zA-Z_]\w*)\s*,\s*)?(COUNT|SUM|MIN|MAX|AVG)\s*\(([^)]*)\)\s+FROM\s+([a-zA-Z_]\w*)` +
		`(?:\s+WHERE\s+(.+?))?(?:\s+GROUP\s+BY\s+([a-zA-Z_]\w*))?` +
		`(?:\s+ORDER\s+BY\s+[a-zA-Z_]\w*\s*(DESC|ASC)?)?(?:\s+LIMIT\s+(\d+))?\s*;?\s*$`,
)

// simpleAggregateQuery is a parsed, per-shard-executable rewrite of an
// aggregate query plus the Spec needed to merge the per-shard results.
type simpleAggregateQuery struct {
	Spec       aggregate.Spec
	ShardQuery string
}

// parseSimpleAggregate attempts to match query against the in-process
// aggregator's supported shape. ok is false for anything that needs the
// full analytics bridge.
func parseSimpleAggregate(query string) (simpleAggregateQuery, bool) {
	m := simpleAggregatePattern.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return simpleAggregateQuery{}, false
	}

	selectGroupCol, fn, aggArgs, table, where, groupByCol, orderDir, limitStr := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	groupCol := groupByCol
	if groupCol == "" {
		groupCol = selectGroupCol
	}
	// a GROUP BY clause without the grouping column selected, or vice
	// versa, isn't the single-key shape this package merges.
	if (groupByCol != "") != (selectGroupCol != "") {
		return simpleAggregateQuery{}, false
	}

	spec := aggregate.Spec{
		Func:      aggregate.Func(strings.ToLower(fn)),
		GroupBy:   groupCol != "",
		OrderDesc: strings.EqualFold(orderDir, "DESC"),
	}
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			spec.Limit = n
		}
	}

	var shardQuery string
	if spec.GroupBy {
		shardQuery = fmt.Sprintf("SELECT %s, %s(%s) FROM %s", groupCol, fn, aggArgs, table)
	} else {
		shardQuery = fmt.Sprintf("SELECT %s(%s) FROM %s", fn, aggArgs, table)
	}
	if where != "" {
		shardQuery += " WHERE " + where
	}
	if spec.GroupBy {
		shardQuery += " GROUP BY " + groupCol
	}

	return simpleAggregateQuery{Spec: spec, ShardQuery: shardQuery}, true
}
