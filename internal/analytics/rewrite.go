package analytics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

// Regexes isolated in their own file per spec.md §9's guidance (mirroring
// internal/classify/patterns.go), grounded on the same
// internal/search/patterns.go compiled-at-init convention.
var (
	tableRefPattern = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z_][a-zA-Z0-9_]*)\b`)
	limitPattern    = regexp.MustCompile(`(?i)\s+LIMIT\s+(\d+)\s*;?\s*$`)
	orderByPattern  = regexp.MustCompile(`(?i)\s+ORDER\s+BY\s+(.+?)\s*;?\s*$`)
)

// detectTable implements spec.md §4.11 step 1: find the virtual table name
// the query references.
func detectTable(query string) (string, error) {
	m := tableRefPattern.FindStringSubmatch(query)
	if m == nil {
		return "", merrors.New(merrors.NotFound, "no recognizable table reference in analytics query", nil)
	}
	return m[1], nil
}

// splitOuterClauses strips a trailing LIMIT and ORDER BY from query,
// returning the remaining body plus each clause's argument (empty if
// absent), per spec.md §4.11 step 2 ("stripping outer ORDER BY and
// LIMIT"). LIMIT is stripped first since it may follow ORDER BY.
func splitOuterClauses(query string) (body, orderBy, limit string) {
	body = strings.TrimSpace(query)

	if m := limitPattern.FindStringSubmatchIndex(body); m != nil {
		limit = body[m[2]:m[3]]
		body = strings.TrimSpace(body[:m[0]])
	}
	if m := orderByPattern.FindStringSubmatchIndex(body); m != nil {
		orderBy = body[m[2]:m[3]]
		body = strings.TrimSpace(body[:m[0]])
	}
	return body, orderBy, limit
}

// perShardSubquery rewrites body's FROM <table> reference to point at
// shard-qualified catalog shard_<shardID>.<table>, per spec.md §4.11
// step 2.
func perShardSubquery(body, table, shardID string) string {
	ref := regexp.MustCompile(`(?i)\bFROM\s+` + regexp.QuoteMeta(table) + `\b`)
	qualified := fmt.Sprintf("FROM shard_%s.%s", shardAlias(shardID), table)
	return ref.ReplaceAllString(body, qualified)
}

// shardAlias sanitizes a shard ID into a valid SQLite schema-name
// component (ATTACH DATABASE ... AS shard_<alias>).
func shardAlias(shardID string) string {
	var b strings.Builder
	for _, r := range shardID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Rewrite implements spec.md §4.11 steps 1-3: detect the table, build one
// per-shard subquery for each shard ID in shardIDs, and compose the
// federated CTE with the outer ORDER BY / LIMIT reattached.
func Rewrite(query string, shardIDs []string) (string, error) {
	table, err := detectTable(query)
	if err != nil {
		return "", err
	}
	body, orderBy, limit := splitOuterClauses(query)

	subqueries := make([]string, 0, len(shardIDs))
	for _, id := range shardIDs {
		subqueries = append(subqueries, perShardSubquery(body, table, id))
	}
	if len(subqueries) == 0 {
		return "", merrors.New(merrors.NotFound, "no active shards to federate over", nil)
	}

	var out strings.Builder
	out.WriteString("WITH federated AS (")
	out.WriteString(strings.Join(subqueries, " UNION ALL "))
	out.WriteString(") SELECT * FROM federated")
	if orderBy != "" {
		out.WriteString(" ORDER BY ")
		out.WriteString(orderBy)
	}
	if limit != "" {
		out.WriteString(" LIMIT ")
		out.WriteString(limit)
	}
	return out.String(), nil
}
