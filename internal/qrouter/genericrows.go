package qrouter

import (
	"database/sql"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

// scanGenericRows reads an arbitrary-shape *sql.Rows into column-ordered
// Row values, tagging each with its originating shard when shardID is
// non-empty. Byte slices (modernc.org/sqlite's native text representation
// for driver.Value) are converted to strings so callers don't have to
// special-case SQLite's storage classes. Columns/Values stay positional
// (rather than a map) so the HTTP layer can render them as the tuple shape
// spec.md §8's scenario 4 expects (`{results:[[20]]}`), per spec.md §9's
// "define a small row abstraction with named accessors" guidance.
func scanGenericRows(rows *sql.Rows, shardID string) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, merrors.New(merrors.Internal, "read result columns", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, merrors.New(merrors.Internal, "scan result row", err)
		}

		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out = append(out, Row{Columns: cols, Values: values, ShardID: shardID})
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
