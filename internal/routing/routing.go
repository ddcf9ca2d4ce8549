// Package routing implements the routing index (C3): the durable registry
// of shards and their centroids that the hot-shard cache (internal/hotcache)
// fronts and the shard router (internal/shardrouter) consults. Grounded on
// the teacher's modernc.org/sqlite-backed BM25 index (internal/store/
// sqlite_bm25.go), reusing the same pure-Go driver and WAL pragma tuning.
package routing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

// Status is a shard's lifecycle state (spec.md §3). Only active shards
// are routed or federated over; archived shards remain in the index but
// are excluded from both the hot-path router and the analytics bridge.
type Status string

const (
	Active   Status = "active"
	Archived Status = "archived"
)

// Shard is the durable record of a registered shard.
type Shard struct {
	ID           string
	Path         string
	Level        string
	QueryCount   int64
	RegisteredAt time.Time
	Status       Status
}

// ShardCentroid is the dense-vector summary of a shard's contents, used by
// the shard router to estimate relevance without opening the shard itself.
type ShardCentroid struct {
	ShardID string
	Vector  []float32
	Norm    float32
}

// RoutingEntry is the unit the hot-shard cache holds: a shard's identity,
// its centroid, and its bloom filter over indexed terms.
type RoutingEntry struct {
	Shard      Shard
	Centroid   ShardCentroid
	BloomBytes []byte
}

// Index is the persistent routing index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the routing index at path, applying
// the same WAL/busy-timeout/cache pragma tuning the teacher's SQLite BM25
// index uses for concurrent access.
func Open(path string) (*Index, error) {
	if path == "" || path == ":memory:" {
		return openDSN(":memory:")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, merrors.New(merrors.Internal, "create routing index directory", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	idx, err := openDSN(dsn)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func openDSN(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "open routing index", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, merrors.New(merrors.Internal, "apply routing index pragma", err)
		}
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS shards (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	level TEXT NOT NULL,
	query_count INTEGER NOT NULL DEFAULT 0,
	registered_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'active'
);
CREATE TABLE IF NOT EXISTS centroids (
	shard_id TEXT PRIMARY KEY REFERENCES shards(id) ON DELETE CASCADE,
	vector BLOB NOT NULL,
	norm REAL NOT NULL,
	bloom BLOB
);
CREATE INDEX IF NOT EXISTS idx_shards_level ON shards(level);
CREATE INDEX IF NOT EXISTS idx_shards_query_count ON shards(query_count DESC);
`
	_, err := idx.db.Exec(schema)
	if err != nil {
		return merrors.New(merrors.Internal, "migrate routing index schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Register inserts or replaces a shard's record and centroid.
func (idx *Index) Register(ctx context.Context, entry RoutingEntry) error {
	if entry.Shard.ID == "" {
		return merrors.New(merrors.InvalidInput, "shard id is required", nil)
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.New(merrors.Internal, "begin register transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	registeredAt := entry.Shard.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}
	status := entry.Shard.Status
	if status == "" {
		status = Active
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO shards (id, path, level, query_count, registered_at, status)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET path=excluded.path, level=excluded.level, registered_at=excluded.registered_at, status=excluded.status
`, entry.Shard.ID, entry.Shard.Path, entry.Shard.Level, entry.Shard.QueryCount, registeredAt, status)
	if err != nil {
		return merrors.New(merrors.Internal, "upsert shard record", err)
	}

	vecBytes := vecmath.EncodeFloat32s(entry.Centroid.Vector)
	_, err = tx.ExecContext(ctx, `
INSERT INTO centroids (shard_id, vector, norm, bloom)
VALUES (?, ?, ?, ?)
ON CONFLICT(shard_id) DO UPDATE SET vector=excluded.vector, norm=excluded.norm, bloom=excluded.bloom
`, entry.Shard.ID, vecBytes, entry.Centroid.Norm, entry.BloomBytes)
	if err != nil {
		return merrors.New(merrors.Internal, "upsert shard centroid", err)
	}

	if err := tx.Commit(); err != nil {
		return merrors.New(merrors.Internal, "commit register transaction", err)
	}
	return nil
}

// ActiveShardsAtLevel returns every active shard at the given level, with
// its centroid and bloom filter bytes, ordered by query_count descending
// per spec.md §4.3. Archived shards are excluded: §4.3's operation is
// defined over active shards only.
func (idx *Index) ActiveShardsAtLevel(ctx context.Context, level string) ([]RoutingEntry, error) {
	rows, err := idx.db.QueryContext(ctx, `
SELECT s.id, s.path, s.level, s.query_count, s.registered_at, s.status, c.vector, c.norm, c.bloom
FROM shards s
JOIN centroids c ON c.shard_id = s.id
WHERE s.level = ? AND s.status = ?
ORDER BY s.query_count DESC
`, level, Active)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "query active shards", err)
	}
	defer rows.Close()

	var entries []RoutingEntry
	for rows.Next() {
		var e RoutingEntry
		var vecBytes []byte
		if err := rows.Scan(&e.Shard.ID, &e.Shard.Path, &e.Shard.Level, &e.Shard.QueryCount,
			&e.Shard.RegisteredAt, &e.Shard.Status, &vecBytes, &e.Centroid.Norm, &e.BloomBytes); err != nil {
			return nil, merrors.New(merrors.Internal, "scan shard row", err)
		}
		e.Centroid.ShardID = e.Shard.ID
		e.Centroid.Vector = vecmath.DecodeFloat32s(vecBytes)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.New(merrors.Internal, "iterate shard rows", err)
	}
	return entries, nil
}

// TopByQueryCount returns the top-n active shards by query_count, used to
// preload the hot-shard cache at startup.
func (idx *Index) TopByQueryCount(ctx context.Context, n int) ([]RoutingEntry, error) {
	rows, err := idx.db.QueryContext(ctx, `
SELECT s.id, s.path, s.level, s.query_count, s.registered_at, s.status, c.vector, c.norm, c.bloom
FROM shards s
JOIN centroids c ON c.shard_id = s.id
WHERE s.status = ?
ORDER BY s.query_count DESC
LIMIT ?
`, Active, n)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "query top shards", err)
	}
	defer rows.Close()

	var entries []RoutingEntry
	for rows.Next() {
		var e RoutingEntry
		var vecBytes []byte
		if err := rows.Scan(&e.Shard.ID, &e.Shard.Path, &e.Shard.Level, &e.Shard.QueryCount,
			&e.Shard.RegisteredAt, &e.Shard.Status, &vecBytes, &e.Centroid.Norm, &e.BloomBytes); err != nil {
			return nil, merrors.New(merrors.Internal, "scan shard row", err)
		}
		e.Centroid.ShardID = e.Shard.ID
		e.Centroid.Vector = vecmath.DecodeFloat32s(vecBytes)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AccessStat is a single shard's query-count increment, batched by the
// shard router so every query doesn't cost a synchronous write.
type AccessStat struct {
	ShardID string
	Delta   int64
}

// UpdateAccessStats applies a batch of query-count increments in one
// transaction.
func (idx *Index) UpdateAccessStats(ctx context.Context, stats []AccessStat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.New(merrors.Internal, "begin access-stat transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE shards SET query_count = query_count + ? WHERE id = ?`)
	if err != nil {
		return merrors.New(merrors.Internal, "prepare access-stat update", err)
	}
	defer stmt.Close()

	for _, s := range stats {
		if _, err := stmt.ExecContext(ctx, s.Delta, s.ShardID); err != nil {
			return merrors.New(merrors.Internal, "apply access-stat update", err)
		}
	}
	return tx.Commit()
}

// UpdateCentroid replaces a shard's centroid, e.g. after re-embedding.
func (idx *Index) UpdateCentroid(ctx context.Context, shardID string, centroid ShardCentroid) error {
	res, err := idx.db.ExecContext(ctx, `UPDATE centroids SET vector = ?, norm = ? WHERE shard_id = ?`,
		vecmath.EncodeFloat32s(centroid.Vector), centroid.Norm, shardID)
	if err != nil {
		return merrors.New(merrors.Internal, "update centroid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return merrors.New(merrors.Internal, "check centroid update result", err)
	}
	if n == 0 {
		return merrors.New(merrors.NotFound, fmt.Sprintf("shard %s not registered", shardID), nil)
	}
	return nil
}


