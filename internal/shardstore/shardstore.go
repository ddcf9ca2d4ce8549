// Package shardstore is the concrete storage collaborator spec.md §4.5
// leaves out of scope but which the coordinator needs a real implementation
// of to be exercised end to end: a single shard's chunk table plus a
// coder/hnsw vector index, fronted by a mattn/go-sqlite3 connection that
// registers a vec_distance SQL scalar function (backed by
// internal/vecmath.CosineDistance) the way spec.md §4.5 describes "loading
// the vector-search extension" for a per-shard handle. Grounded on the
// teacher's internal/store/hnsw.go (coder/hnsw Save/Load via gob sidecar)
// and internal/telemetry/store_test.go (mattn/go-sqlite3 DSN conventions).
package shardstore

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/mattn/go-sqlite3"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
	"github.com/mosaicdb/mosaicdb/internal/vecmath"
)

const driverName = "mosaicdb_shardstore"

var registerOnce sync.Once

// register installs the mosaicdb_shardstore driver, a go-sqlite3 driver
// with a vec_distance(a, b) scalar function registered on every new
// connection. go-sqlite3 (unlike modernc.org/sqlite, used elsewhere in the
// coordinator) supports ConnectHook, which is what makes a custom SQL
// function possible here.
func register() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("vec_distance", vecDistanceSQL, true)
			},
		})
	})
}

// vecDistanceSQL adapts vecmath.CosineDistance to SQLite's scalar function
// calling convention: two BLOB columns of little-endian float32 values in,
// a REAL distance out.
func vecDistanceSQL(a, b []byte) (float64, error) {
	va := decodeFloat32s(a)
	vb := decodeFloat32s(b)
	d, err := vecmath.CosineDistance(va, vb)
	if err != nil {
		return 0, err
	}
	return float64(d), nil
}

// Chunk is a single retrievable unit of shard content (spec.md's Chunk
// type): text, its vector, and a metadata blob.
type Chunk struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata []byte
	Datetime string
	PageRank float64
}

// Store is one shard's opened storage handle: a SQLite connection for
// chunk metadata/text plus an in-memory coder/hnsw graph for vector search.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// Open opens (creating if necessary) the shard storage at path, applying
// busy-timeout/WAL tuning, and loads the sidecar HNSW index if one exists.
func Open(path string) (*Store, error) {
	register()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, merrors.New(merrors.Internal, "create shard directory", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, merrors.New(merrors.ShardUnavailable, "open shard storage", err)
	}

	if err := healthProbe(db); err != nil {
		_ = db.Close()
		return nil, merrors.New(merrors.ShardUnavailable, "shard storage failed health probe", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	vector BLOB NOT NULL,
	metadata BLOB,
	datetime TEXT,
	pagerank REAL NOT NULL DEFAULT 0
)`); err != nil {
		_ = db.Close()
		return nil, merrors.New(merrors.Internal, "migrate shard schema", err)
	}

	// documents mirrors chunks one-for-one: this storage doesn't model the
	// document/chunk hierarchy spec.md's Chunk type implies, but spec.md
	// §8's federated analytics scenario counts over a `documents` table, so
	// one real row per ingested unit is kept here for that table to query.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	metadata BLOB,
	pagerank REAL NOT NULL DEFAULT 0,
	created_at TEXT
)`); err != nil {
		_ = db.Close()
		return nil, merrors.New(merrors.Internal, "migrate shard schema", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		graph:   hnsw.NewGraph[uint64](),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}
	s.graph.Distance = hnsw.CosineDistance

	if err := s.loadIndex(); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return nil, merrors.New(merrors.Internal, "load shard vector index", err)
	}

	return s, nil
}

// healthProbe runs a trivial query, per spec.md §4.5's connection-pool
// contract: "Health probe runs a trivial query before returning a handle."
func healthProbe(db *sql.DB) error {
	var one int
	return db.QueryRow("SELECT 1").Scan(&one)
}

func (s *Store) indexPath() string {
	return s.path + ".hnsw"
}

func (s *Store) loadIndex() error {
	f, err := os.Open(s.indexPath())
	if err != nil {
		return err
	}
	defer f.Close()

	metaFile, err := os.Open(s.indexPath() + ".meta")
	if err != nil {
		return err
	}
	defer metaFile.Close()

	var meta struct {
		IDMap   map[string]uint64
		NextKey uint64
	}
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode index metadata: %w", err)
	}
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}

	return s.graph.Import(bufio.NewReader(f))
}

// saveIndex persists the HNSW graph and ID mapping as a gob sidecar,
// mirroring the teacher's atomic-save-via-temp-file-and-rename pattern.
func (s *Store) saveIndex() error {
	tmp := s.indexPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return err
	}

	metaTmp := s.indexPath() + ".meta.tmp"
	metaFile, err := os.Create(metaTmp)
	if err != nil {
		return err
	}
	meta := struct {
		IDMap   map[string]uint64
		NextKey uint64
	}{IDMap: s.idMap, NextKey: s.nextKey}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		metaFile.Close()
		os.Remove(metaTmp)
		return err
	}
	if err := metaFile.Close(); err != nil {
		return err
	}
	return os.Rename(metaTmp, s.indexPath()+".meta")
}

// Put inserts or replaces a chunk, updating both the SQLite row and the
// in-memory HNSW graph.
func (s *Store) Put(ctx context.Context, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO chunks (id, text, vector, metadata, datetime, pagerank)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text=excluded.text, vector=excluded.vector,
	metadata=excluded.metadata, datetime=excluded.datetime, pagerank=excluded.pagerank
`, c.ID, c.Text, encodeFloat32s(c.Vector), c.Metadata, c.Datetime, c.PageRank)
	if err != nil {
		return merrors.New(merrors.Internal, "upsert chunk", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (id, text, metadata, pagerank, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text=excluded.text, metadata=excluded.metadata,
	pagerank=excluded.pagerank, created_at=excluded.created_at
`, c.ID, c.Text, c.Metadata, c.PageRank, c.Datetime)
	if err != nil {
		return merrors.New(merrors.Internal, "upsert document", err)
	}

	if existingKey, ok := s.idMap[c.ID]; ok {
		delete(s.keyMap, existingKey)
		delete(s.idMap, c.ID)
	}
	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, c.Vector))
	s.idMap[c.ID] = key
	s.keyMap[key] = c.ID

	return s.saveIndex()
}

// VectorNeighbor is a single HNSW search result paired back to its chunk ID.
type VectorNeighbor struct {
	ChunkID  string
	Distance float32
}

// SearchVectors returns the k nearest chunks to query by the graph's
// distance function.
func (s *Store) SearchVectors(query []float32, k int) ([]VectorNeighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return nil, nil
	}
	nodes := s.graph.Search(query, k)
	out := make([]VectorNeighbor, 0, len(nodes))
	for _, n := range nodes {
		id, ok := s.keyMap[n.Key]
		if !ok {
			continue
		}
		out = append(out, VectorNeighbor{
			ChunkID:  id,
			Distance: s.graph.Distance(query, n.Value),
		})
	}
	return out, nil
}

// Query runs an arbitrary SELECT against the chunk table (used by the
// fan-out executor for filtered vector queries and by the aggregator for
// analytic statements), exposing the registered vec_distance function.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Close releases the SQLite handle. The caller (internal/shardpool) is
// responsible for calling this on eviction.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeFloat32s(v []float32) []byte {
	return vecmath.EncodeFloat32s(v)
}

func decodeFloat32s(b []byte) []float32 {
	return vecmath.DecodeFloat32s(b)
}
