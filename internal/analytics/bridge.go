// Package analytics implements the analytics bridge (C11): an in-memory
// modernc.org/sqlite engine that attaches each active shard's database
// file with a plain ATTACH (the file is not opened read-only) and
// executes a federated UNION-ALL rewrite
// of the caller's query across all of them. Grounded on internal/routing's
// modernc.org/sqlite WAL/pragma conventions (itself grounded on the
// teacher's internal/store/sqlite_bm25.go), reused here for a second,
// purely in-memory connection rather than a second driver.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

// Bridge holds the in-memory analytical engine connection and tracks
// which shards are currently attached, so repeated queries only attach
// the difference (spec.md §4.11: "idempotent and incremental").
type Bridge struct {
	mu       sync.Mutex
	db       *sql.DB
	attached map[string]string // shard ID -> path currently ATTACHed
}

// Open creates a fresh in-memory analytical engine connection.
func Open() (*Bridge, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, merrors.New(merrors.Internal, "open analytics engine", err)
	}
	db.SetMaxOpenConns(1) // a single in-memory connection; ATTACH state is per-connection
	return &Bridge{db: db, attached: make(map[string]string)}, nil
}

// Close releases the analytical engine connection.
func (b *Bridge) Close() error {
	return b.db.Close()
}

// AttachedCount reports how many shard catalogs are currently ATTACHed,
// for the /metrics attached_shard_count field.
func (b *Bridge) AttachedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.attached)
}

// ActiveShard is the minimal shard identity the bridge needs to attach a
// catalog.
type ActiveShard struct {
	ID   string
	Path string
}

// sync attaches any shard in want that isn't already attached and detaches
// any attached shard no longer in want, implementing spec.md §4.11's
// incremental-diff contract. Must be called with b.mu held.
func (b *Bridge) sync(ctx context.Context, want []ActiveShard) error {
	wantByID := make(map[string]ActiveShard, len(want))
	for _, s := range want {
		wantByID[s.ID] = s
	}

	for id := range b.attached {
		if _, ok := wantByID[id]; !ok {
			if err := b.detach(ctx, id); err != nil {
				return err
			}
		}
	}

	for id, s := range wantByID {
		if _, ok := b.attached[id]; ok {
			continue
		}
		if err := b.attach(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) attach(ctx context.Context, s ActiveShard) error {
	stmt := fmt.Sprintf("ATTACH DATABASE ? AS shard_%s", shardAlias(s.ID))
	if _, err := b.db.ExecContext(ctx, stmt, s.Path); err != nil {
		return merrors.New(merrors.Internal, "attach shard catalog", err).WithDetail("shard_id", s.ID)
	}
	b.attached[s.ID] = s.Path
	return nil
}

func (b *Bridge) detach(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("DETACH DATABASE shard_%s", shardAlias(id))
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return merrors.New(merrors.Internal, "detach shard catalog", err).WithDetail("shard_id", id)
	}
	delete(b.attached, id)
	return nil
}

// Refresh detaches every currently-attached shard and reattaches the
// given set from scratch, per spec.md §4.11's explicit `refresh`
// operation.
func (b *Bridge) Refresh(ctx context.Context, shards []ActiveShard) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.attached {
		if err := b.detach(ctx, id); err != nil {
			return err
		}
	}
	return b.sync(ctx, shards)
}

// Query ensures shards are attached (attaching any newly-ingested shard
// before it can contribute, per spec.md §4.11's invariant), rewrites query
// into the federated UNION ALL form, and executes it once against the
// analytical engine.
func (b *Bridge) Query(ctx context.Context, query string, shards []ActiveShard) (*sql.Rows, error) {
	b.mu.Lock()
	if err := b.sync(ctx, shards); err != nil {
		b.mu.Unlock()
		return nil, err
	}

	ids := make([]string, len(shards))
	for i, s := range shards {
		ids[i] = s.ID
	}
	b.mu.Unlock()

	rewritten, err := Rewrite(query, ids)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, rewritten)
	if err != nil {
		return nil, merrors.New(merrors.Internal, "execute federated analytics query", err)
	}
	return rows, nil
}
