// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics. Snapshots are written with a compare-and-set on a
// state version column so two processes sharing one database cannot overwrite
// each other's commits with stale derived fields.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"buildcore/internal/infra/persistence/memory"
	"buildcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/buildcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sql.Open hook for tests. The returned function
// restores the previous hook.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions. version tracks the snapshot row version last read or
// written by this process; a CAS miss on write surfaces as ConflictError.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	version int64
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// a local default). It ensures the snapshot table exists and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		payload JSONB NOT NULL,
		version BIGINT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, version FROM state WHERE id = 1`).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s.ImportState(snapshot)
	s.version = version
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.ExportState())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if s.version == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO state(id, payload, version) VALUES(1, $1, 1) ON CONFLICT (id) DO NOTHING`, data)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			s.version = 1
			return nil
		}
		// Another process seeded the row first; treat as a stale write.
		return domain.ConflictError{Detail: "snapshot seeded concurrently"}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE state SET payload = $1, version = version + 1 WHERE id = 1 AND version = $2`, data, s.version)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ConflictError{Detail: fmt.Sprintf("snapshot version %d is stale", s.version)}
	}
	s.version++
	return nil
}

// persistOrRecover snapshots to Postgres. When the CAS write loses to another
// process, the local commit is discarded by re-hydrating from the durable
// snapshot, so subsequent reads reflect the winner without waiting for an
// explicit Refresh.
func (s *Store) persistOrRecover(ctx context.Context) error {
	err := s.persist(ctx)
	if err == nil {
		return nil
	}
	if domain.IsConflict(err) {
		if loadErr := s.load(ctx); loadErr != nil {
			return errors.Join(err, loadErr)
		}
	}
	return err
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots to Postgres with a version guard. On ConflictError the in-memory
// commit is rolled back to the durable snapshot; the caller retries against
// the fresh read.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persistOrRecover(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// MarkOutboxPublished stamps entries as published and snapshots the change.
// A lost CAS race reverts to the durable snapshot, leaving the entries
// pending for the next dispatch; publishing stays at-least-once.
func (s *Store) MarkOutboxPublished(ids []string, at time.Time) {
	s.Store.MarkOutboxPublished(ids, at)
	_ = s.persistOrRecover(context.Background())
}

// Refresh re-reads the durable snapshot, discarding local state. Used by
// callers recovering from a ConflictError.
func (s *Store) Refresh(ctx context.Context) error {
	return s.load(ctx)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
