package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"buildcore/internal/infra/persistence/memory"
	"buildcore/pkg/domain"
)

var stubSeq atomic.Int64

// stubConn emulates the single-row snapshot table used by the store.
type stubConn struct {
	payload []byte
	version int64
	present bool
	execs   []string
}

func newStubDB(t *testing.T) (*sql.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("open stub: %v", err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Ping(context.Context) error          { return nil }

type stubResult struct{ rows int64 }

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	switch {
	case strings.HasPrefix(query, "CREATE TABLE"):
		return stubResult{}, nil
	case strings.HasPrefix(query, "INSERT INTO state"):
		if c.present {
			return stubResult{rows: 0}, nil
		}
		c.payload = append([]byte(nil), args[0].Value.([]byte)...)
		c.version = 1
		c.present = true
		return stubResult{rows: 1}, nil
	case strings.HasPrefix(query, "UPDATE state"):
		expected := args[1].Value.(int64)
		if !c.present || c.version != expected {
			return stubResult{rows: 0}, nil
		}
		c.payload = append([]byte(nil), args[0].Value.([]byte)...)
		c.version++
		return stubResult{rows: 1}, nil
	default:
		return nil, fmt.Errorf("unexpected exec: %s", query)
	}
}

type snapshotRows struct {
	conn *stubConn
	done bool
}

func (r *snapshotRows) Columns() []string { return []string{"payload", "version"} }
func (r *snapshotRows) Close() error      { return nil }
func (r *snapshotRows) Next(dest []driver.Value) error {
	if r.done || !r.conn.present {
		return io.EOF
	}
	dest[0] = append([]byte(nil), r.conn.payload...)
	dest[1] = r.conn.version
	r.done = true
	return nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.HasPrefix(query, "SELECT payload, version FROM state") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	return &snapshotRows{conn: c}, nil
}

func openStubStore(t *testing.T) (*Store, *stubConn) {
	t.Helper()
	db, conn := newStubDB(t)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestRunInTransactionPersistsSnapshot(t *testing.T) {
	store, conn := openStubStore(t)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{SubjectCore: domain.SubjectCore{Name: "Harbor Point", Status: domain.SubjectStatusPlanning}})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if conn.version != 1 {
		t.Fatalf("snapshot version = %d, want 1", conn.version)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(conn.payload, &snap); err != nil {
		t.Fatalf("decode persisted snapshot: %v", err)
	}
	if len(snap.Projects) != 1 {
		t.Fatalf("persisted %d projects, want 1", len(snap.Projects))
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.Unit{Code: "HP-01", SubjectCore: domain.SubjectCore{Name: "Unit HP-01"}})
		return err
	})
	if err != nil {
		t.Fatalf("second transaction: %v", err)
	}
	if conn.version != 2 {
		t.Fatalf("snapshot version = %d, want 2", conn.version)
	}
}

func TestStaleVersionSurfacesConflict(t *testing.T) {
	store, conn := openStubStore(t)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{SubjectCore: domain.SubjectCore{Name: "Quarry Road"}})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Another process advanced the durable snapshot.
	conn.version = 7

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.Unit{Code: "QR-01"})
		return err
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestConflictRevertsToDurableSnapshot(t *testing.T) {
	store, conn := openStubStore(t)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{SubjectCore: domain.SubjectCore{Name: "Quarry Road"}})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Another process advanced the durable snapshot.
	conn.version = 7

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.Unit{Code: "QR-01", SubjectCore: domain.SubjectCore{Name: "Unit QR-01"}})
		return err
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// The losing commit is discarded without an explicit Refresh.
	if units := store.ListUnits(); len(units) != 0 {
		t.Fatalf("units after conflict = %d, want 0", len(units))
	}
	if projects := store.ListProjects(); len(projects) != 1 {
		t.Fatalf("projects after conflict = %d, want 1", len(projects))
	}

	// The next write CASes against the re-read durable version.
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.Unit{Code: "QR-02", SubjectCore: domain.SubjectCore{Name: "Unit QR-02"}})
		return err
	})
	if err != nil {
		t.Fatalf("retry after conflict: %v", err)
	}
	if conn.version != 8 {
		t.Fatalf("snapshot version = %d, want 8", conn.version)
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	db, conn := newStubDB(t)
	seeded := memory.Snapshot{
		Projects: map[string]domain.Project{
			"p1": {Base: domain.Base{ID: "p1", CreatedAt: time.Now().UTC()}, SubjectCore: domain.SubjectCore{Name: "Seeded", Status: domain.SubjectStatusInProgress}},
		},
	}
	payload, err := json.Marshal(seeded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn.payload = payload
	conn.version = 3
	conn.present = true

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, ok := store.GetProject("p1")
	if !ok || got.Name != "Seeded" {
		t.Fatalf("snapshot not hydrated: %+v ok=%v", got, ok)
	}
}
