package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BrandonDHaskell/ledgerwatch/internal/db"
)

func openFileDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{
		Path: filepath.Join(t.TempDir(), "ledger.db"),
		Env:  "dev",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func count(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// ═══════════════════════════════════════════════════════════════════════════
// Migrations
// ═══════════════════════════════════════════════════════════════════════════

func TestOpen_AppliesMigrations(t *testing.T) {
	conn := openFileDB(t)

	v, err := db.SchemaVersion(context.Background(), conn, db.DialectSQLite)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v < 1 {
		t.Errorf("schema version = %d, want >= 1", v)
	}

	// Re-running is a no-op.
	if err := db.Migrate(context.Background(), conn, db.DialectSQLite); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestMigrate_UnknownDialect(t *testing.T) {
	conn := openFileDB(t)
	if err := db.Migrate(context.Background(), conn, "oracle"); err == nil {
		t.Fatal("expected an error for an unsupported dialect")
	}
}

func TestSQLiteDSN_AppendsPragmas(t *testing.T) {
	got := db.SQLiteDSN("file:x?mode=memory")
	want := "file:x?mode=memory&_pragma=foreign_keys(1)"
	if len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("dsn = %q", got)
	}
}

func TestSeedDev_IsIdempotent(t *testing.T) {
	conn := openFileDB(t)
	ctx := context.Background()
	opt := db.SeedDevOptions{KnownDevices: []string{"dock", " ", "reader-lobby"}}

	for i := 0; i < 2; i++ {
		if err := db.SeedDev(ctx, conn, opt); err != nil {
			t.Fatalf("SeedDev #%d: %v", i+1, err)
		}
	}
	if n := count(t, conn, "devices"); n != 2 {
		t.Errorf("devices = %d, want 2", n)
	}
	if n := count(t, conn, "badges"); n != 1 {
		t.Errorf("badges = %d, want 1", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker
// ═══════════════════════════════════════════════════════════════════════════

func TestWorker_SerialisesWrites(t *testing.T) {
	conn := openFileDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
				var n int
				if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM badges`).Scan(&n); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `
INSERT INTO badges(card_uid, employee_id, employee_name, department, active, updated_at_ms)
VALUES (?, '', '', '', 1, 0)`, "CARD-"+string(rune('A'+n)))
				return err
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := count(t, conn, "badges"); n != 20 {
		t.Errorf("badges = %d, want 20", n)
	}
}

func TestWorker_RollsBackOnError(t *testing.T) {
	conn := openFileDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	boom := errors.New("boom")
	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO badges(card_uid, employee_id, employee_name, department, active, updated_at_ms)
VALUES ('ROLLED', '', '', '', 1, 0)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := count(t, conn, "badges"); n != 0 {
		t.Errorf("badges = %d, want 0 after rollback", n)
	}
}

func TestWorker_ClosedRejectsJobs(t *testing.T) {
	conn := openFileDB(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, db.ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}
