package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"plotline/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plotline.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	ctx := context.Background()
	var tables int
	if err := db.QueryRow(ctx, "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name IN ('jobs','job_items','scenes')").Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 3 {
		t.Fatalf("expected 3 tables, got %d", tables)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestSchemaMismatchIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plotline.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := db.Exec(context.Background(), "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := database.OpenPath(path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	now := database.FormatTime(time.Now())
	_, err := db.Exec(context.Background(),
		"INSERT INTO job_items (id, job_id, stage, ref_id, status, created_at, updated_at) VALUES ('i1','missing','scenes','c1','pending',?,?)",
		now, now)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestUniqueViolationDetection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := database.FormatTime(time.Now())
	insert := "INSERT INTO manuscripts (project_id, text, updated_at) VALUES ('p1', 'text', ?)"
	if _, err := db.Exec(ctx, insert, now); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Exec(ctx, insert, now)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if database.IsBusy(err) {
		t.Fatal("constraint error must not be classified as busy")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("abort")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO manuscripts (project_id, text, updated_at) VALUES ('p2','x','now')"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	var count int
	if err := db.QueryRow(ctx, "SELECT COUNT(1) FROM manuscripts").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestTimeHelpersRoundTripAndSort(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := base.Add(100 * time.Millisecond)
	a, b := database.FormatTime(base), database.FormatTime(later)
	if !(a < b) {
		t.Fatalf("expected lexical order %q < %q", a, b)
	}
	parsed := database.ParseTime(sql.NullString{String: b, Valid: true})
	if !parsed.Equal(later) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, later)
	}
	if database.ParseTimePtr(sql.NullString{}) != nil {
		t.Fatal("expected nil for NULL")
	}
	if got := database.Placeholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders %q", got)
	}
}
