package testsupport

import (
	"context"
	"testing"

	"plotline/internal/config"
	"plotline/internal/database"
	"plotline/internal/jobs"
	"plotline/internal/library"
)

// MustOpenDB opens the configured database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenStores opens the database and returns both stores over it.
func MustOpenStores(t testing.TB, cfg *config.Config) (*jobs.Store, *library.Store) {
	t.Helper()
	db := MustOpenDB(t, cfg)
	return jobs.NewStore(db), library.NewStore(db)
}

// SaveManuscript stores text for projectID or fails the test.
func SaveManuscript(t testing.TB, lib *library.Store, projectID, text string) {
	t.Helper()
	if err := lib.SaveManuscript(context.Background(), projectID, text, "en"); err != nil {
		t.Fatalf("SaveManuscript: %v", err)
	}
}
