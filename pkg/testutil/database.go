package testutil

import (
	"context"
	"database/sql"
	"testing"

	"rollguard/internal/platform/database"
)

// NewSQLitePool opens a private in-memory SQLite database with the full
// schema applied. It is closed when the test ends.
func NewSQLitePool(t testing.TB) *database.Pool {
	t.Helper()

	db, err := sql.Open(database.DriverSQLite, "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pool := database.Wrap(db, database.SQLite{})
	if err := database.Migrate(context.Background(), pool); err != nil {
		_ = db.Close()
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return pool
}
