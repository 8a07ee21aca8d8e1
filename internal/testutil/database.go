package testutil

import (
	"testing"

	"bodega-go/internal/bodega"
	"bodega-go/internal/database"
)

// NewTestStore creates an in-memory SQLite store with migrations applied.
// A nil clock stamps change logs with the real time. The store is closed
// when the test completes.
func NewTestStore(t *testing.T, clock bodega.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
