package testutil

import (
	"testing"
	"time"

	"futurehub/internal/database"
	"futurehub/internal/store"
)

// NewTestStore creates an in-memory store with a ticking clock and
// sequential document ids ("doc-1", "doc-2", ...).
func NewTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()

	s := store.NewMemoryStore(
		NewTickingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Second),
		NewStubIDGenerator("doc"),
	)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewTestSQLiteStore creates a store on a migrated in-memory SQLite database.
// The store is automatically closed when the test completes.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	s := store.NewSQLiteStore(db, store.SQLiteOptions{
		Clock: NewTickingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Second),
		IDs:   NewStubIDGenerator("doc"),
	})
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
