// Package testutil provides shared test helpers: temporary stores and
// deterministic stand-ins for the model services.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/notesense/internal/notestore"
	"github.com/starford/notesense/internal/vectorstore"
)

// TestDB creates a temporary relational store that is automatically cleaned up.
func TestDB(t *testing.T) *notestore.DB {
	t.Helper()
	db, err := notestore.Open(tempFile(t, "notesense-test-*.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestIndex creates an initialized temporary SQLite vector index.
func TestIndex(t *testing.T, dimension int) *vectorstore.SQLiteIndex {
	t.Helper()
	idx, err := vectorstore.OpenSQLite(tempFile(t, "notesense-vectors-*.db"), "notes", dimension)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return idx
}

func tempFile(t *testing.T, pattern string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}
