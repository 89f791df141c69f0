// Package vectorstore persists vector records and answers nearest-neighbour
// queries by cosine similarity.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/notesense/internal/models"
)

// DistanceCosine is the only distance metric collections are created with.
const DistanceCosine = "cosine"

var (
	// ErrDimensionMismatch is returned when a vector does not match the
	// collection dimension, or when an existing collection was created with a
	// different dimension than the one configured.
	ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")

	// ErrNotInitialized is returned by operations issued before Initialize.
	ErrNotInitialized = errors.New("vectorstore: collection not initialized")
)

// Index is the vector index contract. Implementations are safe for
// concurrent use.
type Index interface {
	// Initialize creates the collection if absent. It is idempotent and
	// tolerates a concurrent creator winning the race.
	Initialize(ctx context.Context) error
	// Upsert overwrites any record with the same id.
	Upsert(ctx context.Context, rec models.VectorRecord) error
	// Delete removes the given ids. Absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Search returns up to k records ordered by similarity descending.
	Search(ctx context.Context, vector []float32, k int) ([]models.ScoredRecord, error)
	// Scroll returns up to limit records with id greater than after, ordered
	// by id, and the cursor for the next page ("" when exhausted).
	Scroll(ctx context.Context, after string, limit int) ([]models.VectorRecord, string, error)
	Close() error
}

// checkRecord validates a record at the adapter boundary.
func checkRecord(rec models.VectorRecord, dimension int) error {
	if rec.ID == "" {
		return errors.New("vectorstore: record id is required")
	}
	if len(rec.Vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), dimension)
	}
	if err := rec.Payload.Validate(); err != nil {
		return fmt.Errorf("vectorstore: invalid payload for %s: %w", rec.ID, err)
	}
	return nil
}

// nextCursor returns the scroll cursor for a page that was requested with
// the given limit.
func nextCursor(page []models.VectorRecord, limit int) string {
	if len(page) < limit || len(page) == 0 {
		return ""
	}
	return page[len(page)-1].ID
}
