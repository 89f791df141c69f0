package notestore

import (
	"context"

	"github.com/starford/notesense/internal/models"
)

// Store defines the relational record operations the rest of the system uses.
// Consumers should depend on this interface rather than the concrete *DB type
// so tests can substitute failing fakes.
type Store interface {
	CreateNote(ctx context.Context, title, content string) (*models.Note, error)
	InsertNote(ctx context.Context, n *models.Note) (*models.Note, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	UpdateNote(ctx context.Context, id int64, title, content *string) (*models.Note, error)
	SetVectorID(ctx context.Context, id int64, vectorID string) error
	DeleteNote(ctx context.Context, id int64) error
	ListNotes(ctx context.Context, limit int) ([]models.Note, error)
	VectorIDs(ctx context.Context) (map[string]int64, error)
	UnindexedNoteIDs(ctx context.Context) ([]int64, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
