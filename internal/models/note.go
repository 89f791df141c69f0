// Package models defines the domain types for notesense.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxTitleLength is the longest title, in runes, a note may carry.
const MaxTitleLength = 200

// Note is a durable row in the relational store.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	VectorID  *string   `json:"vector_id"`
}

// HasVector reports whether the note is linked to a vector record.
func (n *Note) HasVector() bool {
	return n.VectorID != nil && *n.VectorID != ""
}

// Payload is the denormalized copy of a note stored next to its vector.
type Payload struct {
	NoteID  *int64 `json:"note_id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate checks the payload schema at the vector store boundary.
func (p Payload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.NoteID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&p.Title, validation.RuneLength(0, MaxTitleLength)),
		validation.Field(&p.Content, validation.Required),
	)
}

// PayloadOf builds the index payload for n.
func PayloadOf(n *Note) Payload {
	id := n.ID
	return Payload{NoteID: &id, Title: n.Title, Content: n.Content}
}

// VectorRecord is a point in the vector index.
type VectorRecord struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"-"`
	Payload Payload   `json:"payload"`
}

// ScoredRecord is a vector record with a relevance score attached. The score
// is cosine similarity when produced by the index and the re-ranking score
// once the retriever has re-scored it.
type ScoredRecord struct {
	VectorRecord
	Score float64 `json:"score"`
}
