// Package noteservice keeps the relational store and the vector index in
// step as notes are created, updated and deleted.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/notesense/internal/ai"
	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/notestore"
	"github.com/starford/notesense/internal/vectorstore"
)

// Change kinds passed to the change hook.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// NoteUpdate carries the fields to change. Nil fields are left as they are.
type NoteUpdate struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Service coordinates relational writes with vector index writes.
//
// The relational row is always committed first. When the encoder or the
// index fails afterwards the row stays, its vector id stays null or stale,
// and the error is returned; IndexNote repairs it.
type Service struct {
	store    notestore.Store
	index    vectorstore.Index
	encoder  ai.Encoder
	logger   *slog.Logger
	newID    func() string
	onChange func(kind string, id int64)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithChangeHook registers fn to be called after each successful create,
// update or delete.
func WithChangeHook(fn func(kind string, id int64)) Option {
	return func(s *Service) { s.onChange = fn }
}

// NewService creates a new note service.
func NewService(store notestore.Store, index vectorstore.Index, encoder ai.Encoder, opts ...Option) *Service {
	s := &Service{
		store:   store,
		index:   index,
		encoder: encoder,
		logger:  slog.Default(),
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNote returns the note with id.
func (s *Service) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	return s.store.GetNote(ctx, id)
}

// ListNotes returns up to limit notes, most recently updated first.
func (s *Service) ListNotes(ctx context.Context, limit int) ([]models.Note, error) {
	notes, err := s.store.ListNotes(ctx, limit)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// CreateNote persists a new note and indexes it.
func (s *Service) CreateNote(ctx context.Context, title, content string) (*models.Note, error) {
	if err := validateFields(&title, &content); err != nil {
		return nil, err
	}

	n, err := s.store.CreateNote(ctx, title, content)
	if err != nil {
		return nil, err
	}

	indexed, err := s.IndexNote(ctx, n.ID)
	if err != nil {
		s.logger.Warn("note created without vector",
			slog.Int64("note_id", n.ID), slog.String("error", err.Error()))
		return nil, err
	}

	s.notify(ChangeCreated, n.ID)
	return indexed, nil
}

// UpdateNote applies upd and re-indexes the note with its new content.
func (s *Service) UpdateNote(ctx context.Context, id int64, upd NoteUpdate) (*models.Note, error) {
	if upd.Title == nil && upd.Content == nil {
		return nil, apperr.Validation("title or content is required")
	}
	if err := validateFields(upd.Title, upd.Content); err != nil {
		return nil, err
	}

	if _, err := s.store.UpdateNote(ctx, id, upd.Title, upd.Content); err != nil {
		return nil, err
	}

	indexed, err := s.IndexNote(ctx, id)
	if err != nil {
		s.logger.Warn("note updated but vector is stale",
			slog.Int64("note_id", id), slog.String("error", err.Error()))
		return nil, err
	}

	s.notify(ChangeUpdated, id)
	return indexed, nil
}

// DeleteNote removes the note's vector and then its row. When the index
// delete fails the row is kept so the operation can be retried.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return err
	}

	if n.HasVector() {
		if err := s.index.Delete(ctx, *n.VectorID); err != nil {
			return apperr.Upstream("vector index", err)
		}
	}

	if err := s.store.DeleteNote(ctx, id); err != nil {
		return err
	}

	s.notify(ChangeDeleted, id)
	return nil
}

// IndexNote encodes the note's content and upserts its vector, reusing the
// note's vector id or minting one. The minted id is persisted before the
// upsert so a retry overwrites the same record. Calling it repeatedly is safe.
func (s *Service) IndexNote(ctx context.Context, id int64) (*models.Note, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}

	vec, err := s.encoder.Encode(ctx, n.Content)
	if err != nil {
		return nil, apperr.Upstream("encoder", err)
	}

	if !n.HasVector() {
		vid := s.newID()
		if err := s.store.SetVectorID(ctx, n.ID, vid); err != nil {
			return nil, fmt.Errorf("noteservice: assign vector id: %w", err)
		}
		n.VectorID = &vid
	}

	rec := models.VectorRecord{
		ID:      *n.VectorID,
		Vector:  vec,
		Payload: models.PayloadOf(n),
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return nil, apperr.Upstream("vector index", err)
	}

	s.logger.Debug("note indexed",
		slog.Int64("note_id", n.ID), slog.String("vector_id", rec.ID))
	return n, nil
}

func (s *Service) notify(kind string, id int64) {
	if s.onChange != nil {
		s.onChange(kind, id)
	}
}

// validateFields checks the fields that are present.
func validateFields(title, content *string) error {
	if content != nil && strings.TrimSpace(*content) == "" {
		return apperr.Validation("content is required")
	}
	if title != nil {
		if err := validation.Validate(*title, validation.RuneLength(0, models.MaxTitleLength)); err != nil {
			return apperr.Validation("title " + err.Error())
		}
	}
	return nil
}
