// Package reconcile repairs drift between the vector index and the
// relational store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/notestore"
	"github.com/starford/notesense/internal/vectorstore"
)

// DefaultPageSize is the number of index records fetched per scroll page.
const DefaultPageSize = 256

// Conflict describes an index record whose note id is already taken by a
// different row.
type Conflict struct {
	VectorID string `json:"vector_id"`
	NoteID   int64  `json:"note_id"`
}

// Report summarizes a Run.
type Report struct {
	Scanned   int        `json:"scanned"`
	Created   int        `json:"created"`
	Skipped   int        `json:"skipped"`
	Conflicts []Conflict `json:"conflicts"`
}

// ReindexReport summarizes a Reindex.
type ReindexReport struct {
	Checked int     `json:"checked"`
	Indexed int     `json:"indexed"`
	Failed  []int64 `json:"failed"`
}

// Indexer writes the vector for one note.
type Indexer interface {
	IndexNote(ctx context.Context, id int64) (*models.Note, error)
}

// Reconciler compares the index with the relational store.
type Reconciler struct {
	store    notestore.Store
	index    vectorstore.Index
	indexer  Indexer
	pageSize int
	logger   *slog.Logger
}

// New creates a reconciler. indexer may be nil when Reindex is not used.
func New(store notestore.Store, index vectorstore.Index, indexer Indexer, pageSize int, logger *slog.Logger) *Reconciler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, index: index, indexer: indexer, pageSize: pageSize, logger: logger}
}

// Run creates a row for every index record that no row references. Rows
// that already exist are never modified or deleted. A record whose note id
// is already used by another row is reported as a conflict and left alone.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	known, err := r.store.VectorIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Conflicts: []Conflict{}}
	after := ""
	for {
		page, next, err := r.index.Scroll(ctx, after, r.pageSize)
		if err != nil {
			return report, apperr.Upstream("vector index", err)
		}

		for _, rec := range page {
			report.Scanned++
			if _, ok := known[rec.ID]; ok {
				continue
			}
			if err := r.restore(ctx, rec, report); err != nil {
				return report, err
			}
			known[rec.ID] = 0
		}

		if next == "" {
			break
		}
		after = next
	}

	r.logger.Info("reconcile finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("conflicts", len(report.Conflicts)))
	return report, nil
}

func (r *Reconciler) restore(ctx context.Context, rec models.VectorRecord, report *Report) error {
	if err := rec.Payload.Validate(); err != nil {
		report.Skipped++
		r.logger.Warn("skipping record with invalid payload",
			slog.String("vector_id", rec.ID), slog.String("error", err.Error()))
		return nil
	}

	vid := rec.ID
	n := &models.Note{
		Title:    rec.Payload.Title,
		Content:  rec.Payload.Content,
		VectorID: &vid,
	}
	if rec.Payload.NoteID != nil {
		n.ID = *rec.Payload.NoteID
	}

	created, err := r.store.InsertNote(ctx, n)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		report.Conflicts = append(report.Conflicts, Conflict{VectorID: rec.ID, NoteID: n.ID})
		r.logger.Warn("note id already taken",
			slog.String("vector_id", rec.ID), slog.Int64("note_id", n.ID))
		return nil
	case err != nil:
		return fmt.Errorf("reconcile: restore %s: %w", rec.ID, err)
	}

	report.Created++
	r.logger.Info("restored note from index",
		slog.String("vector_id", rec.ID), slog.Int64("note_id", created.ID))
	return nil
}

// Reindex writes vectors for rows that have none, or whose vector id is
// missing from the index. Per-note failures are collected and the run
// continues.
func (r *Reconciler) Reindex(ctx context.Context) (*ReindexReport, error) {
	if r.indexer == nil {
		return nil, errors.New("reconcile: reindex requires an indexer")
	}

	present := make(map[string]struct{})
	after := ""
	for {
		page, next, err := r.index.Scroll(ctx, after, r.pageSize)
		if err != nil {
			return nil, apperr.Upstream("vector index", err)
		}
		for _, rec := range page {
			present[rec.ID] = struct{}{}
		}
		if next == "" {
			break
		}
		after = next
	}

	ids, err := r.store.UnindexedNoteIDs(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := r.store.VectorIDs(ctx)
	if err != nil {
		return nil, err
	}
	for vid, id := range linked {
		if _, ok := present[vid]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	report := &ReindexReport{Checked: len(ids), Failed: []int64{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := r.indexer.IndexNote(ctx, id); err != nil {
			report.Failed = append(report.Failed, id)
			r.logger.Warn("reindex failed",
				slog.Int64("note_id", id), slog.String("error", err.Error()))
			continue
		}
		report.Indexed++
	}

	r.logger.Info("reindex finished",
		slog.Int("checked", report.Checked),
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}
