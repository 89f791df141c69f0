package notestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
)

const noteColumns = `id, title, content, vector_id, created_at, updated_at`

// DefaultListLimit caps ListNotes when the caller passes a non-positive limit.
const DefaultListLimit = 100

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*models.Note, error) {
	var (
		n        models.Note
		vectorID sql.NullString
	)
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &vectorID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if vectorID.Valid {
		v := vectorID.String
		n.VectorID = &v
	}
	return &n, nil
}

func nullable(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optional(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateNote inserts a new row and returns it with its store-assigned id.
func (db *DB) CreateNote(ctx context.Context, title, content string) (*models.Note, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, title, content, now, now)
	if err != nil {
		return nil, fmt.Errorf("notestore: create note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("notestore: last insert id: %w", err)
	}
	return &models.Note{ID: id, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// InsertNote inserts n as-is. When n.ID is non-zero the row is created with
// that identity; an occupied id (or an already linked vector id) yields
// apperr.ErrConflict and leaves the existing row untouched.
func (db *DB) InsertNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}

	var id any
	if n.ID != 0 {
		id = n.ID
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, vector_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, n.Title, n.Content, nullable(n.VectorID), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("notestore: insert note %d: %w", n.ID, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("notestore: insert note: %w", err)
	}
	if n.ID == 0 {
		if n.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("notestore: last insert id: %w", err)
		}
	}
	out := *n
	return &out, nil
}

// GetNote returns the row with the given id or apperr.ErrNotFound.
func (db *DB) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("notestore: get note: %w", err)
	}
	return n, nil
}

// UpdateNote applies the non-nil fields and refreshes updated_at. The
// timestamp is bumped even when neither field changes.
func (db *DB) UpdateNote(ctx context.Context, id int64, title, content *string) (*models.Note, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET
			title      = COALESCE(?, title),
			content    = COALESCE(?, content),
			updated_at = ?
		WHERE id = ?
	`, optional(title), optional(content), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("notestore: update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	return db.GetNote(ctx, id)
}

// SetVectorID links the row to a vector record.
func (db *DB) SetVectorID(ctx context.Context, id int64, vectorID string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE notes SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("notestore: vector id %s already linked: %w", vectorID, apperr.ErrConflict)
		}
		return fmt.Errorf("notestore: set vector id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteNote removes the row. Deleting an absent row is not an error.
func (db *DB) DeleteNote(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("notestore: delete note: %w", err)
	}
	return nil
}

// ListNotes returns notes, most recently updated first.
func (db *DB) ListNotes(ctx context.Context, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// UnindexedNoteIDs returns the ids of notes that have no vector id, in
// ascending order.
func (db *DB) UnindexedNoteIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM notes WHERE vector_id IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("notestore: unindexed notes: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// VectorIDs maps every linked vector id to its note id.
func (db *DB) VectorIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT vector_id, id FROM notes WHERE vector_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("notestore: vector ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			vid string
			id  int64
		)
		if err := rows.Scan(&vid, &id); err != nil {
			return nil, err
		}
		out[vid] = id
	}
	return out, rows.Err()
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
