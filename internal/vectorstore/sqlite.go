package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/notesense/internal/models"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	distance  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	note_id    INTEGER,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (collection, id)
);
`

// SQLiteIndex stores points in a SQLite database and answers searches with an
// exact cosine scan over the collection.
type SQLiteIndex struct {
	conn       *sql.DB
	collection string
	dimension  int
	ready      atomic.Bool
}

var _ Index = (*SQLiteIndex)(nil)

// OpenSQLite opens (or creates) the SQLite file backing the index. The
// collection itself is created by Initialize.
func OpenSQLite(path, collection string, dimension int) (*SQLiteIndex, error) {
	if collection == "" {
		return nil, errors.New("vectorstore: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vectorstore: invalid dimension %d", dimension)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorstore: ping: %w", err)
	}
	return &SQLiteIndex{conn: conn, collection: collection, dimension: dimension}, nil
}

// Initialize creates the collection with cosine distance if it is absent.
func (s *SQLiteIndex) Initialize(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("vectorstore: apply schema: %w", err)
	}

	dim, found, err := s.lookupCollection(ctx)
	if err != nil {
		return err
	}
	if !found {
		_, err := s.conn.ExecContext(ctx,
			`INSERT INTO collections (name, dimension, distance) VALUES (?, ?, ?)`,
			s.collection, s.dimension, DistanceCosine)
		if err != nil && !isSQLiteConstraint(err) {
			return fmt.Errorf("vectorstore: create collection %s: %w", s.collection, err)
		}
		// A concurrent creator may have won; re-read whatever is stored.
		if dim, _, err = s.lookupCollection(ctx); err != nil {
			return err
		}
	}
	if dim != s.dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d",
			ErrDimensionMismatch, s.collection, dim, s.dimension)
	}
	s.ready.Store(true)
	return nil
}

func (s *SQLiteIndex) lookupCollection(ctx context.Context) (int, bool, error) {
	var dim int
	err := s.conn.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("vectorstore: lookup collection: %w", err)
	}
	return dim, true, nil
}

// Upsert inserts rec or overwrites the record with the same id.
func (s *SQLiteIndex) Upsert(ctx context.Context, rec models.VectorRecord) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}
	if err := checkRecord(rec, s.dimension); err != nil {
		return err
	}
	var noteID sql.NullInt64
	if rec.Payload.NoteID != nil {
		noteID = sql.NullInt64{Int64: *rec.Payload.NoteID, Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO points (collection, id, vector, note_id, title, content)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			vector  = excluded.vector,
			note_id = excluded.note_id,
			title   = excluded.title,
			content = excluded.content
	`, s.collection, rec.ID, EncodeVector(rec.Vector), noteID, rec.Payload.Title, rec.Payload.Content)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the given ids from the collection.
func (s *SQLiteIndex) Delete(ctx context.Context, ids ...string) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM points WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

// Search scores every point in the collection against vector and returns the
// k most similar. Equal scores keep insertion order.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredRecord, error) {
	if !s.ready.Load() {
		return nil, ErrNotInitialized
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return []models.ScoredRecord{}, nil
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, vector, note_id, title, content
		FROM points
		WHERE collection = ?
		ORDER BY rowid
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	out := []models.ScoredRecord{}
	for rows.Next() {
		rec, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		score, err := CosineSimilarity(vector, rec.Vector)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: score %s: %w", rec.ID, err)
		}
		out = append(out, models.ScoredRecord{VectorRecord: *rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Scroll pages through the collection ordered by id.
func (s *SQLiteIndex) Scroll(ctx context.Context, after string, limit int) ([]models.VectorRecord, string, error) {
	if !s.ready.Load() {
		return nil, "", ErrNotInitialized
	}
	if limit <= 0 {
		return nil, "", fmt.Errorf("vectorstore: invalid scroll limit %d", limit)
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, vector, note_id, title, content
		FROM points
		WHERE collection = ? AND id > ?
		ORDER BY id
		LIMIT ?
	`, s.collection, after, limit)
	if err != nil {
		return nil, "", fmt.Errorf("vectorstore: scroll: %w", err)
	}
	defer rows.Close()

	page := []models.VectorRecord{}
	for rows.Next() {
		rec, err := scanPoint(rows)
		if err != nil {
			return nil, "", err
		}
		page = append(page, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return page, nextCursor(page, limit), nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	return s.conn.Close()
}

func scanPoint(rows *sql.Rows) (*models.VectorRecord, error) {
	var (
		rec    models.VectorRecord
		blob   []byte
		noteID sql.NullInt64
	)
	if err := rows.Scan(&rec.ID, &blob, &noteID, &rec.Payload.Title, &rec.Payload.Content); err != nil {
		return nil, fmt.Errorf("vectorstore: scan point: %w", err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, err
	}
	rec.Vector = vec
	if noteID.Valid {
		id := noteID.Int64
		rec.Payload.NoteID = &id
	}
	return &rec, nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
