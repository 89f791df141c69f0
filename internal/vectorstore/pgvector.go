package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/starford/notesense/internal/models"
)

// Postgres error codes raised when two bootstraps race on the same object.
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
	pgUniqueViolation = "23505"
)

// PGVectorIndex stores points in a PostgreSQL table with a pgvector column,
// one table per collection.
type PGVectorIndex struct {
	db        *sql.DB
	table     string
	dimension int
	ready     atomic.Bool
}

var _ Index = (*PGVectorIndex)(nil)

// OpenPGVector connects to PostgreSQL. The collection table is created by
// Initialize.
func OpenPGVector(dsn, collection string, dimension int) (*PGVectorIndex, error) {
	if collection == "" {
		return nil, errors.New("vectorstore: collection name is required")
	}
	if dimension <= 0 {
		return nil, errors.Errorf("vectorstore: invalid dimension %d", dimension)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "vectorstore: open postgres")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "vectorstore: ping postgres")
	}
	return &PGVectorIndex{db: db, table: pq.QuoteIdentifier(collection), dimension: dimension}, nil
}

// Initialize enables the vector extension and creates the collection table.
func (p *PGVectorIndex) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			note_id   BIGINT,
			title     TEXT NOT NULL DEFAULT '',
			content   TEXT NOT NULL DEFAULT ''
		)`, p.table, p.dimension),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil && !isDuplicateObject(err) {
			return errors.Wrap(err, "vectorstore: bootstrap collection")
		}
	}

	// An existing table may have been created with another dimension.
	var dim int
	err := p.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`, p.table).Scan(&dim)
	if err != nil {
		return errors.Wrap(err, "vectorstore: inspect collection")
	}
	if dim != p.dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d",
			ErrDimensionMismatch, p.table, dim, p.dimension)
	}
	p.ready.Store(true)
	return nil
}

// Upsert inserts rec or overwrites the record with the same id.
func (p *PGVectorIndex) Upsert(ctx context.Context, rec models.VectorRecord) error {
	if !p.ready.Load() {
		return ErrNotInitialized
	}
	if err := checkRecord(rec, p.dimension); err != nil {
		return err
	}
	var noteID sql.NullInt64
	if rec.Payload.NoteID != nil {
		noteID = sql.NullInt64{Int64: *rec.Payload.NoteID, Valid: true}
	}
	stmt := `
		INSERT INTO ` + p.table + ` (id, embedding, note_id, title, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			note_id   = EXCLUDED.note_id,
			title     = EXCLUDED.title,
			content   = EXCLUDED.content
	`
	_, err := p.db.ExecContext(ctx, stmt,
		rec.ID, pgvector.NewVector(rec.Vector), noteID, rec.Payload.Title, rec.Payload.Content)
	return errors.Wrapf(err, "vectorstore: upsert %s", rec.ID)
}

// Delete removes the given ids. Absent ids are ignored.
func (p *PGVectorIndex) Delete(ctx context.Context, ids ...string) error {
	if !p.ready.Load() {
		return ErrNotInitialized
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "vectorstore: delete")
}

// Search orders points by cosine distance and reports 1 - distance as the
// similarity score. Ties are broken by id.
func (p *PGVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredRecord, error) {
	if !p.ready.Load() {
		return nil, ErrNotInitialized
	}
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), p.dimension)
	}
	if k <= 0 {
		return []models.ScoredRecord{}, nil
	}
	query := `
		SELECT id, embedding, note_id, title, content, 1 - (embedding <=> $1) AS score
		FROM ` + p.table + `
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, errors.Wrap(err, "vectorstore: search")
	}
	defer rows.Close()

	out := []models.ScoredRecord{}
	for rows.Next() {
		var sr models.ScoredRecord
		if err := p.scan(rows, &sr.VectorRecord, &sr.Score); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// Scroll pages through the collection ordered by id.
func (p *PGVectorIndex) Scroll(ctx context.Context, after string, limit int) ([]models.VectorRecord, string, error) {
	if !p.ready.Load() {
		return nil, "", ErrNotInitialized
	}
	if limit <= 0 {
		return nil, "", errors.Errorf("vectorstore: invalid scroll limit %d", limit)
	}
	query := `
		SELECT id, embedding, note_id, title, content
		FROM ` + p.table + `
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, "", errors.Wrap(err, "vectorstore: scroll")
	}
	defer rows.Close()

	page := []models.VectorRecord{}
	for rows.Next() {
		var rec models.VectorRecord
		if err := p.scan(rows, &rec); err != nil {
			return nil, "", err
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return page, nextCursor(page, limit), nil
}

// Close closes the connection pool.
func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}

func (p *PGVectorIndex) scan(rows *sql.Rows, rec *models.VectorRecord, extra ...any) error {
	var (
		vec    pgvector.Vector
		noteID sql.NullInt64
	)
	dest := append([]any{&rec.ID, &vec, &noteID, &rec.Payload.Title, &rec.Payload.Content}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return errors.Wrap(err, "vectorstore: scan point")
	}
	rec.Vector = vec.Slice()
	if noteID.Valid {
		id := noteID.Int64
		rec.Payload.NoteID = &id
	}
	return nil
}

func isDuplicateObject(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pgDuplicateTable, pgDuplicateObject, pgUniqueViolation:
		return true
	}
	return false
}
