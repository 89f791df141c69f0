package reconcile

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/notestore"
	"github.com/starford/notesense/internal/noteservice"
	"github.com/starford/notesense/internal/testutil"
	"github.com/starford/notesense/internal/vectorstore"
)

type fixture struct {
	db    *notestore.DB
	index *vectorstore.SQLiteIndex
	enc   *testutil.ConceptEncoder
	svc   *noteservice.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestDB(t)
	idx := testutil.TestIndex(t, testutil.EncoderDimension)
	enc := &testutil.ConceptEncoder{}
	return &fixture{db: db, index: idx, enc: enc, svc: noteservice.NewService(db, idx, enc)}
}

func (f *fixture) reconciler(pageSize int) *Reconciler {
	return New(f.db, f.index, f.svc, pageSize, nil)
}

// memIndex serves Scroll from a fixed record list.
type memIndex struct {
	vectorstore.Index
	records []models.VectorRecord
	scrolls int
}

func (m *memIndex) Scroll(_ context.Context, after string, limit int) ([]models.VectorRecord, string, error) {
	m.scrolls++
	sort.Slice(m.records, func(i, j int) bool { return m.records[i].ID < m.records[j].ID })
	var page []models.VectorRecord
	for _, rec := range m.records {
		if rec.ID > after && len(page) < limit {
			page = append(page, rec)
		}
	}
	next := ""
	if len(page) == limit {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

func noteID(id int64) *int64 { return &id }

func TestRun_RestoresLostRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateNote(ctx, "Rust", "ownership and borrowing")
	require.NoError(t, err)
	b, err := f.svc.CreateNote(ctx, "Bread", "flour water yeast")
	require.NoError(t, err)
	c, err := f.svc.CreateNote(ctx, "Garden", "tomato soil")
	require.NoError(t, err)

	require.NoError(t, f.db.DeleteNote(ctx, a.ID))
	require.NoError(t, f.db.DeleteNote(ctx, c.ID))

	report, err := f.reconciler(0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Created)
	assert.Empty(t, report.Conflicts)
	assert.Zero(t, report.Skipped)

	for _, want := range []*models.Note{a, b, c} {
		got, err := f.db.GetNote(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Content, got.Content)
		assert.Equal(t, *want.VectorID, *got.VectorID)
	}

	again, err := f.reconciler(0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Scanned)
	assert.Zero(t, again.Created)
	assert.Empty(t, again.Conflicts)
}

func TestRun_RecordWithoutNoteIDGetsNewRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.index.Upsert(ctx, models.VectorRecord{
		ID:      "orphan",
		Vector:  testutil.Embed("channels"),
		Payload: models.Payload{Title: "Go", Content: "channels"},
	}))

	report, err := f.reconciler(0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	ids, err := f.db.VectorIDs(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, "orphan")
	n, err := f.db.GetNote(ctx, ids["orphan"])
	require.NoError(t, err)
	assert.Equal(t, "channels", n.Content)
}

func TestRun_OccupiedIDIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lost, err := f.svc.CreateNote(ctx, "Lost", "rust memory")
	require.NoError(t, err)
	other, err := f.svc.CreateNote(ctx, "Other", "garden soil")
	require.NoError(t, err)
	require.NoError(t, f.db.DeleteNote(ctx, lost.ID))
	require.NoError(t, f.db.DeleteNote(ctx, other.ID))

	squatter, err := f.db.InsertNote(ctx, &models.Note{ID: lost.ID, Title: "Squatter", Content: "unrelated"})
	require.NoError(t, err)

	report, err := f.reconciler(0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Conflict{{VectorID: *lost.VectorID, NoteID: lost.ID}}, report.Conflicts)
	assert.Equal(t, 1, report.Created, "the run continues past a conflict")

	got, err := f.db.GetNote(ctx, squatter.ID)
	require.NoError(t, err)
	assert.Equal(t, "Squatter", got.Title)
	assert.Equal(t, "unrelated", got.Content)
	assert.Nil(t, got.VectorID)

	restored, err := f.db.GetNote(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Other", restored.Title)
}

func TestRun_SkipsInvalidPayloadsAndPages(t *testing.T) {
	db := testutil.TestDB(t)
	idx := &memIndex{records: []models.VectorRecord{
		{ID: "a", Payload: models.Payload{NoteID: noteID(10), Title: "a", Content: "alpha"}},
		{ID: "b", Payload: models.Payload{NoteID: noteID(11), Title: "b", Content: ""}},
		{ID: "c", Payload: models.Payload{NoteID: noteID(12), Title: "c", Content: "gamma"}},
		{ID: "d", Payload: models.Payload{NoteID: noteID(13), Title: "d", Content: "delta"}},
		{ID: "e", Payload: models.Payload{NoteID: noteID(14), Title: "e", Content: "epsilon"}},
	}}

	report, err := New(db, idx, nil, 2, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 3, idx.scrolls)

	_, err = db.GetNote(context.Background(), 11)
	assert.Error(t, err)
	n, err := db.GetNote(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, "epsilon", n.Content)
}

func TestReindex_RepairsMissingVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.CreateNote(ctx, "ok", "channels")
	require.NoError(t, err)

	f.enc.Fail(testutil.ErrInjected)
	_, err = f.svc.CreateNote(ctx, "no vector", "bread")
	require.Error(t, err)
	f.enc.Fail(nil)

	dropped, err := f.svc.CreateNote(ctx, "dropped", "tomato")
	require.NoError(t, err)
	require.NoError(t, f.index.Delete(ctx, *dropped.VectorID))

	calls := f.enc.Calls()
	report, err := f.reconciler(0).Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Indexed)
	assert.Empty(t, report.Failed)
	assert.Equal(t, calls+2, f.enc.Calls(), "healthy notes are not re-encoded")

	linked, err := f.db.VectorIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, linked, 3)
	for vid := range linked {
		page, _, err := f.index.Scroll(ctx, "", 10)
		require.NoError(t, err)
		found := false
		for _, rec := range page {
			found = found || rec.ID == vid
		}
		assert.True(t, found, "vector %s missing", vid)
	}
	assert.Contains(t, linked, *ok.VectorID)
	assert.Contains(t, linked, *dropped.VectorID)

	again, err := f.reconciler(0).Reindex(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Checked)
}

func TestReindex_CollectsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.enc.Fail(testutil.ErrInjected)
	_, err := f.svc.CreateNote(ctx, "a", "one")
	require.Error(t, err)
	_, err = f.svc.CreateNote(ctx, "b", "two")
	require.Error(t, err)

	report, err := f.reconciler(0).Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Zero(t, report.Indexed)
	assert.Len(t, report.Failed, 2)

	_, err = New(f.db, f.index, nil, 0, nil).Reindex(ctx)
	assert.Error(t, err)
}

func TestRun_UnrelatedNoteSevenIsNotOverwritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.InsertNote(ctx, &models.Note{ID: 7, Title: "Groceries", Content: "milk, eggs"})
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, models.VectorRecord{
		ID:      "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Vector:  testutil.Embed("rust ownership"),
		Payload: models.Payload{NoteID: noteID(7), Title: "Rust", Content: "rust ownership"},
	}))

	report, err := f.reconciler(0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Conflict{{VectorID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", NoteID: 7}}, report.Conflicts)
	assert.Zero(t, report.Created)

	n, err := f.db.GetNote(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", n.Title)
	assert.Equal(t, "milk, eggs", n.Content)
	assert.Nil(t, n.VectorID)
}
