package noteservice

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/testutil"
	"github.com/starford/notesense/internal/vectorstore"
)

type fixture struct {
	svc     *Service
	enc     *testutil.ConceptEncoder
	index   *testutil.FlakyIndex
	changes *changeLog
}

type changeLog struct {
	mu     sync.Mutex
	events []string
}

func (c *changeLog) record(kind string, _ int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, kind)
}

func (c *changeLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	enc := &testutil.ConceptEncoder{}
	idx := testutil.NewFlakyIndex(testutil.TestIndex(t, testutil.EncoderDimension))
	changes := &changeLog{}
	svc := NewService(testutil.TestDB(t), idx, enc, WithChangeHook(changes.record))
	return &fixture{svc: svc, enc: enc, index: idx, changes: changes}
}

// allRecords scrolls the whole index.
func allRecords(t *testing.T, idx vectorstore.Index) map[string]models.VectorRecord {
	t.Helper()
	out := map[string]models.VectorRecord{}
	after := ""
	for {
		page, next, err := idx.Scroll(context.Background(), after, 50)
		require.NoError(t, err)
		for _, rec := range page {
			out[rec.ID] = rec
		}
		if next == "" {
			return out
		}
		after = next
	}
}

func TestCreateNote_RowAndVectorAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "Rust notes", "Rust ownership gives memory safety")
	require.NoError(t, err)
	require.True(t, n.HasVector())

	records := allRecords(t, f.index)
	require.Len(t, records, 1)
	rec, ok := records[*n.VectorID]
	require.True(t, ok, "vector id on the row must name an index record")
	require.NotNil(t, rec.Payload.NoteID)
	assert.Equal(t, n.ID, *rec.Payload.NoteID)
	assert.Equal(t, "Rust notes", rec.Payload.Title)
	assert.Equal(t, "Rust ownership gives memory safety", rec.Payload.Content)

	stored, err := f.svc.GetNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, *n.VectorID, *stored.VectorID)
	assert.Equal(t, []string{ChangeCreated}, f.changes.all())
}

func TestCreateNote_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateNote(ctx, "t", "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateNote(ctx, strings.Repeat("é", models.MaxTitleLength+1), "body")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateNote(ctx, strings.Repeat("é", models.MaxTitleLength), "body")
	assert.NoError(t, err)

	assert.Len(t, allRecords(t, f.index), 1)
}

func TestCreateNote_EncoderDownLeavesRowWithoutVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enc.Fail(testutil.ErrInjected)

	_, err := f.svc.CreateNote(ctx, "t", "bread flour water")
	require.ErrorIs(t, err, apperr.ErrUpstream)
	assert.ErrorIs(t, err, testutil.ErrInjected)

	notes, err := f.svc.ListNotes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Nil(t, notes[0].VectorID)
	assert.Empty(t, allRecords(t, f.index))
	assert.Empty(t, f.changes.all())

	// Retry repairs the note.
	f.enc.Fail(nil)
	n, err := f.svc.IndexNote(ctx, notes[0].ID)
	require.NoError(t, err)
	require.True(t, n.HasVector())
	assert.Contains(t, allRecords(t, f.index), *n.VectorID)
}

func TestCreateNote_IndexDownKeepsMintedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.index.FailUpsert(testutil.ErrInjected)

	_, err := f.svc.CreateNote(ctx, "t", "tomato soil")
	require.ErrorIs(t, err, apperr.ErrUpstream)

	notes, err := f.svc.ListNotes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.True(t, notes[0].HasVector())
	minted := *notes[0].VectorID

	f.index.FailUpsert(nil)
	n, err := f.svc.IndexNote(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, minted, *n.VectorID, "retry must reuse the persisted id")
	assert.Len(t, allRecords(t, f.index), 1)
}

func TestUpdateNote_ReusesVectorID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "Bread", "flour water yeast")
	require.NoError(t, err)
	vid := *n.VectorID

	content := "goroutines and channels"
	updated, err := f.svc.UpdateNote(ctx, n.ID, NoteUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, vid, *updated.VectorID)
	assert.Equal(t, "Bread", updated.Title)

	records := allRecords(t, f.index)
	require.Len(t, records, 1)
	assert.Equal(t, content, records[vid].Payload.Content)
	assert.Equal(t, testutil.Embed(content), records[vid].Vector)

	// Searching with the old content no longer ranks the note first by its
	// old meaning.
	results, err := f.index.Search(ctx, testutil.Embed("flour water yeast"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Less(t, results[0].Score, 0.5)

	assert.Equal(t, []string{ChangeCreated, ChangeUpdated}, f.changes.all())
}

func TestUpdateNote_TitleOnlyStillReindexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "old", "garden soil")
	require.NoError(t, err)
	calls := f.enc.Calls()

	title := "new"
	_, err = f.svc.UpdateNote(ctx, n.ID, NoteUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.enc.Calls())
	assert.Equal(t, "new", allRecords(t, f.index)[*n.VectorID].Payload.Title)
}

func TestUpdateNote_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateNote(ctx, 1, NoteUpdate{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	empty := ""
	_, err = f.svc.UpdateNote(ctx, 1, NoteUpdate{Content: &empty})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	content := "body"
	_, err = f.svc.UpdateNote(ctx, 999, NoteUpdate{Content: &content})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteNote_RemovesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "t", "rust compile")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteNote(ctx, n.ID))

	_, err = f.svc.GetNote(ctx, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, allRecords(t, f.index))

	err = f.svc.DeleteNote(ctx, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []string{ChangeCreated, ChangeDeleted}, f.changes.all())
}

func TestDeleteNote_IndexFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "t", "rust compile")
	require.NoError(t, err)

	f.index.FailDelete(testutil.ErrInjected)
	err = f.svc.DeleteNote(ctx, n.ID)
	require.ErrorIs(t, err, apperr.ErrUpstream)

	_, err = f.svc.GetNote(ctx, n.ID)
	require.NoError(t, err, "row must survive a failed index delete")
	assert.Len(t, allRecords(t, f.index), 1)

	f.index.FailDelete(nil)
	require.NoError(t, f.svc.DeleteNote(ctx, n.ID))
}

func TestDeleteNote_WithoutVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enc.Fail(testutil.ErrInjected)

	_, err := f.svc.CreateNote(ctx, "t", "body")
	require.Error(t, err)
	notes, err := f.svc.ListNotes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	require.NoError(t, f.svc.DeleteNote(ctx, notes[0].ID))
	notes, err = f.svc.ListNotes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.NotNil(t, notes)
}

func TestIndexNote_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "t", "channels")
	require.NoError(t, err)

	for range 3 {
		again, err := f.svc.IndexNote(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, *n.VectorID, *again.VectorID)
	}
	assert.Len(t, allRecords(t, f.index), 1)
}
