package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/vectorstore"
)

// ErrInjected is the failure returned by fakes switched into failing mode.
var ErrInjected = errors.New("injected failure")

// conceptDims are the leading vector dimensions reserved for known concepts.
// Words in the same concept land on the same dimension, which gives the fake
// encoder just enough "meaning" for retrieval tests.
var concepts = map[string]int{
	"rust": 0, "ownership": 0, "memory": 0, "safety": 0, "borrow": 0, "races": 0, "compile": 0,
	"bread": 1, "flour": 1, "water": 1, "yeast": 1, "recipe": 1, "bake": 1,
	"go": 2, "goroutine": 2, "goroutines": 2, "channel": 2, "channels": 2, "concurrency": 2,
	"garden": 3, "tomato": 3, "tomatoes": 3, "soil": 3, "plant": 3,
}

const conceptDims = 4

// EncoderDimension is the output size of ConceptEncoder.
const EncoderDimension = 16

// ConceptEncoder is a deterministic bag-of-words encoder. Known concept words
// share a dimension; every other word is hashed into the remaining ones.
type ConceptEncoder struct {
	mu    sync.Mutex
	err   error
	calls int
}

// Fail makes subsequent Encode calls return err (nil restores success).
func (e *ConceptEncoder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns the number of Encode calls so far.
func (e *ConceptEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Encode implements ai.Encoder.
func (e *ConceptEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Embed(text), nil
}

// Dimension implements ai.Encoder.
func (e *ConceptEncoder) Dimension() int { return EncoderDimension }

// Embed is the pure function behind ConceptEncoder.
func Embed(text string) []float32 {
	vec := make([]float32, EncoderDimension)
	for _, w := range words(text) {
		if dim, ok := concepts[w]; ok {
			vec[dim] += 2
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[conceptDims+int(h.Sum32()%(EncoderDimension-conceptDims))]++
	}
	return vec
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// OverlapScorer scores a pair by the number of shared words, weighting
// concept matches higher. It implements ai.Scorer pairwise only.
type OverlapScorer struct {
	mu    sync.Mutex
	err   error
	calls int
}

// Fail makes subsequent Score calls return err.
func (s *OverlapScorer) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the number of Score calls so far.
func (s *OverlapScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Score implements ai.Scorer.
func (s *OverlapScorer) Score(_ context.Context, query, candidate string) (float64, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	queryConcepts := map[int]bool{}
	queryWords := map[string]bool{}
	for _, w := range words(query) {
		queryWords[w] = true
		if dim, ok := concepts[w]; ok {
			queryConcepts[dim] = true
		}
	}
	var score float64
	for _, w := range words(candidate) {
		if queryWords[w] {
			score++
		}
		if dim, ok := concepts[w]; ok && queryConcepts[dim] {
			score += 2
		}
	}
	return score, nil
}

// TableScorer returns a fixed score per candidate text (0 when absent).
type TableScorer map[string]float64

// Score implements ai.Scorer.
func (s TableScorer) Score(_ context.Context, _, candidate string) (float64, error) {
	return s[candidate], nil
}

// ScriptedGenerator returns Response (or Err) and records every prompt.
type ScriptedGenerator struct {
	Response string
	Err      error

	mu      sync.Mutex
	prompts []string
}

// Generate implements ai.Generator.
func (g *ScriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	return g.Response, nil
}

// Prompts returns the prompts seen so far.
func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// FlakyIndex wraps an index and injects failures into writes.
type FlakyIndex struct {
	vectorstore.Index

	mu         sync.Mutex
	failUpsert error
	failDelete error
	failSearch error
}

// NewFlakyIndex wraps idx.
func NewFlakyIndex(idx vectorstore.Index) *FlakyIndex {
	return &FlakyIndex{Index: idx}
}

// FailUpsert makes Upsert return err (nil restores success).
func (f *FlakyIndex) FailUpsert(err error) { f.mu.Lock(); f.failUpsert = err; f.mu.Unlock() }

// FailDelete makes Delete return err (nil restores success).
func (f *FlakyIndex) FailDelete(err error) { f.mu.Lock(); f.failDelete = err; f.mu.Unlock() }

// FailSearch makes Search return err (nil restores success).
func (f *FlakyIndex) FailSearch(err error) { f.mu.Lock(); f.failSearch = err; f.mu.Unlock() }

// Upsert implements vectorstore.Index.
func (f *FlakyIndex) Upsert(ctx context.Context, rec models.VectorRecord) error {
	f.mu.Lock()
	err := f.failUpsert
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Index.Upsert(ctx, rec)
}

// Delete implements vectorstore.Index.
func (f *FlakyIndex) Delete(ctx context.Context, ids ...string) error {
	f.mu.Lock()
	err := f.failDelete
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Index.Delete(ctx, ids...)
}

// Search implements vectorstore.Index.
func (f *FlakyIndex) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredRecord, error) {
	f.mu.Lock()
	err := f.failSearch
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Index.Search(ctx, vector, k)
}
