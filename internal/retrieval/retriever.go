// Package retrieval implements two-stage semantic search over notes and the
// question answering and suggestion features built on top of it.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notesense/internal/ai"
	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
	"github.com/starford/notesense/internal/vectorstore"
)

const (
	// RecallK is the number of candidates taken from the vector index
	// before re-ranking.
	RecallK = 20
	// DefaultTopN is the number of results returned when the caller does
	// not ask for a specific count.
	DefaultTopN = 5

	scoreConcurrency = 8
)

// Retriever recalls candidates by embedding similarity and re-ranks them
// with a pairwise scorer.
type Retriever struct {
	index   vectorstore.Index
	encoder ai.Encoder
	scorer  ai.Scorer
	logger  *slog.Logger
}

// NewRetriever creates a retriever. A nil scorer keeps stage-one order.
func NewRetriever(index vectorstore.Index, encoder ai.Encoder, scorer ai.Scorer, logger *slog.Logger) *Retriever {
	if scorer == nil {
		scorer = ai.NopScorer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, encoder: encoder, scorer: scorer, logger: logger}
}

// Search returns up to topN records ordered by re-ranking score. Records
// with equal scores keep their recall order. Each result carries the
// re-ranking score, not the cosine similarity.
func (r *Retriever) Search(ctx context.Context, query string, topN int) ([]models.ScoredRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query is required")
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	candidates, err := r.Recall(ctx, query, RecallK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, apperr.Upstream("reranker", err)
	}
	for i := range candidates {
		candidates[i].Score = scores[i]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	r.logger.Debug("search reranked",
		slog.String("query", query),
		slog.Int("returned", len(candidates)))
	return candidates, nil
}

// Recall returns up to k records by embedding similarity alone. Scores are
// cosine similarities.
func (r *Retriever) Recall(ctx context.Context, query string, k int) ([]models.ScoredRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query is required")
	}

	vec, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, apperr.Upstream("encoder", err)
	}

	candidates, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, apperr.Upstream("vector index", err)
	}
	if candidates == nil {
		candidates = []models.ScoredRecord{}
	}
	return candidates, nil
}

// score returns one score per candidate, in candidate order.
func (r *Retriever) score(ctx context.Context, query string, candidates []models.ScoredRecord) ([]float64, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Payload.Content
	}

	if batch, ok := r.scorer.(ai.BatchScorer); ok {
		return batch.ScoreBatch(ctx, query, texts)
	}

	scores := make([]float64, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			s, err := r.scorer.Score(gCtx, query, text)
			if err != nil {
				return err
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
