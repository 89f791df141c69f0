package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/notesense/internal/apperr"
)

// Scorer scores how relevant a candidate text is to a query. Higher is more
// relevant; only relative order is meaningful.
type Scorer interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
}

// BatchScorer scores several candidates against one query in a single call.
// Scores are returned in candidate order.
type BatchScorer interface {
	Scorer
	ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// NopScorer gives every pair the same score, so a stable sort keeps the
// incoming order. It stands in for a disabled reranker.
type NopScorer struct{}

// Score always returns 0.
func (NopScorer) Score(context.Context, string, string) (float64, error) { return 0, nil }

// ScoreBatch returns a zero score per candidate.
func (NopScorer) ScoreBatch(_ context.Context, _ string, candidates []string) ([]float64, error) {
	return make([]float64, len(candidates)), nil
}

// HTTPReranker calls a cross-encoder behind a /v1/rerank endpoint
// (SiliconFlow, Jina, Cohere-compatible servers).
type HTTPReranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ BatchScorer = (*HTTPReranker)(nil)

// NewHTTPReranker creates a reranker for cfg.
func NewHTTPReranker(cfg RerankerConfig) *HTTPReranker {
	return &HTTPReranker{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// NewScorer returns the HTTP reranker when enabled and NopScorer otherwise.
func NewScorer(cfg RerankerConfig) BatchScorer {
	if !cfg.Enabled {
		return NopScorer{}
	}
	return NewHTTPReranker(cfg)
}

// Score scores a single pair.
func (r *HTTPReranker) Score(ctx context.Context, query, candidate string) (float64, error) {
	scores, err := r.ScoreBatch(ctx, query, []string{candidate})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// ScoreBatch scores every candidate in one request and maps the results back
// to candidate order.
func (r *HTTPReranker) ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: candidates,
		TopN:      len(candidates),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream("reranker", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, apperr.Upstream("reranker", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Upstream("reranker", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Results) != len(candidates) {
		return nil, apperr.Upstream("reranker",
			fmt.Errorf("got %d scores for %d candidates", len(out.Results), len(candidates)))
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(candidates) || seen[res.Index] {
			return nil, apperr.Upstream("reranker", fmt.Errorf("invalid result index %d", res.Index))
		}
		seen[res.Index] = true
		scores[res.Index] = res.Score
	}
	return scores, nil
}
