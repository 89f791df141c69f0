package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/starford/notesense/internal/apperr"
)

// Encoder maps text to a fixed-length vector. Identical input yields the same
// vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OpenAIEncoder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEncoder struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ Encoder = (*OpenAIEncoder)(nil)

// NewOpenAIEncoder creates an encoder for cfg.
func NewOpenAIEncoder(cfg EmbeddingConfig) *OpenAIEncoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIEncoder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

// Encode returns the embedding of text.
func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, apperr.Upstream("encoder", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.Upstream("encoder", errors.New("empty embedding response"))
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, apperr.Upstream("encoder",
			fmt.Errorf("model %s returned %d dimensions, configured %d", e.model, len(vec), e.dimension))
	}
	return vec, nil
}

// Dimension returns the configured output dimension.
func (e *OpenAIEncoder) Dimension() int {
	return e.dimension
}
