package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/notesense/internal/ai"
	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/models"
)

// NoContextAnswer is returned when no note is relevant to a question.
const NoContextAnswer = "I don't have enough information to answer that question. Try adding some notes first."

// Assistant answers questions from note content and suggests ideas.
type Assistant struct {
	retriever *Retriever
	generator ai.Generator
	logger    *slog.Logger
}

// NewAssistant creates an assistant.
func NewAssistant(retriever *Retriever, generator ai.Generator, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{retriever: retriever, generator: generator, logger: logger}
}

// Answer answers question from the most relevant notes.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apperr.Validation("question is required")
	}

	results, err := a.retriever.Search(ctx, question, DefaultTopN)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoContextAnswer, nil
	}

	answer, err := a.generator.Generate(ctx, answerPrompt(BuildContext(results), question))
	if err != nil {
		return "", apperr.Upstream("generator", err)
	}
	a.logger.Debug("question answered", slog.Int("context_notes", len(results)))
	return answer, nil
}

// Suggest proposes up to three ideas that would expand content.
func (a *Assistant) Suggest(ctx context.Context, content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}

	raw, err := a.generator.Generate(ctx, suggestionsPrompt(content))
	if err != nil {
		return nil, apperr.Upstream("generator", err)
	}
	return ParseSuggestions(raw), nil
}

// BuildContext renders results as numbered note blocks.
func BuildContext(results []models.ScoredRecord) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Note %d: %s\n%s\n\n", i+1, r.Payload.Title, r.Payload.Content)
	}
	return b.String()
}

func answerPrompt(context, question string) string {
	return "Answer the following question based on the provided context from the user's notes.\n" +
		"If the answer cannot be determined from the context, say so.\n\n" +
		"Context:\n" + context + "\n" +
		"Question:\n" + question + "\n\n" +
		"Answer:\n"
}

func suggestionsPrompt(content string) string {
	return "Based on the following note content, suggest 3 relevant points or ideas that could be added to expand on this topic.\n" +
		"Format your response as a JSON array of strings, each containing a single suggestion.\n\n" +
		"Note content:\n" + content + "\n\n" +
		"Suggestions:\n"
}
