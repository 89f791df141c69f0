package api

import (
	"github.com/starford/notesense/internal/models"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title" example:"Rust ownership"`
	Content string `json:"content" example:"Every value has a single owner." validate:"required"`
}

// UpdateNoteRequest is the request body for PUT and PATCH. PUT requires
// content; PATCH accepts any subset.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty" example:"Rust ownership"`
	Content *string `json:"content,omitempty" example:"Borrowing rules."`
}

// Note is the note response type (aliased from the domain layer).
type Note = models.Note

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []Note `json:"notes" validate:"required"`
}

// ScoredNote is a note with its similarity score.
type ScoredNote struct {
	Note
	Score float64 `json:"score" example:"0.83"`
}

// NoteSearchResponse wraps similarity-ranked notes.
type NoteSearchResponse struct {
	Results []ScoredNote `json:"results" validate:"required"`
}

// AISearchRequest is the body of POST /ai/search.
type AISearchRequest struct {
	Query string `json:"query" example:"memory safety" validate:"required"`
	Limit int    `json:"limit,omitempty" example:"5"`
}

// AISearchResult is a single re-ranked hit.
type AISearchResult struct {
	ID      string  `json:"id" example:"2f1c0e0a-7d0b-4b8e-9d43-51a6a37a1c11"`
	NoteID  *int64  `json:"note_id,omitempty" example:"12"`
	Title   string  `json:"title" example:"Rust ownership"`
	Content string  `json:"content"`
	Score   float64 `json:"score" example:"7.5"`
}

// AISearchResponse wraps re-ranked hits.
type AISearchResponse struct {
	Results []AISearchResult `json:"results" validate:"required"`
}

// AskRequest is the body of POST /ai/ask.
type AskRequest struct {
	Question string `json:"question" example:"How does Rust prevent data races?" validate:"required"`
}

// AskResponse carries the generated answer.
type AskResponse struct {
	Answer string `json:"answer"`
}

// SuggestionsRequest is the body of POST /ai/suggestions.
type SuggestionsRequest struct {
	Content string `json:"content" validate:"required"`
}

// SuggestionsResponse carries up to three suggestions.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func toAISearchResults(records []models.ScoredRecord) []AISearchResult {
	out := make([]AISearchResult, len(records))
	for i, r := range records {
		out[i] = AISearchResult{
			ID:      r.ID,
			NoteID:  r.Payload.NoteID,
			Title:   r.Payload.Title,
			Content: r.Payload.Content,
			Score:   r.Score,
		}
	}
	return out
}
