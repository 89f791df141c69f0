package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/noteservice"
	"github.com/starford/notesense/internal/retrieval"
)

// noteSearchLimit is the number of notes GET /notes/search returns.
const noteSearchLimit = 10

// Handler holds API route handlers.
type Handler struct {
	notes     *noteservice.Service
	retriever *retrieval.Retriever
	assistant *retrieval.Assistant
}

// NewHandler creates a new Handler.
func NewHandler(notes *noteservice.Service, retriever *retrieval.Retriever, assistant *retrieval.Assistant) *Handler {
	return &Handler{notes: notes, retriever: retriever, assistant: assistant}
}

func noteID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validation("note id must be a positive integer")
	}
	return id, nil
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently updated first
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notes, err := h.notes.ListNotes(r.Context(), limit)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Note id"
//	@Success		200	{object}	Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	note, err := h.notes.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note and index it
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.notes.CreateNote(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ReplaceNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note's title and content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"New values"
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) ReplaceNote(w http.ResponseWriter, r *http.Request) {
	h.updateNote(w, r, true)
}

// PatchNote handles PATCH /api/notes/{id}.
//
//	@Summary		Update some of a note's fields
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	h.updateNote(w, r, false)
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request, replace bool) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if replace {
		if req.Content == nil {
			writeError(w, "update note", apperr.Validation("content is required"))
			return
		}
		if req.Title == nil {
			empty := ""
			req.Title = &empty
		}
	}

	note, err := h.notes.UpdateNote(r.Context(), id, noteservice.NoteUpdate{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and its vector
//	@Tags			notes
//	@Param			id	path	int	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if err := h.notes.DeleteNote(r.Context(), id); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchNotes handles GET /api/notes/search.
//
//	@Summary		Rank notes by embedding similarity only
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	NoteSearchResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/search [get]
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	records, err := h.retriever.Recall(r.Context(), q, noteSearchLimit)
	if err != nil {
		writeError(w, "search notes", err)
		return
	}

	results := make([]ScoredNote, 0, len(records))
	for _, rec := range records {
		if rec.Payload.NoteID == nil {
			continue
		}
		note, err := h.notes.GetNote(r.Context(), *rec.Payload.NoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			writeError(w, "search notes", err)
			return
		}
		results = append(results, ScoredNote{Note: *note, Score: rec.Score})
	}
	writeJSON(w, http.StatusOK, NoteSearchResponse{Results: results})
}

// Search handles POST /api/ai/search.
//
//	@Summary		Two-stage semantic search
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AISearchRequest	true	"Query"
//	@Success		200		{object}	AISearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req AISearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	records, err := h.retriever.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, "ai search", err)
		return
	}
	writeJSON(w, http.StatusOK, AISearchResponse{Results: toAISearchResults(records)})
}

// Ask handles POST /api/ai/ask.
//
//	@Summary		Answer a question from the notes
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AskRequest	true	"Question"
//	@Success		200		{object}	AskResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/ask [post]
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := h.assistant.Answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, "ask", err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

// Suggestions handles POST /api/ai/suggestions.
//
//	@Summary		Suggest ideas that expand a note
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SuggestionsRequest	true	"Note content"
//	@Success		200		{object}	SuggestionsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/suggestions [post]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	var req SuggestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	suggestions, err := h.assistant.Suggest(r.Context(), req.Content)
	if err != nil {
		writeError(w, "suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}
