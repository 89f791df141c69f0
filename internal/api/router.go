package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/search", h.SearchNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.ReplaceNote)
	r.Patch("/notes/{id}", h.PatchNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Retrieval and generation.
	r.Post("/ai/search", h.Search)
	r.Post("/ai/ask", h.Ask)
	r.Post("/ai/suggestions", h.Suggestions)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
