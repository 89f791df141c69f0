// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notesense tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notesense/internal/apperr"
	"github.com/starford/notesense/internal/noteservice"
	"github.com/starford/notesense/internal/retrieval"
)

// Server wraps the MCP server with notesense tools.
type Server struct {
	mcp       *server.MCPServer
	notes     *noteservice.Service
	retriever *retrieval.Retriever
	assistant *retrieval.Assistant
}

// New creates a new MCP server with all tools registered.
func New(notes *noteservice.Service, retriever *retrieval.Retriever, assistant *retrieval.Assistant, version string) *Server {
	s := &Server{notes: notes, retriever: retriever, assistant: assistant}

	s.mcp = server.NewMCPServer(
		"notesense",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Semantic search: recall notes by meaning, then re-rank them against the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("ask_notes",
		mcp.WithDescription("Answer a question using the most relevant notes as context."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
	), s.askNotes)

	s.mcp.AddTool(mcp.NewTool("suggest_ideas",
		mcp.WithDescription("Suggest up to three ideas that would expand the given note content."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.suggestIdeas)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note and index it for semantic search."),
		mcp.WithString("title", mcp.Description("Title, at most 200 characters")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first."),
		mcp.WithNumber("limit", mcp.Description("Maximum notes (default 100)")),
	), s.listNotes)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a domain error into a tool error result. Tool failures are
// reported to the model, not returned as protocol errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found"), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

type searchHit struct {
	ID      string  `json:"id"`
	NoteID  *int64  `json:"note_id,omitempty"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.retriever.Search(ctx, query, req.GetInt("limit", retrieval.DefaultTopN))
	if err != nil {
		return toolError(err)
	}
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			ID:      r.ID,
			NoteID:  r.Payload.NoteID,
			Title:   r.Payload.Title,
			Content: r.Payload.Content,
			Score:   r.Score,
		}
	}
	return jsonResult(hits)
}

func (s *Server) askNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.assistant.Answer(ctx, question)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(answer), nil
}

func (s *Server) suggestIdeas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	suggestions, err := s.assistant.Suggest(ctx, content)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(suggestions)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.CreateNote(ctx, req.GetString("title", ""), content)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", note.ID)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, int64(id))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(note)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.ListNotes(ctx, req.GetInt("limit", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(notes)
}
