// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesense/internal/api"
	"github.com/starford/notesense/internal/mcpserver"
	"github.com/starford/notesense/internal/noteservice"
	"github.com/starford/notesense/internal/reconcile"
	"github.com/starford/notesense/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker, fed by the note service change hook.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := bootstrap(ctx, app, noteservice.WithChangeHook(broker.PublishNoteEvent))
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.cfg
	logger := c.logger

	handler := api.NewHandler(c.notes, c.retriever, c.assistant)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Reconcile restores relational rows for vector records no row references.
func Reconcile(ctx context.Context, opts ...Option) (*reconcile.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := bootstrap(ctx, app)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.reconciler.Run(ctx)
}

// Reindex writes vectors for notes that are missing from the index.
func Reindex(ctx context.Context, opts ...Option) (*reconcile.ReindexReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := bootstrap(ctx, app)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.reconciler.Reindex(ctx)
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := bootstrap(ctx, app)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("Serving MCP tools on stdio")
	return mcpserver.New(c.notes, c.retriever, c.assistant, c.version).ServeStdio()
}
