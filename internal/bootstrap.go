package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/notesense/internal/ai"
	"github.com/starford/notesense/internal/notestore"
	"github.com/starford/notesense/internal/noteservice"
	"github.com/starford/notesense/internal/reconcile"
	"github.com/starford/notesense/internal/retrieval"
	"github.com/starford/notesense/internal/vectorstore"
)

// components holds everything built from the configuration.
type components struct {
	cfg        *Config
	logger     *slog.Logger
	db         *notestore.DB
	index      vectorstore.Index
	notes      *noteservice.Service
	retriever  *retrieval.Retriever
	assistant  *retrieval.Assistant
	reconciler *reconcile.Reconciler
	version    string
}

func (c *components) Close() error {
	return errors.Join(c.index.Close(), c.db.Close())
}

// newApplication applies opts and validates that a config was given.
func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens the stores, initializes the vector collection and wires
// the services. The caller must Close the result.
func bootstrap(ctx context.Context, app *application, svcOpts ...noteservice.Option) (*components, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("vector_backend", cfg.Vector.Backend),
		slog.String("collection", cfg.Vector.Collection),
		slog.Int("dimension", cfg.Vector.Dimension),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.Bool("reranker_enabled", cfg.Reranker.Enabled),
		slog.String("generation_model", cfg.Generation.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := notestore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init note store: %w", err)
	}

	index, err := openIndex(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	if err := index.Initialize(ctx); err != nil {
		index.Close()
		db.Close()
		return nil, fmt.Errorf("initialize collection %s: %w", cfg.Vector.Collection, err)
	}

	encoder := ai.NewOpenAIEncoder(cfg.Embedding)
	scorer := ai.NewScorer(cfg.Reranker)
	generator := ai.NewOpenAIGenerator(cfg.Generation)

	svcOpts = append([]noteservice.Option{noteservice.WithLogger(logger)}, svcOpts...)
	notes := noteservice.NewService(db, index, encoder, svcOpts...)
	retriever := retrieval.NewRetriever(index, encoder, scorer, logger)

	return &components{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		index:      index,
		notes:      notes,
		retriever:  retriever,
		assistant:  retrieval.NewAssistant(retriever, generator, logger),
		reconciler: reconcile.New(db, index, notes, cfg.Vector.PageSize, logger),
		version:    app.version,
	}, nil
}

func openIndex(cfg VectorConfig) (vectorstore.Index, error) {
	switch cfg.Backend {
	case VectorBackendPGVector:
		return vectorstore.OpenPGVector(cfg.PostgresDSN, cfg.Collection, cfg.Dimension)
	case VectorBackendSQLite, "":
		return vectorstore.OpenSQLite(cfg.SQLitePath, cfg.Collection, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
