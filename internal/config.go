package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesense/internal/ai"
	"github.com/starford/notesense/internal/reconcile"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Vector index backends.
const (
	VectorBackendSQLite   = "sqlite"
	VectorBackendPGVector = "pgvector"
)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig   `yaml:"app"`
	SQLite     SQLiteConfig        `yaml:"sqlite"`
	Vector     VectorConfig        `yaml:"vector"`
	Embedding  ai.EmbeddingConfig  `yaml:"embedding"`
	Reranker   ai.RerankerConfig   `yaml:"reranker"`
	Generation ai.GenerationConfig `yaml:"generation"`
	Auth       AuthConfig          `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if c.Vector.Dimension == 0 {
		c.Vector.Dimension = c.Embedding.Dimension
	}
	if c.Vector.Dimension != c.Embedding.Dimension {
		return fmt.Errorf("vector: dimension %d does not match embedding dimension %d",
			c.Vector.Dimension, c.Embedding.Dimension)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Reranker.Validate(); err != nil {
		return fmt.Errorf("reranker: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the note database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend     string `yaml:"backend"`
	Collection  string `yaml:"collection"`
	Dimension   int    `yaml:"dimension"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	PageSize    int    `yaml:"page_size"`
}

// Validate validates the vector index configuration.
func (c *VectorConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = VectorBackendSQLite
	}
	if c.PageSize == 0 {
		c.PageSize = reconcile.DefaultPageSize
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(VectorBackendSQLite, VectorBackendPGVector)),
		validation.Field(&c.Collection, validation.Required, validation.Match(collectionName)),
		validation.Field(&c.Dimension, validation.Required, validation.Min(1)),
		validation.Field(&c.SQLitePath, validation.When(c.Backend == VectorBackendSQLite, validation.Required)),
		validation.Field(&c.PostgresDSN, validation.When(c.Backend == VectorBackendPGVector, validation.Required)),
		validation.Field(&c.PageSize, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with defaults suited to a local
// Ollama install.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./notesense.db",
		},
		Vector: VectorConfig{
			Backend:    VectorBackendSQLite,
			Collection: "notes",
			SQLitePath: "./notesense-vectors.db",
			PageSize:   reconcile.DefaultPageSize,
		},
		Embedding: ai.EmbeddingConfig{
			BaseURL:   "http://localhost:11434/v1",
			Model:     "nomic-embed-text",
			Dimension: 768,
			Timeout:   30 * time.Second,
		},
		Reranker: ai.RerankerConfig{
			Enabled: false,
			Timeout: 30 * time.Second,
		},
		Generation: ai.GenerationConfig{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "llama3.2",
			MaxTokens:   512,
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
