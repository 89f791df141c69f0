package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notesense/internal"
	pkgconfig "github.com/starford/notesense/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func reconcileCmd(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	report, err := internal.Reconcile(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if len(report.Conflicts) > 0 {
		return fmt.Errorf("reconcile: %d conflicting records left untouched", len(report.Conflicts))
	}
	return nil
}

func reindexCmd(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	report, err := internal.Reindex(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("reindex: %d notes could not be indexed", len(report.Failed))
	}
	return nil
}

func mcpCmd(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cmd := &cli.Command{
		Name:    "notesense",
		Usage:   "Notes with semantic search, question answering and idea suggestions",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "reconcile",
				Usage:  "Recreate note rows for vector records that no row references",
				Action: reconcileCmd,
			},
			{
				Name:   "reindex",
				Usage:  "Write vectors for notes that are missing from the index",
				Action: reindexCmd,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcpCmd,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
