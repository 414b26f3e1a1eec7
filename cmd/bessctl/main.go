// Package main provides the BESS advisor CLI entrypoint.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/bess-advisor/internal/config"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/llm"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

var rootCmd = &cobra.Command{
	Use:   "bessctl",
	Short: "BESS advisor CLI for datasheet extraction and system recommendations",
	Long: `bessctl works against the same catalog as the BESS advisor API.

Use this tool to:
- Extract specifications from vendor datasheets (PDF, DOCX, TXT)
- Batch-ingest a directory of datasheets into the catalog
- Rank catalog systems against a project requirement
- Check a requirement for sizing problems
- Apply database migrations

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		} else if level == "info" {
			level = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      "console",
			Output:      os.Stderr,
			ServiceName: "bessctl",
		})
		ui = NewUI(outputJSON, noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newRecommendCmd())
	rootCmd.AddCommand(newMatrixCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDatabase connects to the configured database and brings its schema
// up to date.
func openDatabase(ctx context.Context) (*sql.DB, error) {
	pool := storage.PoolConfig{MaxOpenConns: cfg.Database.SQLite.MaxOpenConns}
	if cfg.Database.Driver == storage.DriverPostgres {
		pool = storage.PoolConfig{
			MaxOpenConns:    cfg.Database.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
		}
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), pool)
	if err != nil {
		return nil, err
	}
	applied, err := storage.NewMigrator(db, cfg.Database.Driver).Run(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("Applied migrations")
	}
	return db, nil
}

// newExtractor builds an extractor, attaching the model enhancer when
// withAI is set and a model is configured.
func newExtractor(withAI bool) (*extract.Extractor, error) {
	if !withAI {
		return extract.NewExtractor(logger), nil
	}
	if !cfg.LLMEnabled() {
		ui.Warning("No language model configured; falling back to pattern extraction")
		return extract.NewExtractor(logger), nil
	}

	client, err := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure language model: %w", err)
	}
	enhancer := extract.NewLLMEnhancer(client, extract.DefaultPatternTable())
	return extract.NewExtractor(logger, extract.WithEnhancer(enhancer)), nil
}
