package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/bess-advisor/internal/cache"
	"github.com/spherical-ai/bess-advisor/internal/document"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

func newExtractCmd() *cobra.Command {
	var (
		withAI bool
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract a specification record from one datasheet",
		Long: `Extract decodes a PDF, DOCX, TXT or Markdown datasheet and applies the
pattern table. With --ai the configured language model fills fields the
patterns missed. With --save the record is stored in the catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read datasheet: %w", err)
			}

			extractor, err := newExtractor(withAI)
			if err != nil {
				return err
			}

			useAI := withAI && extractor.HasEnhancer()
			stop := func() {}
			if useAI {
				stop = ui.Spinner("Asking the language model to review " + filepath.Base(path))
			}
			rec := extractor.ExtractDocument(ctx, filepath.Base(path), data, useAI)
			stop()

			if save {
				db, err := openDatabase(ctx)
				if err != nil {
					return fmt.Errorf("open database: %w", err)
				}
				defer db.Close()

				if err := storage.NewSpecificationRepository(db).Create(ctx, rec); err != nil {
					return fmt.Errorf("save datasheet: %w", err)
				}
				invalidateSharedCache(ctx)
			}

			rec.FullTextContent = ""
			if outputJSON {
				return ui.JSON(rec)
			}

			printSpecification(rec)
			if save {
				ui.Success("Saved as %s", rec.ID)
			}
			if !rec.Processed {
				return fmt.Errorf("datasheet could not be processed: %s", rec.ProcessingErrors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withAI, "ai", false, "use the configured language model to enhance extraction")
	cmd.Flags().BoolVar(&save, "save", false, "store the extracted record in the catalog")

	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		withAI    bool
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Extract and store every datasheet in a directory",
		Long: `Ingest walks a directory, extracts each supported datasheet and stores the
result in the catalog. Files that cannot be decoded are stored as
unprocessed rows so they can be reprocessed later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			files, err := collectDatasheets(args[0], recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				ui.Warning("No supported datasheets found in %s", args[0])
				if outputJSON {
					return ui.JSON(ingestSummary{Files: []ingestResult{}})
				}
				return nil
			}

			extractor, err := newExtractor(withAI)
			if err != nil {
				return err
			}
			useAI := withAI && extractor.HasEnhancer()

			db, err := openDatabase(ctx)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			repo := storage.NewSpecificationRepository(db)

			ui.Step("Ingesting %d datasheets from %s", len(files), args[0])
			bar := ui.ProgressBar(len(files), "Extracting")

			summary := ingestSummary{Files: make([]ingestResult, 0, len(files))}
			for _, path := range files {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res := ingestFile(ctx, path, useAI, extractor, repo)
				summary.add(res)
				_ = bar.Add(1)

				logger.Debug().
					Str("file", path).
					Bool("processed", res.Processed).
					Str("error", res.Error).
					Msg("Datasheet ingested")
			}
			_ = bar.Finish()

			if summary.Stored > 0 {
				invalidateSharedCache(ctx)
			}

			if outputJSON {
				return ui.JSON(summary)
			}

			ui.Success("Stored %d datasheets (%d processed, %d unprocessed)", summary.Stored, summary.Processed, summary.Stored-summary.Processed)
			for _, f := range summary.Files {
				if f.Error != "" {
					ui.Warning("%s: %s", filepath.Base(f.Path), f.Error)
				}
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d datasheets could not be stored", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withAI, "ai", false, "use the configured language model to enhance extraction")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")

	return cmd
}

// openSharedCache returns the cache the API serves recommendations from, or
// nil when it lives inside the API process and cannot be reached from here.
func openSharedCache() (cache.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return nil, nil
	}
	client, err := cache.NewRedisClient(cache.RedisConfig{
		URL:      cfg.Cache.Redis.URL,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// invalidateSharedCache drops cached recommendations after a catalog write.
// An unreachable cache only warns; the rows are already stored.
func invalidateSharedCache(ctx context.Context) {
	c, err := openSharedCache()
	if err != nil {
		logger.Warn().Err(err).Msg("Cache unavailable, cached recommendations may be stale")
		ui.Warning("Could not reach the cache; cached recommendations may be stale")
		return
	}
	if c == nil {
		return
	}
	defer c.Close()
	invalidateRecommendations(ctx, c)
}

func invalidateRecommendations(ctx context.Context, c cache.Client) {
	engine := recommend.NewEngine(nil, nil, logger, recommend.WithCache(c))
	if err := engine.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate cached recommendations")
		ui.Warning("Cached recommendations may be stale: %v", err)
		return
	}
	logger.Debug().Msg("Cached recommendations invalidated")
}

type ingestResult struct {
	Path      string `json:"path"`
	ID        string `json:"id,omitempty"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}

type ingestSummary struct {
	Stored    int            `json:"stored"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Files     []ingestResult `json:"files"`
}

func (s *ingestSummary) add(r ingestResult) {
	s.Files = append(s.Files, r)
	if r.ID == "" {
		s.Failed++
		return
	}
	s.Stored++
	if r.Processed {
		s.Processed++
	}
}

type datasheetExtractor interface {
	ExtractDocument(ctx context.Context, filename string, data []byte, useAI bool) *domain.SpecificationRecord
}

func ingestFile(ctx context.Context, path string, useAI bool, x datasheetExtractor, store storage.SpecificationStore) ingestResult {
	res := ingestResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	rec := x.ExtractDocument(ctx, filepath.Base(path), data, useAI)
	if err := store.Create(ctx, rec); err != nil {
		res.Error = err.Error()
		return res
	}

	res.ID = rec.ID.String()
	res.Processed = rec.Processed
	res.Error = rec.ProcessingErrors
	return res
}

// collectDatasheets lists supported files under dir in lexical order.
func collectDatasheets(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if document.Supported(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

func printSpecification(rec *domain.SpecificationRecord) {
	if rec.Processed {
		ui.Success("%s (%s)", rec.DisplayName(), rec.SourceFilename)
	} else {
		ui.Error("%s could not be processed: %s", rec.SourceFilename, rec.ProcessingErrors)
		return
	}

	rows := [][]string{
		{"Manufacturer", orNA(rec.Manufacturer)},
		{"Model", orNA(rec.Model)},
		{"Power (MW)", optional(rec.NominalPowerMW)},
		{"Energy (MWh)", optional(rec.NominalEnergyMWh)},
		{"Duration (h)", optional(rec.DischargeDurationH)},
		{"C-rate", optional(rec.CRate)},
		{"Efficiency (%)", optional(rec.RoundTripEfficiencyPct)},
		{"Chemistry", orNA(rec.Chemistry)},
		{"Cycle life", optionalInt(rec.CycleLifeCycles)},
		{"Response time (s)", optional(rec.ResponseTimeS)},
		{"Applications", orNA(strings.Join(rec.ApplicationTypes, ", "))},
	}
	ui.Table([]string{"Field", "Value"}, rows)

	for _, w := range rec.ProcessingWarnings {
		ui.Warning("%s", w)
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func optional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%g", *v)
}

func optionalInt(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}
