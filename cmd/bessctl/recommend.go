package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/scoring"
	"github.com/spherical-ai/bess-advisor/internal/sizing"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// requirementFlags binds the requirement fields to command flags.
type requirementFlags struct {
	power        float64
	energy       float64
	duration     float64
	application  string
	chemistry    string
	cycles       float64
	efficiency   float64
	cycleLife    int
	responseTime float64
	config       string
	gridCode     string
	location     string
}

func (f *requirementFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&f.power, "power", 0, "required power in MW")
	fs.Float64Var(&f.energy, "energy", 0, "required energy in MWh")
	fs.Float64Var(&f.duration, "duration", 0, "required discharge duration in hours")
	fs.StringVar(&f.application, "application", "", "application, e.g. \"peak shaving\"")
	fs.StringVar(&f.chemistry, "chemistry", "", "preferred chemistry (LFP, NMC, LTO, NCA)")
	fs.Float64Var(&f.cycles, "cycles", 0, "expected full cycles per day")
	fs.Float64Var(&f.efficiency, "min-efficiency", 0, "minimum round-trip efficiency in percent")
	fs.IntVar(&f.cycleLife, "min-cycle-life", 0, "minimum cycle life")
	fs.Float64Var(&f.responseTime, "response-time", 0, "required response time in seconds")
	fs.StringVar(&f.config, "configuration", "", "preferred configuration, e.g. containerized")
	fs.StringVar(&f.gridCode, "grid-code", "", "required grid code compliance")
	fs.StringVar(&f.location, "location", "", "project location")
}

// requirement returns the record for the flags the user actually set, so
// an explicit zero still reaches validation.
func (f *requirementFlags) requirement(fs *pflag.FlagSet) domain.RequirementRecord {
	var req domain.RequirementRecord
	if fs.Changed("power") {
		req.PowerMW = domain.Float(f.power)
	}
	if fs.Changed("energy") {
		req.EnergyMWh = domain.Float(f.energy)
	}
	if fs.Changed("duration") {
		req.DurationH = domain.Float(f.duration)
	}
	if fs.Changed("cycles") {
		req.DailyCycles = domain.Float(f.cycles)
	}
	if fs.Changed("min-efficiency") {
		req.MinRoundTripEfficiencyPct = domain.Float(f.efficiency)
	}
	if fs.Changed("min-cycle-life") {
		req.MinCycleLife = domain.Int(f.cycleLife)
	}
	if fs.Changed("response-time") {
		req.ResponseTimeS = domain.Float(f.responseTime)
	}
	req.Application = f.application
	req.ChemistryPreference = f.chemistry
	req.Configuration = f.config
	req.GridCodeCompliance = f.gridCode
	req.Location = f.location
	return req
}

func newRecommendCmd() *cobra.Command {
	var (
		flags   requirementFlags
		catalog string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank catalog systems against a requirement",
		Long: `Recommend scores every processed catalog system against the requirement
given by flags and prints the top matches with a written analysis.

Use --catalog to rank a JSON file of specification records instead of the
configured database.`,
		Example: `  bessctl recommend --power 10 --energy 40 --application "peak shaving"
  bessctl recommend --power 5 --duration 2 --chemistry LFP --catalog systems.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.requirement(cmd.Flags())
			result, err := runRecommendation(cmd.Context(), req, catalog)
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(result)
			}

			ui.Info("Evaluated %d systems", result.TotalSystemsEvaluated)
			m := recommend.GenerateComparisonMatrix(result.Recommendations, req)
			ui.Table(m.Headers, m.Rows)
			fmt.Fprintln(ui.out)
			fmt.Fprintln(ui.out, result.Analysis)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&catalog, "catalog", "", "JSON file of specification records to rank instead of the database")

	return cmd
}

func newMatrixCmd() *cobra.Command {
	var (
		flags   requirementFlags
		catalog string
	)

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the comparison matrix for the top-ranked systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.requirement(cmd.Flags())
			result, err := runRecommendation(cmd.Context(), req, catalog)
			if err != nil {
				return err
			}

			m := recommend.GenerateComparisonMatrix(result.Recommendations, req)
			if outputJSON {
				return ui.JSON(m)
			}
			ui.Table(m.Headers, m.Rows)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&catalog, "catalog", "", "JSON file of specification records to compare instead of the database")

	return cmd
}

func newValidateCmd() *cobra.Command {
	var flags requirementFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a requirement for sizing problems",
		Long: `Validate runs the sizing advisor over the requirement. Errors are physical
impossibilities and make the command fail; warnings and info lines are
advisory.`,
		Example: `  bessctl validate --power 10 --energy 20 --cycles 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.requirement(cmd.Flags())
			findings := sizing.Validate(req)
			blocking := sizing.HasBlocking(findings)

			if outputJSON {
				if err := ui.JSON(map[string]interface{}{
					"findings": nonNilFindings(findings),
					"blocking": blocking,
				}); err != nil {
					return err
				}
			} else if len(findings) == 0 {
				ui.Success("No sizing issues found")
			} else {
				ui.Findings(findings)
			}

			if blocking {
				return fmt.Errorf("requirement is not physically feasible")
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

// runRecommendation validates req and ranks either the catalog file or the
// configured database.
func runRecommendation(ctx context.Context, req domain.RequirementRecord, catalogFile string) (*recommend.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var source recommend.Catalog
	if catalogFile != "" {
		mem, err := loadCatalogFile(catalogFile)
		if err != nil {
			return nil, err
		}
		source = mem
	} else {
		db, err := openDatabase(ctx)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		source = storage.NewSpecificationRepository(db)
	}

	engine := recommend.NewEngine(source, scoring.NewScorer(), logger, recommend.WithConfig(recommend.Config{
		TopN:               cfg.Recommendation.TopN,
		NarratedAlternates: cfg.Recommendation.NarratedAlternates,
		Workers:            cfg.Recommendation.Workers,
	}))
	return engine.Generate(ctx, req)
}

// loadCatalogFile reads a JSON array of specification records. Records
// without an explicit "processed" flag are treated as processed.
func loadCatalogFile(path string) (*storage.MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	records := make([]domain.SpecificationRecord, 0, len(raw))
	for i, item := range raw {
		var probe struct {
			Processed *bool `json:"processed"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("parse catalog entry %d: %w", i, err)
		}
		var rec domain.SpecificationRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("parse catalog entry %d: %w", i, err)
		}
		if probe.Processed == nil {
			rec.Processed = true
		}
		records = append(records, rec)
	}
	return storage.NewMemoryCatalog(records...), nil
}

func nonNilFindings(f []domain.SizingFinding) []domain.SizingFinding {
	if f == nil {
		return []domain.SizingFinding{}
	}
	return f
}
