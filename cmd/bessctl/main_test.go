package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/internal/cache"
	"github.com/spherical-ai/bess-advisor/internal/config"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

func setupGlobals(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	cfg = config.DefaultConfig()
	logger = observability.NopLogger()
	ui = &UI{out: &out, errOut: &out, noColor: true}
	return &out
}

func TestRequirementFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want domain.RequirementRecord
	}{
		{
			name: "only set flags are populated",
			args: []string{"--power", "10", "--energy", "40", "--application", "peak shaving"},
			want: domain.RequirementRecord{
				PowerMW:     domain.Float(10),
				EnergyMWh:   domain.Float(40),
				Application: "peak shaving",
			},
		},
		{
			name: "explicit zero is kept",
			args: []string{"--power", "0"},
			want: domain.RequirementRecord{PowerMW: domain.Float(0)},
		},
		{
			name: "all optional fields",
			args: []string{
				"--duration", "2", "--chemistry", "LFP", "--cycles", "1.5",
				"--min-efficiency", "88", "--min-cycle-life", "6000", "--response-time", "0.2",
				"--configuration", "containerized", "--grid-code", "IEEE 1547", "--location", "Texas",
			},
			want: domain.RequirementRecord{
				DurationH:                 domain.Float(2),
				ChemistryPreference:       "LFP",
				DailyCycles:               domain.Float(1.5),
				MinRoundTripEfficiencyPct: domain.Float(88),
				MinCycleLife:              domain.Int(6000),
				ResponseTimeS:             domain.Float(0.2),
				Configuration:             "containerized",
				GridCodeCompliance:        "IEEE 1547",
				Location:                  "Texas",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f requirementFlags
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			f.register(fs)
			require.NoError(t, fs.Parse(tt.args))

			assert.Equal(t, tt.want, f.requirement(fs))
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("processed defaults to true", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"manufacturer": "GridStack", "model": "GS-10", "nominal_power_mw": 10, "nominal_energy_mwh": 40},
			{"manufacturer": "Draft", "model": "D-1", "processed": false}
		]`), 0o644))

		catalog, err := loadCatalogFile(path)
		require.NoError(t, err)

		all, err := catalog.List(context.Background(), 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)

		processed, err := catalog.ListProcessed(context.Background())
		require.NoError(t, err)
		require.Len(t, processed, 1)
		assert.Equal(t, "GS-10", processed[0].Model)
		assert.NotEqual(t, "", processed[0].ID.String())
	})

	t.Run("not an array", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"model": "x"}`), 0o644))

		_, err := loadCatalogFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse catalog")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadCatalogFile(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})
}

func TestCollectDatasheets(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	write("b.pdf")
	write("a.txt")
	write("notes.xlsx")
	write("sub/c.docx")
	write(".hidden/d.md")

	flat, err := collectDatasheets(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.pdf")}, flat)

	deep, err := collectDatasheets(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "sub", "c.docx"),
	}, deep)

	_, err = collectDatasheets(filepath.Join(dir, "a.txt"), false)
	require.Error(t, err)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "gridstack.txt")
	require.NoError(t, os.WriteFile(good, []byte("Manufacturer: GridStack\nModel: GS-10\nRated Power: 10 MW\nEnergy Capacity: 40 MWh\n"), 0o644))
	broken := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o644))

	x := extract.NewExtractor(observability.NopLogger())
	catalog := storage.NewMemoryCatalog()
	ctx := context.Background()

	var summary ingestSummary
	summary.add(ingestFile(ctx, good, false, x, catalog))
	summary.add(ingestFile(ctx, broken, false, x, catalog))
	summary.add(ingestFile(ctx, filepath.Join(dir, "missing.txt"), false, x, catalog))

	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	assert.True(t, summary.Files[0].Processed)
	assert.Empty(t, summary.Files[0].Error)
	assert.False(t, summary.Files[1].Processed)
	assert.NotEmpty(t, summary.Files[1].Error)
	assert.Empty(t, summary.Files[2].ID)

	rows, err := catalog.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gridstack.txt", rows[0].SourceFilename)
}

func TestUITable(t *testing.T) {
	var out bytes.Buffer
	u := &UI{out: &out, errOut: &out, noColor: true}

	u.Table([]string{"Model", "Power (MW)"}, [][]string{{"GS-10", "10"}, {"Mega", "N/A"}})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "+-------+------------+", lines[0])
	assert.Equal(t, "| Model | Power (MW) |", lines[1])
	assert.Equal(t, "| GS-10 | 10         |", lines[3])
	assert.Equal(t, "| Mega  | N/A        |", lines[4])
}

func TestUIJSONModeIsQuiet(t *testing.T) {
	var out bytes.Buffer
	u := &UI{out: &out, errOut: &out, noColor: true, jsonMode: true}

	u.Success("saved")
	u.Warning("careful")
	u.Table([]string{"a"}, [][]string{{"b"}})
	u.Findings([]domain.SizingFinding{{Type: domain.FindingError, Message: "impossible"}})
	assert.Empty(t, out.String())

	require.NoError(t, u.JSON(map[string]int{"count": 2}))
	assert.JSONEq(t, `{"count": 2}`, out.String())
}

func TestRunRecommendationFromCatalogFile(t *testing.T) {
	setupGlobals(t)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"manufacturer": "Tiny", "model": "T-1", "nominal_power_mw": 0.5, "nominal_energy_mwh": 0.5, "chemistry": "NMC"},
		{"manufacturer": "GridStack", "model": "GS-10", "nominal_power_mw": 10, "nominal_energy_mwh": 40, "discharge_duration_h": 4, "chemistry": "LFP"}
	]`), 0o644))

	req := domain.RequirementRecord{
		PowerMW:             domain.Float(10),
		EnergyMWh:           domain.Float(40),
		ChemistryPreference: "LFP",
	}
	result, err := runRecommendation(context.Background(), req, path)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalSystemsEvaluated)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "GS-10", result.Recommendations[0].Model)
	assert.NotEmpty(t, result.Analysis)

	_, err = runRecommendation(context.Background(), domain.RequirementRecord{}, path)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestInvalidateRecommendations(t *testing.T) {
	setupGlobals(t)
	ctx := context.Background()

	mem := cache.NewMemoryClient(10)
	require.NoError(t, mem.Set(ctx, "recommendations:abc", []byte("{}"), time.Minute))
	require.NoError(t, mem.Set(ctx, "threads:abc", []byte("{}"), time.Minute))

	invalidateRecommendations(ctx, mem)

	_, err := mem.Get(ctx, "recommendations:abc")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = mem.Get(ctx, "threads:abc")
	assert.NoError(t, err)
}

func TestOpenSharedCache(t *testing.T) {
	t.Run("memory cache is not shared", func(t *testing.T) {
		setupGlobals(t)
		cfg.Cache.Driver = "memory"

		c, err := openSharedCache()
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("unreachable redis only warns", func(t *testing.T) {
		out := setupGlobals(t)
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = "redis://127.0.0.1:1/0"

		c, err := openSharedCache()
		require.Error(t, err)
		assert.Nil(t, c)

		invalidateSharedCache(context.Background())
		assert.Contains(t, out.String(), "cached recommendations may be stale")
	})
}
