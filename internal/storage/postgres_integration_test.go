//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// startPostgres runs a throwaway Postgres, opens it and applies migrations.
func startPostgres(t *testing.T) DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("bess_advisor_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, DriverPostgres, dsn, PoolConfig{MaxOpenConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applied, err := NewMigrator(db, DriverPostgres).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init"}, applied)

	return db
}

func TestPostgresRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	specs := NewSpecificationRepository(db)
	first := &domain.SpecificationRecord{
		Manufacturer:     "GridStack",
		Model:            "GS-10",
		NominalPowerMW:   domain.Float(10),
		NominalEnergyMWh: domain.Float(40),
		Chemistry:        "LFP",
		ApplicationTypes: []string{"peak shaving"},
		Processed:        true,
		FullTextContent:  "GridStack GS-10 10 MW / 40 MWh",
	}
	second := &domain.SpecificationRecord{
		Manufacturer:     "VoltPeak",
		Model:            "VP-12",
		NominalPowerMW:   domain.Float(11),
		NominalEnergyMWh: domain.Float(44),
		Chemistry:        "NMC",
		Processed:        true,
	}
	unprocessed := &domain.SpecificationRecord{SourceFilename: "broken.docx", ProcessingErrors: "read docx"}

	for _, rec := range []*domain.SpecificationRecord{first, second, unprocessed} {
		require.NoError(t, specs.Create(ctx, rec))
	}

	processed, err := specs.ListProcessed(ctx)
	require.NoError(t, err)
	require.Len(t, processed, 2)
	assert.Equal(t, first.ID, processed[0].ID)
	assert.Equal(t, second.ID, processed[1].ID)

	similar, err := specs.FindSimilar(ctx, SimilarQuery{PowerMW: domain.Float(10), Chemistry: "lfp"})
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "GS-10", similar[0].Model)
	assert.Equal(t, []string{"peak shaving"}, similar[0].ApplicationTypes)

	first.Model = "GS-10X"
	require.NoError(t, specs.Replace(ctx, first))
	got, err := specs.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "GS-10X", got.Model)

	require.NoError(t, specs.Delete(ctx, second.ID))
	_, err = specs.GetByID(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	subs := NewSubmissionRepository(db)
	sub := &domain.ProjectSubmission{
		CompanyName: "Acme Utilities",
		ContactName: "Sam Rivera",
		Email:       "sam@acme.example",
		ProjectName: "Substation 4 peak shaving",
		Requirement: domain.RequirementRecord{PowerMW: domain.Float(10), Application: "peak shaving"},
	}
	require.NoError(t, subs.Create(ctx, sub))
	require.NoError(t, subs.UpdateStatus(ctx, sub.ID, domain.SubmissionContacted))

	stored, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionContacted, stored.Status)
	assert.Equal(t, 10.0, *stored.Requirement.PowerMW)
}
