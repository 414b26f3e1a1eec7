package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

func catalogSystem(model string, power, energy float64, chemistry string, apps ...string) domain.SpecificationRecord {
	return domain.SpecificationRecord{
		Manufacturer:     "Voltara",
		Model:            model,
		NominalPowerMW:   domain.Float(power),
		NominalEnergyMWh: domain.Float(energy),
		Chemistry:        chemistry,
		ApplicationTypes: apps,
		Processed:        true,
	}
}

func TestMemoryCatalog_CRUD(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()

	rec := catalogSystem("A", 2, 8, "LFP")
	require.NoError(t, c.Create(ctx, &rec))
	require.NotEqual(t, uuid.Nil, rec.ID)

	got, err := c.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Model)

	rec.Model = "A2"
	require.NoError(t, c.Replace(ctx, &rec))
	got, _ = c.GetByID(ctx, rec.ID)
	assert.Equal(t, "A2", got.Model)

	missing := domain.SpecificationRecord{ID: uuid.New()}
	assert.ErrorIs(t, c.Replace(ctx, &missing), ErrNotFound)

	require.NoError(t, c.Delete(ctx, rec.ID))
	require.NoError(t, c.Delete(ctx, rec.ID))
	_, err = c.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCatalog_ListProcessedKeepsOrder(t *testing.T) {
	unprocessed := domain.SpecificationRecord{Model: "broken", ProcessingErrors: "unsupported"}
	c := NewMemoryCatalog(
		catalogSystem("first", 1, 4, "LFP"),
		unprocessed,
		catalogSystem("second", 1, 4, "LFP"),
	)

	recs, err := c.ListProcessed(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Model)
	assert.Equal(t, "second", recs[1].Model)

	all, err := c.List(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "broken", all[0].Model)
}

func TestMemoryCatalog_FindSimilar(t *testing.T) {
	c := NewMemoryCatalog(
		catalogSystem("too-small", 7, 40, "LFP", domain.ApplicationPeakShaving),
		catalogSystem("close", 11, 41, "LFP", domain.ApplicationPeakShaving),
		catalogSystem("exact", 10, 40, "LFP", domain.ApplicationPeakShaving),
		catalogSystem("edge", 12, 48, "LFP", domain.ApplicationBackupPower),
		catalogSystem("nmc", 10, 40, "NMC", domain.ApplicationPeakShaving),
	)
	ctx := context.Background()

	recs, err := c.FindSimilar(ctx, SimilarQuery{PowerMW: domain.Float(10), EnergyMWh: domain.Float(40), Chemistry: "lfp"})
	require.NoError(t, err)
	var models []string
	for _, r := range recs {
		models = append(models, r.Model)
	}
	assert.Equal(t, []string{"exact", "close", "edge"}, models)

	recs, err = c.FindSimilar(ctx, SimilarQuery{PowerMW: domain.Float(10), Application: "peak", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "exact", recs[0].Model)
	assert.Equal(t, "nmc", recs[1].Model)
}

func TestMemoryCatalog_ReturnsCopies(t *testing.T) {
	c := NewMemoryCatalog(catalogSystem("A", 1, 4, "LFP", domain.ApplicationEnergyArbitrage))
	ctx := context.Background()

	recs, _ := c.ListProcessed(ctx)
	recs[0].ApplicationTypes[0] = "mutated"

	again, _ := c.ListProcessed(ctx)
	assert.Equal(t, domain.ApplicationEnergyArbitrage, again[0].ApplicationTypes[0])
}
