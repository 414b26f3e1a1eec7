package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

var specColumnNames = []string{
	"id", "manufacturer", "model", "nominal_power_mw", "nominal_energy_mwh",
	"discharge_duration_h", "round_trip_efficiency_pct", "response_time_s", "c_rate",
	"chemistry", "cycle_life_cycles", "calendar_life_years", "operating_temp_min_c",
	"operating_temp_max_c", "degradation_capacity_fade_pct_per_year", "configuration",
	"enclosure_type", "environmental_protection", "fire_suppression_system",
	"grid_code_compliance", "certifications", "delivery_scope", "warranty_years",
	"application_types", "processed", "processing_errors", "processing_warnings",
	"full_text_content", "source_filename", "created_at", "updated_at",
}

func specRow(id uuid.UUID, manufacturer string, power, energy float64, apps string) []driver.Value {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{
		id.String(), manufacturer, "GridStack", power, energy,
		energy / power, 88.5, nil, power / energy,
		"LFP", int64(6000), nil, nil,
		nil, nil, "AC-coupled",
		"", "", "",
		"", "", "", 10.0,
		apps, true, "", "[]",
		"", "sheet.txt", ts, ts,
	}
}

func newMock(t *testing.T) (sqlmock.Sqlmock, *SpecificationRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewSpecificationRepository(db)
}

func TestSpecificationRepository_Create(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec("INSERT INTO specifications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &domain.SpecificationRecord{
		Manufacturer:     "Voltara",
		NominalPowerMW:   domain.Float(2),
		ApplicationTypes: []string{domain.ApplicationPeakShaving},
		Processed:        true,
	}
	require.NoError(t, repo.Create(context.Background(), rec))

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpecificationRepository_CreateKeepsOrder(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec("INSERT INTO specifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO specifications").WillReturnResult(sqlmock.NewResult(1, 1))

	a := &domain.SpecificationRecord{}
	b := &domain.SpecificationRecord{}
	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, repo.Create(context.Background(), b))

	assert.True(t, b.CreatedAt.After(a.CreatedAt))
}

func TestSpecificationRepository_GetByID(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM specifications WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(specColumnNames).
			AddRow(specRow(id, "Voltara", 2, 8, `["Peak Shaving","Backup Power"]`)...))

	rec, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Voltara", rec.Manufacturer)
	assert.Equal(t, 4.0, *rec.DischargeDurationH)
	assert.Nil(t, rec.ResponseTimeS)
	assert.Equal(t, 6000, *rec.CycleLifeCycles)
	assert.Equal(t, []string{"Peak Shaving", "Backup Power"}, rec.ApplicationTypes)
	assert.Nil(t, rec.ProcessingWarnings)
	assert.True(t, rec.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpecificationRepository_GetByID_NotFound(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery("FROM specifications").
		WillReturnRows(sqlmock.NewRows(specColumnNames))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSpecificationRepository_Replace(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		mock, repo := newMock(t)
		rec := &domain.SpecificationRecord{ID: uuid.New(), Manufacturer: "Voltara", Model: "v2"}

		args := make([]driver.Value, 30)
		for i := range args {
			args[i] = sqlmock.AnyArg()
		}
		args[0], args[1], args[29] = "Voltara", "v2", rec.ID
		mock.ExpectExec(regexp.QuoteMeta("manufacturer = $1, model = $2,")).
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Replace(context.Background(), rec))
		assert.False(t, rec.UpdatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE specifications SET")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Replace(context.Background(), &domain.SpecificationRecord{ID: uuid.New()})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSpecificationRepository_DeleteMissingIsNoop(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM specifications WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpecificationRepository_ListProcessed(t *testing.T) {
	mock, repo := newMock(t)
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE processed = $1 ORDER BY created_at, id")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(specColumnNames).
			AddRow(specRow(first, "A", 2, 8, "[]")...).
			AddRow(specRow(second, "B", 5, 10, `["Peak Shaving"]`)...))

	recs, err := repo.ListProcessed(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first, recs[0].ID)
	assert.Equal(t, second, recs[1].ID)
	assert.Nil(t, recs[0].ApplicationTypes)
}

func TestSpecificationRepository_ListProcessed_Error(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("FROM specifications").WillReturnError(errors.New("connection reset"))

	_, err := repo.ListProcessed(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestSpecificationRepository_FindSimilar(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE processed = $1 AND nominal_power_mw BETWEEN $2 AND $3 "+
			"AND nominal_energy_mwh BETWEEN $4 AND $5 AND LOWER(chemistry) LIKE $6 "+
			"ORDER BY ABS(nominal_power_mw - $7) / $7 + ABS(nominal_energy_mwh - $8) / $8, created_at, id LIMIT $9")).
		WithArgs(true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "%lfp%", 10.0, 40.0, 5).
		WillReturnRows(sqlmock.NewRows(specColumnNames).AddRow(specRow(id, "Voltara", 10, 38, "[]")...))

	recs, err := repo.FindSimilar(context.Background(), SimilarQuery{
		PowerMW:   domain.Float(10),
		EnergyMWh: domain.Float(40),
		Chemistry: "LFP",
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpecificationRepository_FindSimilar_NoTargets(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE processed = $1 AND LOWER(application_types) LIKE $2 ORDER BY created_at, id LIMIT $3")).
		WithArgs(true, "%peak%", 10).
		WillReturnRows(sqlmock.NewRows(specColumnNames))

	recs, err := repo.FindSimilar(context.Background(), SimilarQuery{Application: "Peak"})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
