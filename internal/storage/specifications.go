package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// SimilarWindow is the relative band around a target used by FindSimilar.
const SimilarWindow = 0.20

// SimilarQuery selects processed systems near a power/energy target.
type SimilarQuery struct {
	PowerMW     *float64
	EnergyMWh   *float64
	Chemistry   string
	Application string
	Limit       int
}

// SpecificationStore is the catalog contract shared by the SQL repository
// and MemoryCatalog.
type SpecificationStore interface {
	Create(ctx context.Context, rec *domain.SpecificationRecord) error
	Replace(ctx context.Context, rec *domain.SpecificationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SpecificationRecord, error)
	List(ctx context.Context, limit, offset int) ([]domain.SpecificationRecord, error)
	ListProcessed(ctx context.Context) ([]domain.SpecificationRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindSimilar(ctx context.Context, q SimilarQuery) ([]domain.SpecificationRecord, error)
}

const specColumns = `id, manufacturer, model, nominal_power_mw, nominal_energy_mwh,
		discharge_duration_h, round_trip_efficiency_pct, response_time_s, c_rate,
		chemistry, cycle_life_cycles, calendar_life_years, operating_temp_min_c,
		operating_temp_max_c, degradation_capacity_fade_pct_per_year, configuration,
		enclosure_type, environmental_protection, fire_suppression_system,
		grid_code_compliance, certifications, delivery_scope, warranty_years,
		application_types, processed, processing_errors, processing_warnings,
		full_text_content, source_filename, created_at, updated_at`

// SpecificationRepository handles catalog rows.
type SpecificationRepository struct {
	db DB
}

var _ SpecificationStore = (*SpecificationRepository)(nil)

// NewSpecificationRepository creates a new specification repository.
func NewSpecificationRepository(db DB) *SpecificationRepository {
	return &SpecificationRepository{db: db}
}

// Create inserts rec, assigning an ID when it has none.
func (r *SpecificationRepository) Create(ctx context.Context, rec *domain.SpecificationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = now()
	rec.UpdatedAt = rec.CreatedAt

	apps, warnings, err := encodeLists(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO specifications (` + specColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Manufacturer, rec.Model, rec.NominalPowerMW, rec.NominalEnergyMWh,
		rec.DischargeDurationH, rec.RoundTripEfficiencyPct, rec.ResponseTimeS, rec.CRate,
		rec.Chemistry, rec.CycleLifeCycles, rec.CalendarLifeYears, rec.OperatingTempMinC,
		rec.OperatingTempMaxC, rec.DegradationPctPerYear, rec.Configuration,
		rec.EnclosureType, rec.EnvironmentalProtection, rec.FireSuppressionSystem,
		rec.GridCodeCompliance, rec.Certifications, rec.DeliveryScope, rec.WarrantyYears,
		apps, rec.Processed, rec.ProcessingErrors, warnings,
		rec.FullTextContent, rec.SourceFilename, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert specification: %w", err)
	}
	return nil
}

// Replace overwrites every specification field of an existing row. The
// creation time, and so the catalog position, is preserved.
func (r *SpecificationRepository) Replace(ctx context.Context, rec *domain.SpecificationRecord) error {
	rec.UpdatedAt = now()

	apps, warnings, err := encodeLists(rec)
	if err != nil {
		return err
	}

	// Placeholders follow textual order so SQLite binds them like Postgres.
	query := `
		UPDATE specifications SET
			manufacturer = $1, model = $2, nominal_power_mw = $3, nominal_energy_mwh = $4,
			discharge_duration_h = $5, round_trip_efficiency_pct = $6, response_time_s = $7,
			c_rate = $8, chemistry = $9, cycle_life_cycles = $10, calendar_life_years = $11,
			operating_temp_min_c = $12, operating_temp_max_c = $13,
			degradation_capacity_fade_pct_per_year = $14, configuration = $15,
			enclosure_type = $16, environmental_protection = $17, fire_suppression_system = $18,
			grid_code_compliance = $19, certifications = $20, delivery_scope = $21,
			warranty_years = $22, application_types = $23, processed = $24,
			processing_errors = $25, processing_warnings = $26, full_text_content = $27,
			source_filename = $28, updated_at = $29
		WHERE id = $30
	`
	result, err := r.db.ExecContext(ctx, query,
		rec.Manufacturer, rec.Model, rec.NominalPowerMW, rec.NominalEnergyMWh,
		rec.DischargeDurationH, rec.RoundTripEfficiencyPct, rec.ResponseTimeS, rec.CRate,
		rec.Chemistry, rec.CycleLifeCycles, rec.CalendarLifeYears, rec.OperatingTempMinC,
		rec.OperatingTempMaxC, rec.DegradationPctPerYear, rec.Configuration,
		rec.EnclosureType, rec.EnvironmentalProtection, rec.FireSuppressionSystem,
		rec.GridCodeCompliance, rec.Certifications, rec.DeliveryScope, rec.WarrantyYears,
		apps, rec.Processed, rec.ProcessingErrors, warnings,
		rec.FullTextContent, rec.SourceFilename, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update specification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a specification by ID.
func (r *SpecificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SpecificationRecord, error) {
	query := `SELECT ` + specColumns + ` FROM specifications WHERE id = $1`
	rec, err := scanSpecification(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns rows in catalog order, processed or not.
func (r *SpecificationRepository) List(ctx context.Context, limit, offset int) ([]domain.SpecificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + specColumns + ` FROM specifications ORDER BY created_at, id LIMIT $1 OFFSET $2`
	return r.query(ctx, query, limit, offset)
}

// ListProcessed returns every processed row in catalog order.
func (r *SpecificationRepository) ListProcessed(ctx context.Context) ([]domain.SpecificationRecord, error) {
	query := `SELECT ` + specColumns + ` FROM specifications WHERE processed = $1 ORDER BY created_at, id`
	return r.query(ctx, query, true)
}

// Delete removes a row. Deleting a missing row is not an error.
func (r *SpecificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM specifications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete specification: %w", err)
	}
	return nil
}

// FindSimilar returns processed rows whose power and energy fall within
// SimilarWindow of the given targets, optionally filtered by chemistry and
// application substrings, closest first.
func (r *SpecificationRepository) FindSimilar(ctx context.Context, q SimilarQuery) ([]domain.SpecificationRecord, error) {
	var (
		where    = []string{"processed = $1"}
		args     = []interface{}{true}
		distance []string
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	type target struct {
		column string
		value  float64
	}
	var targets []target
	window := func(column string, v *float64) {
		if v == nil || *v <= 0 {
			return
		}
		lo, hi := arg(*v*(1-SimilarWindow)), arg(*v*(1+SimilarWindow))
		where = append(where, fmt.Sprintf("%s BETWEEN %s AND %s", column, lo, hi))
		targets = append(targets, target{column, *v})
	}
	window("nominal_power_mw", q.PowerMW)
	window("nominal_energy_mwh", q.EnergyMWh)

	if c := strings.TrimSpace(q.Chemistry); c != "" {
		where = append(where, "LOWER(chemistry) LIKE "+arg("%"+strings.ToLower(c)+"%"))
	}
	if a := strings.TrimSpace(q.Application); a != "" {
		where = append(where, "LOWER(application_types) LIKE "+arg("%"+strings.ToLower(a)+"%"))
	}

	// Distance args are numbered after the WHERE args: SQLite numbers $N by
	// first appearance while the driver binds by position.
	for _, tg := range targets {
		t := arg(tg.value)
		distance = append(distance, fmt.Sprintf("ABS(%s - %s) / %s", tg.column, t, t))
	}

	order := "created_at, id"
	if len(distance) > 0 {
		order = strings.Join(distance, " + ") + ", " + order
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + specColumns + ` FROM specifications WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + order + ` LIMIT ` + arg(limit)
	return r.query(ctx, query, args...)
}

func (r *SpecificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.SpecificationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query specifications: %w", err)
	}
	defer rows.Close()

	var out []domain.SpecificationRecord
	for rows.Next() {
		rec, err := scanSpecification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanSpecification(s scanner) (*domain.SpecificationRecord, error) {
	var (
		rec                                           domain.SpecificationRecord
		power, energy, duration, rte, response, cRate sql.NullFloat64
		calendar, tempMin, tempMax, fade, warranty    sql.NullFloat64
		cycles                                        sql.NullInt64
		apps, warnings                                string
	)
	err := s.Scan(
		&rec.ID, &rec.Manufacturer, &rec.Model, &power, &energy,
		&duration, &rte, &response, &cRate,
		&rec.Chemistry, &cycles, &calendar, &tempMin,
		&tempMax, &fade, &rec.Configuration,
		&rec.EnclosureType, &rec.EnvironmentalProtection, &rec.FireSuppressionSystem,
		&rec.GridCodeCompliance, &rec.Certifications, &rec.DeliveryScope, &warranty,
		&apps, &rec.Processed, &rec.ProcessingErrors, &warnings,
		&rec.FullTextContent, &rec.SourceFilename, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.NominalPowerMW = nullFloat(power)
	rec.NominalEnergyMWh = nullFloat(energy)
	rec.DischargeDurationH = nullFloat(duration)
	rec.RoundTripEfficiencyPct = nullFloat(rte)
	rec.ResponseTimeS = nullFloat(response)
	rec.CRate = nullFloat(cRate)
	rec.CycleLifeCycles = nullInt(cycles)
	rec.CalendarLifeYears = nullFloat(calendar)
	rec.OperatingTempMinC = nullFloat(tempMin)
	rec.OperatingTempMaxC = nullFloat(tempMax)
	rec.DegradationPctPerYear = nullFloat(fade)
	rec.WarrantyYears = nullFloat(warranty)

	if err := decodeList(apps, &rec.ApplicationTypes); err != nil {
		return nil, fmt.Errorf("decode application_types: %w", err)
	}
	if err := decodeList(warnings, &rec.ProcessingWarnings); err != nil {
		return nil, fmt.Errorf("decode processing_warnings: %w", err)
	}
	return &rec, nil
}

func encodeLists(rec *domain.SpecificationRecord) (apps, warnings string, err error) {
	if apps, err = encodeList(rec.ApplicationTypes); err != nil {
		return "", "", err
	}
	if warnings, err = encodeList(rec.ProcessingWarnings); err != nil {
		return "", "", err
	}
	return apps, warnings, nil
}

func encodeList(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
