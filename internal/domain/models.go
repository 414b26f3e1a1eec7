// Package domain defines the records shared by the extractor, scorer,
// recommendation engine, sizing advisor and storage layers.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Application labels assigned from discharge duration.
const (
	ApplicationFrequencyRegulation = "Frequency Regulation"
	ApplicationEnergyArbitrage     = "Energy Arbitrage"
	ApplicationPeakShaving         = "Peak Shaving"
	ApplicationBackupPower         = "Backup Power"
)

// SpecificationRecord is one BESS product's nameplate characteristics.
// Optional numeric fields are pointers so that "absent" and zero differ.
type SpecificationRecord struct {
	ID           uuid.UUID `json:"id"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Model        string    `json:"model,omitempty"`

	NominalPowerMW         *float64 `json:"nominal_power_mw,omitempty"`
	NominalEnergyMWh       *float64 `json:"nominal_energy_mwh,omitempty"`
	DischargeDurationH     *float64 `json:"discharge_duration_h,omitempty"`
	RoundTripEfficiencyPct *float64 `json:"round_trip_efficiency_pct,omitempty"`
	ResponseTimeS          *float64 `json:"response_time_s,omitempty"`
	CRate                  *float64 `json:"c_rate,omitempty"`

	Chemistry             string   `json:"chemistry,omitempty"`
	CycleLifeCycles       *int     `json:"cycle_life_cycles,omitempty"`
	CalendarLifeYears     *float64 `json:"calendar_life_years,omitempty"`
	OperatingTempMinC     *float64 `json:"operating_temp_min_c,omitempty"`
	OperatingTempMaxC     *float64 `json:"operating_temp_max_c,omitempty"`
	DegradationPctPerYear *float64 `json:"degradation_capacity_fade_pct_per_year,omitempty"`

	Configuration           string   `json:"configuration,omitempty"`
	EnclosureType           string   `json:"enclosure_type,omitempty"`
	EnvironmentalProtection string   `json:"environmental_protection,omitempty"`
	FireSuppressionSystem   string   `json:"fire_suppression_system,omitempty"`
	GridCodeCompliance      string   `json:"grid_code_compliance,omitempty"`
	Certifications          string   `json:"certifications,omitempty"`
	DeliveryScope           string   `json:"delivery_scope,omitempty"`
	WarrantyYears           *float64 `json:"warranty_years,omitempty"`

	ApplicationTypes []string `json:"application_types,omitempty"`

	Processed          bool     `json:"processed"`
	ProcessingErrors   string   `json:"processing_errors,omitempty"`
	ProcessingWarnings []string `json:"processing_warnings,omitempty"`
	FullTextContent    string   `json:"full_text_content,omitempty"`
	SourceFilename     string   `json:"source_filename,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns "Manufacturer Model", falling back to whichever is set.
func (s *SpecificationRecord) DisplayName() string {
	name := strings.TrimSpace(s.Manufacturer + " " + s.Model)
	if name == "" {
		return "Unnamed system"
	}
	return name
}

// RequirementRecord is a buyer's desired system. Every field is optional but
// Validate requires at least one intent signal.
type RequirementRecord struct {
	PowerMW                   *float64 `json:"power_mw,omitempty"`
	EnergyMWh                 *float64 `json:"energy_mwh,omitempty"`
	DurationH                 *float64 `json:"duration_h,omitempty"`
	Application               string   `json:"application,omitempty"`
	ChemistryPreference       string   `json:"chemistry_preference,omitempty"`
	DailyCycles               *float64 `json:"daily_cycles,omitempty"`
	MinRoundTripEfficiencyPct *float64 `json:"min_round_trip_efficiency_pct,omitempty"`
	MinCycleLife              *int     `json:"min_cycle_life,omitempty"`
	ResponseTimeS             *float64 `json:"response_time_s,omitempty"`
	Configuration             string   `json:"configuration,omitempty"`
	GridCodeCompliance        string   `json:"grid_code_compliance,omitempty"`
	Location                  string   `json:"location,omitempty"`
}

// HasIntent reports whether power, energy or application is present.
func (r *RequirementRecord) HasIntent() bool {
	return r.PowerMW != nil || r.EnergyMWh != nil || strings.TrimSpace(r.Application) != ""
}

// Validate checks the intent-signal rule and basic numeric sanity.
func (r *RequirementRecord) Validate() error {
	if !r.HasIntent() {
		return ValidationError("requirement needs at least one of power, energy or application", nil)
	}
	if r.PowerMW != nil && *r.PowerMW <= 0 {
		return ValidationError("power_mw must be positive", nil)
	}
	if r.EnergyMWh != nil && *r.EnergyMWh <= 0 {
		return ValidationError("energy_mwh must be positive", nil)
	}
	if r.DurationH != nil && *r.DurationH <= 0 {
		return ValidationError("duration_h must be positive", nil)
	}
	if r.DailyCycles != nil && *r.DailyCycles < 0 {
		return ValidationError("daily_cycles must not be negative", nil)
	}
	return nil
}

// EffectiveDurationH returns the stated duration, or energy/power when the
// duration was not given.
func (r *RequirementRecord) EffectiveDurationH() (float64, bool) {
	if r.DurationH != nil {
		return *r.DurationH, true
	}
	if r.PowerMW != nil && r.EnergyMWh != nil && *r.PowerMW > 0 {
		return *r.EnergyMWh / *r.PowerMW, true
	}
	return 0, false
}

// Merge overlays the set fields of other onto r.
func (r *RequirementRecord) Merge(other RequirementRecord) {
	if other.PowerMW != nil {
		r.PowerMW = other.PowerMW
	}
	if other.EnergyMWh != nil {
		r.EnergyMWh = other.EnergyMWh
	}
	if other.DurationH != nil {
		r.DurationH = other.DurationH
	}
	if other.Application != "" {
		r.Application = other.Application
	}
	if other.ChemistryPreference != "" {
		r.ChemistryPreference = other.ChemistryPreference
	}
	if other.DailyCycles != nil {
		r.DailyCycles = other.DailyCycles
	}
	if other.MinRoundTripEfficiencyPct != nil {
		r.MinRoundTripEfficiencyPct = other.MinRoundTripEfficiencyPct
	}
	if other.MinCycleLife != nil {
		r.MinCycleLife = other.MinCycleLife
	}
	if other.ResponseTimeS != nil {
		r.ResponseTimeS = other.ResponseTimeS
	}
	if other.Configuration != "" {
		r.Configuration = other.Configuration
	}
	if other.GridCodeCompliance != "" {
		r.GridCodeCompliance = other.GridCodeCompliance
	}
	if other.Location != "" {
		r.Location = other.Location
	}
}

// DimensionScore is one dimension's contribution to a compatibility score.
type DimensionScore struct {
	Dimension  string   `json:"dimension"`
	Weight     float64  `json:"weight"`
	Earned     float64  `json:"earned"`
	Applicable bool     `json:"applicable"`
	DeltaPct   *float64 `json:"delta_pct,omitempty"`
}

// CompatibilityResult is the ephemeral outcome of scoring one candidate.
type CompatibilityResult struct {
	SpecificationID uuid.UUID        `json:"specification_id"`
	Score           float64          `json:"score"`
	Dimensions      []DimensionScore `json:"dimensions"`
}

// Dimension returns the named contribution, if present.
func (c CompatibilityResult) Dimension(name string) (DimensionScore, bool) {
	for _, d := range c.Dimensions {
		if d.Dimension == name {
			return d, true
		}
	}
	return DimensionScore{}, false
}

// ScoredSystem is a catalog row with its compatibility score attached.
type ScoredSystem struct {
	SpecificationRecord
	CompatibilityScore *float64         `json:"compatibility_score,omitempty"`
	ScoreBreakdown     []DimensionScore `json:"score_breakdown,omitempty"`
}

// FindingType is the severity of a sizing finding.
type FindingType string

const (
	FindingWarning FindingType = "warning"
	FindingError   FindingType = "error"
	FindingInfo    FindingType = "info"
)

// SizingFinding is one message produced by the sizing advisor.
type SizingFinding struct {
	Type    FindingType `json:"type"`
	Message string      `json:"message"`
}

// ChatMessage is one turn in a conversation transcript.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmissionStatus tracks the follow-up state of a project submission.
type SubmissionStatus string

const (
	SubmissionNew       SubmissionStatus = "new"
	SubmissionContacted SubmissionStatus = "contacted"
	SubmissionQuoted    SubmissionStatus = "quoted"
	SubmissionClosed    SubmissionStatus = "closed"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionNew, SubmissionContacted, SubmissionQuoted, SubmissionClosed:
		return true
	}
	return false
}

// RecommendedSystem is the slice of a recommendation kept with a submission.
type RecommendedSystem struct {
	SpecificationID uuid.UUID `json:"specification_id"`
	Manufacturer    string    `json:"manufacturer"`
	Model           string    `json:"model"`
	Score           float64   `json:"score"`
}

// ProjectSubmission is a persisted requirement plus contact details.
// Only Status changes after creation.
type ProjectSubmission struct {
	ID              uuid.UUID           `json:"id"`
	CompanyName     string              `json:"company_name"`
	ContactName     string              `json:"contact_name,omitempty"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone,omitempty"`
	ProjectName     string              `json:"project_name"`
	Requirement     RequirementRecord   `json:"requirement"`
	Transcript      []ChatMessage       `json:"transcript,omitempty"`
	Recommendations []RecommendedSystem `json:"recommendations,omitempty"`
	Status          SubmissionStatus    `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Validate checks contact metadata and the embedded requirement.
func (p *ProjectSubmission) Validate() error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return ValidationError("company_name is required", nil)
	}
	if strings.TrimSpace(p.ProjectName) == "" {
		return ValidationError("project_name is required", nil)
	}
	if !strings.Contains(p.Email, "@") {
		return ValidationError("a valid email is required", nil)
	}
	return p.Requirement.Validate()
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
