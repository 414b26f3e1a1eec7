// Package scoring computes weighted compatibility between a requirement and
// a catalog system.
package scoring

import (
	"math"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// Dimension names used in score breakdowns.
const (
	DimensionPower       = "power"
	DimensionEnergy      = "energy"
	DimensionDuration    = "duration"
	DimensionApplication = "application"
	DimensionChemistry   = "chemistry"
)

// Weights are the maximum points per dimension.
type Weights struct {
	Power       float64 `yaml:"power" json:"power"`
	Energy      float64 `yaml:"energy" json:"energy"`
	Duration    float64 `yaml:"duration" json:"duration"`
	Application float64 `yaml:"application" json:"application"`
	Chemistry   float64 `yaml:"chemistry" json:"chemistry"`
}

// Tolerances are relative deviations for the numeric dimensions.
type Tolerances struct {
	Power    float64 `yaml:"power" json:"power"`
	Energy   float64 `yaml:"energy" json:"energy"`
	Duration float64 `yaml:"duration" json:"duration"`
}

// DefaultWeights sum to 100.
func DefaultWeights() Weights {
	return Weights{Power: 30, Energy: 25, Duration: 20, Application: 15, Chemistry: 10}
}

// DefaultTolerances returns 20% for power and energy and 25% for duration.
func DefaultTolerances() Tolerances {
	return Tolerances{Power: 0.20, Energy: 0.20, Duration: 0.25}
}

// Scorer is safe for concurrent use.
type Scorer struct {
	weights    Weights
	tolerances Tolerances
}

// NewScorer creates a scorer with the default weights and tolerances.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights(), tolerances: DefaultTolerances()}
}

// NewScorerWith creates a scorer with custom weights and tolerances.
func NewScorerWith(w Weights, t Tolerances) *Scorer {
	return &Scorer{weights: w, tolerances: t}
}

// Tolerance returns the relative tolerance for a numeric dimension, or 0.
func (s *Scorer) Tolerance(dimension string) float64 {
	switch dimension {
	case DimensionPower:
		return s.tolerances.Power
	case DimensionEnergy:
		return s.tolerances.Energy
	case DimensionDuration:
		return s.tolerances.Duration
	}
	return 0
}

// Score rates cand against req on a 0-100 scale.
//
// Each dimension applies only when both sides carry the value. Numeric
// dimensions earn weight - (diff/tol)*(weight/2), clamped to [0, weight],
// where diff is the deviation relative to the requirement. The total is
// renormalized over applicable weights; no applicable dimension scores 0.
func (s *Scorer) Score(req domain.RequirementRecord, cand domain.SpecificationRecord) domain.CompatibilityResult {
	result := domain.CompatibilityResult{SpecificationID: cand.ID}

	result.Dimensions = append(result.Dimensions,
		s.numeric(DimensionPower, s.weights.Power, s.tolerances.Power, req.PowerMW, cand.NominalPowerMW),
		s.numeric(DimensionEnergy, s.weights.Energy, s.tolerances.Energy, req.EnergyMWh, cand.NominalEnergyMWh),
		s.numeric(DimensionDuration, s.weights.Duration, s.tolerances.Duration, requiredDuration(req), cand.DischargeDurationH),
		s.labelled(DimensionApplication, s.weights.Application, req.Application, cand.ApplicationTypes),
		s.labelled(DimensionChemistry, s.weights.Chemistry, req.ChemistryPreference, nonEmpty(cand.Chemistry)),
	)

	var earned, possible float64
	for _, d := range result.Dimensions {
		if !d.Applicable {
			continue
		}
		earned += d.Earned
		possible += d.Weight
	}
	if possible > 0 {
		result.Score = clamp(earned/possible*100, 0, 100)
	}
	return result
}

// WithinTolerance reports whether cand is inside the dimension's tolerance
// band around req. Missing values are never within tolerance.
func (s *Scorer) WithinTolerance(dimension string, req, cand *float64) bool {
	diff, ok := relativeDiff(req, cand)
	return ok && diff <= s.Tolerance(dimension)
}

func (s *Scorer) numeric(name string, weight, tol float64, req, cand *float64) domain.DimensionScore {
	d := domain.DimensionScore{Dimension: name, Weight: weight}
	diff, ok := relativeDiff(req, cand)
	if !ok || tol <= 0 {
		return d
	}

	d.Applicable = true
	d.Earned = clamp(weight-(diff/tol)*(weight/2), 0, weight)
	delta := (*cand - *req) / *req * 100
	d.DeltaPct = &delta
	return d
}

func (s *Scorer) labelled(name string, weight float64, want string, labels []string) domain.DimensionScore {
	d := domain.DimensionScore{Dimension: name, Weight: weight}
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" || len(labels) == 0 {
		return d
	}

	d.Applicable = true
	for _, label := range labels {
		if strings.Contains(strings.ToLower(label), want) {
			d.Earned = weight
			break
		}
	}
	return d
}

func requiredDuration(req domain.RequirementRecord) *float64 {
	if h, ok := req.EffectiveDurationH(); ok {
		return &h
	}
	return nil
}

func relativeDiff(req, cand *float64) (float64, bool) {
	if req == nil || cand == nil || *req <= 0 {
		return 0, false
	}
	return math.Abs(*cand-*req) / *req, true
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
