package recommend

import (
	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// MatrixHeaders are the fixed comparison columns, in order.
var MatrixHeaders = []string{
	"Manufacturer",
	"Model",
	"Power (MW)",
	"Energy (MWh)",
	"Duration (h)",
	"Chemistry",
	"Efficiency (%)",
	"Compatibility Score",
}

const notAvailable = "N/A"

// Matrix is a tabular side-by-side comparison.
type Matrix struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// GenerateComparisonMatrix projects systems onto MatrixHeaders. It does not
// score; each row shows the compatibility score already attached, or 0.
func GenerateComparisonMatrix(systems []domain.ScoredSystem, _ domain.RequirementRecord) Matrix {
	m := Matrix{
		Headers: append([]string(nil), MatrixHeaders...),
		Rows:    make([][]string, 0, len(systems)),
	}
	for _, sys := range systems {
		m.Rows = append(m.Rows, []string{
			text(sys.Manufacturer),
			text(sys.Model),
			optional(sys.NominalPowerMW),
			optional(sys.NominalEnergyMWh),
			optional(sys.DischargeDurationH),
			text(sys.Chemistry),
			optional(sys.RoundTripEfficiencyPct),
			score(sys.CompatibilityScore),
		})
	}
	return m
}

func text(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func optional(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return num(*v)
}
