package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// DurationTolerance is the largest stated-vs-computed duration gap, in hours,
// that is not reported as an inconsistency.
const DurationTolerance = 0.1

// Derive fills discharge_duration_h and c_rate. When power and energy are
// both present the computed energy/power duration replaces any stated
// duration; a stated value that differs by more than DurationTolerance is
// kept in the returned warning. Running Derive twice yields the same record.
func Derive(rec *domain.SpecificationRecord) []string {
	var warnings []string

	if rec.NominalPowerMW != nil && rec.NominalEnergyMWh != nil && *rec.NominalPowerMW > 0 {
		computed := *rec.NominalEnergyMWh / *rec.NominalPowerMW
		if rec.DischargeDurationH != nil && math.Abs(*rec.DischargeDurationH-computed) > DurationTolerance {
			warnings = append(warnings, fmt.Sprintf(
				"stated discharge duration %.2f h disagrees with energy/power %.2f h; using the computed value",
				*rec.DischargeDurationH, computed))
		}
		rec.DischargeDurationH = &computed
	}

	if rec.DischargeDurationH != nil && *rec.DischargeDurationH > 0 {
		c := 1 / *rec.DischargeDurationH
		rec.CRate = &c
	}

	return warnings
}

// ClassifyApplications returns every application label whose duration band
// contains hours. Bands overlap, so a system can qualify for several.
func ClassifyApplications(hours float64) []string {
	var labels []string
	if hours <= 1 {
		labels = append(labels, domain.ApplicationFrequencyRegulation)
	}
	if hours >= 1 && hours <= 4 {
		labels = append(labels, domain.ApplicationEnergyArbitrage)
	}
	if hours >= 2 && hours <= 6 {
		labels = append(labels, domain.ApplicationPeakShaving)
	}
	if hours >= 4 {
		labels = append(labels, domain.ApplicationBackupPower)
	}
	return labels
}

var chemistryAliases = []struct {
	needle    string
	canonical string
}{
	{"lifepo", "LFP"},
	{"iron phosphate", "LFP"},
	{"iron-phosphate", "LFP"},
	{"lfp", "LFP"},
	{"titanate", "LTO"},
	{"lto", "LTO"},
	{"nickel manganese", "NMC"},
	{"nmc", "NMC"},
	{"nickel cobalt aluminum", "NCA"},
	{"nca", "NCA"},
}

// NormalizeChemistry maps common spellings onto LFP, NMC, LTO or NCA.
// Unrecognized values are returned trimmed.
func NormalizeChemistry(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}
	for _, alias := range chemistryAliases {
		if strings.Contains(lower, alias.needle) {
			return alias.canonical
		}
	}
	return strings.TrimSpace(raw)
}
