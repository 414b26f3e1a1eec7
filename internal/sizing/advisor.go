// Package sizing flags inconsistent or physically impossible requirement
// combinations and adds application-specific advice.
package sizing

import (
	"fmt"
	"math"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
)

// DurationTolerance is the allowed gap between energy/power and a stated
// duration, in hours.
const DurationTolerance = 0.1

// HoursPerDay bounds daily cycling.
const HoursPerDay = 24.0

type rule func(req domain.RequirementRecord) []domain.SizingFinding

var rules = []rule{
	checkConsistency,
	checkCycling,
	adviseApplication,
}

// Validate evaluates every rule against req. Rules never short-circuit each
// other; an empty result means nothing to report.
func Validate(req domain.RequirementRecord) []domain.SizingFinding {
	findings := []domain.SizingFinding{}
	for _, r := range rules {
		findings = append(findings, r(req)...)
	}
	for _, f := range findings {
		metrics.SizingFindingsTotal.WithLabelValues(string(f.Type)).Inc()
	}
	return findings
}

// HasBlocking reports whether any finding is an error. Only errors block
// submission.
func HasBlocking(findings []domain.SizingFinding) bool {
	for _, f := range findings {
		if f.Type == domain.FindingError {
			return true
		}
	}
	return false
}

func checkConsistency(req domain.RequirementRecord) []domain.SizingFinding {
	if req.PowerMW == nil || req.EnergyMWh == nil || req.DurationH == nil || *req.PowerMW <= 0 {
		return nil
	}
	calculated := *req.EnergyMWh / *req.PowerMW
	if math.Abs(calculated-*req.DurationH) <= DurationTolerance {
		return nil
	}
	return []domain.SizingFinding{{
		Type: domain.FindingWarning,
		Message: fmt.Sprintf(
			"Energy and power imply a %.2f h duration but %.2f h was stated. Please confirm which values are correct.",
			calculated, *req.DurationH),
	}}
}

func checkCycling(req domain.RequirementRecord) []domain.SizingFinding {
	if req.DailyCycles == nil {
		return nil
	}
	duration, ok := req.EffectiveDurationH()
	if !ok {
		return nil
	}
	hours := *req.DailyCycles * duration
	if hours <= HoursPerDay {
		return nil
	}
	return []domain.SizingFinding{{
		Type: domain.FindingError,
		Message: fmt.Sprintf(
			"%.4g cycles per day at %.4g h each needs %.4g hours of discharge per day, which exceeds 24 hours.",
			*req.DailyCycles, duration, hours),
	}}
}

func adviseApplication(req domain.RequirementRecord) []domain.SizingFinding {
	app := strings.ToLower(req.Application)
	if app == "" {
		return nil
	}

	var findings []domain.SizingFinding
	if strings.Contains(app, "frequency") || strings.Contains(app, "regulation") {
		findings = append(findings, domain.SizingFinding{
			Type:    domain.FindingInfo,
			Message: "Frequency regulation needs sub-second response and tolerates many partial cycles per day. Prioritise response time and cycle life.",
		})
	}
	if strings.Contains(app, "arbitrage") {
		findings = append(findings, domain.SizingFinding{
			Type:    domain.FindingInfo,
			Message: "Energy arbitrage is usually economic between 2 and 4 hours of duration. Longer systems depend on wide daily price spreads.",
		})
	}
	if strings.Contains(app, "peak") || strings.Contains(app, "shaving") {
		findings = append(findings, domain.SizingFinding{
			Type:    domain.FindingInfo,
			Message: "Peak shaving should be sized from the site load profile: power from the peak to be removed and energy from the width of the peak.",
		})
	}
	return findings
}
