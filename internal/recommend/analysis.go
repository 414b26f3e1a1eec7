package recommend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/scoring"
)

// Analyze renders the recommendation report for ranked systems, best first.
// Sections appear in a fixed order: requirement summary, top pick, fit
// annotations, lifetime estimate, alternates, C-rate and parallel units.
func (e *Engine) Analyze(req domain.RequirementRecord, ranked []domain.ScoredSystem) string {
	if len(ranked) == 0 {
		return NoSystemsMessage
	}

	var b strings.Builder
	top := ranked[0]

	writeRequirementSummary(&b, req)
	writeTopPick(&b, top)
	e.writeFit(&b, req, top)
	writeLifetime(&b, req, top)
	writeAlternates(&b, ranked[1:], e.cfg.NarratedAlternates)
	writeCRate(&b, req)
	writeScaling(&b, req, top)

	return strings.TrimRight(b.String(), "\n")
}

func writeRequirementSummary(b *strings.Builder, req domain.RequirementRecord) {
	b.WriteString("## Requirement Summary\n")
	if req.PowerMW != nil {
		fmt.Fprintf(b, "- Power: %s MW\n", num(*req.PowerMW))
	}
	if req.EnergyMWh != nil {
		fmt.Fprintf(b, "- Energy: %s MWh\n", num(*req.EnergyMWh))
	}
	if h, ok := req.EffectiveDurationH(); ok {
		fmt.Fprintf(b, "- Duration: %s h\n", num(h))
	}
	if req.Application != "" {
		fmt.Fprintf(b, "- Application: %s\n", req.Application)
	}
	if req.ChemistryPreference != "" {
		fmt.Fprintf(b, "- Chemistry preference: %s\n", req.ChemistryPreference)
	}
	if req.DailyCycles != nil {
		fmt.Fprintf(b, "- Daily cycles: %s\n", num(*req.DailyCycles))
	}
	if req.Location != "" {
		fmt.Fprintf(b, "- Location: %s\n", req.Location)
	}
	b.WriteString("\n")
}

func writeTopPick(b *strings.Builder, top domain.ScoredSystem) {
	fmt.Fprintf(b, "## Top Recommendation: %s (score %s/100)\n", top.DisplayName(), score(top.CompatibilityScore))
	writeOptional(b, "Power", top.NominalPowerMW, " MW")
	writeOptional(b, "Energy", top.NominalEnergyMWh, " MWh")
	writeOptional(b, "Duration", top.DischargeDurationH, " h")
	if top.Chemistry != "" {
		fmt.Fprintf(b, "- Chemistry: %s\n", top.Chemistry)
	}
	writeOptional(b, "Round-trip efficiency", top.RoundTripEfficiencyPct, "%")
	writeOptional(b, "Response time", top.ResponseTimeS, " s")
	if top.CycleLifeCycles != nil {
		fmt.Fprintf(b, "- Cycle life: %d cycles\n", *top.CycleLifeCycles)
	}
	writeOptional(b, "Warranty", top.WarrantyYears, " years")
	b.WriteString("\n")
}

func (e *Engine) writeFit(b *strings.Builder, req domain.RequirementRecord, top domain.ScoredSystem) {
	var lines []string

	numeric := []struct {
		label     string
		dimension string
		unit      string
		req       *float64
		cand      *float64
	}{
		{"Power", scoring.DimensionPower, "MW", req.PowerMW, top.NominalPowerMW},
		{"Energy", scoring.DimensionEnergy, "MWh", req.EnergyMWh, top.NominalEnergyMWh},
		{"Duration", scoring.DimensionDuration, "h", requiredDuration(req), top.DischargeDurationH},
	}
	for _, n := range numeric {
		if n.req == nil || n.cand == nil || *n.req <= 0 {
			continue
		}
		delta := (*n.cand - *n.req) / *n.req * 100
		mark := "⚠"
		if e.scorer.WithinTolerance(n.dimension, n.req, n.cand) {
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s %s vs %s %s required (%+.1f%%)",
			mark, n.label, num(*n.cand), n.unit, num(*n.req), n.unit, delta))
	}

	if app, ok := dimension(top, scoring.DimensionApplication); ok && app.Applicable {
		if app.Earned > 0 {
			lines = append(lines, fmt.Sprintf("✅ Application: suited to %s", strings.Join(top.ApplicationTypes, ", ")))
		} else {
			lines = append(lines, fmt.Sprintf("⚠ Application: %s not among %s", req.Application, strings.Join(top.ApplicationTypes, ", ")))
		}
	}
	if chem, ok := dimension(top, scoring.DimensionChemistry); ok && chem.Applicable {
		if chem.Earned > 0 {
			lines = append(lines, fmt.Sprintf("✅ Chemistry: %s matches preference", top.Chemistry))
		} else {
			lines = append(lines, fmt.Sprintf("⚠ Chemistry: %s offered, %s preferred", top.Chemistry, req.ChemistryPreference))
		}
	}

	if len(lines) == 0 {
		return
	}
	b.WriteString("### Fit Against Requirements\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeLifetime(b *strings.Builder, req domain.RequirementRecord, top domain.ScoredSystem) {
	if top.CycleLifeCycles == nil || req.DailyCycles == nil || *req.DailyCycles <= 0 {
		return
	}
	years := float64(*top.CycleLifeCycles) / (*req.DailyCycles * 365)
	b.WriteString("### Expected Lifetime\n")
	fmt.Fprintf(b, "At %s cycles per day, a cycle life of %d cycles lasts about %.1f years.\n\n",
		num(*req.DailyCycles), *top.CycleLifeCycles, years)
}

func writeAlternates(b *strings.Builder, rest []domain.ScoredSystem, limit int) {
	if len(rest) > limit {
		rest = rest[:limit]
	}
	if len(rest) == 0 {
		return
	}
	b.WriteString("## Alternatives\n")
	for i, sys := range rest {
		fmt.Fprintf(b, "%d. %s (score %s/100)", i+2, sys.DisplayName(), score(sys.CompatibilityScore))
		var specs []string
		if sys.NominalPowerMW != nil {
			specs = append(specs, num(*sys.NominalPowerMW)+" MW")
		}
		if sys.NominalEnergyMWh != nil {
			specs = append(specs, num(*sys.NominalEnergyMWh)+" MWh")
		}
		if sys.Chemistry != "" {
			specs = append(specs, sys.Chemistry)
		}
		if len(specs) > 0 {
			b.WriteString(": " + strings.Join(specs, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeCRate(b *strings.Builder, req domain.RequirementRecord) {
	if req.PowerMW == nil || req.EnergyMWh == nil || *req.EnergyMWh <= 0 || *req.PowerMW <= 0 {
		return
	}
	c := *req.PowerMW / *req.EnergyMWh
	b.WriteString("## Technical Notes\n")
	fmt.Fprintf(b, "Required C-rate: %.2fC, equivalent to a %.2f h discharge.\n\n", c, 1/c)
}

func writeScaling(b *strings.Builder, req domain.RequirementRecord, top domain.ScoredSystem) {
	if req.PowerMW == nil || top.NominalPowerMW == nil || *top.NominalPowerMW <= 0 {
		return
	}
	if *top.NominalPowerMW >= *req.PowerMW {
		return
	}
	units := int(math.Ceil(*req.PowerMW / *top.NominalPowerMW))
	b.WriteString("## Scaling\n")
	fmt.Fprintf(b, "One %s unit delivers %s MW, below the %s MW required. Install %d units in parallel",
		top.DisplayName(), num(*top.NominalPowerMW), num(*req.PowerMW), units)
	totalPower := float64(units) * *top.NominalPowerMW
	if top.NominalEnergyMWh != nil {
		totalEnergy := float64(units) * *top.NominalEnergyMWh
		fmt.Fprintf(b, " for a total of %s MW / %s MWh.\n", num(totalPower), num(totalEnergy))
	} else {
		fmt.Fprintf(b, " for a total of %s MW.\n", num(totalPower))
	}
}

func writeOptional(b *strings.Builder, label string, v *float64, unit string) {
	if v != nil {
		fmt.Fprintf(b, "- %s: %s%s\n", label, num(*v), unit)
	}
}

func dimension(sys domain.ScoredSystem, name string) (domain.DimensionScore, bool) {
	for _, d := range sys.ScoreBreakdown {
		if d.Dimension == name {
			return d, true
		}
	}
	return domain.DimensionScore{}, false
}

func requiredDuration(req domain.RequirementRecord) *float64 {
	if h, ok := req.EffectiveDurationH(); ok {
		return &h
	}
	return nil
}

// num formats v with at most two decimals and no trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func score(v *float64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
