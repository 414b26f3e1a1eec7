package chat

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/extract"
)

var leadingNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// payload key aliases, first match wins
var (
	powerKeys       = []string{"power_mw", "power", "nominal_power_mw", "rated_power_mw"}
	energyKeys      = []string{"energy_mwh", "energy", "nominal_energy_mwh", "capacity_mwh"}
	durationKeys    = []string{"duration_h", "duration", "duration_hours", "discharge_duration_h"}
	applicationKeys = []string{"application", "use_case", "application_type"}
	chemistryKeys   = []string{"chemistry", "chemistry_preference", "battery_chemistry"}
	cyclesKeys      = []string{"daily_cycles", "cycles_per_day"}
	efficiencyKeys  = []string{"min_round_trip_efficiency_pct", "round_trip_efficiency", "efficiency"}
	cycleLifeKeys   = []string{"min_cycle_life", "cycle_life"}
	responseKeys    = []string{"response_time_s", "response_time"}
	configKeys      = []string{"configuration", "system_configuration"}
	gridCodeKeys    = []string{"grid_code_compliance", "grid_code"}
	locationKeys    = []string{"location", "site", "country"}
)

// RequirementFromPayload maps an assistant payload onto a RequirementRecord.
// Unknown keys are ignored. Sizes that are zero or negative are treated as
// not yet known. A nested "requirements" object takes precedence over the
// top level.
func RequirementFromPayload(data map[string]any) domain.RequirementRecord {
	if nested, ok := data["requirements"].(map[string]any); ok {
		data = nested
	}

	var req domain.RequirementRecord
	req.PowerMW = positive(data, powerKeys)
	req.EnergyMWh = positive(data, energyKeys)
	req.DurationH = positive(data, durationKeys)
	req.DailyCycles = positive(data, cyclesKeys)
	req.MinRoundTripEfficiencyPct = positive(data, efficiencyKeys)
	req.ResponseTimeS = positive(data, responseKeys)
	if f := positive(data, cycleLifeKeys); f != nil {
		req.MinCycleLife = domain.Int(int(math.Round(*f)))
	}

	req.Application = text(data, applicationKeys)
	if chem := text(data, chemistryKeys); chem != "" {
		req.ChemistryPreference = extract.NormalizeChemistry(chem)
	}
	req.Configuration = text(data, configKeys)
	req.GridCodeCompliance = text(data, gridCodeKeys)
	req.Location = text(data, locationKeys)

	return req
}

func lookup(data map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func positive(data map[string]any, keys []string) *float64 {
	v, ok := lookup(data, keys)
	if !ok {
		return nil
	}
	f, ok := number(v)
	if !ok || f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func text(data map[string]any, keys []string) string {
	v, ok := lookup(data, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		m := leadingNumber.FindString(t)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}
