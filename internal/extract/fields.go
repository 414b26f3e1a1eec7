package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

var leadingNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// applyFields writes matched or model-supplied values onto rec in table
// order. Unknown keys and values that cannot be converted are skipped and
// reported back so callers can log them.
func applyFields(rec *domain.SpecificationRecord, fields map[string]any, order []string) []string {
	var skipped []string
	seen := make(map[string]bool, len(order))

	apply := func(name string) {
		v, ok := fields[name]
		if !ok || v == nil {
			return
		}
		if !setField(rec, name, v) {
			skipped = append(skipped, name)
		}
	}

	for _, name := range order {
		seen[name] = true
		apply(name)
	}
	for name := range fields {
		if !seen[name] {
			apply(name)
		}
	}
	return skipped
}

func setField(rec *domain.SpecificationRecord, name string, v any) bool {
	switch name {
	case "manufacturer":
		return setString(&rec.Manufacturer, v)
	case "model":
		return setString(&rec.Model, v)
	case "nominal_power_mw":
		return setFloat(&rec.NominalPowerMW, v)
	case "nominal_energy_mwh":
		return setFloat(&rec.NominalEnergyMWh, v)
	case "discharge_duration_h":
		return setFloat(&rec.DischargeDurationH, v)
	case "round_trip_efficiency_pct":
		return setFloat(&rec.RoundTripEfficiencyPct, v)
	case "response_time_s":
		return setFloat(&rec.ResponseTimeS, v)
	case "c_rate":
		return setFloat(&rec.CRate, v)
	case "chemistry":
		return setString(&rec.Chemistry, v)
	case "cycle_life_cycles":
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		n := int(f)
		rec.CycleLifeCycles = &n
		return true
	case "calendar_life_years":
		return setFloat(&rec.CalendarLifeYears, v)
	case "operating_temp_min_c":
		return setFloat(&rec.OperatingTempMinC, v)
	case "operating_temp_max_c":
		return setFloat(&rec.OperatingTempMaxC, v)
	case "degradation_capacity_fade_pct_per_year":
		return setFloat(&rec.DegradationPctPerYear, v)
	case "configuration":
		return setString(&rec.Configuration, v)
	case "enclosure_type":
		return setString(&rec.EnclosureType, v)
	case "environmental_protection":
		return setString(&rec.EnvironmentalProtection, v)
	case "fire_suppression_system":
		return setString(&rec.FireSuppressionSystem, v)
	case "grid_code_compliance":
		return setString(&rec.GridCodeCompliance, v)
	case "certifications":
		return setString(&rec.Certifications, v)
	case "delivery_scope":
		return setString(&rec.DeliveryScope, v)
	case "warranty_years":
		return setFloat(&rec.WarrantyYears, v)
	case "application_types":
		labels, ok := toStrings(v)
		if ok {
			rec.ApplicationTypes = labels
		}
		return ok
	default:
		return false
	}
}

func setString(dst *string, v any) bool {
	s, ok := toString(v)
	if !ok {
		return false
	}
	*dst = s
	return true
}

func setFloat(dst **float64, v any) bool {
	f, ok := toFloat(v)
	if !ok {
		return false
	}
	*dst = &f
	return true
}

// toFloat accepts the shapes produced by the pattern table and by JSON
// decoding. Strings such as "2.5 MW" use their leading number.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
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
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64, int, json.Number:
		return fmt.Sprint(t), true
	case []any:
		parts, ok := toStrings(t)
		if !ok {
			return "", false
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

func toStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, len(t) > 0
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out, len(out) > 0
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}
