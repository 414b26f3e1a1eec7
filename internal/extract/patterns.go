package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Coercion says how a captured group is converted before it is stored.
type Coercion int

const (
	CoerceString Coercion = iota
	CoerceFloat
	CoerceInt
)

func (c Coercion) String() string {
	switch c {
	case CoerceFloat:
		return "float"
	case CoerceInt:
		return "int"
	default:
		return "string"
	}
}

// CoercionForField applies the field-name convention: names containing
// "cycles" are integers, names ending in _mw, _mwh, _h, _pct or _s are
// floats, everything else is a trimmed string.
func CoercionForField(field string) Coercion {
	if strings.Contains(field, "cycles") {
		return CoerceInt
	}
	for _, suffix := range []string{"_mw", "_mwh", "_h", "_pct", "_s"} {
		if strings.HasSuffix(field, suffix) {
			return CoerceFloat
		}
	}
	return CoerceString
}

// FieldRule is the ordered list of patterns tried for one field. The first
// pattern that matches wins. Every pattern must have exactly one capture group.
type FieldRule struct {
	Field    string
	Coercion Coercion
	Patterns []*regexp.Regexp
}

// Match runs the patterns in order and coerces the capture of the first one
// that matches. Later patterns are not tried once one has matched, so a
// capture that fails to coerce leaves the field absent.
func (r FieldRule) Match(text string) (any, bool) {
	for _, re := range r.Patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		return Coerce(m[1], r.Coercion)
	}
	return nil, false
}

// PatternTable maps field names to prioritized match rules, in field order.
type PatternTable []FieldRule

// Match applies every rule to text and returns the matched fields.
// Fields without a match are absent from the result.
func (t PatternTable) Match(text string) map[string]any {
	out := make(map[string]any, len(t))
	for _, rule := range t {
		if v, ok := rule.Match(text); ok {
			out[rule.Field] = v
		}
	}
	return out
}

// Fields returns the field names in table order.
func (t PatternTable) Fields() []string {
	names := make([]string, len(t))
	for i, r := range t {
		names[i] = r.Field
	}
	return names
}

// Rule returns the rule for field, if the table has one.
func (t PatternTable) Rule(field string) (FieldRule, bool) {
	for _, r := range t {
		if r.Field == field {
			return r, true
		}
	}
	return FieldRule{}, false
}

// Coerce cleans a raw capture and converts it. Thousands separators are
// stripped from numeric values; a value that does not parse is rejected.
func Coerce(raw string, c Coercion) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	switch c {
	case CoerceFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case CoerceInt:
		clean := strings.ReplaceAll(raw, ",", "")
		if n, err := strconv.Atoi(clean); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return nil, false
		}
		return int(f), true
	default:
		return strings.Trim(raw, " \t.;,|"), true
	}
}

// number matches a value with optional thousands separators and decimals.
const number = `(\d[\d,]*(?:\.\d+)?)`

// signed matches a possibly negative decimal.
const signed = `(-?\d+(?:\.\d+)?)`

func rule(field string, patterns ...string) FieldRule {
	return ruleAs(field, CoercionForField(field), patterns...)
}

// ruleAs pins a coercion for fields whose names fall outside the suffix convention.
func ruleAs(field string, c Coercion, patterns ...string) FieldRule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return FieldRule{Field: field, Coercion: c, Patterns: compiled}
}

// DefaultPatternTable returns the datasheet grammar used by the extractor.
func DefaultPatternTable() PatternTable {
	return PatternTable{
		rule("manufacturer",
			`\b(?:manufacturer|vendor|supplier|made\s+by)\s*[:=]\s*([^\n]{2,60})`,
		),
		rule("model",
			`\bmodel(?:\s+(?:number|name|no\.?))?\s*[:=]\s*([^\n]{2,60})`,
			`\bproduct(?:\s+name)?\s*[:=]\s*([^\n]{2,60})`,
		),
		rule("nominal_power_mw",
			`(?:nominal|rated|continuous)\s+(?:ac\s+)?(?:output\s+)?power[^:\n\d]{0,30}[:=]?\s*`+number+`\s*MW\b`,
			`\bpower(?:\s+(?:rating|capacity|output))?[^:\n\d]{0,20}[:=]\s*`+number+`\s*MW\b`,
			number+`\s*MW\s*/\s*\d[\d,]*(?:\.\d+)?\s*MWh\b`,
		),
		rule("nominal_energy_mwh",
			`(?:nominal|rated|usable|total)\s+(?:dc\s+)?(?:energy|capacity)[^:\n\d]{0,30}[:=]?\s*`+number+`\s*MWh\b`,
			`\benergy(?:\s+(?:capacity|rating|content))?[^:\n\d]{0,20}[:=]\s*`+number+`\s*MWh\b`,
			`\d[\d,]*(?:\.\d+)?\s*MW\s*/\s*`+number+`\s*MWh\b`,
		),
		rule("discharge_duration_h",
			`(?:discharge\s+)?duration[^:\n\d]{0,20}[:=]?\s*(\d+(?:\.\d+)?)\s*(?:h|hrs?|hours?)\b`,
			`(\d+(?:\.\d+)?)[\s-]*(?:hours?|hrs?|h)\s+(?:system|duration|storage|discharge)\b`,
		),
		rule("round_trip_efficiency_pct",
			`round[\s-]*trip\s+efficiency[^:\n\d]{0,30}[:=]?\s*(?:up\s+to\s+|>\s*|≥\s*)?(\d+(?:\.\d+)?)\s*%`,
			`\bRTE\b[^:\n\d]{0,20}[:=]?\s*(\d+(?:\.\d+)?)\s*%`,
			`\befficiency[^:\n\d]{0,20}[:=]\s*(\d+(?:\.\d+)?)\s*%`,
		),
		rule("response_time_s",
			`response\s+time[^:\n\d]{0,20}[:=]?\s*(?:<\s*|≤\s*)?(\d+(?:\.\d+)?)\s*(?:s|sec|secs|seconds?)\b`,
		),
		rule("chemistry",
			`(?:battery|cell)?\s*chemistry\s*[:=]\s*([^\n]{2,60})`,
			`\b(LFP|LiFePO4|NMC|LTO|NCA|lithium[\s-]iron[\s-]phosphate|lithium\s+titanate)\b`,
		),
		rule("cycle_life_cycles",
			`cycle\s+life[^:\n\d]{0,30}[:=]?\s*(?:>\s*|≥\s*|up\s+to\s+)?(\d[\d,]*)`,
			`(\d[\d,]*)\s*(?:full\s+)?(?:equivalent\s+)?cycles\b`,
		),
		ruleAs("calendar_life_years", CoerceFloat,
			`(?:calendar|design|service)\s+life[^:\n\d]{0,20}[:=]?\s*(\d+(?:\.\d+)?)\s*(?:years|yrs?)\b`,
		),
		ruleAs("operating_temp_min_c", CoerceFloat,
			`operating\s+temp(?:erature)?(?:\s+range)?[^:\n\d-]{0,20}[:=]?\s*`+signed+`\s*°?\s*C?\s*(?:to|~|–|-)\s*\+?-?\d+`,
		),
		ruleAs("operating_temp_max_c", CoerceFloat,
			`operating\s+temp(?:erature)?(?:\s+range)?[^:\n\d-]{0,20}[:=]?\s*-?\d+(?:\.\d+)?\s*°?\s*C?\s*(?:to|~|–|-)\s*\+?`+signed,
		),
		ruleAs("degradation_capacity_fade_pct_per_year", CoerceFloat,
			`(?:degradation|capacity\s+fade)[^:\n\d]{0,30}[:=]?\s*(?:<\s*|≤\s*)?(\d+(?:\.\d+)?)\s*%\s*(?:/|per)\s*(?:year|yr|annum)`,
		),
		rule("configuration",
			`\b(?:system\s+)?(?:configuration|coupling|topology)\s*[:=]\s*([^\n]{2,60})`,
			`\b((?:AC|DC)[\s-]coupled)\b`,
		),
		rule("enclosure_type",
			`\benclosure(?:\s+type)?\s*[:=]\s*([^\n]{2,60})`,
			`\b((?:20|40)\s*(?:ft|foot|')\s*(?:ISO\s+)?container)\b`,
		),
		rule("environmental_protection",
			`(?:ingress\s+protection|protection\s+(?:rating|class|degree)|environmental\s+protection)\s*[:=]\s*([^\n]{2,40})`,
			`\b(IP\s?\d{2})\b`,
		),
		rule("fire_suppression_system",
			`fire\s+(?:suppression|protection|safety)(?:\s+system)?\s*[:=]\s*([^\n]{2,80})`,
		),
		rule("grid_code_compliance",
			`grid\s+(?:code|compliance|standards?)(?:\s+compliance)?\s*[:=]\s*([^\n]{2,120})`,
		),
		rule("certifications",
			`\bcertifications?\s*[:=]\s*([^\n]{2,160})`,
			`((?:UL\s?9540A?|UL\s?1973|IEC\s?62619|IEC\s?62933)[^\n]{0,80})`,
		),
		rule("delivery_scope",
			`(?:scope\s+of\s+(?:supply|delivery)|delivery\s+scope)\s*[:=]\s*([^\n]{2,120})`,
		),
		ruleAs("warranty_years", CoerceFloat,
			`warranty[^:\n\d]{0,20}[:=]?\s*(\d+(?:\.\d+)?)\s*(?:years|yrs?)\b`,
		),
	}
}
