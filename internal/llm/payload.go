package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// PayloadMarker precedes the structured block in assistant replies.
const PayloadMarker = "REQUIREMENTS_JSON:"

// Stages that can produce a payload.
const (
	StageMarker = "marker"
	StageScan   = "scan"
)

var fenceLine = regexp.MustCompile("(?m)^[ \t]*```(?:json)?[ \t]*\r?\n?")

// Payload is an assistant reply split into user-facing text and data.
type Payload struct {
	Display string         `json:"display"`
	Data    map[string]any `json:"data,omitempty"`
	Stage   string         `json:"stage,omitempty"`
}

// Found reports whether a structured object was recovered.
func (p Payload) Found() bool {
	return p.Data != nil
}

// ParsePayload separates display text from an embedded JSON object.
//
// The first stage looks for PayloadMarker and decodes the first balanced
// object after it. If the marker is missing or its object is malformed, the
// second stage scans the whole reply for balanced {...} spans and keeps the
// last one that decodes. When neither stage succeeds the reply is returned
// unchanged as display text with a nil payload.
func ParsePayload(text string) Payload {
	if idx := strings.Index(text, PayloadMarker); idx >= 0 {
		rest := text[idx+len(PayloadMarker):]
		spans := objectSpans(rest)
		if len(spans) > 0 {
			s := spans[0]
			if data, err := decodeObject(rest[s[0]:s[1]]); err == nil {
				return Payload{
					Display: cleanDisplay(text[:idx] + rest[s[1]:]),
					Data:    data,
					Stage:   StageMarker,
				}
			}
		}
	}

	spans := objectSpans(text)
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		data, err := decodeObject(text[s[0]:s[1]])
		if err != nil {
			continue
		}
		display := strings.Replace(text[:s[0]], PayloadMarker, "", 1) + text[s[1]:]
		return Payload{
			Display: cleanDisplay(display),
			Data:    data,
			Stage:   StageScan,
		}
	}

	return Payload{Display: strings.TrimSpace(text)}
}

// DecodeObject returns the first JSON object found in text, tolerating
// code fences and prose around it.
func DecodeObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if data, err := decodeObject(trimmed); err == nil {
		return data, nil
	}

	for _, s := range objectSpans(trimmed) {
		if data, err := decodeObject(trimmed[s[0]:s[1]]); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("no valid JSON object found in response")
}

func decodeObject(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("null object")
	}
	return data, nil
}

// objectSpans returns the [start, end) offsets of top-level balanced
// brace groups, ignoring braces inside JSON strings.
func objectSpans(text string) [][2]int {
	var (
		spans    [][2]int
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, [2]int{start, i + 1})
				start = -1
			}
		}
	}
	return spans
}

func cleanDisplay(s string) string {
	s = fenceLine.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
