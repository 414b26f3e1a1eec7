package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/llm"
)

// maxEnhanceChars bounds the datasheet text sent to the model.
const maxEnhanceChars = 24000

// Enhancer returns a model-produced extraction keyed like the pattern table.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (map[string]any, error)
}

// LLMEnhancer asks a chat-completion model for the specification schema.
type LLMEnhancer struct {
	completer llm.Completer
	table     PatternTable
}

// NewLLMEnhancer creates an enhancer that requests the fields of table.
func NewLLMEnhancer(completer llm.Completer, table PatternTable) *LLMEnhancer {
	return &LLMEnhancer{completer: completer, table: table}
}

// Enhance implements Enhancer. Replies that do not contain a JSON object are
// reported as extraction errors.
func (e *LLMEnhancer) Enhance(ctx context.Context, text string) (map[string]any, error) {
	if len(text) > maxEnhanceChars {
		text = text[:maxEnhanceChars]
	}

	reply, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt()},
		{Role: llm.RoleUser, Content: text},
	})
	if err != nil {
		return nil, err
	}

	data, err := llm.DecodeObject(reply)
	if err != nil {
		return nil, domain.ExtractionError("model reply was not a JSON object", err)
	}
	return data, nil
}

func (e *LLMEnhancer) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You extract battery energy storage system specifications from vendor datasheets.\n")
	b.WriteString("Reply with a single JSON object and nothing else. Use only these keys and omit any you cannot find:\n")
	for _, r := range e.table {
		fmt.Fprintf(&b, "- %s (%s)\n", r.Field, r.Coercion)
	}
	b.WriteString("Power is in MW, energy in MWh, durations in hours, efficiency in percent, response time in seconds.\n")
	b.WriteString("Chemistry must be one of LFP, NMC, LTO, NCA or the datasheet's wording.")
	return b.String()
}
