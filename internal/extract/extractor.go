// Package extract parses datasheet text into specification records using an
// ordered pattern table, with optional model-assisted enhancement.
package extract

import (
	"context"

	"github.com/spherical-ai/bess-advisor/internal/document"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
)

// Extractor turns raw datasheet text into a SpecificationRecord.
type Extractor struct {
	table    PatternTable
	order    []string
	enhancer Enhancer
	logger   *observability.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithEnhancer enables ExtractWithAI.
func WithEnhancer(e Enhancer) Option {
	return func(x *Extractor) { x.enhancer = e }
}

// WithPatternTable replaces the default grammar.
func WithPatternTable(t PatternTable) Option {
	return func(x *Extractor) { x.table = t }
}

// NewExtractor creates an extractor using DefaultPatternTable unless overridden.
func NewExtractor(logger *observability.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	x := &Extractor{
		table:  DefaultPatternTable(),
		logger: logger.WithOperation("extract"),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.order = x.table.Fields()
	return x
}

// HasEnhancer reports whether model-assisted extraction is available.
func (x *Extractor) HasEnhancer() bool {
	return x.enhancer != nil
}

// Extract applies the pattern table to text. Zero matches still produce a
// processed record; only decode failures mark a record unprocessed.
func (x *Extractor) Extract(text string) *domain.SpecificationRecord {
	return x.build(text, x.table.Match(text))
}

// ExtractWithAI runs the pattern table, asks the enhancer for the same
// schema and overlays its usable values. Enhancer failures are logged and
// recorded as a warning; the pattern result is always returned.
func (x *Extractor) ExtractWithAI(ctx context.Context, text string) *domain.SpecificationRecord {
	fields := x.table.Match(text)
	if x.enhancer == nil {
		metrics.EnhancementsTotal.WithLabelValues("skipped").Inc()
		return x.build(text, fields)
	}

	enhanced, err := x.enhancer.Enhance(ctx, text)
	if err != nil {
		metrics.EnhancementsTotal.WithLabelValues("failed").Inc()
		x.logger.Warn().Err(err).Msg("AI enhancement failed, keeping pattern extraction")
		rec := x.build(text, fields)
		rec.ProcessingWarnings = append(rec.ProcessingWarnings, "AI enhancement unavailable: "+err.Error())
		return rec
	}

	merged := 0
	for name, v := range enhanced {
		if v == nil || !acceptable(name, v) {
			continue
		}
		fields[name] = v
		merged++
	}

	metrics.EnhancementsTotal.WithLabelValues("merged").Inc()
	x.logger.Debug().Int("fields_merged", merged).Msg("AI enhancement merged")

	return x.build(text, fields)
}

// ExtractDocument decodes an uploaded file and extracts from its text. A
// file that cannot be decoded yields an unprocessed record carrying the error.
func (x *Extractor) ExtractDocument(ctx context.Context, filename string, data []byte, useAI bool) *domain.SpecificationRecord {
	text, err := document.Decode(filename, data)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		x.logger.Warn().Str("filename", filename).Err(err).Msg("Datasheet could not be decoded")
		return &domain.SpecificationRecord{
			SourceFilename:   filename,
			Processed:        false,
			ProcessingErrors: err.Error(),
		}
	}

	var rec *domain.SpecificationRecord
	if useAI {
		rec = x.ExtractWithAI(ctx, text)
	} else {
		rec = x.Extract(text)
	}
	rec.SourceFilename = filename
	return rec
}

func (x *Extractor) build(text string, fields map[string]any) *domain.SpecificationRecord {
	rec := &domain.SpecificationRecord{
		FullTextContent: text,
		Processed:       true,
	}

	if skipped := applyFields(rec, fields, x.order); len(skipped) > 0 {
		x.logger.Debug().Strs("fields", skipped).Msg("Skipped values that could not be converted")
	}

	rec.Chemistry = NormalizeChemistry(rec.Chemistry)
	rec.ProcessingWarnings = append(rec.ProcessingWarnings, Derive(rec)...)
	if rec.DischargeDurationH != nil {
		rec.ApplicationTypes = ClassifyApplications(*rec.DischargeDurationH)
	}

	metrics.ExtractionsTotal.WithLabelValues("processed").Inc()
	metrics.FieldsExtracted.Observe(float64(len(fields)))

	return rec
}

// acceptable reports whether v converts cleanly for the named field.
func acceptable(name string, v any) bool {
	var scratch domain.SpecificationRecord
	return setField(&scratch, name, v)
}
