// Package recommend ranks catalog systems against a requirement and renders
// the recommendation analysis.
package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/bess-advisor/internal/cache"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/scoring"
)

// NoSystemsMessage is the analysis returned for an empty catalog.
const NoSystemsMessage = "No BESS systems are currently available in the catalog. Please upload datasheets to enable recommendations."

const cachePrefix = "recommendations"

// Catalog is the read side of the specification store.
type Catalog interface {
	ListProcessed(ctx context.Context) ([]domain.SpecificationRecord, error)
}

// Config controls ranking and narration.
type Config struct {
	TopN               int
	NarratedAlternates int
	Workers            int
	CacheTTL           time.Duration
}

// DefaultConfig returns top 5, three narrated alternates and four workers.
func DefaultConfig() Config {
	return Config{TopN: 5, NarratedAlternates: 3, Workers: 4, CacheTTL: 10 * time.Minute}
}

// Result is the outcome of one recommendation request.
type Result struct {
	Recommendations       []domain.ScoredSystem `json:"recommendations"`
	Analysis              string                `json:"analysis"`
	TotalSystemsEvaluated int                   `json:"total_systems_evaluated"`
}

// Engine scores a catalog snapshot and ranks it.
type Engine struct {
	catalog Catalog
	scorer  *scoring.Scorer
	cache   cache.Client
	cfg     Config
	logger  *observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.TopN > 0 {
			e.cfg.TopN = cfg.TopN
		}
		if cfg.NarratedAlternates > 0 {
			e.cfg.NarratedAlternates = cfg.NarratedAlternates
		}
		if cfg.Workers > 0 {
			e.cfg.Workers = cfg.Workers
		}
		if cfg.CacheTTL > 0 {
			e.cfg.CacheTTL = cfg.CacheTTL
		}
	}
}

// WithCache stores results in c until the catalog changes.
func WithCache(c cache.Client) Option {
	return func(e *Engine) { e.cache = c }
}

// NewEngine creates an engine reading from catalog.
func NewEngine(catalog Catalog, scorer *scoring.Scorer, logger *observability.Logger, opts ...Option) *Engine {
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	e := &Engine{
		catalog: catalog,
		scorer:  scorer,
		cfg:     DefaultConfig(),
		logger:  logger.WithOperation("recommend"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate ranks every processed catalog system against req. An empty
// catalog is not an error; a catalog read failure is.
func (e *Engine) Generate(ctx context.Context, req domain.RequirementRecord) (*Result, error) {
	timer := metrics.NewTimer()
	key := requirementKey(req)

	if cached, ok := e.lookup(ctx, key); ok {
		metrics.RecommendationsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	systems, err := e.catalog.ListProcessed(ctx)
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("failed").Inc()
		return nil, domain.StorageError("read catalog", err)
	}

	if len(systems) == 0 {
		metrics.RecommendationsTotal.WithLabelValues("empty").Inc()
		return &Result{
			Recommendations: []domain.ScoredSystem{},
			Analysis:        NoSystemsMessage,
		}, nil
	}

	ranked, err := e.rank(ctx, req, systems)
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	top := ranked
	if len(top) > e.cfg.TopN {
		top = top[:e.cfg.TopN]
	}

	result := &Result{
		Recommendations:       top,
		Analysis:              e.Analyze(req, top),
		TotalSystemsEvaluated: len(systems),
	}

	metrics.RecommendationsTotal.WithLabelValues("ok").Inc()
	metrics.CandidatesEvaluated.Observe(float64(len(systems)))
	metrics.RecommendationDuration.Observe(timer.Duration().Seconds())

	e.logger.Info().
		Int("evaluated", len(systems)).
		Int("returned", len(top)).
		Float64("top_score", *top[0].CompatibilityScore).
		Dur("duration", timer.Duration()).
		Msg("Recommendations generated")

	e.store(ctx, key, result)
	return result, nil
}

// Invalidate drops cached results. Call it after any catalog write.
func (e *Engine) Invalidate(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.DeleteByPrefix(ctx, cachePrefix+":")
}

// rank scores systems concurrently and sorts them by descending score.
// Equal scores keep catalog order.
func (e *Engine) rank(ctx context.Context, req domain.RequirementRecord, systems []domain.SpecificationRecord) ([]domain.ScoredSystem, error) {
	results := make([]domain.CompatibilityResult, len(systems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range systems {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.scorer.Score(req, systems[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]domain.ScoredSystem, len(systems))
	for i, sys := range systems {
		score := results[i].Score
		sys.FullTextContent = ""
		ranked[i] = domain.ScoredSystem{
			SpecificationRecord: sys,
			CompatibilityScore:  &score,
			ScoreBreakdown:      results[i].Dimensions,
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return *ranked[a].CompatibilityScore > *ranked[b].CompatibilityScore
	})
	return ranked, nil
}

func (e *Engine) lookup(ctx context.Context, key string) (*Result, bool) {
	if e.cache == nil {
		return nil, false
	}
	var result Result
	err := cache.GetJSON(ctx, e.cache, key, &result)
	if err == nil {
		return &result, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		e.logger.Warn().Err(err).Msg("Recommendation cache read failed")
	}
	return nil, false
}

func (e *Engine) store(ctx context.Context, key string, result *Result) {
	if e.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, e.cache, key, result, e.cfg.CacheTTL); err != nil {
		e.logger.Warn().Err(err).Msg("Recommendation cache write failed")
	}
}

func requirementKey(req domain.RequirementRecord) string {
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return cache.CacheKey(cachePrefix, hex.EncodeToString(sum[:16]))
}
