package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/bess-advisor/cmd/bess-api/handlers"
	"github.com/spherical-ai/bess-advisor/cmd/bess-api/middleware"
	"github.com/spherical-ai/bess-advisor/internal/chat"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// Pinger reports database reachability for /ready.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// App holds the services the router exposes.
type App struct {
	Logger         *observability.Logger
	Extractor      *extract.Extractor
	Specs          storage.SpecificationStore
	Submissions    storage.SubmissionStore
	Engine         *recommend.Engine
	Chat           *chat.Service // nil when no model is configured
	DB             Pinger
	Datasheets     handlers.DatasheetConfig
	AllowedOrigins []string
	RequestTimeout time.Duration
	MetricsEnabled bool
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(app.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(app.AllowedOrigins))
	if app.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(app.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"bess-advisor"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if app.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := app.DB.PingContext(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if app.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	datasheetHandler := handlers.NewDatasheetHandler(app.Logger, app.Extractor, app.Specs, app.Engine, app.Datasheets)
	recommendationHandler := handlers.NewRecommendationHandler(app.Logger, app.Engine)
	submissionHandler := handlers.NewSubmissionHandler(app.Logger, app.Submissions, app.Engine, app.Chat)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/datasheets", func(r chi.Router) {
			r.Post("/", datasheetHandler.Upload)
			r.Post("/text", datasheetHandler.CreateFromText)
			r.Get("/", datasheetHandler.List)
			r.Get("/{id}", datasheetHandler.Get)
			r.Delete("/{id}", datasheetHandler.Delete)
			r.Post("/{id}/reprocess", datasheetHandler.Reprocess)
		})

		r.Get("/catalog/similar", datasheetHandler.Similar)

		r.Post("/recommendations", recommendationHandler.Recommend)
		r.Post("/recommendations/matrix", recommendationHandler.Matrix)
		r.Post("/sizing/validate", recommendationHandler.ValidateSizing)

		if app.Chat != nil {
			chatHandler := handlers.NewChatHandler(app.Logger, app.Chat)
			r.Post("/chat", chatHandler.Send)
			r.Get("/chat/{threadID}", chatHandler.Thread)
			r.Delete("/chat/{threadID}", chatHandler.Reset)
		}

		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", submissionHandler.Create)
			r.Get("/", submissionHandler.List)
			r.Get("/{id}", submissionHandler.Get)
			r.Patch("/{id}/status", submissionHandler.UpdateStatus)
		})
	})

	return r
}
