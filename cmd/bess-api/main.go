// Package main provides the BESS advisor API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/spherical-ai/bess-advisor/cmd/bess-api/handlers"
	"github.com/spherical-ai/bess-advisor/internal/cache"
	"github.com/spherical-ai/bess-advisor/internal/chat"
	"github.com/spherical-ai/bess-advisor/internal/config"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/llm"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/scoring"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("llm_mode", cfg.LLM.Mode).
		Msg("Starting BESS advisor API")

	ctx := context.Background()

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	applied, err := storage.NewMigrator(db, cfg.Database.Driver).Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("Applied migrations")
	}

	resultCache, err := newCache(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
		resultCache = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}
	defer resultCache.Close()

	specs := storage.NewSpecificationRepository(db)

	engineOpts := []recommend.Option{recommend.WithConfig(recommend.Config{
		TopN:               cfg.Recommendation.TopN,
		NarratedAlternates: cfg.Recommendation.NarratedAlternates,
		Workers:            cfg.Recommendation.Workers,
		CacheTTL:           cfg.Cache.TTL,
	})}
	if cfg.Recommendation.CacheResults {
		engineOpts = append(engineOpts, recommend.WithCache(resultCache))
	}
	engine := recommend.NewEngine(specs, scoring.NewScorer(), logger, engineOpts...)

	completer, responder, err := newLLM(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure language model")
	}

	var extractOpts []extract.Option
	if completer != nil {
		extractOpts = append(extractOpts, extract.WithEnhancer(extract.NewLLMEnhancer(completer, extract.DefaultPatternTable())))
	}
	extractor := extract.NewExtractor(logger, extractOpts...)

	var chatService *chat.Service
	if responder != nil {
		chatService = chat.NewService(responder, chat.NewMemoryThreadStore(), logger)
	}

	router := NewRouter(&App{
		Logger:      logger,
		Extractor:   extractor,
		Specs:       specs,
		Submissions: storage.NewSubmissionRepository(db),
		Engine:      engine,
		Chat:        chatService,
		DB:          db,
		Datasheets: handlers.DatasheetConfig{
			MaxUploadBytes:    cfg.Extraction.MaxUploadBytes,
			AllowedExtensions: cfg.Extraction.AllowedExtensions,
			EnhanceByDefault:  cfg.LLM.EnhanceDatasheet,
			SimilarLimit:      cfg.Recommendation.SimilarLimit,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

func poolConfig(cfg *config.Config) storage.PoolConfig {
	if cfg.Database.Driver == storage.DriverSQLite {
		return storage.PoolConfig{MaxOpenConns: cfg.Database.SQLite.MaxOpenConns}
	}
	return storage.PoolConfig{
		MaxOpenConns:    cfg.Database.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
	}
}

func newCache(cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}
	client, err := cache.NewRedisClient(cache.RedisConfig{
		URL:      cfg.Cache.Redis.URL,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newLLM returns the completion client used for datasheet enhancement and
// the responder used for chat. Both are nil when no model is configured.
func newLLM(cfg *config.Config, logger *observability.Logger) (llm.Completer, llm.Responder, error) {
	if !cfg.LLMEnabled() {
		logger.Warn().Msg("No language model configured; chat and AI enhancement are disabled")
		return nil, nil, nil
	}

	client, err := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.LLM.Mode != "assistant" {
		return client, client, nil
	}

	assistant, err := llm.NewAssistantClient(llm.AssistantConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		AssistantID: cfg.LLM.AssistantID,
		Timeout:     cfg.LLM.Timeout,
		Poll: llm.PollConfig{
			MaxAttempts: cfg.LLM.PollMaxAttempts,
			Interval:    cfg.LLM.PollInterval,
		},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, assistant, nil
}
