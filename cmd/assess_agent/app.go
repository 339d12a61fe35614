package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/chunking"
	"github.com/jonathan/credibility-assessor/internal/config"
	"github.com/jonathan/credibility-assessor/internal/db"
	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/llm"
	"github.com/jonathan/credibility-assessor/internal/lock"
	"github.com/jonathan/credibility-assessor/internal/logging"
	"github.com/jonathan/credibility-assessor/internal/observability"
	"github.com/jonathan/credibility-assessor/internal/store"
)

// appOptions selects which collaborators a command needs.
type appOptions struct {
	requireDB         bool
	requireClassifier bool
	memoryStore       bool
}

// app holds the wired service and everything that must be closed with it.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	store    assessment.Store
	svc      *assessment.Service
	closers  []func()
}

// loadConfig reads --config, applies the environment and the --verbose flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newApp wires store, lock, classifier and service from configuration.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  observability.NewMetrics(registry),
	}
	a.onClose(func() { _ = logger.Sync() })

	if err := a.openStore(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker
	if cfg.RedisURL != "" {
		redisLock, err := lock.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.onClose(func() { _ = redisLock.Close() })
		locker = redisLock
		logger.Info("using redis assessment lock")
	}

	evaluator, err := a.newEvaluator(ctx, opts.requireClassifier)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = assessment.NewService(assessment.Dependencies{
		Store:     a.store,
		Locker:    locker,
		Evaluator: evaluator,
		Logger:    logger,
		Metrics:   a.metrics,
	}, serviceConfig(cfg))
	return a, nil
}

func (a *app) openStore(ctx context.Context, opts appOptions) error {
	if opts.memoryStore || (a.cfg.DatabaseURL == "" && !opts.requireDB) {
		a.store = store.NewMemory()
		a.logger.Debug("using in-memory store")
		return nil
	}
	if a.cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.onClose(database.Close)
	a.store = database
	return nil
}

// newEvaluator builds the Gemini-backed evaluator. Without an API key it returns nil unless
// a classifier is required; batches then fail with a config error.
func (a *app) newEvaluator(ctx context.Context, required bool) (*evaluation.Evaluator, error) {
	if a.cfg.APIKey == "" {
		if required {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable or api_key config is required")
		}
		a.logger.Warn("no GEMINI_API_KEY set; batches will be rejected")
		return nil, nil
	}

	llmConfig := llm.DefaultConfig().WithModel(llm.ClassifierTier, a.cfg.Model)
	client, err := llm.NewClient(ctx, llmConfig, a.cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	guardCfg := llm.DefaultGuardConfig()
	guardCfg.RequestsPerSecond = a.cfg.ClassifierRPS
	guarded := llm.NewGuardedClient(client, guardCfg, a.logger)
	a.onClose(func() { _ = guarded.Close() })

	classifier, err := evaluation.NewLLMClassifier(guarded)
	if err != nil {
		return nil, err
	}
	opts, err := evaluationOptions(a.cfg)
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(classifier, chunking.NewSelector(), opts, a.logger), nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// serviceConfig maps file/env configuration onto the service's tuning knobs.
func serviceConfig(cfg *config.Config) assessment.Config {
	return assessment.Config{
		BatchSize:     cfg.BatchSize,
		QuestionDelay: cfg.QuestionDelay(),
		RunTimeout:    cfg.RunTimeout(),
		Chunker: chunking.Chunker{
			Size:      cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
			MaxChunks: cfg.MaxChunks,
			MinLength: cfg.MinChunkLength,
		},
	}
}

func evaluationOptions(cfg *config.Config) (evaluation.Options, error) {
	strategy, err := evaluation.ParseStrategy(cfg.Strategy)
	if err != nil {
		return evaluation.Options{}, err
	}
	return evaluation.Options{
		Strategy:               strategy,
		InsufficientMultiplier: cfg.InsufficientMultiplier,
		FallbackMultiplier:     cfg.FallbackMultiplier,
		QuestionTimeout:        cfg.QuestionTimeout(),
	}, nil
}
