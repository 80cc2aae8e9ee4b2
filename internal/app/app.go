// Package app wires configuration, storage and services into a runnable
// process shared by the API server and the generate command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/quizgen/internal/api"
	"github.com/timmy/quizgen/internal/config"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/notify"
	"github.com/timmy/quizgen/internal/provider"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
	"github.com/timmy/quizgen/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired services of one process.
type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Usage      *service.UsageService
	Gateway    *service.CompletionGateway
	Generation *service.GenerationService
	Review     *service.ReviewService
	Adaptive   *service.AdaptiveService
	Catalog    *repository.CatalogRepository
	Sources    *repository.SourceDocumentRepository

	// Storage and Index are nil when not configured.
	Storage storage.ObjectStorage
	Index   service.QuestionIndexer

	closers []func() error
}

// New connects to every configured backend and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &App{Cfg: cfg, DB: db}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Usage = service.NewUsageService(repository.NewUsageRepository(db), service.UsageConfig{
		Prices: service.DefaultPriceTable().WithOverrides(cfg.Usage.Prices),
		Thresholds: service.Thresholds{
			HourlyCost:    cfg.Usage.HourlyCostLimit,
			DailyCost:     cfg.Usage.DailyCostLimit,
			DailyCalls:    cfg.Usage.MaxCallsPerDay,
			MonthlyBudget: cfg.Usage.MonthlyBudget,
		},
		Location: time.Local,
	}, alertSink(cfg.Alerts), a.Metrics)

	a.Gateway = service.NewCompletionGateway(providers(cfg.Providers), a.Usage, a.Metrics)
	if len(a.Gateway.Configured()) == 0 {
		logger.Warn("No AI provider configured; generation jobs will fail until OPENAI_API_KEY or GEMINI_API_KEY is set")
	}

	if cfg.Storage.Enabled() {
		s3, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("ensure storage bucket: %w", err)
		}
		a.Storage = s3
	}

	a.Catalog = repository.NewCatalogRepository(db)
	a.Sources = repository.NewSourceDocumentRepository(db)
	items := repository.NewGeneratedItemRepository(db)

	if cfg.Index.Enabled {
		index, err := a.questionIndex(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init question index: %w", err)
		}
		a.Index = index
	}

	a.Generation = service.NewGenerationService(
		repository.NewGenerationJobRepository(db),
		items,
		a.Catalog,
		a.Gateway,
		a.Storage,
		a.Metrics,
		service.GenerationConfig{
			MaxConcurrentJobs:    cfg.Generation.MaxConcurrentJobs,
			ChapterRetryAttempts: cfg.Generation.ChapterRetryAttempts,
			SourceCharLimit:      cfg.Generation.SourceCharLimit,
			OnProgress:           logProgress,
		},
	)
	a.Review = service.NewReviewService(items, a.Index, a.Metrics)
	a.Adaptive = service.NewAdaptiveService(repository.NewAttemptRepository(db))

	return a, nil
}

func providers(cfg config.ProvidersConfig) []provider.Provider {
	return []provider.Provider{
		provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			BaseURL:  cfg.OpenAI.BaseURL,
			Priority: cfg.OpenAI.Priority,
			Timeout:  cfg.OpenAI.Timeout,
		}),
		provider.NewGemini(provider.GeminiConfig{
			APIKey:   cfg.Gemini.APIKey,
			Model:    cfg.Gemini.Model,
			BaseURL:  cfg.Gemini.BaseURL,
			Priority: cfg.Gemini.Priority,
			Timeout:  cfg.Gemini.Timeout,
		}),
	}
}

func logProgress(jobID string, progress int) {
	logger.GetDefault().WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		"progress":        progress,
	}).Info("Generation job progress")
}

func alertSink(cfg config.AlertsConfig) notify.Sink {
	if cfg.WebhookURL == "" {
		return notify.LogSink{}
	}
	return notify.MultiSink{notify.LogSink{}, notify.NewWebhookSink(cfg.WebhookURL, cfg.Timeout)}
}

func (a *App) questionIndex(ctx context.Context) (service.QuestionIndexer, error) {
	embCfg := a.Cfg.Embedding
	if err := embCfg.Validate(); err != nil {
		return nil, err
	}

	qdrant, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            a.Cfg.Qdrant.Host,
		Port:            a.Cfg.Qdrant.Port,
		Collection:      embCfg.GetCollection(a.Cfg.Qdrant.Collection),
		APIKey:          a.Cfg.Qdrant.APIKey,
		UseTLS:          a.Cfg.Qdrant.UseTLS,
		VectorDimension: embCfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, qdrant.Close)

	if err := qdrant.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		"collection": qdrant.Collection(),
		"model":      embCfg.Model,
	}).Info(ctx, "Question index enabled")

	return service.NewQuestionIndexService(
		service.NewEmbeddingService(&embCfg, a.Usage),
		qdrant,
		repository.NewQuestionVectorRepository(a.DB),
		a.Catalog,
	), nil
}

// Router builds the HTTP handler over the wired services.
func (a *App) Router() *gin.Engine {
	deps := api.Dependencies{
		Generation: a.Generation,
		Review:     a.Review,
		Usage:      a.Usage,
		Adaptive:   a.Adaptive,
		Index:      a.Index,
		Storage:    a.Storage,
		Sources:    a.Sources,
		Gatherer:   a.Registry,
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		deps.DB = sqlDB
	}
	return api.SetupRouter(deps, a.Cfg)
}

// Close stops in-flight generation jobs and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Generation != nil {
		if err := a.Generation.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop generation jobs: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
