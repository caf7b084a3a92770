// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/config"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	db "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/database"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/ingestion_engine"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/jobqueue"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/llm"
	objectclient "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/object-client"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

// App is the composition root shared by the api, worker and CLI binaries.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBClient  *db.DatabaseClient
	Vectors   core.VectorStore
	Queue     core.JobQueue
	Objects   core.ObjectClient
	Embedder  core.Embedder
	Ingestor  *ingestion_engine.DocumentIngestor
	Sources   *services.SourceService
	Retrieval *services.RetrievalService
	Settings  *services.SettingsService

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready")

	a.Vectors = db.NewVectorStore(dbClient.Pool(), cfg.EmbedDim, logger)

	switch cfg.QueueDriver {
	case config.QueueDriverMemory:
		if !cfg.EmbeddedWorker {
			logger.Warn("memory queue without EMBEDDED_WORKER: jobs are only visible to this process")
		}
		a.Queue = jobqueue.NewMemoryQueue(
			jobqueue.WithMaxAttempts(cfg.JobMaxAttempts),
			jobqueue.WithRetryBackoff(cfg.JobRetryBackoff),
		)
	default:
		a.Queue = db.NewJobQueue(dbClient.Pool(),
			db.WithMaxAttempts(cfg.JobMaxAttempts),
			db.WithRetryBackoff(cfg.JobRetryBackoff),
			db.WithQueueLogger(logger),
		)
	}
	a.closers = append(a.closers, a.Queue.Close)

	if a.Objects, err = newObjectClient(appCtx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("object client initialized and ready", "driver", cfg.BlobDriver)

	if err := a.setupEmbedder(appCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	useReadability := false
	pdf := ingestion_engine.NewPDFExtractor(ingestion_engine.NewDocconvConverter(useReadability), a.Objects)
	crawler := ingestion_engine.NewCrawler(ingestion_engine.CrawlConfig{
		Timeout:    cfg.CrawlTimeout,
		UserAgent:  cfg.CrawlUserAgent,
		RatePerSec: cfg.CrawlRatePerSec,
		MaxBytes:   cfg.CrawlMaxBytes,
	}, logger)

	a.Ingestor = ingestion_engine.NewDocumentIngestor(ingestion_engine.IngestorDeps{
		Sources:  dbClient,
		Logs:     dbClient,
		Vectors:  a.Vectors,
		Embedder: a.Embedder,
		URL:      ingestion_engine.NewURLExtractor(crawler, dbClient),
		PDF:      pdf,
		Logger:   logger,
	}, ingestion_engine.IngestConfig{
		Chunk: chunker.Config{MaxTokens: cfg.ChunkMaxTokens, MinTokens: cfg.ChunkMinTokens},
	})

	a.Sources = services.NewSourceService(dbClient, a.Queue, pdf, a.Ingestor, logger,
		services.WithRunTimeout(cfg.JobTimeout))
	a.Retrieval = services.NewRetrievalService(a.Vectors, a.Embedder, logger)
	a.Settings = services.NewSettingsService(dbClient)
	return a, nil
}

func (a *App) setupEmbedder(ctx context.Context) error {
	cfg := a.Config
	var provider core.EmbeddingProvider
	switch cfg.EmbedProvider {
	case config.EmbedProviderGemini:
		g, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, g.Close)
		provider = g
	default:
		o, err := llm.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbedModel)
		if err != nil {
			return err
		}
		provider = o
	}
	a.Embedder = llm.NewBatchEmbedder(provider, cfg.EmbedModel, cfg.EmbedDim,
		llm.WithBatchSize(cfg.EmbedBatchSize),
		llm.WithConcurrency(cfg.EmbedParallel),
		llm.WithTimeout(cfg.EmbedTimeout),
		llm.WithLogger(a.Logger),
	)
	a.Logger.Info("embedder ready", "provider", cfg.EmbedProvider, "model", cfg.EmbedModel, "dim", cfg.EmbedDim)
	return nil
}

func newObjectClient(ctx context.Context, cfg *config.Config) (core.ObjectClient, error) {
	if cfg.BlobDriver == config.BlobDriverS3 {
		c, err := objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := objectclient.NewLocalClient(cfg.BlobDir)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewWorker builds a queue worker over the app's ingestor.
func (a *App) NewWorker() (*ingestion_engine.Worker, error) {
	return ingestion_engine.NewWorker(a.Queue, a.Ingestor, a.DBClient, a.DBClient, ingestion_engine.WorkerConfig{
		Concurrency:  a.Config.WorkerConcurrency,
		PollInterval: a.Config.WorkerPollInterval,
		JobTimeout:   a.Config.JobTimeout,
		StaleAfter:   a.Config.JobStaleAfter,
	}, a.Logger)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for n := len(a.closers) - 1; n >= 0; n-- {
		if err := a.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
