// -----------------------------------------------------------------------
// Application wiring - constructs and owns every long-lived component
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/handlers"
	"github.com/ternarybob/datapilot/internal/queue"
	"github.com/ternarybob/datapilot/internal/services/eda"
	"github.com/ternarybob/datapilot/internal/services/insights"
	"github.com/ternarybob/datapilot/internal/services/parser"
	"github.com/ternarybob/datapilot/internal/services/retention"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
	"github.com/ternarybob/datapilot/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB       *badger.BadgerDB
	JobStore *badger.JobStore
	Uploads  *file.LocalStore
	Results  *file.LocalStore

	// Queue and workers
	QueueManager queue.Manager
	Processor    *worker.AnalysisProcessor
	Pool         *worker.Pool

	// Insight pipeline
	Provider       insights.Provider
	Breaker        *insights.Breaker
	InsightService *insights.Service

	// Retention sweep (nil when disabled)
	RetentionService *retention.Service

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
}

// New creates and wires all application components. Nothing starts
// running until Start is called.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	// Storage layer
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open job registry: %w", err)
	}
	a.DB = db
	a.JobStore = badger.NewJobStore(db, logger)

	a.Uploads, err = file.NewLocalStore(config.Storage.Filesystem.Uploads, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open upload store: %w", err)
	}
	a.Results, err = file.NewLocalStore(config.Storage.Filesystem.Results, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	// Queue shares the registry's Badger instance
	visibility := common.ParseDurationOr(config.Queue.VisibilityTimeout, 0)
	a.QueueManager, err = queue.NewBadgerManager(
		db.Store().Badger(), config.Queue.QueueName, visibility, config.Queue.MaxReceive)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}

	// Insight pipeline
	provider, err := insights.NewProvider(context.Background(), config, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create insight provider: %w", err)
	}
	a.Provider = provider

	a.Breaker = insights.NewBreaker(insights.BreakerConfig{
		Threshold: config.Insights.BreakerTrips,
		Window:    common.ParseDurationOr(config.Insights.BreakerWindow, 0),
		Cooldown:  common.ParseDurationOr(config.Insights.BreakerCooldown, 0),
	}, logger)

	pool, err := insights.LoadExamplePool(config.Insights.ExamplesDir, logger)
	if err != nil {
		logger.Warn().Err(err).Str("dir", config.Insights.ExamplesDir).Msg("Example pool unavailable, prompts run without few-shot examples")
	}
	prompts := insights.NewPromptBuilder(
		pool,
		config.Insights.FewShot,
		config.Insights.FewShotCount,
		config.Insights.MaskPII,
		logger,
	)

	audit := insights.NewAuditLogger(config.Logging.AuditFile)
	a.InsightService = insights.NewService(provider, a.Breaker, prompts, audit, logger)

	// Worker pool
	a.Processor = worker.NewAnalysisProcessor(
		a.JobStore,
		a.Uploads,
		a.Results,
		parser.NewService(config.Limits, logger),
		eda.NewEngine(config.Limits, logger),
		a.InsightService,
		common.ParseDurationOr(config.Queue.JobTimeout, 0),
		logger,
	)
	a.Pool = worker.NewPool(
		a.QueueManager,
		a.Processor,
		config.Queue.Concurrency,
		common.ParseDurationOr(config.Queue.PollInterval, 0),
		logger,
	)

	// Retention sweep
	if config.Retention.Enabled {
		a.RetentionService, err = retention.NewService(
			&config.Retention, a.JobStore, a.Uploads, a.Results, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create retention service: %w", err)
		}
	}

	// HTTP handlers
	a.APIHandler = handlers.NewAPIHandler()
	a.JobHandler = handlers.NewJobHandler(
		config.Limits, a.JobStore, a.Uploads, a.Results, a.QueueManager, logger)

	logger.Info().
		Str("provider", string(config.Insights.DefaultProvider)).
		Int("concurrency", config.Queue.Concurrency).
		Msg("Application initialized")

	return a, nil
}

// Start launches the worker pool and the retention schedule
func (a *App) Start() error {
	a.Pool.Start()
	if a.RetentionService != nil {
		if err := a.RetentionService.Start(a.Config.Retention.Schedule); err != nil {
			return fmt.Errorf("failed to start retention schedule: %w", err)
		}
	}
	return nil
}

// Close shuts down components in reverse dependency order. Safe to call
// on a partially constructed app.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Stop()
	}
	if a.RetentionService != nil {
		a.RetentionService.Stop()
	}
	if a.Provider != nil {
		if err := a.Provider.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close insight provider")
		}
	}
	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close job registry")
		}
	}
}
