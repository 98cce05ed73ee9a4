// -----------------------------------------------------------------------
// App - Service wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/cache"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/handlers"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/notify"
	"github.com/ternarybob/tracto/internal/orchestrator"
	"github.com/ternarybob/tracto/internal/processors"
	"github.com/ternarybob/tracto/internal/registry"
	"github.com/ternarybob/tracto/internal/resources"
	"github.com/ternarybob/tracto/internal/scheduler"
	badgerstore "github.com/ternarybob/tracto/internal/storage/badger"
)

// App holds the wired application: storage, services and HTTP handlers
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage      interfaces.StorageManager
	Orchestrator *orchestrator.Service
	Batches      *registry.Service
	Scheduler    *scheduler.Service

	APIHandler   *handlers.APIHandler
	JobHandler   *handlers.JobHandler
	BatchHandler *handlers.BatchHandler
}

// New wires the application from configuration. Services are constructed
// leaf-first: storage, then the domain services, then handlers.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var generator processors.TextGenerator
	if cfg.Claude.APIKey != "" {
		claudeGen, err := processors.NewClaudeGenerator(&cfg.Claude, logger)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
		}
		generator = claudeGen
	}

	procRegistry := processors.NewDefaultRegistry(cfg, generator, logger)
	batches := registry.NewService(storage, cfg.Batch.DeletePolicy, logger)
	gate := cache.NewGate(storage.CacheStorage(), cfg.CacheTTL(), cfg.Cache.WriteOnBypass, logger)
	calculator := resources.NewCalculator(cfg.Resources.ComputeWeight, cfg.Resources.StorageWeight)
	notifier := notify.NewService(&cfg.Webhook, storage.WebhookStorage(), logger)

	orch := orchestrator.NewService(storage, procRegistry, batches, gate, calculator, notifier, cfg.Workers, logger)

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Storage:      storage,
		Orchestrator: orch,
		Batches:      batches,
		APIHandler:   handlers.NewAPIHandler(storage, procRegistry, logger),
		JobHandler:   handlers.NewJobHandler(orch, storage, logger),
		BatchHandler: handlers.NewBatchHandler(orch, batches, storage, logger),
	}

	if cfg.Scheduler.Enabled {
		app.Scheduler = scheduler.NewService(storage, &cfg.Scheduler, cfg.CacheTTL(), logger)
	}

	return app, nil
}

// Start launches the orchestrator workers and the maintenance scheduler
func (a *App) Start() error {
	a.Orchestrator.Start()
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	return nil
}

// Shutdown stops services in reverse order of startup and closes storage
func (a *App) Shutdown() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	a.Orchestrator.Stop()

	if err := a.Storage.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close storage")
	}
	a.Logger.Info().Msg("Application shutdown complete")
}
