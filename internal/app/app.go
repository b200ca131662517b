// -----------------------------------------------------------------------
// App - dependency wiring for the folio service
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/handlers"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/moneycontrol"
	"github.com/ternarybob/folio/internal/parser"
	"github.com/ternarybob/folio/internal/queue"
	"github.com/ternarybob/folio/internal/services/holdings"
	"github.com/ternarybob/folio/internal/services/ingest"
	storage "github.com/ternarybob/folio/internal/storage/badger"
	"github.com/ternarybob/folio/internal/workbook"
)

// App holds all initialized services and handlers
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.StorageManager

	Scheduler *queue.Scheduler
	Recovery  *queue.Recovery

	APIHandler       *handlers.APIHandler
	PortfolioHandler *handlers.PortfolioHandler
	UploadHandler    *handlers.UploadHandler
	JobHandler       *handlers.JobHandler
	ETFHandler       *handlers.ETFHandler
}

// New initializes storage, the job subsystem, and the HTTP handlers
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := storage.NewManager(&config.Storage.Badger, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Seed ETF metadata before the fetchers can reference it
	if seeded, err := storage.LoadETFSeeds(context.Background(), config.Seed.ETFDir, storageManager.ETFStorage(), logger); err != nil {
		logger.Warn().Err(err).Msg("ETF seed load failed")
	} else if seeded > 0 {
		logger.Info().Int("count", seeded).Msg("ETF metadata seeded")
	}

	// Spreadsheet workflow capabilities
	extractor, err := parser.NewExtractor(&config.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm extractor: %w", err)
	}
	if extractor != nil {
		logger.Info().Str("provider", extractor.Provider()).Msg("LLM extractor configured")
	} else {
		logger.Info().Msg("No LLM provider configured, manual parsing only")
	}

	ingestService := ingest.NewService(
		workbook.NewExcelDecoder(),
		parser.NewManualParser(nil, logger),
		extractor,
		storageManager.PortfolioStorage(),
		logger,
	)

	// Holdings fetcher over the rate-limited upstream client
	upstreamClient := moneycontrol.NewClient(
		moneycontrol.WithBaseURL(config.Upstream.BaseURL),
		moneycontrol.WithMinInterval(common.Duration(config.Upstream.MinInterval, moneycontrol.DefaultMinInterval)),
		moneycontrol.WithTimeout(common.Duration(config.Upstream.Timeout, moneycontrol.DefaultTimeout)),
		moneycontrol.WithLogger(logger),
	)
	freshnessTTL := common.Duration(config.Upstream.FreshnessTTL, 24*time.Hour)
	fetcher := holdings.NewFetcher(
		storageManager.ETFStorage(),
		storageManager.HoldingsStorage(),
		upstreamClient,
		freshnessTTL,
		logger,
	)

	// Job subsystem
	registry := queue.NewRegistry(logger)
	registry.Register(ingest.NewHandler(ingestService))
	registry.Register(holdings.NewOneHandler(fetcher))
	registry.Register(holdings.NewAllHandler(fetcher))

	webhooks := queue.NewWebhookDispatcher(
		storageManager.JobStorage(),
		queue.WebhookDispatcherConfigFrom(&config.Webhook),
		logger,
	)

	scheduler := queue.NewScheduler(
		storageManager.JobStorage(),
		registry,
		webhooks,
		queue.SchedulerConfigFromQueue(&config.Queue),
		logger,
	)

	recovery := queue.NewRecovery(
		storageManager.JobStorage(),
		common.Duration(config.Queue.RecoveryInterval, 60*time.Second),
		logger,
	)

	spoolDir := filepath.Join(filepath.Dir(config.Storage.Badger.Path), "uploads")

	application := &App{
		Config:    config,
		Logger:    logger,
		Storage:   storageManager,
		Scheduler: scheduler,
		Recovery:  recovery,

		APIHandler:       handlers.NewAPIHandler(storageManager, logger),
		PortfolioHandler: handlers.NewPortfolioHandler(storageManager.PortfolioStorage(), logger),
		UploadHandler:    handlers.NewUploadHandler(ingestService, scheduler, spoolDir, logger),
		JobHandler:       handlers.NewJobHandler(scheduler, recovery, logger),
		ETFHandler:       handlers.NewETFHandler(storageManager.ETFStorage(), storageManager.HoldingsStorage(), scheduler, freshnessTTL, logger),
	}

	// Recovery runs its startup sweep before workers begin claiming
	recovery.Start()
	scheduler.Start()

	return application, nil
}

// Close stops the job subsystem and releases storage
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Recovery.Stop()

	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
	}
}
