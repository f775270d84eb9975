package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristomenis/vigil/internal/backup"
	"github.com/aristomenis/vigil/internal/config"
	"github.com/aristomenis/vigil/internal/database"
	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/internal/events"
	"github.com/aristomenis/vigil/internal/modules/analytics"
	"github.com/aristomenis/vigil/internal/modules/market"
	"github.com/aristomenis/vigil/internal/modules/portfolio"
	"github.com/aristomenis/vigil/internal/scheduler"
	"github.com/aristomenis/vigil/internal/server"
	"github.com/aristomenis/vigil/pkg/logger"
)

const volatilityLookback = 1440

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Vigil")

	// Open databases
	portfolioDB, err := database.New(cfg.SnapshotDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	marketDB, err := database.New(cfg.MarketDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	analyticsDB, err := database.New(cfg.AnalyticsDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analytics database")
	}
	defer analyticsDB.Close()

	// Repositories
	snapshotRepo := portfolio.NewSnapshotRepository(portfolioDB, log)
	if err := snapshotRepo.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio schema")
	}

	tickRepo := market.NewTickRepository(marketDB, log)
	if err := tickRepo.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market schema")
	}

	historyRepo := analytics.NewHistoryRepository(analyticsDB, log)
	if err := historyRepo.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analytics schema")
	}

	// Event bus
	eventBus := events.NewManager(log)

	// Analytics calculators
	exposureCalc := analytics.NewExposureCalculator(cfg.Analytics.AggregationMode, log)
	riskCalc := analytics.NewRiskCalculator(cfg.Analytics.RiskWindowSize, cfg.Analytics.MinReturnObs, log)
	attributionCalc := analytics.NewAttributionCalculator(log)
	scenarioEngine := analytics.NewScenarioEngine(exposureCalc, riskCalc, log)
	volatilityService := market.NewVolatilityService(tickRepo, volatilityLookback, log)

	// Every published snapshot is persisted to the history repository and
	// announced on the event bus.
	publisher := domain.PublisherFunc(func(snapshot domain.AnalyticsSnapshot) {
		if err := historyRepo.Store(snapshot); err != nil {
			log.Error().Err(err).Str("snapshot_id", snapshot.ID).Msg("Failed to persist analytics snapshot")
		}
		eventBus.Emit(events.SnapshotSaved, "analytics", map[string]interface{}{
			"snapshot_id": snapshot.ID,
			"timestamp":   snapshot.Timestamp.Format(time.RFC3339),
		})
	})

	coordinator := analytics.NewCoordinator(
		snapshotRepo,
		exposureCalc,
		riskCalc,
		attributionCalc,
		publisher,
		log,
	)

	// Market data feed
	var feed *market.BinanceFeed
	if cfg.Feed.Enabled {
		feed = market.NewBinanceFeed(cfg.Feed.Symbols, tickRepo, log)
		feed.Start()
		defer feed.Stop()
	}

	// Scheduler and background jobs
	sched := scheduler.New(log)

	cycleJob := scheduler.NewAnalyticsCycleJob(coordinator, eventBus, log)
	cycleSchedule := fmt.Sprintf("@every %s", cfg.Analytics.CycleInterval)
	if err := sched.AddJob(cycleSchedule, cycleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule analytics cycle")
	}

	pruneJob := scheduler.NewHistoryPruneJob(historyRepo, tickRepo, cfg.Analytics.Retention, log)
	if err := sched.AddJob("@every 1h", pruneJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule history pruning")
	}

	if cfg.Backup.Enabled {
		uploader, err := backup.New(
			context.Background(),
			cfg.Backup.Region,
			cfg.Backup.Bucket,
			cfg.Backup.Prefix,
			[]string{cfg.SnapshotDBPath(), cfg.MarketDBPath(), cfg.AnalyticsDBPath()},
			eventBus,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 backup")
		}
		if err := sched.AddJob(cfg.Backup.Schedule, uploader); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule S3 backup")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		Coordinator: coordinator,
		History:     historyRepo,
		Engine:      scenarioEngine,
		Snapshots:   snapshotRepo,
		Volatility:  volatilityService,
		EventBus:    eventBus,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Vigil stopped")
}
