// Package main is the entry point for the Paperdesk paper trading service.
// It simulates trading against real market prices: every portfolio starts
// with virtual cash, trades settle against live quotes, and the ledger
// records an immutable audit trail of every attempt.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/paperdesk/internal/clients/marketdata"
	"github.com/aristath/paperdesk/internal/config"
	"github.com/aristath/paperdesk/internal/database"
	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
	"github.com/aristath/paperdesk/internal/modules/execution"
	"github.com/aristath/paperdesk/internal/modules/forecast"
	"github.com/aristath/paperdesk/internal/modules/ledger"
	"github.com/aristath/paperdesk/internal/modules/orders"
	tradinghandlers "github.com/aristath/paperdesk/internal/modules/trading/handlers"
	"github.com/aristath/paperdesk/internal/reliability"
	"github.com/aristath/paperdesk/internal/scheduler"
	"github.com/aristath/paperdesk/internal/server"
	"github.com/aristath/paperdesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Paperdesk")

	startingCash, err := domain.NewMoneyFromString(cfg.StartingCash)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.StartingCash).Msg("Invalid starting cash")
	}

	// Databases: ledger holds the audit trail, cache holds ephemeral
	// history series for forecasting.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{ledgerDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("db", db.Name()).Msg("Failed to migrate database")
		}
	}
	log.Info().Msg("Databases initialized")

	// Event manager for cross-module notifications and the SSE feed
	eventManager := events.NewManager(log)

	// Market data: REST client for quotes and history, optional
	// WebSocket stream layered on top as a quote cache.
	mdClient := marketdata.NewClient(cfg.MarketDataURL, cfg.MarketDataAPIKey, log)

	var oracle domain.PriceOracle = mdClient
	var stream *marketdata.PriceStream
	if cfg.MarketDataWSURL != "" {
		stream = marketdata.NewPriceStream(cfg.MarketDataWSURL, cfg.MarketDataAPIKey, eventManager, log)
		if err := stream.Start(); err != nil {
			log.Warn().Err(err).Msg("Price stream failed to start, using REST quotes only")
		}
		oracle = marketdata.NewCachedOracle(stream, mdClient)
	}

	// Repositories and the per-portfolio write lock
	portfolioRepo := ledger.NewPortfolioRepository(ledgerDB.Conn(), log)
	positionRepo := ledger.NewPositionRepository(ledgerDB.Conn(), log)
	transactionRepo := ledger.NewTransactionRepository(ledgerDB.Conn(), log)
	performanceRepo := ledger.NewPerformanceRepository(ledgerDB.Conn(), log)
	orderRepo := ledger.NewOrderRepository(ledgerDB.Conn(), log)
	locker := ledger.NewPortfolioLocker(cfg.LockTimeout)

	// Services
	executionService := execution.NewService(
		ledgerDB.Conn(),
		portfolioRepo,
		positionRepo,
		transactionRepo,
		performanceRepo,
		locker,
		oracle,
		eventManager,
		startingCash,
		log,
	)

	orderService := orders.NewService(
		ledgerDB.Conn(),
		portfolioRepo,
		positionRepo,
		transactionRepo,
		performanceRepo,
		orderRepo,
		locker,
		oracle,
		eventManager,
		startingCash,
		log,
	)

	historyCache := forecast.NewHistoryCache(cacheDB.Conn(), cfg.HistoryCacheTTL, log)
	forecastService := forecast.NewService(mdClient, historyCache, log)

	// Background jobs
	sched := scheduler.New(log)

	sweepJob := scheduler.NewSweepJob(orderService)
	if err := sched.AddJob(cfg.SweepSchedule, sweepJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sweep job")
	}

	var backupService *reliability.BackupService
	var backupJob *reliability.BackupJob
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}

		backupService = reliability.NewBackupService(s3Client, map[string]*sql.DB{
			"ledger": ledgerDB.Conn(),
			"cache":  cacheDB.Conn(),
		}, cfg.DataDir, log)

		backupJob = reliability.NewBackupJob(backupService, cfg.Backup.RetentionDays)
		if err := sched.AddJob(cfg.Backup.Schedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	handlers := tradinghandlers.NewTradingHandlers(
		executionService,
		orderService,
		forecastService,
		eventManager,
		log,
	)

	srv := server.New(server.Config{
		Log:             log,
		LedgerDB:        ledgerDB,
		CacheDB:         cacheDB,
		Config:          cfg,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		TradingHandlers: handlers,
		BackupService:   backupService,
	})

	// A typed nil would defeat the nil checks in the handlers, so the
	// backup job is only wrapped when it exists.
	var backupSchedJob scheduler.Job
	if backupJob != nil {
		backupSchedJob = backupJob
	}
	srv.SetJobs(sweepJob, backupSchedJob)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Paperdesk is running")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	log.Info().Msg("Shutting down...")

	if stream != nil {
		if err := stream.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping price stream")
		} else {
			log.Info().Msg("Price stream stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
