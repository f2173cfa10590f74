package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taxfolio/internal/amqp"
	"taxfolio/internal/config"
	"taxfolio/internal/log"
	"taxfolio/internal/sheets"
	gsheet "taxfolio/internal/sheets/google"
	mem "taxfolio/internal/sheets/memory"
	"taxfolio/internal/storage"
	"taxfolio/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.DefaultConfig().Level,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		logger.Error("migrations failed", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sheets backend: the real spreadsheet when sync is configured, an
	// in-memory store otherwise so the queue still drains in dev setups.
	var (
		txnWriter   sheets.TransactionWriter
		entryWriter sheets.EntryWriter
	)
	if cfg.SheetsSyncEnabled {
		cli, err := gsheet.NewFromConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		txnWriter, entryWriter = cli, cli
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		store := mem.New()
		txnWriter, entryWriter = store, store
		logger.Info("sheets sync disabled, using in-memory sink")
	}

	exportWorker := worker.NewExportWorker(repo, cfg.ExportDir, logger)
	syncWorker := worker.NewSyncWorker(repo, txnWriter, entryWriter, cfg.SyncBatchSize, logger)

	// Recover anything queued while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Warn("startup sync check failed", "error", err)
	}

	exportClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue)
	if err != nil {
		logger.Error("failed to connect export queue", "error", err)
		os.Exit(1)
	}
	defer exportClient.Close()

	sheetsClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSheetsQueue)
	if err != nil {
		logger.Error("failed to connect sheets queue", "error", err)
		os.Exit(1)
	}
	defer sheetsClient.Close()

	go func() {
		err := exportClient.ConsumeExportJobs(ctx, func(msg *amqp.ExportJobMessage) error {
			return exportWorker.HandleExportJob(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("export consumer stopped", "error", err)
			cancel()
		}
	}()

	go func() {
		err := sheetsClient.ConsumeSheetsSync(ctx, func(msg *amqp.SheetsSyncMessage) error {
			return syncWorker.HandleSyncMessage(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sheets consumer stopped", "error", err)
			cancel()
		}
	}()

	// Periodic sweep for queue rows whose messages never arrived.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.ProcessPending(ctx, cfg.SyncBatchSize); err != nil {
					logger.Warn("pending sync sweep failed", "error", err)
				}
			}
		}
	}()

	logger.Info("worker started",
		"export_queue", cfg.AMQPExportQueue,
		"sheets_queue", cfg.AMQPSheetsQueue,
		"sync_interval", cfg.SyncInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()
	logger.Info("worker stopped")
}
