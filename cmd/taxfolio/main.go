package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taxfolio/internal/amqp"
	"taxfolio/internal/cache"
	"taxfolio/internal/config"
	apphttp "taxfolio/internal/http"
	"taxfolio/internal/importer"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"
	"taxfolio/internal/worker"
	"taxfolio/internal/ws"
)

// broker fans the two publish operations out to their queues: a Client
// is bound to a single queue, so the web process keeps one per concern.
type broker struct {
	export *amqp.Client
	sheets *amqp.Client
}

func (b *broker) PublishExportJob(ctx context.Context, jobID string) error {
	return b.export.PublishExportJob(ctx, jobID)
}

func (b *broker) PublishSheetsSync(ctx context.Context, queueID int64) error {
	return b.sheets.PublishSheetsSync(ctx, queueID)
}

func main() {
	// Load .env for local development; absent in containers.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
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

	engine := rules.NewEngine(repo, logger)
	importSvc := importer.NewService(repo, engine, logger)

	// The broker is optional: without it XLSX/PDF exports render inline
	// and sheets sync relies on the worker's pending-queue sweep.
	var brk apphttp.Broker
	if cfg.AMQPURL != "" {
		exportClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, exports will render inline", "error", err)
		} else {
			defer exportClient.Close()
			sheetsClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSheetsQueue)
			if err != nil {
				logger.Warn("AMQP sheets queue unavailable", "error", err)
				exportClient.Close()
			} else {
				defer sheetsClient.Close()
				brk = &broker{export: exportClient, sheets: sheetsClient}
				logger.Info("AMQP connected",
					"exchange", cfg.AMQPExchange,
					"export_queue", cfg.AMQPExportQueue,
					"sheets_queue", cfg.AMQPSheetsQueue)
			}
		}
	}

	hub := ws.NewHub(logger)
	hub.Start()
	defer hub.Stop()

	// Inline renderer doubles as the fallback when no broker is wired.
	renderer := worker.NewExportWorker(repo, cfg.ExportDir, logger)
	renderer.SetNotifier(hub.BroadcastJobUpdate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs dispatched over AMQP finish in the worker process, which has
	// no reach into browser connections; the watcher relays those status
	// changes to websocket clients.
	if brk != nil {
		watcher := worker.NewJobWatcher(repo, hub.BroadcastJobUpdate, time.Second, logger)
		watcher.Start(ctx)
	}

	cacheManager := cache.NewManager()
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Repo:              repo,
		Engine:            engine,
		Importer:          importSvc,
		Broker:            brk,
		Renderer:          renderer,
		Hub:               hub,
		ReceiptsDir:       cfg.ReceiptsDir,
		SheetsSyncEnabled: cfg.SheetsSyncEnabled,
		Logger:            logger,
		CacheManager:      cacheManager,
	})
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("starting taxfolio server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
