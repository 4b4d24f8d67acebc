// conti-worker consumes ledger events from RabbitMQ and keeps the monthly
// aggregate snapshots fresh, optionally mirroring them to Google Sheets.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	appconfig "conti/internal/config"
	"conti/internal/export"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/storage"
	"conti/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting conti-worker")

	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath, cfg.TxRetryLimit, logger)
	if err != nil {
		logger.Error("Failed to open SQLite repository",
			log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exporter export.AggregateExporter
	if cfg.SheetsExportEnabled() {
		sheets, err := export.NewSheetsClient(ctx, export.SheetsConfig{
			SpreadsheetID:      cfg.SheetsSpreadsheetID,
			SheetName:          cfg.SheetsSheetName,
			ServiceAccountJSON: cfg.SheetsServiceAccountJSON,
			ServiceAccountFile: cfg.SheetsServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Sheets exporter", log.FieldError, err.Error())
			os.Exit(1)
		}
		exporter = sheets
		logger.Info("Sheets export enabled", "spreadsheet_id", cfg.SheetsSpreadsheetID)
	} else {
		logger.Info("Sheets export disabled")
	}

	aggregates := ledger.NewAggregateService(repo, cfg.AggregateCacheSize, cfg.AggregateTTL, logger)
	w := worker.NewAggregateWorker(aggregates, exporter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeLedgerEvents(gctx, func(msg *amqp.LedgerEventMessage) error {
			return w.HandleLedgerEvent(gctx, msg)
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
