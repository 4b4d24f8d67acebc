// conti is the ledger API server: transactions, transfers and monthly
// aggregate snapshots over JSON.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conti/internal/amqp"
	appconfig "conti/internal/config"
	apphttp "conti/internal/http"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err.Error())
		os.Exit(1)
	}

	var store ledger.Store
	switch cfg.DataBackend {
	case "memory":
		store = memory.NewStore()
		logger.Info("Initialized memory backend")
	default:
		repo, err := storage.NewRepository(cfg.SQLiteDBPath, cfg.TxRetryLimit, logger)
		if err != nil {
			logger.Error("Failed to open SQLite repository",
				log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	}

	var events ledger.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to connect to AMQP", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		events = client
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	coordinator := ledger.NewCoordinator(store, events, logger)
	aggregates := ledger.NewAggregateService(store, cfg.AggregateCacheSize, cfg.AggregateTTL, logger)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	go aggregates.RunJanitor(janitorCtx, cfg.AggregateTTL)

	srv := apphttp.NewServer(":"+cfg.Port, coordinator, aggregates, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("Starting conti server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
