package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kharcha/internal/amqp"
	"kharcha/internal/config"
	"kharcha/internal/receipts"
	"kharcha/internal/storage"
	"kharcha/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting kharcha-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the cleanup worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	receiptStore, err := receipts.NewStore(cfg.UploadDir)
	if err != nil {
		logger.Error("Failed to initialize receipt store", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	cleanupWorker := worker.NewCleanupWorker(repo, receiptStore, cfg.SweepGrace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	// Catch anything that was orphaned while the worker was down.
	if n, err := cleanupWorker.SweepOrphans(ctx); err != nil {
		logger.Error("Startup orphan sweep failed", "error", err)
	} else {
		logger.Info("Startup orphan sweep complete", "deleted", n)
	}

	go cleanupWorker.RunSweepLoop(ctx, cfg.SweepInterval)

	logger.Info("Consuming receipt cleanup messages",
		"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	handler := func(msg *amqp.ReceiptCleanupMessage) error {
		return cleanupWorker.HandleCleanupMessage(ctx, msg)
	}
	if err := amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, handler); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Worker stopped gracefully")
}
