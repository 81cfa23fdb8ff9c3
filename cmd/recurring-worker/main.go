package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.NewAppFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	runner := worker.NewSyncRunner(app.Rules, worker.SyncRunnerConfig{
		Interval: cfg.SyncInterval,
		OwnerID:  cfg.OwnerID,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		logger.Info("Shutting down recurring-worker...")
		if err := runner.Stop(shutdownCtx); err != nil {
			logger.Warn("Sync runner did not stop cleanly", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release backend", applog.FieldError, err)
		}
	})

	logger.Info("Recurring rule sync configured",
		"interval", cfg.SyncInterval,
		applog.FieldOwnerID, cfg.OwnerID,
		"backend", cfg.DataBackend,
		"concurrency", cfg.SyncConcurrency)

	if err := runner.Start(ctx); err != nil {
		logger.Error("Failed to start sync runner", applog.FieldError, err)
		os.Exit(1)
	}

	// Entry edits arrive only when a broker is configured.
	if broker := app.Broker(); broker != nil {
		consumer := worker.NewOverrideConsumer(app.Rules, cfg.OwnerID)
		go func() {
			if err := consumer.Run(ctx, broker, cfg.AMQPOverrideQueue); err != nil && ctx.Err() == nil {
				logger.Error("Entry edit consumer stopped", applog.FieldError, err)
			}
		}()
		logger.Info("Consuming entry edits", applog.FieldQueue, cfg.AMQPOverrideQueue)
	} else {
		logger.Info("AMQP disabled - entry edits will not be consumed")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
