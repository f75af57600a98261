package main

import (
	"context"
	"os"
	"time"

	"financeflow/internal/cli"
	"financeflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting financeflow-worker", "broker", cfg.EventBroker)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	store, err := cli.OpenStore(bootCtx, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	mirror, err := cli.OpenMirror(bootCtx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets mirror", "error", err)
		os.Exit(1)
	}
	if mirror == nil {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	} else {
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	consumer, err := cli.NewConsumer(cfg)
	if err != nil {
		logger.Error("Failed to initialize event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, done := cli.GracefulShutdown(15*time.Second, nil)

	w := worker.NewEventWorker(store, mirror)
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Event worker stopped with error", "error", err)
		os.Exit(1)
	}
	if ctx.Err() == nil {
		logger.Warn("Event consumer closed")
		return
	}
	<-done
	logger.Info("Worker stopped gracefully")
}
