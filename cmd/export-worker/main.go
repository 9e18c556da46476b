package main

import (
	"context"
	"errors"
	"os"

	"budgetbook/internal/amqp"
	"budgetbook/internal/backend"
	"budgetbook/internal/cli"
	"budgetbook/internal/log"
	"budgetbook/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting export-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	exp, err := backend.NewFactory(logger.Logger).CreateExporter(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	if exp.Cleanup != nil {
		defer exp.Cleanup()
	}

	// No publisher: entries generated while summarizing must not feed back
	// into the queue this worker consumes.
	ledger := cli.NewLedger(cfg, repo, nil)
	exportWorker := worker.NewExportWorker(ledger, exp.Exporter)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	logger.Info("Performing startup export...")
	if err := exportWorker.StartupExport(ctx, ledger.Today()); err != nil {
		// Don't exit - continue with normal operation
		logger.Error("Startup export failed", log.FieldError, err)
	}

	err = amqpClient.ConsumeLedgerEvents(ctx, exportWorker.HandleLedgerEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Export-worker shutdown complete")
}
