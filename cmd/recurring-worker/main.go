package main

import (
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetbook/internal/cli"
	"budgetbook/internal/core"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Published events let the export-worker refresh the months it touches.
	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	materializer := services.NewMaterializer(repo, cli.Publisher(amqpClient))

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Recurring generation configured",
		"interval", cfg.RecurringInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	generate := func(now time.Time) {
		today := core.DateOf(now)
		n, err := materializer.GenerateDue(ctx, today)
		if err != nil {
			logger.Error("Recurring generation failed", log.FieldError, err, "today", today.String())
			return
		}
		logger.Info("Recurring generation complete",
			"entries_created", n,
			"today", today.String(),
			"next_check", now.Add(cfg.RecurringInterval).Format("15:04:05"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		generate(time.Now())

		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				generate(now)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Recurring-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}
