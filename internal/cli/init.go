// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/budgetbook, cmd/recurring-worker and cmd/export-worker.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetbook/internal/amqp"
	"budgetbook/internal/cache"
	"budgetbook/internal/config"
	"budgetbook/internal/core"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from the configured level and format
// and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    out,
	})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "log_level", cfg.LogLevel)
	}
	return logger
}

// LoadAndValidateConfig loads .env and the environment, sets up logging and
// validates the result. It exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// InitAMQP connects to the broker when AMQP_URL is set. It returns nil when
// AMQP is disabled or unreachable; callers then run without events.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - ledger events will not be published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return nil
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// Publisher converts a possibly nil client into an EventPublisher, keeping a
// nil *amqp.Client from becoming a non-nil interface.
func Publisher(client *amqp.Client) services.EventPublisher {
	if client == nil {
		return nil
	}
	return client
}

// SettingsCache returns the cache for resolved settings; a zero TTL disables it.
func SettingsCache(cfg *config.Config) cache.Cache[core.Settings] {
	if cfg.SettingsCacheTTL <= 0 {
		return cache.Nop[core.Settings]{}
	}
	return cache.NewLRUCache[core.Settings](1, cfg.SettingsCacheTTL)
}

// NewLedger wires the ledger service over repo with the configured admin,
// currency and settings cache. events may be nil.
func NewLedger(cfg *config.Config, repo *storage.SQLiteRepository, events services.EventPublisher) *services.Ledger {
	settings := services.NewSettingsResolver(repo, cfg.DefaultCurrency, SettingsCache(cfg))
	opts := []services.LedgerOption{}
	if events != nil {
		opts = append(opts, services.WithEvents(events))
	}
	return services.NewLedger(repo, settings, services.NewAdminOrOwner(cfg.AdminName), opts...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
