package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbook/internal/config"
	gsheet "budgetbook/internal/sheets/google"
	"budgetbook/internal/sheets/memory"
)

// FromAppConfig picks Google Sheets when a spreadsheet is configured and the
// in-memory exporter otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	if appConfig.SheetsEnabled() {
		return Config{Type: SheetsBackend, GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID}, nil
	}
	return Config{Type: MemoryBackend}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
	}
	return nil
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsExporter(ctx, config)
	default:
		return f.createMemoryExporter()
	}
}

func (f *DefaultFactory) createSheetsExporter(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &Result{Exporter: cli}, nil
}

func (f *DefaultFactory) createMemoryExporter() (*Result, error) {
	f.logger.Info("Initialized memory exporter - months are kept in process only")
	return &Result{Exporter: memory.New()}, nil
}
