// Package backend selects where exported month views are written.
package backend

import (
	"context"

	"budgetbook/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the exporter and an optional cleanup function.
type Result struct {
	Exporter sheets.MonthExporter
	Cleanup  CleanupFunc
}

// Factory creates exporters based on configuration
type Factory interface {
	CreateExporter(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for exporter creation
type Config struct {
	Type Type

	// Google Sheets specific. Credentials are read from the environment by
	// the sheets client itself.
	GoogleSpreadsheetID string
}

// Type names an export backend.
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
