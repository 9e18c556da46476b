package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetbook/internal/core"
	ports "budgetbook/internal/sheets"
)

// Exporter keeps the latest export of each month in memory. It backs the
// export worker when no spreadsheet is configured.
type Exporter struct {
	mu      sync.Mutex
	months  map[string]core.MonthSummary
	exports int
}

var _ ports.MonthExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{months: make(map[string]core.MonthSummary)}
}

// ExportMonth stores the summary and returns a synthetic reference.
func (e *Exporter) ExportMonth(_ context.Context, s core.MonthSummary) (string, error) {
	if s.Month < 1 || s.Month > 12 {
		return "", fmt.Errorf("invalid month: %d", s.Month)
	}
	key := ports.SheetTitle(s.Year, s.Month)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.months[key] = s
	e.exports++
	return "mem:" + key, nil
}

// Month returns the last exported summary for year and month.
func (e *Exporter) Month(year, month int) (core.MonthSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.months[ports.SheetTitle(year, month)]
	return s, ok
}

// Exports counts every ExportMonth call that succeeded.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
