package sheets

import (
	"context"

	"budgetbook/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthExporter publishes an aggregated month to an external ledger view.
	// Exporting the same month again replaces the previous copy.
	MonthExporter interface {
		ExportMonth(ctx context.Context, s core.MonthSummary) (ref string, err error)
	}
)

// SheetTitle names the tab or key a month is exported under.
func SheetTitle(year, month int) string {
	return core.NewDate(year, month, 1).Format("2006-01")
}
