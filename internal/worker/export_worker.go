package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/sheets"
)

// MonthSummarizer produces the aggregated view of a month.
type MonthSummarizer interface {
	MonthSummary(ctx context.Context, year, month int) (core.MonthSummary, error)
}

// ExportWorker keeps exported month views in step with the ledger. Each
// ledger event re-exports the whole month it touched.
type ExportWorker struct {
	ledger   MonthSummarizer
	exporter sheets.MonthExporter
}

func NewExportWorker(ledger MonthSummarizer, exporter sheets.MonthExporter) *ExportWorker {
	return &ExportWorker{
		ledger:   ledger,
		exporter: exporter,
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev == nil || ev.Date.IsZero() {
		return errors.New("ledger event without date")
	}

	slog.InfoContext(ctx, "Processing ledger event",
		"event_id", ev.ID,
		"type", ev.Type,
		"entry_id", ev.EntryID,
		"rule_id", ev.RuleID,
		"date", ev.Date.String())

	return w.ExportMonth(ctx, ev.Date.Year(), ev.Date.Month())
}

// ExportMonth summarizes year/month and hands it to the exporter.
func (w *ExportWorker) ExportMonth(ctx context.Context, year, month int) error {
	summary, err := w.ledger.MonthSummary(ctx, year, month)
	if err != nil {
		return fmt.Errorf("summarize %04d-%02d: %w", year, month, err)
	}

	ref, err := w.exporter.ExportMonth(ctx, summary)
	if err != nil {
		return fmt.Errorf("export %04d-%02d: %w", year, month, err)
	}

	slog.InfoContext(ctx, "Successfully exported month",
		"year", year,
		"month", month,
		"ref", ref,
		"total", summary.Total.String())
	return nil
}

// StartupExport re-exports the current month so a worker that missed
// events while down catches up.
func (w *ExportWorker) StartupExport(ctx context.Context, today core.Date) error {
	if err := w.ExportMonth(ctx, today.Year(), today.Month()); err != nil {
		return fmt.Errorf("startup export: %w", err)
	}
	slog.InfoContext(ctx, "Startup export completed", "month", today.Format("2006-01"))
	return nil
}
