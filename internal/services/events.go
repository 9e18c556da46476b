package services

import (
	"context"
	"log/slog"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
)

// EventPublisher delivers ledger change notifications to downstream consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// publishEvent never fails the caller: the ledger row is already committed.
func publishEvent(ctx context.Context, p EventPublisher, ev *amqp.LedgerEvent) {
	if p == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping ledger event",
			"type", ev.Type,
			"date", ev.Date.String())
		return
	}
	if err := p.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"entry_id", ev.EntryID,
			"rule_id", ev.RuleID,
			"error", err)
	}
}

// publishMonths emits one event per distinct month touched by dates.
func publishMonths(ctx context.Context, p EventPublisher, typ amqp.EventType, ruleID int64, dates []core.Date) {
	seen := make(map[string]struct{})
	for _, d := range dates {
		first := core.NewDate(d.Year(), d.Month(), 1)
		if _, ok := seen[first.String()]; ok {
			continue
		}
		seen[first.String()] = struct{}{}
		publishEvent(ctx, p, amqp.NewLedgerEvent(typ, 0, ruleID, first))
	}
}
