package services

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/storage"
)

// RuleEditor applies partial rule updates and rewrites the entries the rule
// already produced so they agree with it.
type RuleEditor struct {
	store  Store
	events EventPublisher
}

func NewRuleEditor(store Store, events EventPublisher) *RuleEditor {
	return &RuleEditor{store: store, events: events}
}

// Edit updates rule id and its materialized entries in one transaction.
//
// Title and category always propagate. Unit price and quantity propagate
// when the rule defines them, and the entry amount is recomputed when the
// entry ends up with both. Entry dates and payers never change. The
// watermark is realigned to the latest remaining entry, or cleared.
func (e *RuleEditor) Edit(ctx context.Context, id int64, edit core.RuleEdit) (core.RecurringRule, error) {
	var (
		updated core.RecurringRule
		touched []core.Date
	)

	err := e.store.RunInTx(ctx, func(q *storage.Queries) error {
		rule, err := q.GetRule(ctx, id)
		if err != nil {
			return err
		}

		updated = edit.Apply(rule)
		if err := updated.Validate(); err != nil {
			return err
		}

		entries, err := q.ListEntriesByRule(ctx, id)
		if err != nil {
			return err
		}

		var watermark core.Date
		for _, entry := range entries {
			if err := q.UpdateEntry(ctx, updated.Propagate(entry)); err != nil {
				return fmt.Errorf("propagate to entry %d: %w", entry.ID, err)
			}
			if entry.Date.After(watermark) {
				watermark = entry.Date
			}
			touched = append(touched, entry.Date)
		}
		updated.LastGeneratedDate = watermark

		return q.UpdateRule(ctx, updated)
	})
	if err != nil {
		return core.RecurringRule{}, err
	}

	slog.InfoContext(ctx, "Recurring rule updated",
		"recurring_id", id,
		"entries_updated", len(touched),
		"watermark", updated.LastGeneratedDate.String())

	publishMonths(ctx, e.events, amqp.RuleUpdated, id, touched)

	return updated, nil
}
