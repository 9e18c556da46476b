package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/recurrence"
	"budgetbook/internal/storage"
)

// Materializer turns due occurrences of recurring rules into ledger entries.
// It is safe to call repeatedly and concurrently: each occurrence is checked,
// inserted and checkpointed in one transaction, and the storage layer rejects
// a second entry for the same rule and date.
type Materializer struct {
	store  Store
	events EventPublisher
	flight singleflight.Group
}

func NewMaterializer(store Store, events EventPublisher) *Materializer {
	return &Materializer{
		store:  store,
		events: events,
	}
}

// GenerateDue materializes every occurrence dated on or before today and
// returns how many entries were created. Concurrent calls for the same day
// share one run. A failing rule is logged and skipped.
func (m *Materializer) GenerateDue(ctx context.Context, today core.Date) (int, error) {
	if m.store == nil {
		return 0, fmt.Errorf("materializer not properly initialized")
	}

	n, shared, err := m.join(ctx, today)
	if err != nil || !shared {
		return n, err
	}

	// A joined run may have listed rules before this caller's own writes.
	// Any run in flight after it finished started after this call did.
	slog.DebugContext(ctx, "Joined in-flight recurring generation", "today", today.String())
	more, _, err := m.join(ctx, today)
	return n + more, err
}

// join runs generate once per day key. The run is detached from the caller's
// cancellation so one abandoned request cannot cut it short for the others.
func (m *Materializer) join(ctx context.Context, today core.Date) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	ch := m.flight.DoChan(today.String(), func() (any, error) {
		return m.generate(context.WithoutCancel(ctx), today)
	})

	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Shared, res.Err
		}
		return res.Val.(int), res.Shared, nil
	}
}

func (m *Materializer) generate(ctx context.Context, today core.Date) (int, error) {
	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get recurring rules: %w", err)
	}

	created, failed := 0, 0
	touched := make(map[int64][]core.Date)
	for _, rule := range rules {
		dates, err := m.materializeRule(ctx, rule, today)
		created += len(dates)
		touched[rule.ID] = dates
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return created, ctxErr
			}
			failed++
			slog.ErrorContext(ctx, "Failed to materialize recurring rule",
				"recurring_id", rule.ID,
				"title", rule.Title,
				"error", err)
			continue
		}
	}

	for _, rule := range rules {
		publishMonths(ctx, m.events, amqp.EntryCreated, rule.ID, touched[rule.ID])
	}

	if created > 0 || failed > 0 {
		slog.InfoContext(ctx, "Recurring generation complete",
			"created", created,
			"failed_rules", failed,
			"total_rules", len(rules),
			"today", today.String())
	}

	return created, nil
}

// materializeRule returns the dates of the entries it created.
func (m *Materializer) materializeRule(ctx context.Context, rule core.RecurringRule, today core.Date) ([]core.Date, error) {
	var created []core.Date
	for c := recurrence.NewCursor(rule, today); c.Next(); {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		d := c.Date()
		entry, err := m.materializeOccurrence(ctx, rule, d)
		if err != nil {
			return created, fmt.Errorf("occurrence %s: %w", d, err)
		}
		if entry == nil {
			continue
		}

		created = append(created, d)
		slog.InfoContext(ctx, "Created entry from recurring rule",
			"recurring_id", rule.ID,
			"entry_id", entry.ID,
			"date", d.String(),
			"amount", entry.Amount.String(),
			"frequency", rule.Frequency)
	}
	return created, nil
}

// materializeOccurrence returns the created entry, or nil when the occurrence
// was already in the ledger. Either way the watermark reaches d.
func (m *Materializer) materializeOccurrence(ctx context.Context, rule core.RecurringRule, d core.Date) (*core.Entry, error) {
	var created *core.Entry

	err := m.store.RunInTx(ctx, func(q *storage.Queries) error {
		exists, err := q.EntryExists(ctx, rule.ID, d)
		if err != nil {
			return err
		}

		if !exists {
			amount, quantity := rule.OccurrenceAmount()
			e, err := q.CreateEntry(ctx, core.Entry{
				Date:        d,
				Title:       rule.Title,
				Category:    rule.Category,
				UnitPrice:   rule.UnitPrice,
				Quantity:    decimal.NewNullDecimal(quantity),
				Amount:      amount,
				Payer:       rule.Creator,
				RecurringID: rule.ID,
			})
			switch {
			case errors.Is(err, core.ErrAlreadyMaterialized):
				slog.DebugContext(ctx, "Occurrence materialized concurrently",
					"recurring_id", rule.ID,
					"date", d.String())
			case err != nil:
				return err
			default:
				created = &e
			}
		}

		return q.AdvanceWatermark(ctx, rule.ID, d)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
