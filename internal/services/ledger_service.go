package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/recurrence"
	"budgetbook/internal/storage"
)

// Ledger orchestrates the recurring billing operations exposed to callers:
// generation, month summaries, rule and entry maintenance and settings.
type Ledger struct {
	store        Store
	settings     *SettingsResolver
	authz        Authorizer
	events       EventPublisher
	now          func() time.Time
	materializer *Materializer
	editor       *RuleEditor
}

type LedgerOption func(*Ledger)

// WithClock sets the source of "today".
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithEvents publishes ledger changes to p.
func WithEvents(p EventPublisher) LedgerOption {
	return func(l *Ledger) { l.events = p }
}

func NewLedger(store Store, settings *SettingsResolver, authz Authorizer, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:    store,
		settings: settings,
		authz:    authz,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.materializer = NewMaterializer(store, l.events)
	l.editor = NewRuleEditor(store, l.events)
	return l
}

// Today is the local calendar day used as the generation horizon.
func (l *Ledger) Today() core.Date {
	return core.DateOf(l.now())
}

// GenerateDue materializes every occurrence up to today inclusive.
func (l *Ledger) GenerateDue(ctx context.Context, today core.Date) (int, error) {
	return l.materializer.GenerateDue(ctx, today)
}

// catchUp brings the ledger up to date before a read or rule edit. A failed
// generation is logged; the caller still works on what is stored.
func (l *Ledger) catchUp(ctx context.Context) {
	if _, err := l.GenerateDue(ctx, l.Today()); err != nil {
		slog.ErrorContext(ctx, "Recurring generation failed", "error", err)
	}
}

// MonthSummary generates due entries, then aggregates the given month.
func (l *Ledger) MonthSummary(ctx context.Context, year, month int) (core.MonthSummary, error) {
	if month < 1 || month > 12 {
		return core.MonthSummary{}, fmt.Errorf("%w: month %d out of range", core.ErrInvalidInput, month)
	}
	if year < 1 || year > 9999 {
		return core.MonthSummary{}, fmt.Errorf("%w: year %d out of range", core.ErrInvalidInput, year)
	}

	l.catchUp(ctx)

	from, to := recurrence.MonthBounds(year, month)
	entries, err := l.store.ListEntriesInRange(ctx, from, to)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("list entries: %w", err)
	}

	return Summarize(year, month, entries, l.settings.Resolve(ctx)), nil
}

func (l *Ledger) ListRules(ctx context.Context) ([]core.RecurringRule, error) {
	return l.store.ListRules(ctx)
}

// CreateRule stores a new rule owned by actor. Missing fields take the
// defaults: price 0, quantity 1, daily, day-of-month, starting today.
func (l *Ledger) CreateRule(ctx context.Context, actor string, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.ID = 0
	rule.Title = strings.TrimSpace(rule.Title)
	rule.Category = strings.TrimSpace(rule.Category)
	rule.Creator = actor
	rule.LastGeneratedDate = core.Date{}
	if !rule.UnitPrice.Valid {
		rule.UnitPrice = decimal.NewNullDecimal(decimal.Zero)
	}
	if !rule.DefaultQuantity.Valid {
		rule.DefaultQuantity = decimal.NewNullDecimal(decimal.NewFromInt(1))
	}
	if rule.Frequency == "" {
		rule.Frequency = core.Daily
	}
	if rule.MonthlyMode == "" {
		rule.MonthlyMode = core.DayOfMonth
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = l.Today()
	}
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	var created core.RecurringRule
	err := l.store.RunInTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = q.CreateRule(ctx, rule)
		return err
	})
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule created",
		"recurring_id", created.ID,
		"title", created.Title,
		"frequency", created.Frequency,
		"creator", actor)

	return created, nil
}

// EditRule applies a partial update to a rule and its materialized entries.
func (l *Ledger) EditRule(ctx context.Context, actor string, id int64, edit core.RuleEdit) (core.RecurringRule, error) {
	rule, err := l.store.GetRule(ctx, id)
	if err != nil {
		return core.RecurringRule{}, err
	}
	if !l.authz.CanWrite(actor, rule.Creator) {
		return core.RecurringRule{}, fmt.Errorf("%w: %q may not edit rule %d", core.ErrPermissionDenied, actor, id)
	}

	l.catchUp(ctx)

	return l.editor.Edit(ctx, id, edit)
}

// DeleteRule removes a rule. With cascade its entries go too; otherwise they
// stay in the ledger as plain entries.
func (l *Ledger) DeleteRule(ctx context.Context, actor string, id int64, cascade bool) error {
	rule, err := l.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if !l.authz.CanWrite(actor, rule.Creator) {
		return fmt.Errorf("%w: %q may not delete rule %d", core.ErrPermissionDenied, actor, id)
	}

	var dates []core.Date
	err = l.store.RunInTx(ctx, func(q *storage.Queries) error {
		if cascade {
			entries, err := q.ListEntriesByRule(ctx, id)
			if err != nil {
				return err
			}
			for _, e := range entries {
				dates = append(dates, e.Date)
			}
			if _, err := q.DeleteEntriesByRule(ctx, id); err != nil {
				return err
			}
		}
		return q.DeleteRule(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule deleted",
		"recurring_id", id,
		"cascade", cascade,
		"entries_deleted", len(dates))

	publishMonths(ctx, l.events, amqp.RuleDeleted, id, dates)
	return nil
}

// CreateEntry records a manual entry. The payer defaults to actor, and only
// an admin may record an entry on someone else's behalf.
func (l *Ledger) CreateEntry(ctx context.Context, actor string, e core.Entry) (core.Entry, error) {
	e.ID = 0
	e.RecurringID = 0
	e.Title = strings.TrimSpace(e.Title)
	e.Category = strings.TrimSpace(e.Category)
	e.Payer = strings.TrimSpace(e.Payer)
	if e.Payer == "" {
		e.Payer = actor
	}
	if e.Date.IsZero() {
		e.Date = l.Today()
	}
	if e.Amount.IsZero() && e.UnitPrice.Valid && e.Quantity.Valid {
		e.Amount = e.UnitPrice.Decimal.Mul(e.Quantity.Decimal)
	}
	if !l.authz.CanWrite(actor, e.Payer) {
		return core.Entry{}, fmt.Errorf("%w: %q may not record entries for %q", core.ErrPermissionDenied, actor, e.Payer)
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}

	var created core.Entry
	err := l.store.RunInTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = q.CreateEntry(ctx, e)
		return err
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("create entry: %w", err)
	}

	publishEvent(ctx, l.events, amqp.NewLedgerEvent(amqp.EntryCreated, created.ID, 0, created.Date))
	return created, nil
}

// EditEntry applies a partial update to one entry, recurring or manual.
func (l *Ledger) EditEntry(ctx context.Context, actor string, id int64, edit core.EntryEdit) (core.Entry, error) {
	current, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, err
	}
	if !l.authz.CanWrite(actor, current.Payer) {
		return core.Entry{}, fmt.Errorf("%w: %q may not edit entry %d", core.ErrPermissionDenied, actor, id)
	}

	updated := edit.Apply(current)
	if err := updated.Validate(); err != nil {
		return core.Entry{}, err
	}

	err = l.store.RunInTx(ctx, func(q *storage.Queries) error {
		return q.UpdateEntry(ctx, updated)
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("update entry: %w", err)
	}

	publishEvent(ctx, l.events, amqp.NewLedgerEvent(amqp.EntryUpdated, id, updated.RecurringID, updated.Date))
	if current.Date.Year() != updated.Date.Year() || current.Date.Month() != updated.Date.Month() {
		publishEvent(ctx, l.events, amqp.NewLedgerEvent(amqp.EntryUpdated, id, updated.RecurringID, current.Date))
	}
	return updated, nil
}

func (l *Ledger) DeleteEntry(ctx context.Context, actor string, id int64) error {
	e, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if !l.authz.CanWrite(actor, e.Payer) {
		return fmt.Errorf("%w: %q may not delete entry %d", core.ErrPermissionDenied, actor, id)
	}

	err = l.store.RunInTx(ctx, func(q *storage.Queries) error {
		return q.DeleteEntry(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	publishEvent(ctx, l.events, amqp.NewLedgerEvent(amqp.EntryDeleted, id, e.RecurringID, e.Date))
	return nil
}

// BulkDeleteEntries deletes the entries actor may delete and skips the rest,
// including unknown ids. It returns how many were deleted.
func (l *Ledger) BulkDeleteEntries(ctx context.Context, actor string, ids []int64) (int, error) {
	var deleted []core.Entry

	err := l.store.RunInTx(ctx, func(q *storage.Queries) error {
		for _, id := range ids {
			e, err := q.GetEntry(ctx, id)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !l.authz.CanWrite(actor, e.Payer) {
				continue
			}
			if err := q.DeleteEntry(ctx, id); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					continue
				}
				return err
			}
			deleted = append(deleted, e)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}

	slog.InfoContext(ctx, "Bulk delete complete",
		"requested", len(ids),
		"deleted", len(deleted),
		"user", actor)

	for _, e := range deleted {
		publishEvent(ctx, l.events, amqp.NewLedgerEvent(amqp.EntryDeleted, e.ID, e.RecurringID, e.Date))
	}
	return len(deleted), nil
}

func (l *Ledger) Settings(ctx context.Context) core.Settings {
	return l.settings.Resolve(ctx)
}

// SaveSettings is restricted to admins.
func (l *Ledger) SaveSettings(ctx context.Context, actor string, s core.Settings) (core.Settings, error) {
	if !l.authz.IsAdmin(actor) {
		return core.Settings{}, fmt.Errorf("%w: only admin can update settings", core.ErrPermissionDenied)
	}
	if err := l.settings.Save(ctx, s); err != nil {
		return core.Settings{}, err
	}
	return l.settings.Resolve(ctx), nil
}
