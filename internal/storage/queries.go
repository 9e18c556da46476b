package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budgetbook/internal/core"
)

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement of the ledger schema. It runs against the
// pool or inside a transaction depending on the DBTX it was built with.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: time.Now}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, now: q.now}
}

const ruleColumns = `id, title, unit_price, default_quantity, frequency, monthly_mode, category,
	start_date, end_date, last_generated_date, creator, created_at`

const entryColumns = `id, date, title, category, unit_price, quantity, amount, payer, recurring_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func (q *Queries) CreateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	r.CreatedAt = q.now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO recurring_rule (title, unit_price, default_quantity, frequency, monthly_mode, category,
			start_date, end_date, last_generated_date, creator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Title,
		nullDecimal(r.UnitPrice),
		nullDecimal(r.DefaultQuantity),
		string(r.Frequency),
		string(r.MonthlyMode),
		r.Category,
		r.StartDate.String(),
		nullDate(r.EndDate),
		nullDate(r.LastGeneratedDate),
		r.Creator,
		r.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("insert rule: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return core.RecurringRule{}, fmt.Errorf("rule id: %w", err)
	}
	return r, nil
}

func (q *Queries) GetRule(ctx context.Context, id int64) (core.RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rule WHERE id = ?`, id)
	r, err := scanRule(row)
	if err != nil {
		return core.RecurringRule{}, mapError(err, "recurring rule", id)
	}
	return r, nil
}

// ListRules returns every rule, newest first.
func (q *Queries) ListRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rule ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRule overwrites the editable fields and the watermark of a rule.
func (q *Queries) UpdateRule(ctx context.Context, r core.RecurringRule) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_rule
		SET title = ?, unit_price = ?, default_quantity = ?, frequency = ?, monthly_mode = ?, category = ?,
			start_date = ?, end_date = ?, last_generated_date = ?
		WHERE id = ?`,
		r.Title,
		nullDecimal(r.UnitPrice),
		nullDecimal(r.DefaultQuantity),
		string(r.Frequency),
		string(r.MonthlyMode),
		r.Category,
		r.StartDate.String(),
		nullDate(r.EndDate),
		nullDate(r.LastGeneratedDate),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return expectAffected(res, "recurring rule", r.ID)
}

func (q *Queries) DeleteRule(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM recurring_rule WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectAffected(res, "recurring rule", id)
}

// AdvanceWatermark moves the watermark forward to d. It never moves it back,
// so a slower concurrent generator cannot undo a faster one.
func (q *Queries) AdvanceWatermark(ctx context.Context, ruleID int64, d core.Date) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE recurring_rule SET last_generated_date = ?
		WHERE id = ? AND (last_generated_date IS NULL OR last_generated_date < ?)`,
		d.String(), ruleID, d.String())
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

func (q *Queries) EntryExists(ctx context.Context, ruleID int64, d core.Date) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_entry WHERE recurring_id = ? AND date = ?`, ruleID, d.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}
	return n > 0, nil
}

// CreateEntry inserts an entry. A second entry for the same rule and date
// fails with core.ErrAlreadyMaterialized.
func (q *Queries) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	e.CreatedAt = q.now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_entry (date, title, category, unit_price, quantity, amount, payer, recurring_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Date.String(),
		e.Title,
		e.Category,
		nullDecimal(e.UnitPrice),
		nullDecimal(e.Quantity),
		e.Amount.String(),
		e.Payer,
		nullID(e.RecurringID),
		e.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		return core.Entry{}, mapError(err, "ledger entry", 0)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Entry{}, fmt.Errorf("entry id: %w", err)
	}
	return e, nil
}

func (q *Queries) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entry WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return core.Entry{}, mapError(err, "ledger entry", id)
	}
	return e, nil
}

func (q *Queries) UpdateEntry(ctx context.Context, e core.Entry) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE ledger_entry
		SET date = ?, title = ?, category = ?, unit_price = ?, quantity = ?, amount = ?, payer = ?
		WHERE id = ?`,
		e.Date.String(),
		e.Title,
		e.Category,
		nullDecimal(e.UnitPrice),
		nullDecimal(e.Quantity),
		e.Amount.String(),
		e.Payer,
		e.ID,
	)
	if err != nil {
		return mapError(err, "ledger entry", e.ID)
	}
	return expectAffected(res, "ledger entry", e.ID)
}

func (q *Queries) DeleteEntry(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM ledger_entry WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectAffected(res, "ledger entry", id)
}

func (q *Queries) DeleteEntriesByRule(ctx context.Context, ruleID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM ledger_entry WHERE recurring_id = ?`, ruleID)
	if err != nil {
		return 0, fmt.Errorf("delete rule entries: %w", err)
	}
	return res.RowsAffected()
}

func (q *Queries) ListEntriesByRule(ctx context.Context, ruleID int64) ([]core.Entry, error) {
	return q.listEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entry
		WHERE recurring_id = ? ORDER BY date, created_at, id`, ruleID)
}

// ListEntriesInRange returns entries dated within [from, to], ordered by
// date and then creation time.
func (q *Queries) ListEntriesInRange(ctx context.Context, from, to core.Date) ([]core.Entry, error) {
	return q.listEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entry
		WHERE date >= ? AND date <= ? ORDER BY date, created_at, id`, from.String(), to.String())
}

func (q *Queries) listEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSetting returns the stored value of key and whether it exists.
func (q *Queries) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM app_setting WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (q *Queries) PutSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO app_setting (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func scanRule(s scanner) (core.RecurringRule, error) {
	var (
		r                            core.RecurringRule
		frequency, mode, start, made string
		price, qty, end, watermark   sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Title, &price, &qty, &frequency, &mode, &r.Category,
		&start, &end, &watermark, &r.Creator, &made); err != nil {
		return core.RecurringRule{}, err
	}
	r.Frequency = core.Frequency(frequency)
	r.MonthlyMode = core.MonthlyMode(mode)

	var err error
	if r.UnitPrice, err = parseNullDecimal(price); err != nil {
		return core.RecurringRule{}, err
	}
	if r.DefaultQuantity, err = parseNullDecimal(qty); err != nil {
		return core.RecurringRule{}, err
	}
	if r.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringRule{}, err
	}
	if r.EndDate, err = parseNullDate(end); err != nil {
		return core.RecurringRule{}, err
	}
	if r.LastGeneratedDate, err = parseNullDate(watermark); err != nil {
		return core.RecurringRule{}, err
	}
	if r.CreatedAt, err = time.Parse(timestampLayout, made); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse created_at: %w", err)
	}
	return r, nil
}

func scanEntry(s scanner) (core.Entry, error) {
	var (
		e                  core.Entry
		date, amount, made string
		price, qty         sql.NullString
		recurringID        sql.NullInt64
	)
	if err := s.Scan(&e.ID, &date, &e.Title, &e.Category, &price, &qty, &amount, &e.Payer,
		&recurringID, &made); err != nil {
		return core.Entry{}, err
	}
	e.RecurringID = recurringID.Int64

	var err error
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Entry{}, err
	}
	if e.UnitPrice, err = parseNullDecimal(price); err != nil {
		return core.Entry{}, err
	}
	if e.Quantity, err = parseNullDecimal(qty); err != nil {
		return core.Entry{}, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Entry{}, fmt.Errorf("parse amount: %w", err)
	}
	if e.CreatedAt, err = time.Parse(timestampLayout, made); err != nil {
		return core.Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	return e, nil
}

func expectAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, core.ErrNotFound)
	}
	return nil
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse decimal %q: %w", s.String, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}
