package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage layout of calendar dates.
const DateLayout = "2006-01-02"

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const (
	// DayOfMonth repeats on the start date's day, clamped to the month length.
	DayOfMonth MonthlyMode = "day_of_month"
	// CalendarFirst repeats on the first day of every month.
	CalendarFirst MonthlyMode = "calendar"
)

const maxTitleLength = 256

type (
	Frequency   string
	MonthlyMode string

	// Date is a calendar day in UTC. The zero value means "not set".
	Date struct {
		time.Time
	}

	RecurringRule struct {
		ID              int64               `json:"id"`
		Title           string              `json:"title"`
		UnitPrice       decimal.NullDecimal `json:"unit_price"`
		DefaultQuantity decimal.NullDecimal `json:"default_quantity"`
		Frequency       Frequency           `json:"frequency"`
		MonthlyMode     MonthlyMode         `json:"monthly_mode"`
		Category        string              `json:"category"`
		StartDate       Date                `json:"start_date"`
		EndDate         Date                `json:"end_date"`
		// LastGeneratedDate is the materialization watermark.
		LastGeneratedDate Date      `json:"last_generated_date"`
		Creator           string    `json:"creator"`
		CreatedAt         time.Time `json:"created_at"`
	}

	// Entry is one concrete ledger line. RecurringID is zero for manual entries.
	Entry struct {
		ID          int64               `json:"id"`
		Date        Date                `json:"date"`
		Title       string              `json:"title"`
		Category    string              `json:"category"`
		UnitPrice   decimal.NullDecimal `json:"unit_price"`
		Quantity    decimal.NullDecimal `json:"quantity"`
		Amount      decimal.Decimal     `json:"amount"`
		Payer       string              `json:"payer"`
		RecurringID int64               `json:"recurring_id,omitempty"`
		CreatedAt   time.Time           `json:"created_at"`
	}

	// RuleEdit is a partial update of a rule; nil fields are left untouched.
	RuleEdit struct {
		Title           *string          `json:"title"`
		UnitPrice       *decimal.Decimal `json:"unit_price"`
		DefaultQuantity *decimal.Decimal `json:"default_quantity"`
		Category        *string          `json:"category"`
		Frequency       *Frequency       `json:"frequency"`
		MonthlyMode     *MonthlyMode     `json:"monthly_mode"`
		StartDate       *Date            `json:"start_date"`
		EndDate         *Date            `json:"end_date"`
	}

	// EntryEdit is a partial update of a single entry.
	EntryEdit struct {
		Date      *Date            `json:"date"`
		Title     *string          `json:"title"`
		Category  *string          `json:"category"`
		UnitPrice *decimal.Decimal `json:"unit_price"`
		Quantity  *decimal.Decimal `json:"quantity"`
		Amount    *decimal.Decimal `json:"amount"`
		Payer     *string          `json:"payer"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string. Anything else is rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	// The zero Date means "not set", so 0001-01-01 cannot be an input.
	if t.Year() < 1 || t.IsZero() {
		return Date{}, fmt.Errorf("%w: date %q is out of range", ErrInvalidInput, s)
	}
	return Date{Time: t}, nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", ErrInvalidInput)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Normalize maps unknown or empty modes to DayOfMonth.
func (m MonthlyMode) Normalize() MonthlyMode {
	if m == CalendarFirst {
		return CalendarFirst
	}
	return DayOfMonth
}

func (m MonthlyMode) Valid() bool {
	return m == DayOfMonth || m == CalendarFirst
}

// AnchorDay is the day of month that DayOfMonth rules repeat on.
func (r RecurringRule) AnchorDay() int {
	return r.StartDate.Day()
}

// OccurrenceAmount returns the amount and quantity written for each occurrence.
// An unset price counts as zero and an unset quantity as one.
func (r RecurringRule) OccurrenceAmount() (amount decimal.Decimal, quantity decimal.Decimal) {
	quantity = decimal.NewFromInt(1)
	if r.DefaultQuantity.Valid {
		quantity = r.DefaultQuantity.Decimal
	}
	price := decimal.Zero
	if r.UnitPrice.Valid {
		price = r.UnitPrice.Decimal
	}
	return price.Mul(quantity), quantity
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyTitle)
	}
	if len(r.Title) > maxTitleLength {
		return fmt.Errorf("%w: title too long (max %d characters)", ErrInvalidInput, maxTitleLength)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: end date must not precede start date", ErrInvalidInput)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, r.Frequency)
	}
	if r.MonthlyMode != "" && !r.MonthlyMode.Valid() {
		return fmt.Errorf("%w: unknown monthly mode %q", ErrInvalidInput, r.MonthlyMode)
	}
	if err := ValidateNonNegative("unit price", r.UnitPrice); err != nil {
		return err
	}
	return ValidateNonNegative("default quantity", r.DefaultQuantity)
}

// Apply returns a copy of r with the edit's fields overwritten.
func (e RuleEdit) Apply(r RecurringRule) RecurringRule {
	if e.Title != nil {
		r.Title = strings.TrimSpace(*e.Title)
	}
	if e.UnitPrice != nil {
		r.UnitPrice = decimal.NewNullDecimal(*e.UnitPrice)
	}
	if e.DefaultQuantity != nil {
		r.DefaultQuantity = decimal.NewNullDecimal(*e.DefaultQuantity)
	}
	if e.Category != nil {
		r.Category = strings.TrimSpace(*e.Category)
	}
	if e.Frequency != nil {
		r.Frequency = *e.Frequency
	}
	if e.MonthlyMode != nil {
		r.MonthlyMode = *e.MonthlyMode
	}
	if e.StartDate != nil && !e.StartDate.IsZero() {
		r.StartDate = *e.StartDate
	}
	if e.EndDate != nil && !e.EndDate.IsZero() {
		r.EndDate = *e.EndDate
	}
	return r
}

// Propagate rewrites an entry materialized from r after r was edited.
// Date and payer are never touched.
func (r RecurringRule) Propagate(e Entry) Entry {
	e.Title = r.Title
	e.Category = r.Category
	if r.UnitPrice.Valid {
		e.UnitPrice = r.UnitPrice
	}
	if r.DefaultQuantity.Valid {
		e.Quantity = r.DefaultQuantity
	}
	if e.UnitPrice.Valid && e.Quantity.Valid {
		e.Amount = e.UnitPrice.Decimal.Mul(e.Quantity.Decimal)
	}
	return e
}

func (e Entry) IsRecurring() bool {
	return e.RecurringID != 0
}

func (e Entry) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyTitle)
	}
	if len(e.Title) > maxTitleLength {
		return fmt.Errorf("%w: title too long (max %d characters)", ErrInvalidInput, maxTitleLength)
	}
	if err := ValidateNonNegative("unit price", e.UnitPrice); err != nil {
		return err
	}
	return ValidateNonNegative("quantity", e.Quantity)
}

// Apply returns a copy of e with the edit's fields overwritten.
func (ed EntryEdit) Apply(e Entry) Entry {
	if ed.Date != nil && !ed.Date.IsZero() {
		e.Date = *ed.Date
	}
	if ed.Title != nil {
		e.Title = strings.TrimSpace(*ed.Title)
	}
	if ed.Category != nil {
		e.Category = strings.TrimSpace(*ed.Category)
	}
	if ed.UnitPrice != nil {
		e.UnitPrice = decimal.NewNullDecimal(*ed.UnitPrice)
	}
	if ed.Quantity != nil {
		e.Quantity = decimal.NewNullDecimal(*ed.Quantity)
	}
	if ed.Amount != nil {
		e.Amount = *ed.Amount
	}
	if ed.Payer != nil {
		e.Payer = strings.TrimSpace(*ed.Payer)
	}
	return e
}

// MarshalJSON adds the derived "recurring" flag used by ledger views.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		plain
		Recurring bool `json:"recurring"`
	}{plain(e), e.IsRecurring()})
}
