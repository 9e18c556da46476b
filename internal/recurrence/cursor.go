package recurrence

import "budgetbook/internal/core"

// Cursor walks the pending occurrences of one rule, from its watermark up to
// a horizon. The zero Cursor is exhausted.
type Cursor struct {
	rule    core.RecurringRule
	today   core.Date
	next    core.Date
	started bool
}

// NewCursor positions a cursor on the first occurrence not yet materialized.
func NewCursor(rule core.RecurringRule, today core.Date) *Cursor {
	return &Cursor{
		rule:  rule,
		today: today,
		next:  Seed(rule),
	}
}

// Seed returns the first candidate date of a rule given its watermark.
func Seed(rule core.RecurringRule) core.Date {
	last := rule.LastGeneratedDate
	if last.IsZero() || last.Before(rule.StartDate) {
		return firstOccurrence(rule)
	}
	return NextOccurrence(last, rule.Frequency, rule.MonthlyMode, rule.AnchorDay())
}

func firstOccurrence(rule core.RecurringRule) core.Date {
	start := rule.StartDate
	if rule.Frequency == core.Monthly && rule.MonthlyMode.Normalize() == core.CalendarFirst && start.Day() != 1 {
		return FirstOfNextMonth(start)
	}
	return start
}

// Next advances the cursor and reports whether another occurrence is due.
func (c *Cursor) Next() bool {
	if c.next.IsZero() {
		return false
	}
	if c.started {
		c.next = NextOccurrence(c.next, c.rule.Frequency, c.rule.MonthlyMode, c.rule.AnchorDay())
	}
	c.started = true
	if c.next.After(c.today) {
		return false
	}
	if !c.rule.EndDate.IsZero() && c.next.After(c.rule.EndDate) {
		return false
	}
	return true
}

// Date returns the occurrence the cursor is positioned on.
func (c *Cursor) Date() core.Date {
	return c.next
}

// Occurrences lists every pending occurrence of rule up to today inclusive.
func Occurrences(rule core.RecurringRule, today core.Date) []core.Date {
	var out []core.Date
	for c := NewCursor(rule, today); c.Next(); {
		out = append(out, c.Date())
	}
	return out
}
