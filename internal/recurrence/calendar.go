// Package recurrence projects the occurrence dates of recurring rules.
//
// Each frequency has its own Stepper that knows how to move from one
// occurrence to the next. All functions are pure.
package recurrence

import (
	"time"

	"budgetbook/internal/core"
)

// Stepper is the strategy interface for computing the next occurrence of a
// frequency. anchorDay is only meaningful for day-of-month stepping.
type Stepper interface {
	Next(d core.Date, mode core.MonthlyMode, anchorDay int) core.Date
}

// DailyStepper advances by one day.
type DailyStepper struct{}

func (DailyStepper) Next(d core.Date, _ core.MonthlyMode, _ int) core.Date {
	return d.AddDays(1)
}

// WeeklyStepper advances by seven days.
type WeeklyStepper struct{}

func (WeeklyStepper) Next(d core.Date, _ core.MonthlyMode, _ int) core.Date {
	return d.AddDays(7)
}

// MonthlyStepper advances into the following month, honoring the monthly mode.
type MonthlyStepper struct{}

func (MonthlyStepper) Next(d core.Date, mode core.MonthlyMode, anchorDay int) core.Date {
	y, m := nextMonth(d.Year(), d.Month())
	if mode.Normalize() == core.CalendarFirst {
		return core.NewDate(y, m, 1)
	}
	return core.NewDate(y, m, min(clampAnchor(anchorDay), DaysInMonth(y, m)))
}

var steppers = map[core.Frequency]Stepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
}

// StepperFor returns the stepper of a frequency. Unknown frequencies step
// monthly, the same way an unknown monthly mode falls back to day-of-month.
func StepperFor(f core.Frequency) Stepper {
	if s, ok := steppers[f]; ok {
		return s
	}
	return MonthlyStepper{}
}

// NextOccurrence returns the occurrence after d.
func NextOccurrence(d core.Date, f core.Frequency, mode core.MonthlyMode, anchorDay int) core.Date {
	return StepperFor(f).Next(d, mode, anchorDay)
}

// DaysInMonth returns the number of days of month m (1-12) in year y.
func DaysInMonth(y, m int) int {
	return time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstOfNextMonth returns the first day of the month following d.
func FirstOfNextMonth(d core.Date) core.Date {
	y, m := nextMonth(d.Year(), d.Month())
	return core.NewDate(y, m, 1)
}

// MonthBounds returns the first and last day of a month.
func MonthBounds(y, m int) (core.Date, core.Date) {
	return core.NewDate(y, m, 1), core.NewDate(y, m, DaysInMonth(y, m))
}

func nextMonth(y, m int) (int, int) {
	if m == 12 {
		return y + 1, 1
	}
	return y, m + 1
}

func clampAnchor(day int) int {
	return max(1, min(day, 31))
}
