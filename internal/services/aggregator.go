package services

import (
	"github.com/shopspring/decimal"

	"budgetbook/internal/core"
)

// Summarize folds a month of entries, already ordered by date and creation
// time, into per-day groups and totals. It has no side effects.
func Summarize(year, month int, entries []core.Entry, settings core.Settings) core.MonthSummary {
	s := core.MonthSummary{
		Year:     year,
		Month:    month,
		ByDate:   make(map[string]core.DaySummary),
		Total:    decimal.Zero,
		Settings: settings,
	}

	for _, e := range entries {
		key := e.Date.String()
		day := s.ByDate[key]
		day.Total = day.Total.Add(e.Amount)
		day.Entries = append(day.Entries, e)
		s.ByDate[key] = day

		s.Total = s.Total.Add(e.Amount)
		s.PerPayer.Add(e.Payer, e.Amount)
		if e.Category != "" {
			s.PerCategory.Add(e.Category, e.Amount)
		}
	}

	if top, ok := s.PerCategory.Max(); ok {
		s.TopCategory = &top
	}

	return s
}
