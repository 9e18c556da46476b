package google

import "budgetbook/internal/core"

var entryHeader = []any{"Date", "Title", "Category", "Payer", "Amount", "Recurring"}

// monthRows lays a summary out as sheet rows: one line per entry in date
// order, then the totals.
func monthRows(s core.MonthSummary) [][]any {
	rows := [][]any{entryHeader}
	for _, d := range s.Dates() {
		for _, e := range s.ByDate[d].Entries {
			recurring := ""
			if e.IsRecurring() {
				recurring = "yes"
			}
			rows = append(rows, []any{d, e.Title, e.Category, e.Payer, e.Amount.String(), recurring})
		}
	}

	rows = append(rows,
		[]any{},
		[]any{"Total", s.Total.String(), s.Settings.Currency},
	)
	if s.TopCategory != nil {
		rows = append(rows, []any{"Top category", *s.TopCategory})
	}

	rows = append(rows, []any{}, []any{"Payer", "Amount"})
	for _, name := range s.PerPayer.Names() {
		v, _ := s.PerPayer.Get(name)
		rows = append(rows, []any{name, v.String()})
	}

	if s.PerCategory.Len() > 0 {
		rows = append(rows, []any{}, []any{"Category", "Amount"})
		for _, name := range s.PerCategory.Names() {
			v, _ := s.PerCategory.Get(name)
			rows = append(rows, []any{name, v.String()})
		}
	}
	return rows
}
