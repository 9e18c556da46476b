package core

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no currency setting is stored.
const DefaultCurrency = "₹"

// Settings are the app-wide ledger preferences.
type Settings struct {
	Currency   string   `json:"currency"`
	Categories []string `json:"categories"`
}

// DaySummary groups the entries of one calendar day.
type DaySummary struct {
	Total   decimal.Decimal `json:"total"`
	Entries []Entry         `json:"entries"`
}

// NamedAmounts is a name to amount map that keeps first-insertion order.
type NamedAmounts struct {
	names  []string
	totals map[string]decimal.Decimal
}

func (n *NamedAmounts) Add(name string, amount decimal.Decimal) {
	if n.totals == nil {
		n.totals = make(map[string]decimal.Decimal)
	}
	cur, ok := n.totals[name]
	if !ok {
		n.names = append(n.names, name)
	}
	n.totals[name] = cur.Add(amount)
}

func (n NamedAmounts) Get(name string) (decimal.Decimal, bool) {
	v, ok := n.totals[name]
	return v, ok
}

// Names returns names in the order they were first added.
func (n NamedAmounts) Names() []string {
	return append([]string(nil), n.names...)
}

func (n NamedAmounts) Len() int { return len(n.names) }

// Max returns the name with the largest amount. Ties go to the earliest name.
func (n NamedAmounts) Max() (string, bool) {
	if len(n.names) == 0 {
		return "", false
	}
	best := n.names[0]
	for _, name := range n.names[1:] {
		if n.totals[name].GreaterThan(n.totals[best]) {
			best = name
		}
	}
	return best, true
}

// MarshalJSON writes a JSON object with keys in insertion order.
func (n NamedAmounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range n.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(n.totals[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MonthSummary is the aggregated view of one calendar month.
type MonthSummary struct {
	Year        int                   `json:"year"`
	Month       int                   `json:"month"`
	ByDate      map[string]DaySummary `json:"by_date"`
	Total       decimal.Decimal       `json:"total"`
	PerPayer    NamedAmounts          `json:"per_payer"`
	PerCategory NamedAmounts          `json:"per_category"`
	// TopCategory is nil when no entry carries a category.
	TopCategory *string  `json:"top_category"`
	Settings    Settings `json:"settings"`
}

// Dates returns the keys of ByDate in ascending order.
func (s MonthSummary) Dates() []string {
	out := make([]string, 0, len(s.ByDate))
	for d := NewDate(s.Year, s.Month, 1); d.Month() == s.Month; d = d.AddDays(1) {
		if _, ok := s.ByDate[d.String()]; ok {
			out = append(out, d.String())
		}
	}
	return out
}
