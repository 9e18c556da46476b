package http

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"budgetbook/internal/core"
)

// moneyInput is a request amount. It accepts a JSON number or a string with
// either decimal separator ("12.5" or "12,5"); null and "" mean not set.
type moneyInput struct {
	decimal.NullDecimal
}

func (m *moneyInput) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*m = moneyInput{}
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("%w: malformed amount", core.ErrInvalidInput)
		}
	}
	d, err := core.ParseOptionalAmount(raw)
	if err != nil {
		return err
	}
	m.NullDecimal = d
	return nil
}

// CreateRuleRequest is the body of POST /api/rules. Omitted fields take the
// ledger defaults.
type CreateRuleRequest struct {
	Title           string           `json:"title"`
	UnitPrice       moneyInput       `json:"unit_price"`
	DefaultQuantity moneyInput       `json:"default_quantity"`
	Frequency       core.Frequency   `json:"frequency"`
	MonthlyMode     core.MonthlyMode `json:"monthly_mode"`
	Category        string           `json:"category"`
	StartDate       core.Date        `json:"start_date"`
	EndDate         core.Date        `json:"end_date"`
}

func (req CreateRuleRequest) rule() core.RecurringRule {
	return core.RecurringRule{
		Title:           sanitizeInput(req.Title),
		UnitPrice:       req.UnitPrice.NullDecimal,
		DefaultQuantity: req.DefaultQuantity.NullDecimal,
		Frequency:       req.Frequency,
		MonthlyMode:     req.MonthlyMode,
		Category:        sanitizeInput(req.Category),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}
}

// CreateEntryRequest is the body of POST /api/entries. A zero amount is
// computed from unit price and quantity when both are given.
type CreateEntryRequest struct {
	Date      core.Date  `json:"date"`
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	UnitPrice moneyInput `json:"unit_price"`
	Quantity  moneyInput `json:"quantity"`
	Amount    moneyInput `json:"amount"`
	Payer     string     `json:"payer"`
}

func (req CreateEntryRequest) entry() core.Entry {
	return core.Entry{
		Date:      req.Date,
		Title:     sanitizeInput(req.Title),
		Category:  sanitizeInput(req.Category),
		UnitPrice: req.UnitPrice.NullDecimal,
		Quantity:  req.Quantity.NullDecimal,
		Amount:    req.Amount.Decimal,
		Payer:     sanitizeInput(req.Payer),
	}
}

type BulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

type GenerateResponse struct {
	Generated int       `json:"generated"`
	Today     core.Date `json:"today"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
