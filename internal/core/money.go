// Package core provides money parsing and handling utilities.
//
// Monetary values are shopspring decimals. Input accepts both dot (12.34)
// and comma (12,34) decimal separators and must not be negative.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied decimal string to a non-negative decimal.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidAmount)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNegativeAmount)
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount where an empty string means "not set".
func ParseOptionalAmount(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ValidateNonNegative rejects a set value below zero.
func ValidateNonNegative(field string, v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidInput, field, ErrNegativeAmount)
	}
	return nil
}
