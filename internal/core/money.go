// Package core holds the domain model of the ledger: accounts, transactions,
// budgets, recurring budget templates, goals and trackers, together with the
// validation rules they share.
//
// This file contains money parsing helpers. Amounts are decimal values
// (github.com/shopspring/decimal) so budget arithmetic and loan interest
// splits stay exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a positive monetary amount from a decimal string.
// It accepts both dot (12.34) and comma (12,34) separators and rounds to
// two fractional digits, half up. Zero and negative values are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// MustAmount is a test and fixture helper; it panics on malformed input.
func MustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic("core: bad amount " + s)
	}
	return d
}
