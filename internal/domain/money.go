// Package domain defines core data structures shared by the conversion, escrow, settlement and ledger services.
package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	cryptoPrecision      int32 = 8
	percentageMultiplier       = 100
)

// Currency ISO 4217 code or crypto ticker, always upper case.
type Currency string

// NewCurrency normalizes a currency code.
func NewCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// String returns the currency code.
func (c Currency) String() string {
	return string(c)
}

// IsFiat reports whether the currency is a known fiat currency.
func (c Currency) IsFiat() bool {
	_, ok := fiatPrecisions[c]
	return ok
}

var fiatPrecisions = map[Currency]int32{
	"USD": 2, "EUR": 2, "GBP": 2, "CHF": 2, "CAD": 2, "AUD": 2, "NZD": 2,
	"SEK": 2, "NOK": 2, "DKK": 2, "PLN": 2, "CZK": 2, "HUF": 2, "TRY": 2,
	"AED": 2, "SGD": 2, "HKD": 2, "CNY": 2, "INR": 2, "MXN": 2, "BRL": 2,
	"ZAR": 2, "NGN": 2, "KES": 2, "PHP": 2, "IDR": 2, "THB": 2,
	"JPY": 0, "KRW": 0, "VND": 0,
}

var (
	precisionMu        sync.RWMutex
	precisionOverrides = map[Currency]int32{}
)

// SetPrecision overrides the number of decimal places stored for a currency.
func SetPrecision(c Currency, places int32) {
	precisionMu.Lock()
	defer precisionMu.Unlock()
	precisionOverrides[c] = places
}

// Precision returns the number of decimal places stored for a currency.
// Fiat defaults to its ISO minor unit (usually 2), everything else to 8.
func Precision(c Currency) int32 {
	precisionMu.RLock()
	p, ok := precisionOverrides[c]
	precisionMu.RUnlock()
	if ok {
		return p
	}
	if p, ok := fiatPrecisions[c]; ok {
		return p
	}
	return cryptoPrecision
}

// Money is a non-negative amount of a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney builds a Money value rounded to the currency precision.
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if amount.IsNegative() {
		return Money{}, ErrValidation.Newf("amount must not be negative, got %s", amount.String())
	}
	if currency == "" {
		return Money{}, ErrValidation.New("currency is required")
	}
	return Money{Amount: amount, Currency: currency}.Round(), nil
}

// MustMoney is NewMoney for constant values; it panics on invalid input.
func MustMoney(amount string, currency Currency) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns an empty amount of the currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Round applies the currency precision, rounding half away from zero.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(Precision(m.Currency)), Currency: m.Currency}
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrValidation.Newf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub subtracts o from m. It fails when the result would be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrValidation.Newf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	res := m.Amount.Sub(o.Amount)
	if res.IsNegative() {
		return Money{}, ErrInsufficientFunds.Newf("%s is less than %s", m.String(), o.String())
	}
	return Money{Amount: res, Currency: m.Currency}, nil
}

// GreaterThanOrEqual compares amounts of the same currency.
func (m Money) GreaterThanOrEqual(o Money) bool {
	return m.Currency == o.Currency && m.Amount.GreaterThanOrEqual(o.Amount)
}

// Equal reports whether both currency and amount are the same.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Percent returns m * percent / 100 rounded to the currency precision.
func (m Money) Percent(percent decimal.Decimal) Money {
	return Money{
		Amount:   m.Amount.Mul(percent).Div(decimal.NewFromInt(percentageMultiplier)),
		Currency: m.Currency,
	}.Round()
}

// String returns a human-readable representation.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(Precision(m.Currency)), m.Currency)
}
