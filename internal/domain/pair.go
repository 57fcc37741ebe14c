package domain

import (
	"fmt"
	"strings"
)

// Pair currency conversion direction.
type Pair struct {
	// From currency the sender pays in.
	From Currency
	// To currency the receiver is paid in.
	To Currency
}

// ParsePair parses "USD_EUR" or "USD/EUR".
func ParsePair(s string) (Pair, error) {
	sep := "_"
	if strings.Contains(s, "/") {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Pair{}, ErrValidation.Newf("invalid currency pair %q", s)
	}
	return Pair{From: NewCurrency(parts[0]), To: NewCurrency(parts[1])}, nil
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// Inverse returns the opposite direction.
func (p Pair) Inverse() Pair {
	return Pair{From: p.To, To: p.From}
}
