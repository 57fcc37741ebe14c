package domain

import "github.com/shopspring/decimal"

// SolveDirection tells which side of a quote was supplied by the caller.
type SolveDirection string

const (
	// SolveNone neither amount was usable, both sides are zero.
	SolveNone SolveDirection = "none"
	// SolveForward send amount known, receive amount computed.
	SolveForward SolveDirection = "forward"
	// SolveReverse receive amount known, send amount computed.
	SolveReverse SolveDirection = "reverse"
)

// ConversionQuote derived send/receive pair. It is never persisted.
type ConversionQuote struct {
	SendAmount    decimal.Decimal `json:"send_amount"`
	ReceiveAmount decimal.Decimal `json:"receive_amount"`
	FromCurrency  Currency        `json:"from_currency"`
	ToCurrency    Currency        `json:"to_currency"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	SpreadPercent decimal.Decimal `json:"spread_percent"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	EffectiveRate decimal.Decimal `json:"effective_rate"`
	Fee           decimal.Decimal `json:"fee"`
	NetSend       decimal.Decimal `json:"net_send"`
	Direction     SolveDirection  `json:"direction"`
}

// Rounded returns a copy with amounts rounded to the currency precision.
// Rates are left untouched.
func (q ConversionQuote) Rounded() ConversionQuote {
	from := Precision(q.FromCurrency)
	q.SendAmount = q.SendAmount.Round(from)
	q.Fee = q.Fee.Round(from)
	q.NetSend = q.NetSend.Round(from)
	q.ReceiveAmount = q.ReceiveAmount.Round(Precision(q.ToCurrency))
	return q
}
