// Package conversion computes send/receive amount pairs from a base rate, a fee and an FX spread.
package conversion

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

// divisionPlaces keeps intermediate quotients well below any currency precision.
const divisionPlaces = 18

var hundred = decimal.NewFromInt(100)

// Input describes one quote request. Exactly one of SendAmount and ReceiveAmount is expected.
type Input struct {
	SendAmount    decimal.NullDecimal
	ReceiveAmount decimal.NullDecimal
	FromCurrency  domain.Currency
	ToCurrency    domain.Currency
	FeePercent    decimal.Decimal
	SpreadPercent decimal.Decimal
}

// Solve computes the missing side of the quote. It never fails: a usable send amount wins
// over a receive amount, unusable inputs produce zero amounts, and a non-positive
// effective rate zeroes everything that depends on it.
func Solve(in Input, baseRate decimal.Decimal) domain.ConversionQuote {
	q := domain.ConversionQuote{
		SendAmount:    decimal.Zero,
		ReceiveAmount: decimal.Zero,
		FromCurrency:  in.FromCurrency,
		ToCurrency:    in.ToCurrency,
		FeePercent:    in.FeePercent,
		SpreadPercent: in.SpreadPercent,
		BaseRate:      baseRate,
		EffectiveRate: effectiveRate(baseRate, in.SpreadPercent),
		Fee:           decimal.Zero,
		NetSend:       decimal.Zero,
		Direction:     domain.SolveNone,
	}

	switch {
	case positive(in.SendAmount):
		q.Direction = domain.SolveForward
		q.SendAmount = in.SendAmount.Decimal
		q.Fee = q.SendAmount.Mul(in.FeePercent).Div(hundred)
		q.NetSend = q.SendAmount.Sub(q.Fee)
		q.ReceiveAmount = q.NetSend.Mul(q.EffectiveRate)

	case positive(in.ReceiveAmount):
		q.Direction = domain.SolveReverse
		q.ReceiveAmount = in.ReceiveAmount.Decimal
		if !q.EffectiveRate.IsPositive() {
			return q
		}
		keep := decimal.NewFromInt(1).Sub(in.FeePercent.Div(hundred))
		if !keep.IsPositive() {
			return q
		}
		q.NetSend = q.ReceiveAmount.DivRound(q.EffectiveRate, divisionPlaces)
		q.SendAmount = q.NetSend.DivRound(keep, divisionPlaces)
		q.Fee = q.SendAmount.Sub(q.NetSend)
	}

	return q
}

func effectiveRate(baseRate, spreadPercent decimal.Decimal) decimal.Decimal {
	if !baseRate.IsPositive() {
		return decimal.Zero
	}
	rate := baseRate.Mul(decimal.NewFromInt(1).Sub(spreadPercent.Div(hundred)))
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return rate
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}
