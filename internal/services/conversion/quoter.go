package conversion

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/services/rates"
	"go.uber.org/zap"
)

// Fees default pricing applied when a request leaves fee or spread unset.
type Fees struct {
	FeePercent    decimal.Decimal
	SpreadPercent decimal.Decimal
}

// Request is an Input whose fee and spread may be omitted.
type Request struct {
	SendAmount    decimal.NullDecimal
	ReceiveAmount decimal.NullDecimal
	FromCurrency  domain.Currency
	ToCurrency    domain.Currency
	FeePercent    decimal.NullDecimal
	SpreadPercent decimal.NullDecimal
}

// Quoter binds Solve to a live rate source.
type Quoter struct {
	rates    rates.Source
	defaults Fees
	l        *zap.Logger
}

// NewQuoter creates a Quoter.
func NewQuoter(src rates.Source, defaults Fees, l *zap.Logger) *Quoter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Quoter{rates: src, defaults: defaults, l: l}
}

// Quote validates the request, fetches a fresh base rate and returns the rounded quote.
func (q *Quoter) Quote(ctx context.Context, req Request) (domain.ConversionQuote, error) {
	in := q.input(req)
	if err := Validate(in); err != nil {
		return domain.ConversionQuote{}, err
	}

	baseRate, err := q.rates.GetRate(ctx, in.FromCurrency, in.ToCurrency)
	if err != nil {
		return domain.ConversionQuote{}, errors.Wrapf(err, "get rate %s_%s", in.FromCurrency, in.ToCurrency)
	}

	quote := Solve(in, baseRate)
	q.l.Debug("quote computed",
		zap.String("pair", domain.Pair{From: in.FromCurrency, To: in.ToCurrency}.String()),
		zap.String("direction", string(quote.Direction)),
		zap.String("base_rate", baseRate.String()),
		zap.String("send", quote.SendAmount.String()),
		zap.String("receive", quote.ReceiveAmount.String()))

	return quote.Rounded(), nil
}

// Rate returns the current base rate without pricing.
func (q *Quoter) Rate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	return q.rates.GetRate(ctx, from, to)
}

func (q *Quoter) input(req Request) Input {
	in := Input{
		SendAmount:    req.SendAmount,
		ReceiveAmount: req.ReceiveAmount,
		FromCurrency:  req.FromCurrency,
		ToCurrency:    req.ToCurrency,
		FeePercent:    q.defaults.FeePercent,
		SpreadPercent: q.defaults.SpreadPercent,
	}
	if req.FeePercent.Valid {
		in.FeePercent = req.FeePercent.Decimal
	}
	if req.SpreadPercent.Valid {
		in.SpreadPercent = req.SpreadPercent.Decimal
	}
	return in
}
