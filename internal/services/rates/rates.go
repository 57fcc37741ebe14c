// Package rates provides FX base rates from static tables and exchange feeds.
package rates

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

// Source returns the mid-market rate for converting one unit of from into to.
type Source interface {
	GetRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
}

var one = decimal.NewFromInt(1)

// invert returns 1/rate, or zero for a non-positive rate.
func invert(rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return one.Div(rate)
}

func unknownPair(from, to domain.Currency) error {
	return domain.ErrNotFound.Newf("no rate for %s_%s", from, to)
}
