package rates

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

// Binance reads last prices from the public Binance spot API.
type Binance struct {
	client *binance.Client
}

// NewBinance creates a Binance-backed source.
func NewBinance(client *binance.Client) *Binance {
	return &Binance{client: client}
}

// GetRate returns the last price of FROMTO, or the inverse of TOFROM when only that symbol is listed.
func (b *Binance) GetRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return one, nil
	}

	pair := domain.Pair{From: from, To: to}
	price, err := b.lastPrice(ctx, pair)
	if err == nil {
		return price, nil
	}

	inverse, invErr := b.lastPrice(ctx, pair.Inverse())
	if invErr != nil {
		return decimal.Zero, errors.Wrapf(err, "binance rate %s", pair.String())
	}
	return invert(inverse), nil
}

func (b *Binance) lastPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("binance API returned empty prices for %s", pair.String())
	}
	return decimal.NewFromString(prices[0].Price)
}
