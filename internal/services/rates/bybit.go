package rates

import (
	"context"
	"fmt"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

// Bybit reads last spot prices from the Bybit v5 market API.
type Bybit struct {
	client *bybit.Client
}

// NewBybit creates a Bybit-backed source.
func NewBybit(client *bybit.Client) *Bybit {
	return &Bybit{client: client}
}

// GetRate returns the last spot price of FROMTO, or the inverse of TOFROM.
func (b *Bybit) GetRate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return one, nil
	}

	pair := domain.Pair{From: from, To: to}
	price, err := b.lastPrice(pair)
	if err == nil {
		return price, nil
	}

	inverse, invErr := b.lastPrice(pair.Inverse())
	if invErr != nil {
		return decimal.Zero, errors.Wrapf(err, "bybit rate %s", pair.String())
	}
	return invert(inverse), nil
}

func (b *Bybit) lastPrice(pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit API returned empty prices for %s", pair.String())
	}
	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}
