package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/remit/internal/domain"
)

// Hyperliquid quotes every coin in USD through the public Info API mids.
// Pairs between two coins are crossed through USD.
type Hyperliquid struct {
	info *hyperliquid.Info
}

// NewHyperliquid creates a Hyperliquid-backed source.
func NewHyperliquid(info *hyperliquid.Info) *Hyperliquid {
	return &Hyperliquid{info: info}
}

// GetRate returns mid(from)/mid(to), with USD and USD stablecoins priced at 1.
func (h *Hyperliquid) GetRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return one, nil
	}
	if h.info == nil {
		return decimal.Zero, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	fromUSD, err := usdMid(mids, from)
	if err != nil {
		return decimal.Zero, err
	}
	toUSD, err := usdMid(mids, to)
	if err != nil {
		return decimal.Zero, err
	}
	return fromUSD.Div(toUSD), nil
}

func usdMid(mids map[string]string, c domain.Currency) (decimal.Decimal, error) {
	switch c {
	case "USD", "USDC", "USDT":
		return one, nil
	}

	mid, ok := mids[c.String()]
	if !ok || mid == "" {
		return decimal.Zero, domain.ErrNotFound.Newf("hyperliquid API returned empty mid price for %s", c)
	}
	price, err := decimal.NewFromString(mid)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("hyperliquid mid price for %s is not positive", c)
	}
	return price, nil
}
