// Package clients constructs the exchange SDK clients used as rate feeds.
package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
)

// NewBinanceClient returns a Binance client. Empty credentials are enough for public prices.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}

// NewBybitClient returns a Bybit client. Auth is attached only when a key is supplied.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	client := bybit.NewClient()
	if apiKey != "" {
		client = client.WithAuth(apiKey, apiSecret)
	}
	return client
}
