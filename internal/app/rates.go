package app

import (
	"os"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/config"
	"github.com/vadiminshakov/remit/internal/clients"
	"github.com/vadiminshakov/remit/internal/services/rates"
	"github.com/vadiminshakov/remit/pkg/retrier"
	"go.uber.org/zap"
)

// NewRateSource builds the configured feed, wrapped with retries and a short-lived cache.
// This is the single point of dispatch to platform-specific feeds.
//
// Credentials come from the environment:
//
//	binance:     BINANCE_API_KEY, BINANCE_API_SECRET (optional for public prices)
//	bybit:       BYBIT_API_KEY, BYBIT_API_SECRET (optional)
//	hyperliquid: HYPERLIQUID_PRIVATE_KEY
func NewRateSource(cfg config.RatesConfig, l *zap.Logger) (rates.Source, error) {
	if l == nil {
		l = zap.NewNop()
	}

	var src rates.Source
	switch cfg.Platform {
	case config.PlatformSimulate:
		src = rates.NewStatic(cfg.Static, rates.WithFluctuation(cfg.FluctuationBps))
	case config.PlatformBinance:
		src = rates.NewBinance(clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")))
	case config.PlatformBybit:
		src = rates.NewBybit(clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET")))
	case config.PlatformHyperliquid:
		key := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
		if key == "" {
			return nil, errors.New("HYPERLIQUID_PRIVATE_KEY environment variable must be set")
		}
		client, err := clients.NewHyperliquidClient(key, cfg.HyperliquidURL)
		if err != nil {
			return nil, errors.Wrap(err, "create hyperliquid client")
		}
		src = rates.NewHyperliquid(client.Info())
	default:
		return nil, errors.Errorf("unsupported platform: %s", cfg.Platform)
	}

	l.Info("rate feed configured", zap.String("platform", cfg.Platform))

	if cfg.Retries > 0 {
		src = rates.NewRetrying(src, l.Named("rates"), retrier.WithMaxRetries(cfg.Retries))
	}
	if cfg.CacheTTL > 0 {
		src = rates.NewCached(src, cfg.CacheTTL)
	}
	return src, nil
}
