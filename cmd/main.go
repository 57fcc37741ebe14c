// Command remit runs the cross-border payment service: FX quotes, escrow and
// co-signed treasury settlements over a JSON API.
//
// Usage:
//
//	remit serve -config remit.yaml
//	remit setup [-out remit.gen.yaml]
//	remit quote -config remit.yaml -from USD -to EUR -send 100
//
// Environment variables for live rate feeds:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/config"
	"github.com/vadiminshakov/remit/internal/app"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/services/conversion"
	"github.com/vadiminshakov/remit/internal/setup"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = serve(args)
	case "setup":
		err = runSetup(args)
	case "quote":
		err = quote(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: remit serve|setup|quote [flags]")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(args []string) error {
	cfg, err := config.Get("serve", args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("remit started",
		zap.String("addr", cfg.Addr),
		zap.String("platform", cfg.Rates.Platform),
		zap.Strings("static_pairs", cfg.StaticKeys()))
	return a.Run(ctx)
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	out := fs.String("out", setup.DefaultPath, "where to write the generated config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return setup.RunTUI(*out)
}

// quote prints a one-shot quote against the configured feed.
func quote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	from := fs.String("from", "", "currency sent")
	to := fs.String("to", "", "currency received")
	send := fs.String("send", "", "amount sent (forward quote)")
	receive := fs.String("receive", "", "amount received (reverse quote)")
	configPath := fs.String("config", "", "path to yaml config")
	platform := fs.String("platform", "", "rate feed override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfgArgs []string
	if *configPath != "" {
		cfgArgs = append(cfgArgs, "-config", *configPath)
	}
	if *platform != "" {
		cfgArgs = append(cfgArgs, "-platform", *platform)
	}
	cfg, err := config.Get("quote", cfgArgs)
	if err != nil {
		return err
	}
	for currency, places := range cfg.Precision {
		domain.SetPrecision(currency, places)
	}

	req := conversion.Request{
		FromCurrency: domain.NewCurrency(*from),
		ToCurrency:   domain.NewCurrency(*to),
	}
	if req.SendAmount, err = optionalDecimal("send", *send); err != nil {
		return err
	}
	if req.ReceiveAmount, err = optionalDecimal("receive", *receive); err != nil {
		return err
	}

	src, err := app.NewRateSource(cfg.Rates, nil)
	if err != nil {
		return err
	}
	q := conversion.NewQuoter(src, conversion.Fees{
		FeePercent:    cfg.Fees.FeePercent,
		SpreadPercent: cfg.Fees.SpreadPercent,
	}, nil)

	res, err := q.Quote(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Printf("send     %s %s\n", res.SendAmount, res.FromCurrency)
	fmt.Printf("fee      %s %s (%s%%)\n", res.Fee, res.FromCurrency, res.FeePercent)
	fmt.Printf("rate     %s (base %s, spread %s%%)\n", res.EffectiveRate, res.BaseRate, res.SpreadPercent)
	fmt.Printf("receive  %s %s\n", res.ReceiveAmount, res.ToCurrency)
	return nil
}

func optionalDecimal(name, v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("-%s must be a number: %w", name, err)
	}
	return decimal.NewNullDecimal(d), nil
}
