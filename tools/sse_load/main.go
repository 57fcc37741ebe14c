// Command sse_load opens many concurrent subscriptions to the transition event stream
// and reports connection and delivery counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	var cfg loadConfig
	flag.StringVar(&cfg.url, "url", "http://localhost:8080/events/stream", "event stream URL")
	flag.StringVar(&cfg.actor, "actor", "", "admin id sent as X-Actor-ID")
	flag.IntVar(&cfg.conns, "conns", 500, "number of concurrent subscriptions")
	flag.DurationVar(&cfg.ramp, "ramp", 0, "spread connection starts across this window")
	dur := flag.Duration("dur", time.Minute, "test duration (0 for until interrupted)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.conns <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", cfg.conns))
	}
	if cfg.actor == "" {
		logger.Fatal("-actor is required: the stream is admin only")
	}
	if cfg.ramp == 0 && cfg.conns > 100 {
		// 1 second per 500 connections
		cfg.ramp = max(time.Duration(cfg.conns/500)*time.Second, time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}

	logger.Info("starting stream load",
		zap.String("url", cfg.url),
		zap.Int("conns", cfg.conns),
		zap.Duration("ramp", cfg.ramp),
		zap.Duration("duration", *dur))

	start := time.Now()
	l := newLoader(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := l.stats.snapshot()
				logger.Info("status",
					zap.Int64("connected", s.connected),
					zap.Int64("connect_errs", s.connectErrs),
					zap.Int64("stream_errs", s.streamErrs),
					zap.Int64("events", s.events),
					zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
			}
		}
	}()

	l.run(ctx)

	s := l.stats.snapshot()
	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d heartbeats=%d elapsed=%s events/s=%.2f\n",
		s.connected, s.connectErrs, s.streamErrs, s.events, s.heartbeats,
		elapsed.Truncate(time.Millisecond), float64(s.events)/elapsed.Seconds())
	for machine, n := range s.byMachine {
		fmt.Printf("  %s: %d\n", machine, n)
	}
	if s.connected == 0 {
		os.Exit(1)
	}
}
