// Package app assembles the remit service from its configuration.
package app

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/config"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/events"
	"github.com/vadiminshakov/remit/internal/metrics"
	"github.com/vadiminshakov/remit/internal/services/conversion"
	"github.com/vadiminshakov/remit/internal/services/escrow"
	"github.com/vadiminshakov/remit/internal/services/ledger"
	"github.com/vadiminshakov/remit/internal/services/notify"
	"github.com/vadiminshakov/remit/internal/services/settlement"
	"github.com/vadiminshakov/remit/internal/services/users"
	"github.com/vadiminshakov/remit/internal/storage/escrows"
	"github.com/vadiminshakov/remit/internal/storage/evidence"
	"github.com/vadiminshakov/remit/internal/storage/outbox"
	"github.com/vadiminshakov/remit/internal/storage/settlements"
	"github.com/vadiminshakov/remit/internal/storage/transitions"
	"github.com/vadiminshakov/remit/internal/storage/wallets"
	"github.com/vadiminshakov/remit/internal/web"
	"go.uber.org/zap"
)

const liveBuffer = 64

// App owns every long-lived component of the service.
type App struct {
	Config      config.Config
	Quoter      *conversion.Quoter
	Ledger      *ledger.Ledger
	Escrows     *escrow.Engine
	Settlements *settlement.Engine
	Outbox      *outbox.Journal
	Server      *web.Server

	closers []func() error
	l       *zap.Logger
}

// New wires stores, engines and the API server. Call Close when done.
func New(cfg config.Config, l *zap.Logger) (*App, error) {
	if l == nil {
		l = zap.NewNop()
	}
	for currency, places := range cfg.Precision {
		domain.SetPrecision(currency, places)
	}

	a := &App{Config: cfg, l: l}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	src, err := NewRateSource(cfg.Rates, l)
	if err != nil {
		return nil, err
	}
	a.Quoter = conversion.NewQuoter(src, conversion.Fees{
		FeePercent:    cfg.Fees.FeePercent,
		SpreadPercent: cfg.Fees.SpreadPercent,
	}, l.Named("quoter"))

	walletStore, err := wallets.NewWALStore(filepath.Join(cfg.DataDir, "wallets"))
	if err != nil {
		return nil, errors.Wrap(err, "open wallet store")
	}
	a.closers = append(a.closers, walletStore.Close)

	escrowStore, err := escrows.NewWALStore(filepath.Join(cfg.DataDir, "escrows"))
	if err != nil {
		return nil, errors.Wrap(err, "open escrow store")
	}
	a.closers = append(a.closers, escrowStore.Close)

	settlementStore, err := settlements.NewWALStore(filepath.Join(cfg.DataDir, "settlements"))
	if err != nil {
		return nil, errors.Wrap(err, "open settlement store")
	}
	a.closers = append(a.closers, settlementStore.Close)

	transitionStore, err := transitions.NewWALStore(filepath.Join(cfg.DataDir, "transitions"))
	if err != nil {
		return nil, errors.Wrap(err, "open transition log")
	}
	a.closers = append(a.closers, transitionStore.Close)

	a.Outbox, err = outbox.NewJournal(filepath.Join(cfg.DataDir, "outbox"), l.Named("outbox"))
	if err != nil {
		return nil, errors.Wrap(err, "open transfer outbox")
	}
	a.closers = append(a.closers, a.Outbox.Close)

	evidenceStore, err := evidence.NewDiskStore(cfg.EvidenceDir)
	if err != nil {
		return nil, errors.Wrap(err, "open evidence store")
	}

	directory, err := users.NewDirectory(cfg.Users, cfg.Admins)
	if err != nil {
		return nil, errors.Wrap(err, "load users")
	}

	m := metrics.New()
	live := events.NewBroadcaster(liveBuffer)
	notifier := notify.NewFanout(transitionStore, live, m, l.Named("transitions"))

	a.Ledger = ledger.New(walletStore, m, l.Named("ledger"))

	a.Escrows, err = escrow.New(escrow.Deps{
		Repo:     escrowStore,
		Ledger:   a.Ledger,
		Users:    directory,
		Evidence: evidenceStore,
		Admins:   directory,
		Notifier: notifier,
		Logger:   l.Named("escrow"),
	}, escrow.Options{
		DefaultFeePercent: cfg.Fees.FeePercent,
		FeeAccount:        cfg.PlatformFeeOwner,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create escrow engine")
	}

	a.Settlements, err = settlement.New(settlement.Deps{
		Repo:        settlementStore,
		Ledger:      a.Ledger,
		Users:       directory,
		Admins:      directory,
		Broadcaster: a.Outbox,
		Notifier:    notifier,
		Logger:      l.Named("settlement"),
	}, cfg.TreasuryOwner)
	if err != nil {
		return nil, errors.Wrap(err, "create settlement engine")
	}

	a.Server = web.NewServer(cfg.Addr, web.Deps{
		Quoter:      a.Quoter,
		Escrows:     a.Escrows,
		Settlements: a.Settlements,
		Wallets:     a.Ledger,
		Transitions: transitionStore,
		Live:        live,
		Admins:      directory,
		Metrics:     m,
		Logger:      l.Named("web"),
	})

	ok = true
	return a, nil
}

// Run serves the API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if pending := a.Outbox.Pending(); len(pending) > 0 {
		a.l.Warn("transfers awaiting broadcast", zap.Int("count", len(pending)))
	}

	if len(a.Config.TLSDomains) > 0 {
		return a.Server.StartWithAutoTLS(ctx, a.Config.TLSDomains, filepath.Join(a.Config.DataDir, "certs"))
	}
	return a.Server.Start(ctx)
}

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
