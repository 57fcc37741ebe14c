// Package web exposes the conversion, escrow, settlement and wallet operations over a JSON HTTP API.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/metrics"
	"github.com/vadiminshakov/remit/internal/services/conversion"
	"github.com/vadiminshakov/remit/internal/services/escrow"
	"github.com/vadiminshakov/remit/internal/services/settlement"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const (
	// ActorHeader carries the caller identity. Authentication happens upstream.
	ActorHeader = "X-Actor-ID"

	defaultPollInterval = time.Second
	shutdownTimeout     = 5 * time.Second
)

type quoter interface {
	Quote(ctx context.Context, req conversion.Request) (domain.ConversionQuote, error)
	Rate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
}

type escrowService interface {
	Create(ctx context.Context, req escrow.CreateRequest) (*domain.EscrowTransaction, error)
	Fund(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error)
	MarkDelivered(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error)
	Release(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error)
	Cancel(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error)
	Dispute(ctx context.Context, txID, actorID, reason string, evidence []domain.EvidenceFile) (*domain.EscrowTransaction, error)
	Resolve(ctx context.Context, txID, resolverID string, resolution domain.Resolution) (*domain.EscrowTransaction, error)
	Get(ctx context.Context, txID string) (*domain.EscrowTransaction, error)
	List(ctx context.Context, partyID string) ([]*domain.EscrowTransaction, error)
}

type settlementService interface {
	Initiate(ctx context.Context, req settlement.InitiateRequest) (*domain.MultiSigTransaction, error)
	Sign(ctx context.Context, txID, signerID string) (*domain.MultiSigTransaction, error)
	Reject(ctx context.Context, txID, signerID, reason string) (*domain.MultiSigTransaction, error)
	Get(ctx context.Context, txID string) (*domain.MultiSigTransaction, error)
	List(ctx context.Context, partyID string) ([]*domain.MultiSigTransaction, error)
}

type walletService interface {
	Accounts(ctx context.Context, ownerID string) ([]domain.WalletAccount, error)
	Credit(ctx context.Context, ownerID string, amount domain.Money) error
}

type transitionReader interface {
	EventsAfter(index uint64) ([]domain.TransitionEventRecord, error)
}

type eventFeed interface {
	Subscribe() chan domain.TransitionEvent
	Unsubscribe(ch chan domain.TransitionEvent)
}

type adminDirectory interface {
	IsAdmin(actorID string) bool
}

// Deps are the services behind the API. Transitions, Live and Metrics are optional.
type Deps struct {
	Quoter      quoter
	Escrows     escrowService
	Settlements settlementService
	Wallets     walletService
	Transitions transitionReader
	// Live wakes event streams as soon as a transition is published.
	Live        eventFeed
	Admins      adminDirectory
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Server serves the JSON API, the transition event stream and prometheus metrics.
type Server struct {
	Addr string

	quoter       quoter
	escrows      escrowService
	settlements  settlementService
	wallets      walletService
	transitions  transitionReader
	live         eventFeed
	admins       adminDirectory
	metrics      *metrics.Metrics
	validate     *validator.Validate
	l            *zap.Logger
	pollInterval time.Duration
}

// NewServer creates a new API server instance.
func NewServer(addr string, deps Deps) *Server {
	l := deps.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Addr:         addr,
		quoter:       deps.Quoter,
		escrows:      deps.Escrows,
		settlements:  deps.Settlements,
		wallets:      deps.Wallets,
		transitions:  deps.Transitions,
		live:         deps.Live,
		admins:       deps.Admins,
		metrics:      deps.Metrics,
		validate:     newValidator(),
		l:            l,
		pollInterval: defaultPollInterval,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Middleware(pattern, h))
	}

	handle("GET /rates", s.handleRate)
	handle("POST /quotes", s.handleQuote)

	handle("POST /escrows", s.handleCreateEscrow)
	handle("GET /escrows", s.handleListEscrows)
	handle("GET /escrows/{id}", s.handleGetEscrow)
	handle("POST /escrows/{id}/fund", s.escrowTransition(s.escrows.Fund))
	handle("POST /escrows/{id}/deliver", s.escrowTransition(s.escrows.MarkDelivered))
	handle("POST /escrows/{id}/release", s.escrowTransition(s.escrows.Release))
	handle("POST /escrows/{id}/cancel", s.escrowTransition(s.escrows.Cancel))
	handle("POST /escrows/{id}/dispute", s.handleDispute)
	handle("POST /escrows/{id}/resolve", s.handleResolve)

	handle("POST /settlements", s.handleInitiate)
	handle("GET /settlements", s.handleListSettlements)
	handle("GET /settlements/{id}", s.handleGetSettlement)
	handle("POST /settlements/{id}/sign", s.handleSign)
	handle("POST /settlements/{id}/reject", s.handleReject)

	handle("GET /wallets/{owner}", s.handleWallets)
	handle("POST /wallets/{owner}/deposit", s.handleDeposit)

	handle("GET /events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("api listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("api listening with ACME TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newValidator reports field errors by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
