package rates

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/pkg/retrier"
	"go.uber.org/zap"
)

// Retrying retries transient feed failures. Unknown pairs fail immediately.
type Retrying struct {
	src Source
	r   *retrier.Retrier
	l   *zap.Logger
}

// NewRetrying wraps src. Extra options override the retrier defaults.
func NewRetrying(src Source, l *zap.Logger, opts ...retrier.Option) *Retrying {
	if l == nil {
		l = zap.NewNop()
	}
	opts = append([]retrier.Option{
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled)
		}),
	}, opts...)
	return &Retrying{src: src, r: retrier.New(opts...), l: l}
}

// GetRate implements Source.
func (s *Retrying) GetRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	pair := domain.Pair{From: from, To: to}.String()
	r := s.r.With(retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
		s.l.Warn("rate feed request failed, retrying",
			zap.String("pair", pair),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}))
	return retrier.DoWithData(r, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return s.src.GetRate(ctx, from, to)
	})
}
