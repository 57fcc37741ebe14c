package rates

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

const bpsDenominator = 10000

// Static serves rates from a fixed table. With a fluctuation set, every read jitters
// the anchor rate by up to ±fluctuationBps basis points, simulating a live feed.
type Static struct {
	table          map[domain.Pair]decimal.Decimal
	fluctuationBps int64

	mu  sync.Mutex
	rnd *rand.Rand
}

// StaticOption configures Static.
type StaticOption func(*Static)

// WithFluctuation enables bounded random jitter around the anchor rates.
func WithFluctuation(bps int64) StaticOption {
	return func(s *Static) {
		if bps > 0 {
			s.fluctuationBps = bps
		}
	}
}

// WithRand sets the random source used for jitter.
func WithRand(rnd *rand.Rand) StaticOption {
	return func(s *Static) {
		s.rnd = rnd
	}
}

// NewStatic builds a static source. Non-positive entries are ignored.
func NewStatic(table map[domain.Pair]decimal.Decimal, opts ...StaticOption) *Static {
	s := &Static{
		table: make(map[domain.Pair]decimal.Decimal, len(table)),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for pair, rate := range table {
		if rate.IsPositive() {
			s.table[pair] = rate
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRate returns the table rate, falling back to the inverse of the opposite pair.
func (s *Static) GetRate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return one, nil
	}

	pair := domain.Pair{From: from, To: to}
	rate, ok := s.table[pair]
	if !ok {
		inverse, found := s.table[pair.Inverse()]
		if !found {
			return decimal.Zero, unknownPair(from, to)
		}
		rate = invert(inverse)
	}

	return s.jitter(rate), nil
}

func (s *Static) jitter(rate decimal.Decimal) decimal.Decimal {
	if s.fluctuationBps == 0 {
		return rate
	}

	s.mu.Lock()
	offset := s.rnd.Int63n(2*s.fluctuationBps+1) - s.fluctuationBps
	s.mu.Unlock()

	factor := one.Add(decimal.New(offset, 0).Div(decimal.NewFromInt(bpsDenominator)))
	return rate.Mul(factor)
}
