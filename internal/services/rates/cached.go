package rates

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
)

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Cached memoizes rates for ttl. A zero ttl disables caching.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[domain.Pair]cachedRate
}

// NewCached wraps src with a TTL cache.
func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.Pair]cachedRate),
	}
}

// GetRate implements Source.
func (c *Cached) GetRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if c.ttl <= 0 {
		return c.src.GetRate(ctx, from, to)
	}

	pair := domain.Pair{From: from, To: to}
	c.mu.Lock()
	entry, ok := c.entries[pair]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rate, nil
	}

	rate, err := c.src.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[pair] = cachedRate{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, nil
}
