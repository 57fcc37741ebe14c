// Package retrier retries idempotent upstream reads, such as exchange rate lookups,
// with capped exponential backoff and jitter.
package retrier

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Defaults suit an interactive quote: a slow feed should fail within a few seconds.
const (
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 3
	defaultJitter          = 0.2
)

// Retrier runs a call up to MaxRetries+1 times.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	retryable       func(error) bool
	onRetry         func(attempt int, wait time.Duration, err error)
	rnd             *lockedRand
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the wait before the first retry.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps the wait between attempts.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets how many times a failed call is repeated. Negative values mean no retries.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = max(n, 0)
	}
}

// WithJitter sets the jitter factor, clamped to [0, 1].
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = math.Min(math.Max(j, 0), 1)
	}
}

// WithRetryIf limits retries to errors for which fn returns true; other errors are returned at once.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryable = fn
	}
}

// WithOnRetry registers fn, called after each failed attempt that will be retried,
// with the 1-based attempt number, the wait before the next one and the failure.
func WithOnRetry(fn func(attempt int, wait time.Duration, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// WithRand sets the jitter source.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Retrier) {
		r.rnd = &lockedRand{rnd: rnd}
	}
}

// New creates a Retrier with defaults and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rnd == nil {
		r.rnd = &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	return r
}

// With returns a copy of r with opts applied on top. The copy shares the jitter source.
func (r *Retrier) With(opts ...Option) *Retrier {
	c := *r
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	wait := float64(r.initialInterval) * math.Pow(r.multiplier, float64(attempt-1))
	if wait > float64(r.maxInterval) {
		return r.maxInterval
	}
	return time.Duration(wait)
}

func (r *Retrier) wait(attempt int) time.Duration {
	base := r.Backoff(attempt)
	if r.jitter == 0 || base == 0 {
		return base
	}
	spread := (r.rnd.Float64()*2 - 1) * r.jitter * float64(base)
	return max(time.Duration(float64(base)+spread), 0)
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of retries
// or ctx is done. The last error of fn is returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > r.maxRetries || (r.retryable != nil && !r.retryable(err)) {
			return err
		}

		wait := r.wait(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// DoWithData is Do for calls that return a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
