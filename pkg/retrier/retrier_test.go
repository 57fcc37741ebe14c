package retrier

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithMaxRetries(3), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after max retries", func(t *testing.T) {
		r := New(WithMaxRetries(2), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetrier_RetryIf(t *testing.T) {
	permanent := errors.New("unknown pair")
	r := New(
		WithMaxRetries(5),
		WithInitialInterval(time.Millisecond),
		WithRetryIf(func(err error) bool { return !errors.Is(err, permanent) }),
	)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		r := New()
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", val)
	})

	t.Run("fail returns error", func(t *testing.T) {
		r := New(WithMaxRetries(1), WithInitialInterval(1*time.Millisecond))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(WithInitialInterval(100*time.Millisecond), WithMaxInterval(time.Second), WithMultiplier(3))

	assert.Equal(t, time.Duration(0), r.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 900*time.Millisecond, r.Backoff(3))
	assert.Equal(t, time.Second, r.Backoff(4), "capped at the max interval")
}

func TestRetrier_OnRetry(t *testing.T) {
	type call struct {
		attempt int
		wait    time.Duration
	}
	var calls []call

	fail := errors.New("feed timeout")
	r := New(
		WithMaxRetries(2),
		WithInitialInterval(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, wait time.Duration, err error) {
			assert.ErrorIs(t, err, fail)
			calls = append(calls, call{attempt: attempt, wait: wait})
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error { return fail })
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, []call{{1, time.Millisecond}, {2, 2 * time.Millisecond}}, calls, "no hook after the last attempt")
}

func TestRetrier_JitterStaysInBand(t *testing.T) {
	r := New(WithInitialInterval(100*time.Millisecond), WithJitter(0.5), WithRand(rand.New(rand.NewSource(7))))

	for i := 0; i < 100; i++ {
		wait := r.wait(1)
		assert.GreaterOrEqual(t, wait, 50*time.Millisecond)
		assert.LessOrEqual(t, wait, 150*time.Millisecond)
	}
}

func TestRetrier_WithLeavesOriginalUntouched(t *testing.T) {
	base := New(WithMaxRetries(0))
	hooked := 0
	derived := base.With(WithMaxRetries(1), WithInitialInterval(time.Millisecond), WithOnRetry(func(int, time.Duration, error) { hooked++ }))

	attempts := 0
	fn := func(ctx context.Context) error { attempts++; return errors.New("fail") }

	_ = base.Do(context.Background(), fn)
	assert.Equal(t, 1, attempts)
	assert.Zero(t, hooked)

	attempts = 0
	_ = derived.Do(context.Background(), fn)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, hooked)
}
