package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(maxAttempts int) *Retrier {
	return NewRetrierWithRand(RetryConfig{
		MaxAttempts:     maxAttempts,
		BaseDelay:       time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, rand.New(rand.NewSource(1)))
}

func TestRetrier_SuccessFirstAttempt(t *testing.T) {
	r := fastRetrier(3)

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RetriesRetryableError(t *testing.T) {
	r := fastRetrier(3)

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("fetch: %w", ErrConnectionFailure)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	r := fastRetrier(3)

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, calls)
}

func TestRetrier_NonRetryableAbortsImmediately(t *testing.T) {
	r := fastRetrier(5)

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return NewValidationError("address", "cannot be empty")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_CircuitOpenShortCircuits(t *testing.T) {
	r := fastRetrier(5)

	// 熔断器打开时剩余重试立即放弃
	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("provider dex: %w", ErrCircuitOpen)
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	r := fastRetrier(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetrier_BackoffBounds(t *testing.T) {
	r := NewRetrierWithRand(RetryConfig{
		MaxAttempts:     5,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, rand.New(rand.NewSource(1)))

	for attempt := 0; attempt < 5; attempt++ {
		d := r.backoff(attempt)
		// 抖动系数在 [0.5, 1.0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestRetrier_BackoffGrowsWithoutJitter(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        time.Minute,
		ExponentialBase: 2.0,
		Jitter:          false,
	})

	assert.Equal(t, 100*time.Millisecond, r.backoff(0))
	assert.Equal(t, 200*time.Millisecond, r.backoff(1))
	assert.Equal(t, 400*time.Millisecond, r.backoff(2))

	// 封顶于 MaxDelay
	assert.Equal(t, time.Minute, r.backoff(20))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrConnectionFailure))
	assert.True(t, Retryable(ErrTimeout))
	assert.True(t, Retryable(context.DeadlineExceeded))

	assert.False(t, Retryable(ErrCircuitOpen))
	assert.False(t, Retryable(ErrInternal))
	assert.False(t, Retryable(NewValidationError("field", "bad")))
}
