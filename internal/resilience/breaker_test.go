package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold:  3,
		OpenTimeout:       30 * time.Second,
		RequiredSuccesses: 3,
	})
}

func failN(b *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(func() error { return errBoom })
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker()

	failN(b, 2)
	assert.Equal(t, StateClosed, b.State())

	failN(b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b := newTestBreaker()
	failN(b, 3)

	invoked := false
	err := b.Do(func() error {
		invoked = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker()

	failN(b, 2)
	_ = b.Do(func() error { return nil })
	failN(b, 2)

	// 连续失败被成功打断，不应打开
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := newTestBreaker()
	base := time.Now()
	b.now = func() time.Time { return base }

	failN(b, 3)
	require.Equal(t, StateOpen, b.State())

	// 超时后放行探测调用
	b.now = func() time.Time { return base.Add(31 * time.Second) }
	err := b.Do(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ClosesAfterRequiredSuccesses(t *testing.T) {
	b := newTestBreaker()
	base := time.Now()
	b.now = func() time.Time { return base }

	failN(b, 3)
	b.now = func() time.Time { return base.Add(31 * time.Second) }

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Do(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	base := time.Now()
	b.now = func() time.Time { return base }

	failN(b, 3)
	b.now = func() time.Time { return base.Add(31 * time.Second) }

	_ = b.Do(func() error { return nil })
	require.Equal(t, StateHalfOpen, b.State())

	// 半开状态下一次失败立即重新打开
	_ = b.Do(func() error { return errBoom })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Stats(t *testing.T) {
	b := newTestBreaker()
	failN(b, 2)

	stats := b.Stats()
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, 2, stats["consecutive_failures"])
}

func TestRegistry_SameInstancePerService(t *testing.T) {
	r := NewRegistry(DefaultBreakerConfig())

	a := r.Get("svc_a")
	b := r.Get("svc_a")
	c := r.Get("svc_b")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	stats := r.Stats()
	assert.Len(t, stats, 2)
	assert.Contains(t, stats, "svc_a")
	assert.Contains(t, stats, "svc_b")
}
