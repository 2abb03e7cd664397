package exitengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-token-sentry/internal/models"
)

// fakePrices 可编程价格源
type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: make(map[string]float64)}
}

func (f *fakePrices) Set(token string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = price
}

func (f *fakePrices) BestFirstPrice(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[address], nil
}

// seqPrices 按调用顺序返回脚本化价格，耗尽后停留在最后一个；可选提供缓存波动率
type seqPrices struct {
	mu     sync.Mutex
	seq    []float64
	vol    float64
	hasVol bool
}

func (s *seqPrices) BestFirstPrice(ctx context.Context, address string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price := s.seq[0]
	if len(s.seq) > 1 {
		s.seq = s.seq[1:]
	}
	return price, nil
}

func (s *seqPrices) CachedVolatility(address string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vol, s.hasVol
}

func TestMonitor_OpenValidation(t *testing.T) {
	m := NewMonitor(DefaultConfig(), time.Second, newFakePrices(), nil)
	defer m.Stop()

	assert.Error(t, m.Open("", 1.0, 100, 0))
	assert.Error(t, m.Open("0xtoken", 0, 100, 0))

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0))
	assert.Equal(t, 1, m.Count())

	// 同一地址重复开仓被拒绝
	assert.Error(t, m.Open("0xtoken", 1.1, 100, 0))
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_ManualClose(t *testing.T) {
	m := NewMonitor(DefaultConfig(), time.Second, newFakePrices(), nil)
	defer m.Stop()

	var results []*models.PositionResult
	var mu sync.Mutex
	m.SetResultHandler(func(r *models.PositionResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0))

	res, err := m.Close("0xtoken", 1.5)
	require.NoError(t, err)
	assert.Equal(t, models.ExitManual, res.Reason)
	assert.Equal(t, 0.5, res.Pnl)
	assert.Equal(t, 0, m.Count())

	mu.Lock()
	assert.Len(t, results, 1)
	mu.Unlock()

	// 重复平仓
	_, err = m.Close("0xtoken", 1.5)
	assert.Error(t, err)
}

func TestMonitor_AutoStopLossOnPoll(t *testing.T) {
	prices := newFakePrices()
	prices.Set("0xtoken", 0.4)

	m := NewMonitor(DefaultConfig(), 10*time.Millisecond, prices, nil)

	closed := make(chan *models.PositionResult, 1)
	m.SetResultHandler(func(r *models.PositionResult) {
		closed <- r
	})

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	select {
	case res := <-closed:
		assert.Equal(t, models.ExitStopLoss, res.Reason)
	case <-time.After(time.Second):
		t.Fatal("position not closed by poller")
	}

	assert.Equal(t, 0, m.Count())
}

func TestMonitor_PartialExitCallback(t *testing.T) {
	prices := newFakePrices()
	prices.Set("0xtoken", 1.80)

	m := NewMonitor(DefaultConfig(), 10*time.Millisecond, prices, nil)

	partial := make(chan string, 4)
	m.SetPartialExitHandler(func(token string) {
		partial <- token
	})

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	select {
	case token := <-partial:
		assert.Equal(t, "0xtoken", token)
	case <-time.After(time.Second):
		t.Fatal("partial exit not triggered")
	}

	// 部分止盈不摘除仓位
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_VolumeSpikeClose(t *testing.T) {
	prices := newFakePrices()
	prices.Set("0xtoken", 1.10)

	spike := func(token string) bool { return true }
	m := NewMonitor(DefaultConfig(), 10*time.Millisecond, prices, spike)

	closed := make(chan *models.PositionResult, 1)
	m.SetResultHandler(func(r *models.PositionResult) {
		closed <- r
	})

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	select {
	case res := <-closed:
		assert.Equal(t, models.ExitVolumeBased, res.Reason)
	case <-time.After(time.Second):
		t.Fatal("position not closed on volume spike")
	}
}

func TestMonitor_TrailingUsesLatestCachedVolatility(t *testing.T) {
	// 开仓波动率 0.3 对应的回撤阈值约 0.75，回落到 1.90 不会触发；
	// 缓存波动率刷新为 0 后阈值收紧到约 0.90，应当平仓
	prices := &seqPrices{seq: []float64{2.10, 2.10, 1.90}, vol: 0, hasVol: true}

	m := NewMonitor(DefaultConfig(), 10*time.Millisecond, prices, nil)

	closed := make(chan *models.PositionResult, 1)
	m.SetResultHandler(func(r *models.PositionResult) {
		closed <- r
	})

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0.3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	select {
	case res := <-closed:
		assert.Equal(t, models.ExitTrailingStop, res.Reason)
	case <-time.After(time.Second):
		t.Fatal("position not closed under refreshed volatility")
	}
}

func TestMonitor_VolatilityFallsBackToOpenValue(t *testing.T) {
	// 无缓存波动率时沿用开仓值 0.3，1.90 在宽阈值之内不平仓
	prices := &seqPrices{seq: []float64{2.10, 2.10, 1.90}, hasVol: false}

	m := NewMonitor(DefaultConfig(), 10*time.Millisecond, prices, nil)

	require.NoError(t, m.Open("0xtoken", 1.0, 100, 0.3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	assert.Never(t, func() bool { return m.Count() == 0 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestMonitor_StopIdempotent(t *testing.T) {
	m := NewMonitor(DefaultConfig(), time.Second, newFakePrices(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Stop()
	assert.NotPanics(t, func() { m.Stop() })
}

func TestMonitor_Positions(t *testing.T) {
	m := NewMonitor(DefaultConfig(), time.Second, newFakePrices(), nil)
	defer m.Stop()

	require.NoError(t, m.Open("0xaaa", 1.0, 100, 0))
	require.NoError(t, m.Open("0xbbb", 2.0, 50, 0))

	assert.Equal(t, 2, m.Count())
	assert.Len(t, m.Positions(), 2)

	pos, ok := m.Position("0xaaa")
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.EntryPrice)

	_, ok = m.Position("0xccc")
	assert.False(t, ok)
}
