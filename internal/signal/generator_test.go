package signal

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-token-sentry/internal/models"
)

func newTestGenerator() *Generator {
	return NewWithRand(rand.New(rand.NewSource(42)))
}

func baseSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Address:  "0xtoken",
		PriceUSD: 2.0,
	}
}

func TestGenerate_StrongBuy(t *testing.T) {
	g := newTestGenerator()
	snap := baseSnapshot()
	snap.PriceChange24hPct = 8.0

	sig := g.Generate(snap, 85)
	require.NotNil(t, sig)

	assert.Equal(t, models.SignalBuy, sig.Kind)
	assert.Equal(t, 0.95, sig.Confidence) // min(0.95, 0.85+0.1)
	assert.Equal(t, 2.0*0.85, sig.StopLoss)

	// 目标价在 [1.15, 1.40) 区间内采样
	assert.GreaterOrEqual(t, sig.PriceTarget, 2.0*1.15)
	assert.Less(t, sig.PriceTarget, 2.0*1.40)
}

func TestGenerate_VolumeBuy(t *testing.T) {
	g := newTestGenerator()
	snap := baseSnapshot()
	snap.Volume24h = 2_000_000
	snap.PriceChange24hPct = 2.0 // 不满足强势买入

	sig := g.Generate(snap, 75)

	assert.Equal(t, models.SignalBuy, sig.Kind)
	assert.Equal(t, 0.75, sig.Confidence) // min(0.85, 0.75)
	assert.Equal(t, 2.0*0.90, sig.StopLoss)
	assert.GreaterOrEqual(t, sig.PriceTarget, 2.0*1.10)
	assert.Less(t, sig.PriceTarget, 2.0*1.25)
}

func TestGenerate_SellOnLowScore(t *testing.T) {
	g := newTestGenerator()
	sig := g.Generate(baseSnapshot(), 30)

	assert.Equal(t, models.SignalSell, sig.Kind)
	assert.Equal(t, 0.70, sig.Confidence) // min(0.90, 0.70)
	assert.Equal(t, 2.0*0.85, sig.PriceTarget)
	assert.Equal(t, 2.0*1.05, sig.StopLoss)
}

func TestGenerate_SellOnSharpDecline(t *testing.T) {
	g := newTestGenerator()
	snap := baseSnapshot()
	snap.PriceChange24hPct = -20.0
	snap.Volume24h = 500_000

	// 高分但急跌仍触发卖出
	sig := g.Generate(snap, 85)
	assert.Equal(t, models.SignalSell, sig.Kind)
}

func TestGenerate_Hold(t *testing.T) {
	g := newTestGenerator()
	snap := baseSnapshot()
	snap.Volume24h = 100_000

	sig := g.Generate(snap, 55)

	assert.Equal(t, models.SignalHold, sig.Kind)
	assert.Equal(t, 0.60, sig.Confidence)
	assert.Equal(t, 2.0, sig.PriceTarget)
	assert.Equal(t, 2.0*0.95, sig.StopLoss)
	assert.NotEmpty(t, sig.Reasoning)
}

func TestGenerate_RuleOrder(t *testing.T) {
	g := newTestGenerator()

	// 同时满足强势买入和量能买入，按顺序取第一条
	snap := baseSnapshot()
	snap.PriceChange24hPct = 10.0
	snap.Volume24h = 5_000_000

	sig := g.Generate(snap, 90)
	assert.Equal(t, models.SignalBuy, sig.Kind)
	assert.Equal(t, 0.95, sig.Confidence)
}

func TestGenerate_Deterministic(t *testing.T) {
	snap := baseSnapshot()
	snap.PriceChange24hPct = 8.0

	a := NewWithRand(rand.New(rand.NewSource(7))).Generate(snap, 85)
	b := NewWithRand(rand.New(rand.NewSource(7))).Generate(snap, 85)

	assert.Equal(t, a.PriceTarget, b.PriceTarget)
}
