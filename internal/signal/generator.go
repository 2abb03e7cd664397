package signal

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// Generator 交易信号生成器
// 目标价在区间内均匀采样，属于有意的随机策略；随机源可注入以便测试
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// New 创建信号生成器
func New() *Generator {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand 使用指定随机源创建信号生成器
func NewWithRand(rnd *rand.Rand) *Generator {
	return &Generator{
		rnd: rnd,
		now: time.Now,
	}
}

// uniform 返回 [lo, hi) 区间的均匀随机数
func (g *Generator) uniform(lo, hi float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + g.rnd.Float64()*(hi-lo)
}

// Generate 由快照和可行性评分生成交易信号，规则按顺序首个命中生效
func (g *Generator) Generate(snap *models.Snapshot, score float64) *models.TradeSignal {
	price := snap.PriceUSD

	sig := &models.TradeSignal{
		TokenAddress: snap.Address,
		GeneratedAt:  g.now(),
	}

	switch {
	case score >= 80 && snap.PriceChange24hPct > 5:
		sig.Kind = models.SignalBuy
		sig.Confidence = min(0.95, score/100+0.1)
		sig.PriceTarget = price * g.uniform(1.15, 1.40)
		sig.StopLoss = price * 0.85
		sig.Reasoning = fmt.Sprintf("High viability score (%.1f) with positive momentum (+%.1f%%)", score, snap.PriceChange24hPct)

	case score >= 70 && snap.Volume24h > 1000000:
		sig.Kind = models.SignalBuy
		sig.Confidence = min(0.85, score/100)
		sig.PriceTarget = price * g.uniform(1.10, 1.25)
		sig.StopLoss = price * 0.90
		sig.Reasoning = fmt.Sprintf("Good viability score (%.1f) with strong volume ($%.0f)", score, snap.Volume24h)

	case score < 40 || snap.PriceChange24hPct < -15:
		sig.Kind = models.SignalSell
		sig.Confidence = min(0.90, (100-score)/100)
		sig.PriceTarget = price * 0.85
		sig.StopLoss = price * 1.05
		sig.Reasoning = fmt.Sprintf("Low viability score (%.1f) or significant decline (%.1f%%)", score, snap.PriceChange24hPct)

	default:
		sig.Kind = models.SignalHold
		sig.Confidence = 0.60
		sig.PriceTarget = price
		sig.StopLoss = price * 0.95
		sig.Reasoning = fmt.Sprintf("Moderate viability score (%.1f), waiting for clearer signals", score)
	}

	logger.Info().
		Str("token", snap.Address).
		Str("kind", string(sig.Kind)).
		Float64("confidence", sig.Confidence).
		Float64("price_target", sig.PriceTarget).
		Float64("stop_loss", sig.StopLoss).
		Msg("trade signal generated")

	return sig
}
