package scorer

import (
	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// Scorer 代币可行性评分器，输出 [0,100] 信任分
type Scorer struct {
	detector WashTradeDetector
}

// New 创建评分器
func New() *Scorer {
	return &Scorer{}
}

// Score 计算快照的可行性评分
// honeypot 或 blacklisted 直接判零分，不再继续计算
func (s *Scorer) Score(snap *models.Snapshot) float64 {
	if snap.Security.Honeypot {
		logger.Warn().Str("token", snap.Address).Msg("token flagged as honeypot, disqualified")
		return 0
	}
	if snap.Security.Blacklisted {
		logger.Warn().Str("token", snap.Address).Msg("token is blacklisted, disqualified")
		return 0
	}

	score := 100.0

	// 前十持仓集中度
	switch {
	case snap.Top10Concentration > 0.50:
		score -= 30
	case snap.Top10Concentration > 0.40:
		score -= 20
	case snap.Top10Concentration > 0.30:
		score -= 10
	}

	// LP 锁仓比例
	switch {
	case snap.LPLockedRatio < 0.70:
		score -= 40
	case snap.LPLockedRatio < 0.85:
		score -= 25
	case snap.LPLockedRatio < 0.95:
		score -= 10
	}

	washDetected := s.detector.IsSuspicious(snap.TransactionSample, snap.UniqueAddressCount)
	if washDetected {
		score -= 35
		logger.Warn().Str("token", snap.Address).Msg("potential wash trading detected")
	}

	// 流动性深度：tier 分映射到 ±15 分
	liquidityScore := liquidityTier(snap.LiquidityUSD, snap.Volume24h)
	score += (liquidityScore - 0.5) * 30

	score -= securityDeductions(snap.Security)

	final := clamp(score, 0, 100)

	logger.Debug().
		Str("token", snap.Address).
		Float64("concentration", snap.Top10Concentration).
		Float64("lp_locked", snap.LPLockedRatio).
		Bool("wash_trading", washDetected).
		Float64("liquidity_score", liquidityScore).
		Float64("score", final).
		Msg("viability scoring complete")

	return final
}

// liquidityTier 流动性深度分级
func liquidityTier(liquidityUSD, volume24h float64) float64 {
	switch {
	case liquidityUSD < 10000:
		return 0
	case liquidityUSD < 50000:
		return 0.3
	case liquidityUSD < 100000:
		return 0.6
	}
	// 无成交量按比值无穷大处理
	if volume24h <= 0 || liquidityUSD/volume24h > 0.5 {
		return 1.0
	}
	return 0.8
}

// securityDeductions 次级安全标记的累计扣分
func securityDeductions(flags models.SecurityFlags) float64 {
	var total float64
	if flags.TransferPausable {
		total += 3
	}
	if flags.Mintable {
		total += 3
	}
	if flags.HiddenOwner {
		total += 4
	}
	if flags.CanReclaimOwnership {
		total += 5
	}
	if flags.OwnerCanChangeBalance {
		total += 5
	}
	if flags.ExternalCall {
		total += 2
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
