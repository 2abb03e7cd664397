package aggregator

import (
	"math"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/models"
)

// mergeSnapshots 合并多个数据源的快照
// 数值字段取算术平均，identity 字段取第一个成功数据源，
// 整数计数取平均后向下取整，安全标记任一数据源置位即置位
func mergeSnapshots(address string, results []*models.Snapshot) *models.Snapshot {
	n := float64(len(results))
	first := results[0]

	merged := &models.Snapshot{
		Address:    address,
		Symbol:     first.Symbol,
		Name:       first.Name,
		CapturedAt: time.Now(),
	}

	var holderSum, uniqueSum float64
	for _, r := range results {
		merged.PriceUSD += r.PriceUSD
		merged.Volume24h += r.Volume24h
		merged.LiquidityUSD += r.LiquidityUSD
		merged.MarketCap += r.MarketCap
		merged.Top10Concentration += r.Top10Concentration
		merged.LPLockedRatio += r.LPLockedRatio
		merged.PriceChange24hPct += r.PriceChange24hPct
		merged.Volatility += r.Volatility
		holderSum += float64(r.HolderCount)
		uniqueSum += float64(r.UniqueAddressCount)

		merged.Security.Honeypot = merged.Security.Honeypot || r.Security.Honeypot
		merged.Security.Blacklisted = merged.Security.Blacklisted || r.Security.Blacklisted
		merged.Security.TransferPausable = merged.Security.TransferPausable || r.Security.TransferPausable
		merged.Security.Mintable = merged.Security.Mintable || r.Security.Mintable
		merged.Security.HiddenOwner = merged.Security.HiddenOwner || r.Security.HiddenOwner
		merged.Security.CanReclaimOwnership = merged.Security.CanReclaimOwnership || r.Security.CanReclaimOwnership
		merged.Security.OwnerCanChangeBalance = merged.Security.OwnerCanChangeBalance || r.Security.OwnerCanChangeBalance
		merged.Security.ExternalCall = merged.Security.ExternalCall || r.Security.ExternalCall

		if len(merged.TransactionSample) == 0 && len(r.TransactionSample) > 0 {
			merged.TransactionSample = append([]int64(nil), r.TransactionSample...)
		}
	}

	merged.PriceUSD /= n
	merged.Volume24h /= n
	merged.LiquidityUSD /= n
	merged.MarketCap /= n
	merged.Top10Concentration /= n
	merged.LPLockedRatio /= n
	merged.PriceChange24hPct /= n
	merged.Volatility /= n
	merged.HolderCount = int64(math.Floor(holderSum / n))
	merged.UniqueAddressCount = int64(math.Floor(uniqueSum / n))

	return merged
}
