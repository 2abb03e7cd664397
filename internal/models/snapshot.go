package models

import "time"

// SecurityFlags 合约安全标记（来自安全审计数据源）
type SecurityFlags struct {
	Honeypot              bool `json:"honeypot"`
	Blacklisted           bool `json:"blacklisted"`
	TransferPausable      bool `json:"transfer_pausable"`
	Mintable              bool `json:"mintable"`
	HiddenOwner           bool `json:"hidden_owner"`
	CanReclaimOwnership   bool `json:"can_reclaim_ownership"`
	OwnerCanChangeBalance bool `json:"owner_can_change_balance"`
	ExternalCall          bool `json:"external_call"`
}

// Snapshot 单个代币的市场/链上指标快照
// 由聚合器合并多数据源之后独占持有，下游只读
type Snapshot struct {
	Address            string        `json:"address"`
	Symbol             string        `json:"symbol"`
	Name               string        `json:"name"`
	PriceUSD           float64       `json:"price_usd"`
	Volume24h          float64       `json:"volume_24h"`
	LiquidityUSD       float64       `json:"liquidity_usd"`
	MarketCap          float64       `json:"market_cap"`
	HolderCount        int64         `json:"holder_count"`
	Top10Concentration float64       `json:"top10_concentration"` // [0,1]
	LPLockedRatio      float64       `json:"lp_locked_ratio"`     // [0,1]
	PriceChange24hPct  float64       `json:"price_change_24h_pct"`
	Volatility         float64       `json:"volatility"` // [0,1]
	Security           SecurityFlags `json:"security"`
	TransactionSample  []int64       `json:"transaction_sample"` // 有序正整数成交额样本
	UniqueAddressCount int64         `json:"unique_address_count"`
	CapturedAt         time.Time     `json:"captured_at"`
}

// Clone 返回快照的深拷贝，避免缓存条目被下游修改
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	dup := *s
	dup.TransactionSample = append([]int64(nil), s.TransactionSample...)
	return &dup
}
