package models

import "time"

// SignalKind 交易信号方向
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// TradeSignal 一次评估周期产出的交易信号，生成后不可变
type TradeSignal struct {
	TokenAddress string     `json:"token_address"`
	Kind         SignalKind `json:"kind"`
	Confidence   float64    `json:"confidence"` // [0,1]
	PriceTarget  float64    `json:"price_target"`
	StopLoss     float64    `json:"stop_loss"`
	Reasoning    string     `json:"reasoning"`
	GeneratedAt  time.Time  `json:"generated_at"`
}
