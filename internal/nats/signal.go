package nats

import (
	"encoding/json"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

const (
	TopicTradeSignal    = "token_sentry_trade_signal"
	TopicPositionResult = "token_sentry_position_result"
)

// TradeSignalMsg 交易信号消息
type TradeSignalMsg struct {
	TokenAddress string  `json:"token_address"` // 代币地址
	Signal       string  `json:"signal"`        // BUY/SELL/HOLD
	Confidence   float64 `json:"confidence"`    // 置信度 0~1
	PriceTarget  float64 `json:"price_target"`  // 目标价倍数
	StopLoss     float64 `json:"stop_loss"`     // 止损倍数
	Reasoning    string  `json:"reasoning"`     // 决策依据
	Score        float64 `json:"score"`         // 可行性评分
	Timestamp    int64   `json:"timestamp"`     // 时间戳
}

// NewTradeSignalMsg 从信号构建消息
func NewTradeSignalMsg(sig *models.TradeSignal, score float64) *TradeSignalMsg {
	return &TradeSignalMsg{
		TokenAddress: sig.TokenAddress,
		Signal:       string(sig.Kind),
		Confidence:   sig.Confidence,
		PriceTarget:  sig.PriceTarget,
		StopLoss:     sig.StopLoss,
		Reasoning:    sig.Reasoning,
		Score:        score,
		Timestamp:    sig.GeneratedAt.UnixMilli(),
	}
}

// Marshal 序列化信号消息
func (m *TradeSignalMsg) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Error().Err(err).Msg("marshal trade signal failed")
		return nil, err
	}
	return data, nil
}

// PositionResultMsg 平仓结果消息
type PositionResultMsg struct {
	TokenAddress string  `json:"token_address"` // 代币地址
	EntryPrice   float64 `json:"entry_price"`   // 开仓价
	ExitPrice    float64 `json:"exit_price"`    // 平仓价
	Pnl          float64 `json:"pnl"`           // 收益率
	Reason       string  `json:"reason"`        // 平仓原因
	HoldSeconds  int64   `json:"hold_seconds"`  // 持仓时长
	Timestamp    int64   `json:"timestamp"`     // 时间戳
}

// NewPositionResultMsg 从平仓结果构建消息
func NewPositionResultMsg(res *models.PositionResult) *PositionResultMsg {
	return &PositionResultMsg{
		TokenAddress: res.TokenAddress,
		EntryPrice:   res.EntryPrice,
		ExitPrice:    res.ExitPrice,
		Pnl:          res.Pnl,
		Reason:       string(res.Reason),
		HoldSeconds:  int64(res.HoldDuration / time.Second),
		Timestamp:    res.ClosedAt.UnixMilli(),
	}
}

// Marshal 序列化平仓结果消息
func (m *PositionResultMsg) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Error().Err(err).Msg("marshal position result failed")
		return nil, err
	}
	return data, nil
}
