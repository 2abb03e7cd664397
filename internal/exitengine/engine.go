package exitengine

import (
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// Config 退出状态机参数
type Config struct {
	FixedStopLoss     float64       // 固定止损线，默认 -0.50
	ActivationTrigger float64       // 移动止盈激活阈值，默认 1.00
	BaseTrailing      float64       // 基础回撤比例，默认 0.20
	PartialExitAt     float64       // 部分止盈阈值，默认 0.75
	MaxHoldTime       time.Duration // 最长持仓时间，默认 30 分钟
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		FixedStopLoss:     -0.50,
		ActivationTrigger: 1.00,
		BaseTrailing:      0.20,
		PartialExitAt:     0.75,
		MaxHoldTime:       30 * time.Minute,
	}
}

// Action 一次评估的产出动作
type Action int

const (
	ActionNone Action = iota
	ActionPartialExit
	ActionClose
)

// Decision 单次价格评估的决策
type Decision struct {
	Action Action
	Reason models.ExitReason
	Result *models.PositionResult // Action == ActionClose 时非空
}

// Engine 单仓位退出状态机
// 平仓是终态；仓位由状态机独占持有，外部只能读快照
type Engine struct {
	cfg Config

	mu     sync.Mutex
	pos    models.Position
	closed bool

	now func() time.Time // 测试注入
}

// NewEngine 开仓并创建状态机
func NewEngine(cfg Config, tokenAddress string, entryPrice, amount float64) *Engine {
	if cfg.FixedStopLoss == 0 {
		cfg.FixedStopLoss = -0.50
	}
	if cfg.ActivationTrigger == 0 {
		cfg.ActivationTrigger = 1.00
	}
	if cfg.BaseTrailing == 0 {
		cfg.BaseTrailing = 0.20
	}
	if cfg.PartialExitAt == 0 {
		cfg.PartialExitAt = 0.75
	}
	if cfg.MaxHoldTime == 0 {
		cfg.MaxHoldTime = 30 * time.Minute
	}

	e := &Engine{
		cfg: cfg,
		now: time.Now,
	}
	e.pos = models.Position{
		TokenAddress: tokenAddress,
		EntryPrice:   entryPrice,
		Amount:       amount,
		CurrentPrice: entryPrice,
		OpenedAt:     e.now(),
	}
	return e
}

// OnPrice 消费一次价格更新，按固定顺序评估退出条件，首个命中生效
func (e *Engine) OnPrice(price, volatility float64, volumeSpike bool) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Decision{Action: ActionNone}
	}

	e.pos.CurrentPrice = price
	e.pos.PnlRatio = (price - e.pos.EntryPrice) / e.pos.EntryPrice
	pnl := e.pos.PnlRatio

	// 1. 固定止损优先于其他一切逻辑
	if pnl <= e.cfg.FixedStopLoss {
		return e.close(models.ExitStopLoss)
	}

	// 2. 部分止盈，整个持仓周期至多一次
	if !e.pos.PartialExitDone && pnl >= e.cfg.PartialExitAt {
		e.pos.PartialExitDone = true
		logger.Info().
			Str("token", e.pos.TokenAddress).
			Float64("pnl", pnl).
			Msg("partial exit: reducing position by 50%")
		return Decision{Action: ActionPartialExit}
	}

	// 3. 移动止盈激活，激活本身不平仓
	if !e.pos.TrailingActive && pnl >= e.cfg.ActivationTrigger {
		e.pos.TrailingActive = true
		e.pos.PeakPnlRatio = pnl
		logger.Info().
			Str("token", e.pos.TokenAddress).
			Float64("pnl", pnl).
			Msg("trailing stop activated")
	}

	// 4. 动态移动止盈
	if e.pos.TrailingActive {
		if pnl > e.pos.PeakPnlRatio {
			e.pos.PeakPnlRatio = pnl
		}

		t := trailingFraction(e.cfg.BaseTrailing, volatility, e.pos.PeakPnlRatio)
		if pnl <= e.pos.PeakPnlRatio*(1-t) {
			return e.close(models.ExitTrailingStop)
		}
	}

	// 5. 超时且收益不足
	if e.now().Sub(e.pos.OpenedAt) > e.cfg.MaxHoldTime && pnl < 0.50 {
		return e.close(models.ExitTimeBased)
	}

	// 6. 外部成交量异动信号
	if volumeSpike {
		return e.close(models.ExitVolumeBased)
	}

	return Decision{Action: ActionNone}
}

// CloseManual 人工平仓
func (e *Engine) CloseManual(price float64) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Decision{Action: ActionNone}, false
	}

	e.pos.CurrentPrice = price
	e.pos.PnlRatio = (price - e.pos.EntryPrice) / e.pos.EntryPrice
	return e.close(models.ExitManual), true
}

// close 进入终态并产出结果记录，调用方须持有锁
func (e *Engine) close(reason models.ExitReason) Decision {
	e.closed = true
	now := e.now()

	result := &models.PositionResult{
		TokenAddress: e.pos.TokenAddress,
		EntryPrice:   e.pos.EntryPrice,
		ExitPrice:    e.pos.CurrentPrice,
		Pnl:          e.pos.PnlRatio,
		Reason:       reason,
		HoldDuration: now.Sub(e.pos.OpenedAt),
		ClosedAt:     now,
	}

	logger.Info().
		Str("token", e.pos.TokenAddress).
		Str("reason", string(reason)).
		Float64("pnl", result.Pnl).
		Dur("hold", result.HoldDuration).
		Msg("position closed")

	return Decision{Action: ActionClose, Reason: reason, Result: result}
}

// Snapshot 返回仓位当前状态的副本
func (e *Engine) Snapshot() models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// Closed 返回状态机是否已进入终态
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// trailingFraction 计算动态回撤比例
// 波动率越高回撤越宽，峰值收益越高回撤越窄，结果恒在 [0.05, 0.35]
func trailingFraction(base, volatility, peakProfit float64) float64 {
	t := base + minf(volatility*0.5, 0.15)
	t = clampf(t, 0.05, 0.35)

	switch {
	case peakProfit > 2.0:
		t *= 0.7
	case peakProfit > 1.5:
		t *= 0.8
	case peakProfit > 1.0:
		t *= 0.9
	}

	return clampf(t, 0.05, 0.35)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
