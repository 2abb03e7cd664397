package models

import "time"

// ExitReason 平仓原因
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitTimeBased    ExitReason = "TIME_BASED"
	ExitVolumeBased  ExitReason = "VOLUME_BASED"
	ExitManual       ExitReason = "MANUAL"
)

// Position 持仓，由所属的退出状态机独占管理，平仓即销毁
type Position struct {
	TokenAddress    string    `json:"token_address"`
	EntryPrice      float64   `json:"entry_price"`
	Amount          float64   `json:"amount"`
	CurrentPrice    float64   `json:"current_price"`
	PnlRatio        float64   `json:"pnl_ratio"`
	PeakPnlRatio    float64   `json:"peak_pnl_ratio"`
	TrailingActive  bool      `json:"trailing_active"`
	PartialExitDone bool      `json:"partial_exit_done"`
	OpenedAt        time.Time `json:"opened_at"`
}

// PositionResult 平仓结果记录
type PositionResult struct {
	TokenAddress string        `json:"token_address"`
	EntryPrice   float64       `json:"entry_price"`
	ExitPrice    float64       `json:"exit_price"`
	Pnl          float64       `json:"pnl"`
	Reason       ExitReason    `json:"reason"`
	HoldDuration time.Duration `json:"hold_duration"`
	ClosedAt     time.Time     `json:"closed_at"`
}
