package exitengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/pkg/concurrent"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// PriceSource 实时价格来源（由聚合器实现）
type PriceSource interface {
	BestFirstPrice(ctx context.Context, address string) (float64, error)
}

// VolatilitySource 价格来源的可选能力：读取缓存中的最新波动率
type VolatilitySource interface {
	CachedVolatility(address string) (float64, bool)
}

// VolumeSpikeFunc 外部成交量异动信号，每个评估周期采样一次；nil 表示永不触发
type VolumeSpikeFunc func(tokenAddress string) bool

// ResultHandler 平仓结果回调
type ResultHandler func(result *models.PositionResult)

// PartialExitHandler 部分止盈回调
type PartialExitHandler func(tokenAddress string)

// positionEntry 持仓条目：互斥锁保证单仓位评估严格串行
type positionEntry struct {
	engine     *Engine
	volatility float64
	mu         sync.Mutex
}

// Monitor 持仓监控器
// 固定间隔轮询全部持仓，评估任务提交到协程池并发执行
type Monitor struct {
	engineCfg Config
	interval  time.Duration

	prices PriceSource
	spike  VolumeSpikeFunc

	onResult  ResultHandler
	onPartial PartialExitHandler

	positions concurrent.Map[string, *positionEntry]
	pool      *ants.Pool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor 创建持仓监控器
func NewMonitor(engineCfg Config, interval time.Duration, prices PriceSource, spike VolumeSpikeFunc) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	pool, _ := ants.NewPool(64)

	return &Monitor{
		engineCfg: engineCfg,
		interval:  interval,
		prices:    prices,
		spike:     spike,
		pool:      pool,
		done:      make(chan struct{}),
	}
}

// SetResultHandler 设置平仓结果回调
func (m *Monitor) SetResultHandler(h ResultHandler) {
	m.onResult = h
}

// SetPartialExitHandler 设置部分止盈回调
func (m *Monitor) SetPartialExitHandler(h PartialExitHandler) {
	m.onPartial = h
}

// Open 开仓：同一地址同一时刻只允许一个状态机
func (m *Monitor) Open(tokenAddress string, entryPrice, amount, volatility float64) error {
	if tokenAddress == "" {
		return fmt.Errorf("open position: empty token address")
	}
	if entryPrice <= 0 {
		return fmt.Errorf("open position %s: invalid entry price %f", tokenAddress, entryPrice)
	}

	entry := &positionEntry{
		engine:     NewEngine(m.engineCfg, tokenAddress, entryPrice, amount),
		volatility: volatility,
	}
	if _, loaded := m.positions.LoadOrStore(tokenAddress, entry); loaded {
		return fmt.Errorf("position already open for %s", tokenAddress)
	}

	monitor.SetActivePositions(int(m.positions.Len()))
	logger.Info().
		Str("token", tokenAddress).
		Float64("entry_price", entryPrice).
		Float64("amount", amount).
		Msg("position opened")

	return nil
}

// Close 人工平仓
func (m *Monitor) Close(tokenAddress string, price float64) (*models.PositionResult, error) {
	entry, ok := m.positions.Load(tokenAddress)
	if !ok {
		return nil, fmt.Errorf("no open position for %s", tokenAddress)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	decision, ok := entry.engine.CloseManual(price)
	if !ok {
		return nil, fmt.Errorf("position for %s already closed", tokenAddress)
	}

	m.remove(tokenAddress, decision.Result)
	return decision.Result, nil
}

// Position 返回指定地址的仓位快照
func (m *Monitor) Position(tokenAddress string) (models.Position, bool) {
	entry, ok := m.positions.Load(tokenAddress)
	if !ok {
		return models.Position{}, false
	}
	return entry.engine.Snapshot(), true
}

// Positions 返回全部仓位快照
func (m *Monitor) Positions() []models.Position {
	out := make([]models.Position, 0, m.positions.Len())
	m.positions.Range(func(_ string, entry *positionEntry) bool {
		out = append(out, entry.engine.Snapshot())
		return true
	})
	return out
}

// Count 返回当前持仓数
func (m *Monitor) Count() int {
	return int(m.positions.Len())
}

// Start 启动轮询循环
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.pollOnce(ctx)
			}
		}
	}()

	logger.Info().Dur("interval", m.interval).Msg("position monitor started")
}

// pollOnce 轮询全部持仓，每个仓位一个评估任务
func (m *Monitor) pollOnce(ctx context.Context) {
	m.positions.Range(func(token string, entry *positionEntry) bool {
		m.wg.Add(1)
		err := m.pool.Submit(func() {
			defer m.wg.Done()
			m.evaluate(ctx, token, entry)
		})
		if err != nil {
			m.wg.Done()
			logger.Warn().Err(err).Str("token", token).Msg("submit evaluation task failed")
		}
		return true
	})
}

// evaluate 单仓位评估；TryLock 失败说明上一轮还在进行，跳过本轮
func (m *Monitor) evaluate(ctx context.Context, token string, entry *positionEntry) {
	if !entry.mu.TryLock() {
		return
	}
	defer entry.mu.Unlock()

	if entry.engine.Closed() {
		return
	}

	price, err := m.prices.BestFirstPrice(ctx, token)
	if err != nil {
		// 单次取价失败不影响下一轮
		logger.Warn().Err(err).Str("token", token).Msg("price lookup failed, skipping tick")
		return
	}

	volumeSpike := false
	if m.spike != nil {
		volumeSpike = m.spike(token)
	}

	// 波动率每轮取最新缓存值，动态回撤比例随行情变化；缓存缺失时沿用开仓值
	volatility := entry.volatility
	if vs, ok := m.prices.(VolatilitySource); ok {
		if v, ok := vs.CachedVolatility(token); ok {
			volatility = v
		}
	}

	decision := entry.engine.OnPrice(price, volatility, volumeSpike)
	switch decision.Action {
	case ActionPartialExit:
		if m.onPartial != nil {
			m.onPartial(token)
		}
	case ActionClose:
		m.remove(token, decision.Result)
	}
}

// remove 摘除已平仓条目并上报结果
func (m *Monitor) remove(token string, result *models.PositionResult) {
	m.positions.Delete(token)
	monitor.SetActivePositions(int(m.positions.Len()))
	monitor.IncPositionClosed(string(result.Reason))

	if m.onResult != nil {
		m.onResult(result)
	}
}

// Stop 停止轮询并等待在途评估完成，可重复调用
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.pool.Release()
		logger.Info().Msg("position monitor stopped")
	})
}
