package sentry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/aggregator"
	"github.com/utrading/utrading-token-sentry/internal/exitengine"
	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/internal/scorer"
	"github.com/utrading/utrading-token-sentry/internal/signal"
	"github.com/utrading/utrading-token-sentry/pkg/concurrent"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// Publisher 信号发布接口
type Publisher interface {
	PublishTradeSignal(sig *models.TradeSignal, score float64) error
	PublishPositionResult(res *models.PositionResult) error
}

// Config 评估服务配置
type Config struct {
	WatchTokens    []string
	AssessInterval time.Duration
	TradeAmount    float64
}

// Service 评估服务：按周期对监控代币执行 聚合 -> 评分 -> 信号 流程
// 单个代币评估失败只记录日志，不影响其余代币与后续周期
type Service struct {
	cfg       Config
	agg       *aggregator.Aggregator
	scorer    *scorer.Scorer
	generator *signal.Generator
	positions *exitengine.Monitor
	publisher Publisher

	lastScores  concurrent.Map[string, float64]
	lastSignals concurrent.Map[string, *models.TradeSignal]

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New 创建评估服务，publisher 可为 nil（测试模式下不发布）
func New(cfg Config, agg *aggregator.Aggregator, positions *exitengine.Monitor, publisher Publisher) *Service {
	if cfg.AssessInterval <= 0 {
		cfg.AssessInterval = 30 * time.Second
	}

	s := &Service{
		cfg:       cfg,
		agg:       agg,
		scorer:    scorer.New(),
		generator: signal.New(),
		positions: positions,
		publisher: publisher,
		done:      make(chan struct{}),
	}

	// 交易执行不在本服务范围内，部分止盈只做记录
	positions.SetPartialExitHandler(func(token string) {
		logger.Info().Str("token", token).Msg("partial exit: position reduced by half")
	})

	// 仓位关闭统一在这里发布，人工平仓与自动平仓共用一条路径
	positions.SetResultHandler(func(res *models.PositionResult) {
		if s.publisher == nil {
			return
		}
		if err := s.publisher.PublishPositionResult(res); err != nil {
			logger.Warn().Err(err).Str("token", res.TokenAddress).Msg("publish position result failed")
		}
	})

	return s
}

// RunAssessmentCycle 对单个代币执行一次完整评估
func (s *Service) RunAssessmentCycle(ctx context.Context, tokenAddress string) (*models.TradeSignal, error) {
	start := time.Now()

	snap, err := s.agg.AggregateAll(ctx, tokenAddress)
	if err != nil {
		logger.Warn().Err(err).Str("token", tokenAddress).Msg("assessment aborted, no data")
		return nil, err
	}

	score := s.scorer.Score(snap)
	s.lastScores.Store(tokenAddress, score)

	sig := s.generator.Generate(snap, score)
	s.lastSignals.Store(tokenAddress, sig)

	monitor.IncSignalGenerated(string(sig.Kind))
	monitor.ObserveAssessmentDuration(time.Since(start).Seconds())

	if s.publisher != nil {
		if err := s.publisher.PublishTradeSignal(sig, score); err != nil {
			// 发布失败不影响评估结果
			logger.Warn().Err(err).Str("token", tokenAddress).Msg("publish trade signal failed")
		}
	}

	return sig, nil
}

// OpenPosition 按当前价格开仓，amount <= 0 时使用默认额度
func (s *Service) OpenPosition(ctx context.Context, tokenAddress string, amount float64) error {
	if tokenAddress == "" {
		return fmt.Errorf("token address cannot be empty")
	}
	if amount <= 0 {
		amount = s.cfg.TradeAmount
	}

	price, err := s.agg.BestFirstPrice(ctx, tokenAddress)
	if err != nil {
		return fmt.Errorf("fetch entry price: %w", err)
	}

	// 波动率取自最近快照，缺失时按 0 处理（使用基础追踪比例）
	var volatility float64
	if snap, err := s.agg.AggregateAll(ctx, tokenAddress); err == nil {
		volatility = snap.Volatility
	}

	return s.positions.Open(tokenAddress, price, amount, volatility)
}

// ClosePosition 人工平仓
func (s *Service) ClosePosition(ctx context.Context, tokenAddress string) (*models.PositionResult, error) {
	price, err := s.agg.BestFirstPrice(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch exit price: %w", err)
	}

	return s.positions.Close(tokenAddress, price)
}

// LastScore 返回代币最近一次评分
func (s *Service) LastScore(tokenAddress string) (float64, bool) {
	return s.lastScores.Load(tokenAddress)
}

// ActiveSignal 返回代币最近一次信号
func (s *Service) ActiveSignal(tokenAddress string) (*models.TradeSignal, bool) {
	return s.lastSignals.Load(tokenAddress)
}

// Positions 返回当前全部仓位快照
func (s *Service) Positions() []models.Position {
	return s.positions.Positions()
}

// Start 启动周期评估循环
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)

	logger.Info().
		Int("tokens", len(s.cfg.WatchTokens)).
		Dur("interval", s.cfg.AssessInterval).
		Msg("sentry service started")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.AssessInterval)
	defer ticker.Stop()

	// 启动后立即跑一轮
	s.assessAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.assessAll(ctx)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) assessAll(ctx context.Context) {
	for _, token := range s.cfg.WatchTokens {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := s.RunAssessmentCycle(ctx, token); err != nil {
			logger.Error().Err(err).Str("token", token).Msg("assessment cycle failed")
		}
	}
}

// Stop 停止评估循环
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	logger.Info().Msg("sentry service stopped")
}
