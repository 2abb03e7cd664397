package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		Conn: conn,
	}

	// 更新指标
	monitor.SetNATSConnected(true)

	return p, nil
}

// PublishTradeSignal 发布交易信号
func (p *Publisher) PublishTradeSignal(sig *models.TradeSignal, score float64) error {
	data, err := NewTradeSignalMsg(sig, score).Marshal()
	if err != nil {
		return err
	}

	return p.Publish(TopicTradeSignal, data)
}

// PublishPositionResult 发布平仓结果
func (p *Publisher) PublishPositionResult(res *models.PositionResult) error {
	data, err := NewPositionResultMsg(res).Marshal()
	if err != nil {
		return err
	}

	return p.Publish(TopicPositionResult, data)
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	// 更新指标
	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		p.Conn.Close()
	}

	logger.Info().Msg("nats publisher closed")
	return nil
}
