package stream

import (
	"context"
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

const (
	reconnectBase = 1 * time.Second
	reconnectMax  = 30 * time.Second
)

// PriceSink 行情落地接口
type PriceSink interface {
	SetRealtimePrice(tokenAddress string, price float64)
}

// Reader 管理行情连接生命周期：订阅、断线重连、异步投递
// 队列满时丢弃最旧的 tick，行情以最新价为准
type Reader struct {
	url    string
	tokens []string
	sink   PriceSink

	queue    chan Tick
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.Mutex
	client *Client
}

// NewReader 创建行情读取器
func NewReader(url string, tokens []string, queueSize int, sink PriceSink) *Reader {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Reader{
		url:    url,
		tokens: tokens,
		sink:   sink,
		queue:  make(chan Tick, queueSize),
		done:   make(chan struct{}),
	}
}

// Start 建立连接并启动重连与消费协程
func (r *Reader) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.connectLoop(ctx)
	go r.worker()
}

// Stop 停止读取器，可重复调用
func (r *Reader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		if r.client != nil {
			r.client.Close()
		}
		r.mu.Unlock()

		r.wg.Wait()
	})
}

// connectLoop 连接失败或断开后按指数退避重连
func (r *Reader) connectLoop(ctx context.Context) {
	defer r.wg.Done()

	delay := reconnectBase
	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		disconnected := make(chan struct{})

		client := NewClient(r.url)
		client.SetTickHandler(r.enqueue)
		client.SetDisconnectCallback(func() {
			close(disconnected)
		})

		if err := client.Connect(ctx); err != nil {
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("stream connect failed")
			if !r.sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, reconnectMax)
			continue
		}

		r.mu.Lock()
		r.client = client
		r.mu.Unlock()

		for _, token := range r.tokens {
			if err := client.Subscribe(token); err != nil {
				logger.Warn().Err(err).Str("token", token).Msg("subscribe failed")
			}
		}

		logger.Info().Str("url", r.url).Int("tokens", len(r.tokens)).Msg("stream connected")
		delay = reconnectBase

		select {
		case <-disconnected:
			logger.Warn().Msg("stream disconnected, reconnecting")
		case <-r.done:
			client.Close()
			return
		case <-ctx.Done():
			client.Close()
			return
		}
	}
}

// enqueue 投递 tick，队列满时淘汰最旧的一条
func (r *Reader) enqueue(tick Tick) {
	for {
		select {
		case r.queue <- tick:
			monitor.SetStreamQueueSize(len(r.queue))
			return
		default:
			select {
			case <-r.queue:
				monitor.IncStreamDropped()
			default:
			}
		}
	}
}

func (r *Reader) worker() {
	defer r.wg.Done()

	for {
		select {
		case tick := <-r.queue:
			r.sink.SetRealtimePrice(tick.TokenAddress, tick.Price)
			monitor.SetStreamQueueSize(len(r.queue))
		case <-r.done:
			return
		}
	}
}

// IsConnected 当前连接状态
func (r *Reader) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil && r.client.IsConnected()
}

func (r *Reader) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}
