package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

const (
	writeWait      = 10 * time.Second // 写入超时
	pongWait       = 60 * time.Second // 读取超时（应大于心跳间隔）
	pingPeriod     = 50 * time.Second // 心跳间隔
	maxMessageSize = 1024 * 512       // 最大消息限制 512KB
)

// Tick 实时价格推送
type Tick struct {
	TokenAddress string
	Price        float64
	ReceivedAt   time.Time
}

// Client WebSocket 行情客户端
type Client struct {
	url     string
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// 状态控制
	done      chan struct{}
	closeOnce sync.Once

	// 回调
	onTick       func(Tick)
	onDisconnect func()
}

func NewClient(url string) *Client {
	if url == "" {
		panic("stream: URL cannot be empty")
	}
	return &Client{
		url:  url,
		done: make(chan struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil // 已经连接
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// 监控 Context 和 done 信号，主动关闭连接以解除 ReadMessage 阻塞
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.internalClose()
	}()

	go c.readPump()
	go c.pingPump()

	return nil
}

// internalClose 内部关闭方法，不触发通知逻辑
func (c *Client) internalClose() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.internalClose()
	})
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) readPump() {
	defer func() {
		c.internalClose()
		c.notifyDisconnect()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Msg("stream read error")
			}
			return
		}

		// 每次读取成功，刷新 ReadDeadline
		conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleMessage(msg)
	}
}

// handleMessage 解析行情推送，仅处理 tick 类型
func (c *Client) handleMessage(msg []byte) {
	root := gjson.ParseBytes(msg)
	if root.Get("type").String() != "tick" {
		return
	}

	address := root.Get("address").String()
	price := root.Get("price").Float()
	if address == "" || price <= 0 {
		logger.Warn().Str("raw", root.Raw).Msg("malformed tick, skipping")
		return
	}

	if c.onTick != nil {
		c.onTick(Tick{
			TokenAddress: address,
			Price:        price,
			ReceivedAt:   time.Now(),
		})
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return err
	}

	// 业务层 Ping (JSON)
	return conn.WriteJSON(map[string]string{"method": "ping"})
}

// Subscribe 订阅单个代币的行情推送
func (c *Client) Subscribe(tokenAddress string) error {
	return c.writeJSONWithDeadline(map[string]any{
		"method":  "subscribe",
		"channel": "tick",
		"address": tokenAddress,
	})
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(tokenAddress string) error {
	return c.writeJSONWithDeadline(map[string]any{
		"method":  "unsubscribe",
		"channel": "tick",
		"address": tokenAddress,
	})
}

func (c *Client) writeJSONWithDeadline(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) notifyDisconnect() {
	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (c *Client) SetTickHandler(handler func(Tick)) {
	c.onTick = handler
}

func (c *Client) SetDisconnectCallback(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = callback
}
