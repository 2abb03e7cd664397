package provider

import (
	"context"

	"github.com/utrading/utrading-token-sentry/internal/models"
)

// Provider 外部数据源能力契约
// 实现可能失败、超时或返回残缺数据，核心层统一按可恢复错误处理
type Provider interface {
	// Name 返回服务名（作为熔断器键）
	Name() string

	// Connect 建立连接，失败返回错误
	Connect(ctx context.Context) error

	// Disconnect 断开连接
	Disconnect()

	// IsConnected 返回当前连接状态
	IsConnected() bool

	// FetchSnapshot 拉取代币快照
	FetchSnapshot(ctx context.Context, address string) (*models.Snapshot, error)

	// FetchRealtimePrice 拉取实时价格
	FetchRealtimePrice(ctx context.Context, address string) (float64, error)
}
