package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/resilience"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// SimProvider 模拟数据源，用于测试模式和演练
// 同一地址生成稳定的基准价格，叠加小幅随机扰动
type SimProvider struct {
	name      string
	failRate  float64 // [0,1] 模拟失败概率
	connected atomic.Bool

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimProvider 创建模拟数据源
func NewSimProvider(name string, failRate float64, rnd *rand.Rand) *SimProvider {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimProvider{
		name:     name,
		failRate: failRate,
		rnd:      rnd,
	}
}

func (p *SimProvider) Name() string {
	return p.name
}

func (p *SimProvider) Connect(ctx context.Context) error {
	p.connected.Store(true)
	logger.Info().Str("provider", p.name).Msg("sim provider connected")
	return nil
}

func (p *SimProvider) Disconnect() {
	p.connected.Store(false)
}

func (p *SimProvider) IsConnected() bool {
	return p.connected.Load()
}

// basePrice 由地址哈希得到 $0.01 ~ $9.99 的稳定基准价
func basePrice(address string) float64 {
	h := fnv.New32a()
	h.Write([]byte(address))
	return float64(h.Sum32()%1000)/100 + 0.01
}

func (p *SimProvider) maybeFail() error {
	p.mu.Lock()
	roll := p.rnd.Float64()
	p.mu.Unlock()

	if roll < p.failRate {
		return fmt.Errorf("simulated outage on %s: %w", p.name, resilience.ErrConnectionFailure)
	}
	return nil
}

func (p *SimProvider) FetchSnapshot(ctx context.Context, address string) (*models.Snapshot, error) {
	if !p.IsConnected() {
		return nil, fmt.Errorf("%s not connected: %w", p.name, resilience.ErrConnectionFailure)
	}
	if err := p.maybeFail(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base := basePrice(address)
	// 成交额按对数均匀分布采样，符合真实市场的数量级分布
	sample := make([]int64, 0, 80)
	for i := 0; i < 80; i++ {
		sample = append(sample, int64(math.Pow(10, 1+p.rnd.Float64()*3.7)))
	}

	tail := address
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}

	return &models.Snapshot{
		Address:            address,
		Symbol:             "TKN" + tail,
		Name:               "Token " + tail,
		PriceUSD:           base * (0.8 + p.rnd.Float64()*0.4),
		Volume24h:          100000 + p.rnd.Float64()*4900000,
		LiquidityUSD:       500000 + p.rnd.Float64()*9500000,
		MarketCap:          1000000 + p.rnd.Float64()*99000000,
		HolderCount:        1000 + p.rnd.Int63n(49000),
		Top10Concentration: 0.05 + p.rnd.Float64()*0.20,
		LPLockedRatio:      0.90 + p.rnd.Float64()*0.09,
		PriceChange24hPct:  -20 + p.rnd.Float64()*40,
		Volatility:         0.1 + p.rnd.Float64()*0.7,
		TransactionSample:  sample,
		UniqueAddressCount: 50 + p.rnd.Int63n(150),
		CapturedAt:         time.Now(),
	}, nil
}

func (p *SimProvider) FetchRealtimePrice(ctx context.Context, address string) (float64, error) {
	if !p.IsConnected() {
		return 0, fmt.Errorf("%s not connected: %w", p.name, resilience.ErrConnectionFailure)
	}
	if err := p.maybeFail(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	variation := -0.05 + p.rnd.Float64()*0.10
	p.mu.Unlock()

	return basePrice(address) * (1 + variation), nil
}
