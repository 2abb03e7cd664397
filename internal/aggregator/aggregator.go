package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/internal/provider"
	"github.com/utrading/utrading-token-sentry/internal/resilience"
	"github.com/utrading/utrading-token-sentry/pkg/concurrent"
	"github.com/utrading/utrading-token-sentry/pkg/goplus"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// 缺数据错误族：ErrNoProviders 与 ErrAllProvidersFailed 都匹配 ErrNoData，
// 只关心有无数据的调用方按单一分支处理即可
var (
	ErrNoData             = errors.New("no data")
	ErrNoProviders        = fmt.Errorf("%w: no connected providers", ErrNoData)
	ErrAllProvidersFailed = fmt.Errorf("%w: all providers failed", ErrNoData)
)

// Config 聚合器配置
type Config struct {
	TTL         time.Duration // 快照缓存 TTL
	CallTimeout time.Duration // 单次 Provider 调用超时
}

// Aggregator 多数据源聚合与缓存层
// 所有对 Provider 的调用都经过熔断器 + 重试包装
type Aggregator struct {
	providers []provider.Provider // 优先级顺序
	breakers  *resilience.Registry
	retrier   *resilience.Retrier
	tracker   *resilience.ErrorTracker

	cache       *gocache.Cache // address → *models.Snapshot
	ttl         time.Duration
	callTimeout time.Duration

	// 实时价格缓存，由价格流消费端写入
	priceCache concurrent.Map[string, float64]
}

// New 创建聚合器，providers 按优先级排列
func New(cfg Config, providers []provider.Provider, breakers *resilience.Registry, retrier *resilience.Retrier, tracker *resilience.ErrorTracker) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}

	return &Aggregator{
		providers:   providers,
		breakers:    breakers,
		retrier:     retrier,
		tracker:     tracker,
		cache:       gocache.New(cfg.TTL, time.Minute),
		ttl:         cfg.TTL,
		callTimeout: cfg.CallTimeout,
	}
}

// guardedSnapshot 对单个 Provider 的快照调用加熔断与重试
// 熔断器在重试循环内部，OPEN 状态会短路剩余重试
func (a *Aggregator) guardedSnapshot(ctx context.Context, p provider.Provider, address string) (*models.Snapshot, error) {
	var snap *models.Snapshot

	err := a.retrier.Do(ctx, p.Name()+".fetch_snapshot", func(ctx context.Context) error {
		return a.breakers.Get(p.Name()).Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			s, err := p.FetchSnapshot(cctx, address)
			if err != nil {
				a.recordError(err, p.Name(), "fetch_snapshot")
				return err
			}
			snap = s
			return nil
		})
	})
	monitor.SetBreakerState(p.Name(), int(a.breakers.Get(p.Name()).State()))
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// guardedPrice 对单个 Provider 的实时价格调用加熔断与重试
func (a *Aggregator) guardedPrice(ctx context.Context, p provider.Provider, address string) (float64, error) {
	var price float64

	err := a.retrier.Do(ctx, p.Name()+".fetch_price", func(ctx context.Context) error {
		return a.breakers.Get(p.Name()).Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			v, err := p.FetchRealtimePrice(cctx, address)
			if err != nil {
				a.recordError(err, p.Name(), "fetch_price")
				return err
			}
			price = v
			return nil
		})
	})
	monitor.SetBreakerState(p.Name(), int(a.breakers.Get(p.Name()).State()))
	if err != nil {
		return 0, err
	}

	return price, nil
}

func (a *Aggregator) recordError(err error, service, op string) {
	kind := "connection"
	switch {
	case errors.Is(err, resilience.ErrTimeout):
		kind = "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		kind = "circuit_open"
	}
	a.tracker.Record(kind, service+"."+op, err.Error())
	monitor.IncProviderFailure(service, kind)
}

// BestFirst 按优先级尝试各数据源，返回第一个成功的快照
func (a *Aggregator) BestFirst(ctx context.Context, address string) (*models.Snapshot, error) {
	connected := 0
	for _, p := range a.providers {
		if !p.IsConnected() {
			continue
		}
		connected++

		snap, err := a.guardedSnapshot(ctx, p, address)
		if err != nil {
			logger.Debug().Err(err).Str("provider", p.Name()).Str("token", address).Msg("best-first snapshot failed, trying next")
			continue
		}
		return snap, nil
	}

	if connected == 0 {
		return nil, ErrNoProviders
	}
	return nil, ErrAllProvidersFailed
}

// BestFirstPrice 低延迟价格查询：优先读价格流缓存，miss 时按优先级查询数据源
func (a *Aggregator) BestFirstPrice(ctx context.Context, address string) (float64, error) {
	if price, ok := a.priceCache.Load(address); ok {
		monitor.IncCacheHit("price")
		return price, nil
	}
	monitor.IncCacheMiss("price")

	connected := 0
	for _, p := range a.providers {
		if !p.IsConnected() {
			continue
		}
		connected++

		price, err := a.guardedPrice(ctx, p, address)
		if err != nil {
			continue
		}
		return price, nil
	}

	if connected == 0 {
		return 0, ErrNoProviders
	}
	return 0, ErrAllProvidersFailed
}

// AggregateAll 并发查询所有已连接数据源并合并结果
// TTL 内的缓存命中会短路全部 Provider 调用；成功合并后覆盖缓存
func (a *Aggregator) AggregateAll(ctx context.Context, address string) (*models.Snapshot, error) {
	if cached, ok := a.cache.Get(address); ok {
		monitor.IncCacheHit("snapshot")
		return cached.(*models.Snapshot).Clone(), nil
	}
	monitor.IncCacheMiss("snapshot")

	var (
		mu      sync.Mutex
		results = make([]*models.Snapshot, len(a.providers))
	)

	wg := goplus.NewWaitGroup()
	connected := 0
	for i, p := range a.providers {
		if !p.IsConnected() {
			continue
		}
		connected++

		i, p := i, p
		wg.Go(func() {
			snap, err := a.guardedSnapshot(ctx, p, address)
			if err != nil {
				logger.Debug().Err(err).Str("provider", p.Name()).Str("token", address).Msg("aggregate fetch failed, discarding")
				return
			}
			mu.Lock()
			results[i] = snap
			mu.Unlock()
		})
	}
	wg.Wait()

	if connected == 0 {
		return nil, ErrNoProviders
	}

	// 保持优先级顺序，identity 字段取第一个成功的数据源
	succeeded := results[:0:0]
	for _, r := range results {
		if r != nil {
			succeeded = append(succeeded, r)
		}
	}
	if len(succeeded) == 0 {
		return nil, ErrAllProvidersFailed
	}

	merged := mergeSnapshots(address, succeeded)
	a.cache.Set(address, merged, a.ttl)

	return merged.Clone(), nil
}

// CachedVolatility 返回缓存快照中的波动率，只读缓存不触发抓取
func (a *Aggregator) CachedVolatility(address string) (float64, bool) {
	cached, ok := a.cache.Get(address)
	if !ok {
		return 0, false
	}
	return cached.(*models.Snapshot).Volatility, true
}

// SetRealtimePrice 由价格流消费端写入最新成交价
func (a *Aggregator) SetRealtimePrice(address string, price float64) {
	a.priceCache.Store(address, price)
}

// Invalidate 删除指定地址的缓存条目
func (a *Aggregator) Invalidate(address string) {
	a.cache.Delete(address)
	a.priceCache.Delete(address)
}

// Stats 返回缓存统计信息
func (a *Aggregator) Stats() map[string]any {
	return map[string]any{
		"snapshot_entries": a.cache.ItemCount(),
		"price_entries":    a.priceCache.Len(),
		"ttl_seconds":      a.ttl.Seconds(),
		"providers":        len(a.providers),
	}
}
