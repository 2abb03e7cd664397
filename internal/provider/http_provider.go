package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"golang.org/x/net/proxy"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/internal/resilience"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// HTTPConfig HTTP 数据源配置
type HTTPConfig struct {
	Name         string
	Endpoint     string
	Timeout      time.Duration
	ProxyEnabled bool
	ProxyAddr    string
}

// httpProvider 基于 REST API 的行情数据源
// 响应体用 gjson 按路径取值，避免为每个供应商维护完整结构体
type httpProvider struct {
	name      string
	endpoint  string
	client    *http.Client
	connected atomic.Bool
}

// NewHTTPProvider 创建 HTTP 数据源
func NewHTTPProvider(cfg HTTPConfig) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// 与 MySQL 层相同的 SOCKS5 代理选项
	if cfg.ProxyEnabled {
		dialer, err := proxy.SOCKS5("tcp", cfg.ProxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create socks5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return &httpProvider{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

func (p *httpProvider) Name() string {
	return p.name
}

// Connect 探测端点可达性
func (p *httpProvider) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyErr(err)
	}
	resp.Body.Close()

	p.connected.Store(true)
	logger.Info().Str("provider", p.name).Str("endpoint", p.endpoint).Msg("provider connected")
	return nil
}

func (p *httpProvider) Disconnect() {
	p.connected.Store(false)
	p.client.CloseIdleConnections()
	logger.Info().Str("provider", p.name).Msg("provider disconnected")
}

func (p *httpProvider) IsConnected() bool {
	return p.connected.Load()
}

// FetchSnapshot 拉取代币快照
func (p *httpProvider) FetchSnapshot(ctx context.Context, address string) (*models.Snapshot, error) {
	if address == "" {
		return nil, resilience.NewValidationError("address", "empty token address")
	}

	body, err := p.get(ctx, fmt.Sprintf("%s/latest/dex/tokens/%s", p.endpoint, address))
	if err != nil {
		return nil, err
	}

	pair := gjson.GetBytes(body, "pairs.0")
	if !pair.Exists() {
		return nil, resilience.NewValidationError("address", "no market data for token")
	}

	snap := &models.Snapshot{
		Address:            address,
		Symbol:             pair.Get("baseToken.symbol").String(),
		Name:               pair.Get("baseToken.name").String(),
		PriceUSD:           cast.ToFloat64(pair.Get("priceUsd").String()),
		Volume24h:          pair.Get("volume.h24").Float(),
		LiquidityUSD:       pair.Get("liquidity.usd").Float(),
		MarketCap:          pair.Get("fdv").Float(),
		HolderCount:        pair.Get("info.holders").Int(),
		Top10Concentration: pair.Get("info.top10Concentration").Float(),
		LPLockedRatio:      pair.Get("info.lpLockedRatio").Float(),
		PriceChange24hPct:  pair.Get("priceChange.h24").Float(),
		Volatility:         estimateVolatility(pair),
		Security: models.SecurityFlags{
			Honeypot:              pair.Get("security.honeypot").Bool(),
			Blacklisted:           pair.Get("security.blacklisted").Bool(),
			TransferPausable:      pair.Get("security.transferPausable").Bool(),
			Mintable:              pair.Get("security.mintable").Bool(),
			HiddenOwner:           pair.Get("security.hiddenOwner").Bool(),
			CanReclaimOwnership:   pair.Get("security.canReclaimOwnership").Bool(),
			OwnerCanChangeBalance: pair.Get("security.ownerCanChangeBalance").Bool(),
			ExternalCall:          pair.Get("security.externalCall").Bool(),
		},
		UniqueAddressCount: pair.Get("txns.uniqueAddresses").Int(),
		CapturedAt:         time.Now(),
	}

	for _, v := range pair.Get("txns.sample").Array() {
		if n := v.Int(); n > 0 {
			snap.TransactionSample = append(snap.TransactionSample, n)
		}
	}

	return snap, nil
}

// FetchRealtimePrice 拉取实时价格
func (p *httpProvider) FetchRealtimePrice(ctx context.Context, address string) (float64, error) {
	if address == "" {
		return 0, resilience.NewValidationError("address", "empty token address")
	}

	body, err := p.get(ctx, fmt.Sprintf("%s/latest/dex/tokens/%s", p.endpoint, address))
	if err != nil {
		return 0, err
	}

	price := gjson.GetBytes(body, "pairs.0.priceUsd")
	if !price.Exists() {
		return 0, resilience.NewValidationError("address", "no price for token")
	}

	return cast.ToFloat64(price.String()), nil
}

func (p *httpProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d: %w", p.name, resp.StatusCode, resilience.ErrConnectionFailure)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classifyErr(err)
	}

	return body, nil
}

// estimateVolatility 由 1h/6h/24h 涨跌幅估算 [0,1] 波动率
func estimateVolatility(pair gjson.Result) float64 {
	var sum float64
	for _, window := range []string{"h1", "h6", "h24"} {
		pct := pair.Get("priceChange." + window).Float()
		if pct < 0 {
			pct = -pct
		}
		sum += pct
	}
	v := sum / 300 // 三个窗口各 100% 封顶
	if v > 1 {
		v = 1
	}
	return v
}

// classifyErr 将网络错误映射到弹性层错误类型
func classifyErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%v: %w", err, resilience.ErrTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, resilience.ErrTimeout)
	}
	return fmt.Errorf("%v: %w", err, resilience.ErrConnectionFailure)
}
