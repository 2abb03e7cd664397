package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/pkg/concurrent"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器参数
type BreakerConfig struct {
	FailureThreshold  int           // 连续失败多少次后打开
	OpenTimeout       time.Duration // 打开状态多久后允许半开探测
	RequiredSuccesses int           // 半开状态连续成功多少次后关闭
}

// DefaultBreakerConfig 默认参数
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  3,
		OpenTimeout:       30 * time.Second,
		RequiredSuccesses: 3,
	}
}

// CircuitBreaker 按服务名隔离外部调用故障
// 状态转移是 (当前状态, 调用结果, 经过时间) 的全函数
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureAt        time.Time

	now func() time.Time // 测试注入
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.RequiredSuccesses <= 0 {
		cfg.RequiredSuccesses = 3
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Do 在熔断保护下执行 fn
// OPEN 状态下直接拒绝；超过 OpenTimeout 后转为 HALF_OPEN 并放行触发调用
func (b *CircuitBreaker) Do(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	b.afterCall(err)
	return err
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Sub(b.lastFailureAt) > b.cfg.OpenTimeout {
		b.state = StateHalfOpen
		b.consecutiveSuccesses = 0
		logger.Info().Str("service", b.name).Msg("circuit breaker transitioning to half-open")
		return nil
	}

	return fmt.Errorf("circuit breaker %s is open: %w", b.name, ErrCircuitOpen)
}

func (b *CircuitBreaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *CircuitBreaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.RequiredSuccesses {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
			logger.Info().Str("service", b.name).Msg("circuit breaker reset to closed")
		}
	default:
		b.consecutiveFailures = 0
	}
}

func (b *CircuitBreaker) onFailure() {
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	b.lastFailureAt = b.now()

	switch b.state {
	case StateHalfOpen:
		// 半开状态下任何失败立即重新打开
		b.state = StateOpen
		logger.Warn().Str("service", b.name).Msg("circuit breaker reopened after half-open failure")
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			logger.Warn().
				Str("service", b.name).
				Int("failures", b.consecutiveFailures).
				Msg("circuit breaker opened")
		}
	}
}

// State 返回当前状态
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name 返回服务名
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Stats 返回统计信息
func (b *CircuitBreaker) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"state":                 b.state.String(),
		"consecutive_failures":  b.consecutiveFailures,
		"consecutive_successes": b.consecutiveSuccesses,
		"last_failure_at":       b.lastFailureAt,
	}
}

// Registry 熔断器注册表：同一服务名在一次运行内返回同一实例
// 显式注入到调用方，不做进程级单例
type Registry struct {
	cfg      BreakerConfig
	breakers concurrent.Map[string, *CircuitBreaker]
}

// NewRegistry 创建注册表
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg}
}

// Get 获取（或创建）指定服务的熔断器
func (r *Registry) Get(serviceName string) *CircuitBreaker {
	if b, ok := r.breakers.Load(serviceName); ok {
		return b
	}
	b, _ := r.breakers.LoadOrStore(serviceName, NewCircuitBreaker(serviceName, r.cfg))
	return b
}

// Range 遍历所有熔断器
func (r *Registry) Range(f func(name string, b *CircuitBreaker) bool) {
	r.breakers.Range(f)
}

// Stats 返回所有熔断器的统计信息
func (r *Registry) Stats() map[string]any {
	stats := make(map[string]any)
	r.breakers.Range(func(name string, b *CircuitBreaker) bool {
		stats[name] = b.Stats()
		return true
	})
	return stats
}
