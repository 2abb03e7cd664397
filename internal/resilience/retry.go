package resilience

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// RetryConfig 重试参数
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig 默认参数
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Retrier 指数退避重试器
// 随机源可注入，测试可提供确定性序列
type Retrier struct {
	cfg RetryConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRetrier 创建重试器
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.ExponentialBase <= 1 {
		cfg.ExponentialBase = 2.0
	}
	return &Retrier{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRetrierWithRand 使用指定随机源创建重试器
func NewRetrierWithRand(cfg RetryConfig, rnd *rand.Rand) *Retrier {
	r := NewRetrier(cfg)
	r.rnd = rnd
	return r
}

// Do 重复执行 fn 直到成功、错误不可重试或尝试次数耗尽
// 熔断器打开时剩余重试立即放弃（CircuitOpen 不可重试）
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !Retryable(lastErr) {
			logger.Debug().Err(lastErr).Str("op", op).Msg("non-retryable error, aborting retries")
			return lastErr
		}

		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.backoff(attempt)
		logger.Warn().
			Err(lastErr).
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_attempts", r.cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error().
		Err(lastErr).
		Str("op", op).
		Int("attempts", r.cfg.MaxAttempts).
		Msg("operation failed after all attempts")

	return lastErr
}

// backoff 计算第 attempt 次失败后的等待时间
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.ExponentialBase, float64(attempt))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}

	if r.cfg.Jitter {
		// 均匀 [0.5, 1.0) 抖动，避免雪崩式重试
		r.mu.Lock()
		factor := 0.5 + r.rnd.Float64()*0.5
		r.mu.Unlock()
		delay *= factor
	}

	return time.Duration(delay)
}
