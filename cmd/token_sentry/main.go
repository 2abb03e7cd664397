package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/utrading/utrading-token-sentry/config"
	"github.com/utrading/utrading-token-sentry/internal/aggregator"
	"github.com/utrading/utrading-token-sentry/internal/exitengine"
	"github.com/utrading/utrading-token-sentry/internal/monitor"
	"github.com/utrading/utrading-token-sentry/internal/nats"
	"github.com/utrading/utrading-token-sentry/internal/provider"
	"github.com/utrading/utrading-token-sentry/internal/resilience"
	"github.com/utrading/utrading-token-sentry/internal/sentry"
	"github.com/utrading/utrading-token-sentry/internal/stream"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
	"github.com/utrading/utrading-token-sentry/pkg/sigproc"
)

func main() {
	var configFile string
	var testMode bool
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.BoolVar(&testMode, "test", false, "run in test mode with simulated providers")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("token_sentry service starting...")

	// 初始化指标
	monitor.InitMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据源，按优先级排列
	providers := buildProviders(cfg, testMode)
	for _, p := range providers {
		if err := p.Connect(ctx); err != nil {
			// 单个数据源不可用不阻塞启动，由熔断器接管
			logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider connect failed")
		}
	}

	// 弹性层
	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		OpenTimeout:       cfg.Breaker.OpenTimeout,
		RequiredSuccesses: cfg.Breaker.RequiredSuccesses,
	})
	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		Jitter:          cfg.Retry.Jitter,
	})
	tracker := resilience.NewErrorTracker(100)

	// 聚合与缓存层
	agg := aggregator.New(aggregator.Config{
		TTL:         cfg.Cache.TTL,
		CallTimeout: cfg.Provider.Timeout,
	}, providers, breakers, retrier, tracker)

	// 仓位监控
	positions := exitengine.NewMonitor(exitengine.Config{
		FixedStopLoss:     cfg.Exit.FixedStopLoss,
		ActivationTrigger: cfg.Exit.ActivationTrigger,
		BaseTrailing:      cfg.Exit.BaseTrailing,
		PartialExitAt:     cfg.Exit.PartialExitAt,
		MaxHoldTime:       cfg.Exit.MaxHoldTime,
	}, cfg.Sentry.MonitorInterval, agg, nil)
	positions.Start(ctx)

	// 初始化 NATS（测试模式下不发布）
	var publisher *nats.Publisher
	if !testMode {
		var err error
		publisher, err = nats.NewPublisher(cfg.NATS.Endpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		defer publisher.Close()
	}

	// 评估服务
	var svcPublisher sentry.Publisher
	if publisher != nil {
		svcPublisher = publisher
	}
	svc := sentry.New(sentry.Config{
		WatchTokens:    cfg.Sentry.WatchTokens,
		AssessInterval: cfg.Sentry.AssessInterval,
		TradeAmount:    cfg.Sentry.TradeAmount,
	}, agg, positions, svcPublisher)
	svc.Start(ctx)

	// 行情流
	var reader *stream.Reader
	if cfg.Stream.URL != "" && !testMode {
		reader = stream.NewReader(cfg.Stream.URL, cfg.Sentry.WatchTokens, cfg.Stream.QueueSize, agg)
		reader.Start(ctx)
	}

	// 健康检查服务器
	var pubRef monitor.PublisherRef = noPublisher{}
	if publisher != nil {
		pubRef = publisher
	}
	healthServer := monitor.NewHealthServer(cfg.Sentry.HealthServerAddr, svc, agg, breakers, pubRef)
	if err := healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}
	defer healthServer.Stop(context.Background())

	logger.Info().
		Int("providers", len(providers)).
		Int("watch_tokens", len(cfg.Sentry.WatchTokens)).
		Str("health_addr", cfg.Sentry.HealthServerAddr).
		Bool("test_mode", testMode).
		Msg("token_sentry service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止接收新任务
		cancel()

		// 停止评估循环
		svc.Stop()

		// 停止行情流
		if reader != nil {
			reader.Stop()
		}

		// 停止仓位监控
		positions.Stop()

		// 断开数据源
		for _, p := range providers {
			p.Disconnect()
		}

		// 关闭健康检查服务器
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		logger.Info().Msg("token_sentry service stopped")
	})

	<-ctx.Done()
}

// buildProviders 构建数据源列表；测试模式用模拟数据源替代外部依赖
func buildProviders(cfg *config.Config, testMode bool) []provider.Provider {
	if testMode {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		return []provider.Provider{
			provider.NewSimProvider("sim_primary", 0.1, rnd),
			provider.NewSimProvider("sim_backup", 0, rnd),
		}
	}

	p, err := provider.NewHTTPProvider(provider.HTTPConfig{
		Name:         "dexscreener",
		Endpoint:     cfg.Provider.Endpoint,
		Timeout:      cfg.Provider.Timeout,
		ProxyEnabled: cfg.Provider.ProxyEnabled,
		ProxyAddr:    cfg.Provider.ProxyAddr,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init http provider failed")
	}
	return []provider.Provider{p}
}

// noPublisher 测试模式下健康检查的占位发布器
type noPublisher struct{}

func (noPublisher) IsConnected() bool { return false }

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
