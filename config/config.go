package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

type Sentry struct {
	HealthServerAddr string        `toml:"health_server_addr"`
	WatchTokens      []string      `toml:"watch_tokens"`
	AssessInterval   time.Duration `toml:"assess_interval"`
	MonitorInterval  time.Duration `toml:"monitor_interval"`
	TradeAmount      float64       `toml:"trade_amount"`
}

type Provider struct {
	Endpoint     string        `toml:"endpoint"`
	Timeout      time.Duration `toml:"timeout"`
	ProxyEnabled bool          `toml:"proxy_enabled"`
	ProxyAddr    string        `toml:"proxy_addr"`
}

type Cache struct {
	TTL time.Duration `toml:"ttl"`
}

type Breaker struct {
	FailureThreshold  int           `toml:"failure_threshold"`
	OpenTimeout       time.Duration `toml:"open_timeout"`
	RequiredSuccesses int           `toml:"required_successes"`
}

type Retry struct {
	MaxAttempts     int           `toml:"max_attempts"`
	BaseDelay       time.Duration `toml:"base_delay"`
	MaxDelay        time.Duration `toml:"max_delay"`
	ExponentialBase float64       `toml:"exponential_base"`
	Jitter          bool          `toml:"jitter"`
}

type Exit struct {
	FixedStopLoss     float64       `toml:"fixed_stop_loss"`
	ActivationTrigger float64       `toml:"activation_trigger"`
	BaseTrailing      float64       `toml:"base_trailing"`
	PartialExitAt     float64       `toml:"partial_exit_at"`
	MaxHoldTime       time.Duration `toml:"max_hold_time"`
}

type Stream struct {
	URL       string `toml:"url"`
	QueueSize int    `toml:"queue_size"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	Sentry   Sentry   `toml:"sentry"`
	Provider Provider `toml:"provider"`
	Cache    Cache    `toml:"cache"`
	Breaker  Breaker  `toml:"breaker"`
	Retry    Retry    `toml:"retry"`
	Exit     Exit     `toml:"exit"`
	Stream   Stream   `toml:"stream"`
	NATS     NATS     `toml:"nats"`
	Logger   Logger   `toml:"log"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Sentry: Sentry{
			HealthServerAddr: "0.0.0.0:16900",
			WatchTokens:      []string{},
			AssessInterval:   time.Minute,
			MonitorInterval:  5 * time.Second, // 每 5 秒轮询一次持仓
			TradeAmount:      1000,
		},
		Provider: Provider{
			Endpoint:     "https://api.dexscreener.com",
			Timeout:      15 * time.Second,
			ProxyEnabled: false,
			ProxyAddr:    "127.0.0.1:7890",
		},
		Cache: Cache{
			TTL: 30 * time.Second,
		},
		Breaker: Breaker{
			FailureThreshold:  3,
			OpenTimeout:       30 * time.Second,
			RequiredSuccesses: 3,
		},
		Retry: Retry{
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			MaxDelay:        time.Minute,
			ExponentialBase: 2.0,
			Jitter:          true,
		},
		Exit: Exit{
			FixedStopLoss:     -0.50,
			ActivationTrigger: 1.00,
			BaseTrailing:      0.20,
			PartialExitAt:     0.75,
			MaxHoldTime:       30 * time.Minute,
		},
		Stream: Stream{
			URL:       "",
			QueueSize: 1000,
		},
		NATS: NATS{
			Endpoint: "nats://localhost:4222",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
