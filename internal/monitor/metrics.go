package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus 指标集合
type Metrics struct {
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	providerFailures   *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	activePositions    prometheus.Gauge
	positionsClosed    *prometheus.CounterVec
	signalsGenerated   *prometheus.CounterVec
	assessmentDuration prometheus.Histogram
	streamQueueSize    prometheus.Gauge
	streamDropped      prometheus.Counter
	natsConnected      prometheus.Gauge
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// InitMetrics 初始化并注册全部指标
func InitMetrics() {
	GetMetrics()
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sentry_cache_hits_total",
			Help: "Cache hit count by cache type",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sentry_cache_misses_total",
			Help: "Cache miss count by cache type",
		}, []string{"cache"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sentry_provider_failures_total",
			Help: "Provider call failures by service and error kind",
		}, []string{"service", "kind"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "token_sentry_breaker_state",
			Help: "Circuit breaker state by service (0=closed, 1=open, 2=half_open)",
		}, []string{"service"}),
		activePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "token_sentry_active_positions",
			Help: "Number of positions currently monitored",
		}),
		positionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sentry_positions_closed_total",
			Help: "Closed positions by exit reason",
		}, []string{"reason"}),
		signalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sentry_signals_generated_total",
			Help: "Trade signals generated by kind",
		}, []string{"kind"}),
		assessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_sentry_assessment_duration_seconds",
			Help:    "Duration of one assessment cycle",
			Buckets: prometheus.DefBuckets,
		}),
		streamQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "token_sentry_stream_queue_size",
			Help: "Current size of the price stream queue",
		}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_sentry_stream_dropped_total",
			Help: "Price ticks dropped because the queue was full",
		}),
		natsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "token_sentry_nats_connected",
			Help: "NATS connection status (1=connected)",
		}),
	}

	reg.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.providerFailures,
		m.breakerState,
		m.activePositions,
		m.positionsClosed,
		m.signalsGenerated,
		m.assessmentDuration,
		m.streamQueueSize,
		m.streamDropped,
		m.natsConnected,
	)

	return m
}

func (m *Metrics) IncCacheHit(cacheType string) {
	m.cacheHits.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) IncCacheMiss(cacheType string) {
	m.cacheMisses.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) IncProviderFailure(service, kind string) {
	m.providerFailures.WithLabelValues(service, kind).Inc()
}

func (m *Metrics) SetBreakerState(service string, state int) {
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

func (m *Metrics) SetActivePositions(count int) {
	m.activePositions.Set(float64(count))
}

func (m *Metrics) IncPositionClosed(reason string) {
	m.positionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSignalGenerated(kind string) {
	m.signalsGenerated.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAssessmentDuration(seconds float64) {
	m.assessmentDuration.Observe(seconds)
}

func (m *Metrics) SetStreamQueueSize(size int) {
	m.streamQueueSize.Set(float64(size))
}

func (m *Metrics) IncStreamDropped() {
	m.streamDropped.Inc()
}

func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}
