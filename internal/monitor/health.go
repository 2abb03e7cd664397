package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-token-sentry/internal/models"
	"github.com/utrading/utrading-token-sentry/pkg/goplus"
	"github.com/utrading/utrading-token-sentry/pkg/logger"
)

// SentryRef 评估服务引用接口
type SentryRef interface {
	LastScore(tokenAddress string) (float64, bool)
	ActiveSignal(tokenAddress string) (*models.TradeSignal, bool)
	RunAssessmentCycle(ctx context.Context, tokenAddress string) (*models.TradeSignal, error)
	OpenPosition(ctx context.Context, tokenAddress string, amount float64) error
	ClosePosition(ctx context.Context, tokenAddress string) (*models.PositionResult, error)
	Positions() []models.Position
}

// AggregatorRef 聚合器引用接口
type AggregatorRef interface {
	Stats() map[string]any
}

// BreakerRef 熔断器注册表引用接口
type BreakerRef interface {
	Stats() map[string]any
}

// PublisherRef NATS 发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// HealthServer HTTP 健康检查、指标与只读状态服务器
// 同时承载 openPosition / closePosition / runAssessmentCycle 命令入口
type HealthServer struct {
	addr       string
	sentry     SentryRef
	aggregator AggregatorRef
	breakers   BreakerRef
	publisher  PublisherRef
	server     *http.Server

	mu        sync.RWMutex
	healthy   bool
	startTime time.Time
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, sentry SentryRef, aggregator AggregatorRef, breakers BreakerRef, publisher PublisherRef) *HealthServer {
	return &HealthServer{
		addr:       addr,
		sentry:     sentry,
		aggregator: aggregator,
		breakers:   breakers,
		publisher:  publisher,
		healthy:    true,
		startTime:  time.Now(),
	}
}

// Start 启动 HTTP 服务器
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", h.statusHandler)

	mux.HandleFunc("/assess", h.assessHandler)
	mux.HandleFunc("/positions", h.positionsHandler)
	mux.HandleFunc("/positions/open", h.openPositionHandler)
	mux.HandleFunc("/positions/close", h.closePositionHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info().Str("addr", h.addr).Msg("health server starting")

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	return nil
}

// Stop 关闭 HTTP 服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"healthy":        healthy,
		"nats_connected": h.publisher.IsConnected(),
		"uptime_seconds": cast.ToInt64(time.Since(h.startTime).Seconds()),
	})
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime_seconds": cast.ToInt64(time.Since(h.startTime).Seconds()),
		"cache":          h.aggregator.Stats(),
		"breakers":       h.breakers.Stats(),
		"positions":      h.sentry.Positions(),
		"nats_connected": h.publisher.IsConnected(),
	}

	if token := r.URL.Query().Get("token"); token != "" {
		if score, ok := h.sentry.LastScore(token); ok {
			resp["score"] = score
		}
		if sig, ok := h.sentry.ActiveSignal(token); ok {
			resp["signal"] = sig
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sentry.Positions())
}

// assessHandler 手动触发一次评估周期
func (h *HealthServer) assessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusBadRequest)
		return
	}

	sig, err := h.sentry.RunAssessmentCycle(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sig)
}

func (h *HealthServer) openPositionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusBadRequest)
		return
	}
	amount := cast.ToFloat64(r.URL.Query().Get("amount"))

	if err := h.sentry.OpenPosition(r.Context(), token, amount); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"opened": token})
}

func (h *HealthServer) closePositionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusBadRequest)
		return
	}

	result, err := h.sentry.ClosePosition(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("write json response failed")
	}
}
