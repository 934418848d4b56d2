package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/abtest"
	"github.com/BaSui01/fourblocks/config"
	"github.com/BaSui01/fourblocks/internal/metrics"
	"github.com/BaSui01/fourblocks/retrieval"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FourBlocks 检索服务的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	engine *retrieval.Engine
	ledger *abtest.Ledger

	registry         *prometheus.Registry
	metricsCollector *metrics.Collector

	httpServer    *http.Server
	metricsServer *http.Server

	// Rate limiter 清理 goroutine 生命周期
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, engine *retrieval.Engine, ledger *abtest.Ledger,
	registry *prometheus.Registry, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:              cfg,
		logger:           logger,
		engine:           engine,
		ledger:           ledger,
		registry:         registry,
		metricsCollector: collector,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// startHTTPServer 注册路由并启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	// 检索 API
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/wisdom", s.handleWisdom)

	// A/B 实验 API
	mux.HandleFunc("/api/v1/ab", s.handleABStore)
	mux.HandleFunc("/api/v1/ab/choice", s.handleABChoice)
	mux.HandleFunc("/api/v1/ab/stats", s.handleABStats)
	mux.HandleFunc("/api/v1/ab/recent", s.handleABRecent)

	// 构建中间件链
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Server.RateLimit > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  2 * s.cfg.Server.ReadTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer 启动独立端口上的 Prometheus 指标服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待 SIGINT/SIGTERM 并优雅关闭
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🏥 健康检查 Handlers
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// handleReadyz 只有在知识库加载完成后才返回就绪
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	if !stats.IsLoaded {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "embeddings not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "chunks": stats.TotalChunks})
}

// =============================================================================
// 🔍 检索 Handlers
// =============================================================================

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

type searchRequest struct {
	Query string `json:"query"`
	retrieval.SearchOptions
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := s.cfg.Retrieval.Defaults
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.KeywordWeight > 0 || req.SemanticWeight > 0 {
		opts.KeywordWeight = req.KeywordWeight
		opts.SemanticWeight = req.SemanticWeight
	}
	if req.FilterBlockType != "" {
		opts.FilterBlockType = req.FilterBlockType
	}
	opts.ExpandRelated = req.ExpandRelated
	if req.MaxExpansion > 0 {
		opts.MaxExpansion = req.MaxExpansion
	}

	result, err := s.engine.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type wisdomRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type wisdomResponse struct {
	Context string `json:"context"`
}

// handleWisdom 返回可直接注入系统提示词的上下文串
func (s *Server) handleWisdom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req wisdomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	wisdom, err := s.engine.FindRelevantWisdom(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wisdomResponse{Context: wisdom})
}

// =============================================================================
// 🧪 A/B 实验 Handlers
// =============================================================================

type abStoreRequest struct {
	UserQuery string          `json:"user_query"`
	ResponseA string          `json:"response_a"`
	ResponseB string          `json:"response_b"`
	Metadata  abtest.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleABStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req abStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.ResponseA == "" || req.ResponseB == "" {
		writeError(w, http.StatusBadRequest, "response_a and response_b are required")
		return
	}

	id := s.ledger.Store(req.UserQuery, req.ResponseA, req.ResponseB, req.Metadata)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type abChoiceRequest struct {
	ID     string        `json:"id"`
	Choice abtest.Choice `json:"choice"`
}

func (s *Server) handleABChoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req abChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if !req.Choice.Valid() {
		writeError(w, http.StatusBadRequest, `choice must be "A" or "B"`)
		return
	}

	// 条目可能已被 FIFO 逐出，按 404 处理而非 500
	if !s.ledger.RecordChoice(req.ID, req.Choice) {
		writeError(w, http.StatusNotFound, "entry not found: "+req.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

func (s *Server) handleABStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Stats())
}

func (s *Server) handleABRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.ledger.Recent(limit))
}

// =============================================================================
// 📤 JSON 响应辅助
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
