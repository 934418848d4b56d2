// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 检索指标
	searchesTotal   *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	keywordFallback prometheus.Counter
	chunksLoaded    prometheus.Gauge

	// A/B 指标
	abEntries      prometheus.Gauge
	abChoicesTotal *prometheus.CounterVec
	abEvictions    prometheus.Counter

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 通常为 prometheus.DefaultRegisterer，
// 测试中传独立 Registry 实现隔离。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 检索指标
	c.searchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of retrieval searches by mode",
		},
		[]string{"mode"},
	)

	c.searchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Retrieval search duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"mode"},
	)

	c.keywordFallback = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyword_fallbacks_total",
			Help:      "Times the semantic path degraded to keyword-only search",
		},
	)

	c.chunksLoaded = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_loaded",
			Help:      "Number of knowledge chunks in the loaded database",
		},
	)

	// A/B 指标
	c.abEntries = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abtest_entries",
			Help:      "Current number of entries in the A/B test ledger",
		},
	)

	c.abChoicesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abtest_choices_total",
			Help:      "Recorded A/B choices by variant",
		},
		[]string{"choice"},
	)

	c.abEvictions = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abtest_evictions_total",
			Help:      "Entries evicted from the A/B ledger at capacity",
		},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// ObserveSearch 记录一次检索
func (c *Collector) ObserveSearch(mode string, elapsed time.Duration) {
	c.searchesTotal.WithLabelValues(mode).Inc()
	c.searchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// IncKeywordFallback 记录一次语义路径降级
func (c *Collector) IncKeywordFallback() {
	c.keywordFallback.Inc()
}

// SetChunksLoaded 更新已加载 chunk 数
func (c *Collector) SetChunksLoaded(n int) {
	c.chunksLoaded.Set(float64(n))
}

// SetABEntries 更新 A/B ledger 条目数
func (c *Collector) SetABEntries(n int) {
	c.abEntries.Set(float64(n))
}

// IncABChoice 记录一次用户选择
func (c *Collector) IncABChoice(choice string) {
	c.abChoicesTotal.WithLabelValues(choice).Inc()
}

// IncABEviction 记录一次 FIFO 逐出
func (c *Collector) IncABEviction() {
	c.abEvictions.Inc()
}

// ObserveHTTPRequest 记录一次 HTTP 请求
func (c *Collector) ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
