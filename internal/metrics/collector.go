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
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 生成任务指标
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// 落盘指标
	materializationsTotal *prometheus.CounterVec
	materializedBytes     *prometheus.HistogramVec

	// 合成指标
	assembliesTotal  *prometheus.CounterVec
	assemblyDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbWaitCount       *prometheus.GaugeVec

	namespace string
	logger    *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 生成任务指标
	c.generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of finished generation tasks",
		},
		[]string{"provider", "kind", "status"},
	)

	c.generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation task duration in seconds, submit to terminal state",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300, 600},
		},
		[]string{"provider", "kind"},
	)

	// 落盘指标
	c.materializationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_total",
			Help:      "Total number of provider outputs written to storage",
		},
		[]string{"type", "status"},
	)

	c.materializedBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "materialized_bytes",
			Help:      "Size of stored assets in bytes",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 9),
		},
		[]string{"type"},
	)

	// 合成指标
	c.assembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Total number of assembly runs",
		},
		[]string{"status"},
	)

	c.assemblyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Assembly duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbWaitCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_wait_total",
			Help:      "Total number of connections waited for",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎬 生成与合成
// =============================================================================

// RecordGeneration 记录一个进入终态的生成任务
func (c *Collector) RecordGeneration(provider, kind, status string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(provider, kind, status).Inc()
	c.generationDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// RecordMaterialization 记录一次落盘；失败时 bytes 为 0 且不计入大小分布
func (c *Collector) RecordMaterialization(assetType, status string, bytes int64) {
	c.materializationsTotal.WithLabelValues(assetType, status).Inc()
	if status == "success" {
		c.materializedBytes.WithLabelValues(assetType).Observe(float64(bytes))
	}
}

// RecordAssembly 记录一次合成
func (c *Collector) RecordAssembly(status string, duration time.Duration) {
	c.assembliesTotal.WithLabelValues(status).Inc()
	c.assemblyDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// =============================================================================
// 📈 运行时快照
// =============================================================================

// GaugeFunc 注册一个在抓取时求值的 gauge，用于活跃任务数、目录大小等
func (c *Collector) GaugeFunc(name, help string, fn func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// CounterFunc 注册一个在抓取时求值的单调计数
func (c *Collector) CounterFunc(name, help string, fn func() float64) {
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int, waitCount int64) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
	c.dbWaitCount.WithLabelValues(database).Set(float64(waitCount))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
