package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 workflow.MetricsRecorder
type Collector struct {
	// 运行指标
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	activeRuns   prometheus.Gauge
	nodesTotal   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// A nil registerer uses the default prometheus registry.
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs by strategy and terminal status",
		},
		[]string{"strategy", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	c.activeRuns = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of runs currently executing",
		},
	)

	c.nodesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"kind"},
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

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 运行指标记录
// =============================================================================

// RecordRun 记录一次运行的终态与耗时
func (c *Collector) RecordRun(strategy workflow.Strategy, status workflow.RunStatus, duration time.Duration) {
	c.runsTotal.WithLabelValues(string(strategy), string(status)).Inc()
	c.runDuration.WithLabelValues(string(strategy)).Observe(duration.Seconds())
}

// RecordNode 记录一次节点执行
func (c *Collector) RecordNode(kind workflow.NodeKind, failed bool, duration time.Duration) {
	status := "ok"
	if failed {
		status = "failed"
	}
	c.nodesTotal.WithLabelValues(string(kind), status).Inc()
	c.nodeDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RunStarted 活跃运行数 +1
func (c *Collector) RunStarted() {
	c.activeRuns.Inc()
}

// RunFinished 活跃运行数 -1
func (c *Collector) RunFinished() {
	c.activeRuns.Dec()
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusClass 将 HTTP 状态码归类
func statusClass(code int) string {
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
