// Package metrics exposes Prometheus instrumentation for the workflow engine.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 聚合引擎的 Prometheus 指标。
// 所有方法对 nil 接收者安全，未接线指标的组件可直接传 nil。
type Collector struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	flightsStarted   prometheus.Counter
	flightsShared    prometheus.Counter
	stepDuration     *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	embedFailures    prometheus.Counter
}

// NewCollector 在给定 registerer 上注册并返回指标收集器。
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by category and lookup kind (exact/semantic).",
		}, []string{"category", "kind"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by category.",
		}, []string{"category"}),
		flightsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replyflow",
			Subsystem: "singleflight",
			Name:      "flights_started_total",
			Help:      "Computations launched by the singleflight coordinator.",
		}),
		flightsShared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replyflow",
			Subsystem: "singleflight",
			Name:      "flights_shared_total",
			Help:      "Submissions that joined an in-flight computation.",
		}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyflow",
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of workflow steps by step name and status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step", "status"}),
		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "replyflow",
			Subsystem: "engine",
			Name:      "requests_in_flight",
			Help:      "Submissions currently being processed.",
		}),
		embedFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replyflow",
			Subsystem: "semantic",
			Name:      "embed_failures_total",
			Help:      "Embedding computations that failed and degraded the lookup to exact-only.",
		}),
	}
}

// CacheHit 记录一次缓存命中。kind 为 exact 或 semantic。
func (c *Collector) CacheHit(category, kind string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(category, kind).Inc()
}

// CacheMiss 记录一次缓存未命中。
func (c *Collector) CacheMiss(category string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(category).Inc()
}

// FlightStarted 记录一次新发起的合并计算。
func (c *Collector) FlightStarted() {
	if c == nil {
		return
	}
	c.flightsStarted.Inc()
}

// FlightShared 记录一次搭载已有计算的提交。
func (c *Collector) FlightShared() {
	if c == nil {
		return
	}
	c.flightsShared.Inc()
}

// StepDuration 记录步骤耗时（秒）。
func (c *Collector) StepDuration(step, status string, seconds float64) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(step, status).Observe(seconds)
}

// SubmitStarted 增加在途请求计数。
func (c *Collector) SubmitStarted() {
	if c == nil {
		return
	}
	c.requestsInFlight.Inc()
}

// SubmitFinished 减少在途请求计数。
func (c *Collector) SubmitFinished() {
	if c == nil {
		return
	}
	c.requestsInFlight.Dec()
}

// EmbedFailure 记录一次嵌入计算失败。
func (c *Collector) EmbedFailure() {
	if c == nil {
		return
	}
	c.embedFailures.Inc()
}
