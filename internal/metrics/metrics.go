// Package metrics 定义聚合引擎的 Prometheus 指标。
// 所有方法对 nil 接收者安全，未启用指标时组件可直接传 nil。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 缓存名称标签。
const (
	CacheLocation = "location"
	CacheItems    = "items"
)

// Metrics 聚合引擎指标集合。
type Metrics struct {
	gatherer prometheus.Gatherer

	batchResults     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	probes           *prometheus.CounterVec
	batchesInFlight  prometheus.Gauge
}

// New 创建并注册指标。reg 为 nil 时使用独立的新注册表。
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		batchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedstream",
			Name:      "batch_results_total",
			Help:      "Results emitted to batch streams, by status.",
		}, []string{"status"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedstream",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of fetch-parse pipeline executions.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 8, 13},
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedstream",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedstream",
			Name:      "probes_total",
			Help:      "Feed discovery probes by result.",
		}, []string{"result"}),
		batchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedstream",
			Name:      "batches_in_flight",
			Help:      "Batches currently streaming.",
		}),
	}

	reg.MustRegister(m.batchResults, m.pipelineDuration, m.cacheLookups, m.probes, m.batchesInFlight)
	return m
}

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ObserveProbe(ok bool) {
	if m == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	m.probes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePipeline(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveResult(status string) {
	if m == nil {
		return
	}
	m.batchResults.WithLabelValues(status).Inc()
}

func (m *Metrics) BatchStarted() {
	if m != nil {
		m.batchesInFlight.Inc()
	}
}

func (m *Metrics) BatchFinished() {
	if m != nil {
		m.batchesInFlight.Dec()
	}
}
