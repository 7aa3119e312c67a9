package router

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TotalReq tracks the total number of requests processed by the router.
var TotalReq atomic.Uint64

const (
	namespace = "qortal_mcp"

	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

// Metrics owns a private Prometheus registry so tests and multiple servers
// in one process never collide on the default one.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests received, by route.",
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Tool calls rejected by the rate limiter.",
		}, []string{"tool"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(m.requests, m.rateLimited, m.toolCalls, m.duration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(route string, d time.Duration) {
	TotalReq.Add(1)
	m.requests.WithLabelValues(route).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) recordTool(tool, outcome string) {
	if outcome == OutcomeRateLimited {
		m.rateLimited.WithLabelValues(tool).Inc()
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
