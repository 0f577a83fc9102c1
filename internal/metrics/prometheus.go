// Package metrics collects prometheus metrics for the fetch engine and
// serves them on a dedicated listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector is the prometheus-backed metrics sink.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
	cacheEntries     prometheus.Gauge

	errorsTotal      *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter

	activeSessions   prometheus.Gauge
	inFlightSessions prometheus.Gauge

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewCollector registers the fetchmd metrics on the default registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry registers on a caller-supplied registry, which
// tests use to avoid duplicate-registration panics.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total fetch operations by method and status",
		},
		[]string{"method", "status"},
	)

	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "request_duration_seconds",
			Help:      "Time taken by fetch operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	c.cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits by namespace",
		},
		[]string{"namespace"},
	)

	c.cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses by namespace",
		},
		[]string{"namespace"},
	)

	c.cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached artifacts",
		},
	)

	c.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total fetch failures by error kind",
		},
		[]string{"kind"},
	)

	c.rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter",
		},
	)

	c.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_sessions",
			Help:      "Currently registered protocol sessions",
		},
	)

	c.inFlightSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "inflight_sessions",
			Help:      "Sessions reserved but not yet initialized",
		},
	)

	registerer.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.cacheEntries,
		c.errorsTotal,
		c.rateLimitedTotal,
		c.activeSessions,
		c.inFlightSessions,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized")
	return c
}

// RecordRequest records a completed fetch with timing.
func (c *Collector) RecordRequest(method, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, status).Inc()
	c.requestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(namespace string) {
	c.cacheHitsTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(namespace string) {
	c.cacheMissesTotal.WithLabelValues(namespace).Inc()
}

// SetCacheEntries updates the cached-artifact count.
func (c *Collector) SetCacheEntries(n int) {
	c.cacheEntries.Set(float64(n))
}

// RecordError records a failed fetch by error kind.
func (c *Collector) RecordError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRateLimited counts a 429 issued by the local limiter.
func (c *Collector) RecordRateLimited() {
	c.rateLimitedTotal.Inc()
}

// SetActiveSessions updates the registered-session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// SetInFlightSessions updates the reserved-slot gauge.
func (c *Collector) SetInFlightSessions(n int) {
	c.inFlightSessions.Set(float64(n))
}

// ServeHTTP exposes the prometheus text format over fasthttp.
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}
