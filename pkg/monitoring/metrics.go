package monitoring

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the HTTP metrics of a service and serves /metrics.
type MetricsCollector struct {
	serviceName string
	registerer  prometheus.Registerer
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	serviceInfo         *prometheus.GaugeVec
}

// NewMetricsCollector registers the standard metrics on the default registry.
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(serviceName, version, commit, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsCollectorWithRegistry registers the standard metrics on reg.
func NewMetricsCollectorWithRegistry(serviceName, version, commit string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *MetricsCollector {
	name := strings.ReplaceAll(serviceName, "-", "_")
	mc := &MetricsCollector{
		serviceName: name,
		registerer:  reg,
		gatherer:    gatherer,
	}

	mc.httpRequestsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	))
	mc.httpRequestDuration = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	))
	mc.activeConnections = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: name + "_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	))
	mc.serviceInfo = register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_service_info",
			Help: "Service information",
		},
		[]string{"version", "commit"},
	))
	mc.serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// register returns the already-registered collector when an identical one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// MetricsMiddleware returns middleware that collects HTTP metrics
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(mc.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
