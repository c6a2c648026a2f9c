package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes API counters on a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadsTotal    *prometheus.CounterVec
	followChanges   *prometheus.CounterVec
	contentBytes    prometheus.Counter
	streamsActive   prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanreel_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanreel_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanreel_uploads_total",
			Help: "Primary and thumbnail uploads by outcome",
		}, []string{"kind", "outcome"}),
		followChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanreel_follow_changes_total",
			Help: "Follow relationship changes by direction",
		}, []string{"direction"}),
		contentBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "fanreel_content_bytes_total",
			Help: "Bytes accepted by the content endpoint",
		}),
		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fanreel_event_streams_active",
			Help: "Open catalog event streams",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) observeUpload(kind, outcome string) {
	m.uploadsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) observeFollow(direction string) {
	m.followChanges.WithLabelValues(direction).Inc()
}

func (m *Metrics) observeContent(size int) {
	m.contentBytes.Add(float64(size))
}

func (m *Metrics) streamOpened() {
	m.streamsActive.Inc()
}

func (m *Metrics) streamClosed() {
	m.streamsActive.Dec()
}
