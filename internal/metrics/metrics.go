// Package metrics exposes Prometheus collectors for the penalty service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "goodroad"
	subsystem = "penalty"
)

// Metrics holds every collector. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	driversRegistered   prometheus.Counter
	violationsRecorded  *prometheus.CounterVec
	emailFallbacks      prometheus.Counter
	profilesServed      prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		driversRegistered: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drivers_registered_total",
			Help:      "Total number of vehicles registered",
		}),
		violationsRecorded: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "violations_recorded_total",
			Help:      "Total number of violation events persisted, by code",
		}, []string{"code"}),
		emailFallbacks: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "email_fallbacks_total",
			Help:      "Violation notices that used the fallback template",
		}),
		profilesServed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "profiles_served_total",
			Help:      "Total number of profile views assembled",
		}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status",
		}, []string{"route", "method", "status_code"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status_code"}),
	}
}

func (m *Metrics) DriverRegistered() {
	if m == nil {
		return
	}
	m.driversRegistered.Inc()
}

func (m *Metrics) ViolationRecorded(code string) {
	if m == nil {
		return
	}
	m.violationsRecorded.WithLabelValues(code).Inc()
}

func (m *Metrics) EmailFallback() {
	if m == nil {
		return
	}
	m.emailFallbacks.Inc()
}

func (m *Metrics) ProfileServed() {
	if m == nil {
		return
	}
	m.profilesServed.Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(route, c.Request.Method, status).Inc()
		m.httpRequestDuration.WithLabelValues(route, c.Request.Method, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
