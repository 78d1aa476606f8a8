package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	httpErrors        *prometheus.CounterVec
	appealTransitions *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	rateLimitFailOpen prometheus.Counter
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appeal_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appeal_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appeal_http_errors_total",
			Help: "HTTP errors by route and error code.",
		}, []string{"method", "route", "code"}),
		appealTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appeal_transitions_total",
			Help: "Committed appeal operations.",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appeal_notifications_total",
			Help: "Notification outcomes by channel.",
		}, []string{"channel", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appeal_rate_limited_total",
			Help: "Rejected attempts by action.",
		}, []string{"action"}),
		rateLimitFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appeal_rate_limit_fail_open_total",
			Help: "Attempts admitted because the limiter store failed.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpErrors,
		m.appealTransitions,
		m.notifications,
		m.rateLimited,
		m.rateLimitFailOpen,
	)
	return m
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, route, code).Inc()
}

// AppealOperation counts a committed workflow operation.
func (m *Metrics) AppealOperation(op string) {
	if m == nil {
		return
	}
	m.appealTransitions.WithLabelValues(op).Inc()
}

// NotificationOutcome counts a delivery result.
func (m *Metrics) NotificationOutcome(channel, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

// RateLimited counts a rejected attempt.
func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action).Inc()
}

// RateLimitFailOpen counts an attempt admitted after a store failure.
func (m *Metrics) RateLimitFailOpen() {
	if m == nil {
		return
	}
	m.rateLimitFailOpen.Inc()
}
