// Package metrics exposes prometheus counters for guards, dispatcher side
// effects and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/wiremsg/internal/signals"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GuardDecisionsTotal *prometheus.CounterVec

	DispatcherEventsTotal *prometheus.CounterVec
	NotificationsCreated  prometheus.Counter
	HistoryRowsCreated    prometheus.Counter
	CleanupRowsDeleted    *prometheus.CounterVec

	RateLimitClients prometheus.GaugeFunc
	WSConnections    prometheus.GaugeFunc
}

// New creates and registers all metrics on a fresh registry. The gauge
// callbacks may be nil.
func New(rateLimitClients, wsConnections func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiremsg_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wiremsg_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GuardDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiremsg_guard_decisions_total",
				Help: "Guard stage decisions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		DispatcherEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiremsg_dispatcher_events_total",
				Help: "Committed dispatcher operations by kind",
			},
			[]string{"kind"},
		),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wiremsg_notifications_created_total",
			Help: "Notifications created for new messages",
		}),
		HistoryRowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wiremsg_message_history_created_total",
			Help: "Edit history rows written",
		}),
		CleanupRowsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiremsg_user_cleanup_rows_deleted_total",
				Help: "Rows removed while deleting users",
			},
			[]string{"table"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GuardDecisionsTotal,
		m.DispatcherEventsTotal,
		m.NotificationsCreated,
		m.HistoryRowsCreated,
		m.CleanupRowsDeleted,
	)

	if rateLimitClients != nil {
		m.RateLimitClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wiremsg_ratelimit_clients",
			Help: "Clients currently tracked by the in-memory rate limiter",
		}, func() float64 { return float64(rateLimitClients()) })
		reg.MustRegister(m.RateLimitClients)
	}
	if wsConnections != nil {
		m.WSConnections = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wiremsg_ws_connections",
			Help: "Open websocket connections",
		}, func() float64 { return float64(wsConnections()) })
		reg.MustRegister(m.WSConnections)
	}
	return m
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGuard counts a guard stage decision.
func (m *Metrics) ObserveGuard(stage string, rejected bool) {
	outcome := "pass"
	if rejected {
		outcome = "reject"
	}
	m.GuardDecisionsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveHTTP records a finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// HandleEvent counts committed dispatcher side effects.
func (m *Metrics) HandleEvent(e signals.Event) {
	m.DispatcherEventsTotal.WithLabelValues(e.Kind.String()).Inc()
	switch e.Kind {
	case signals.MessageCreated:
		if e.Notification != nil {
			m.NotificationsCreated.Inc()
		}
	case signals.MessageEdited:
		if e.History != nil {
			m.HistoryRowsCreated.Inc()
		}
	case signals.UserDeleted:
		m.CleanupRowsDeleted.WithLabelValues("messages").Add(float64(e.Cleanup.Messages))
		m.CleanupRowsDeleted.WithLabelValues("notifications").Add(float64(e.Cleanup.Notifications))
		m.CleanupRowsDeleted.WithLabelValues("message_history").Add(float64(e.Cleanup.History))
	}
}
