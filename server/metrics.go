package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each instance has its own
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Connections  prometheus.Gauge
	Events       *prometheus.CounterVec // realtime events received, by type
	Broadcasts   *prometheus.CounterVec // realtime events fanned out, by type
	ChatRequests *prometheus.CounterVec // by outcome
	HTTPRequests *prometheus.HistogramVec
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindcare",
			Name:      "ws_connections",
			Help:      "Connected realtime clients.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindcare",
			Name:      "ws_events_received_total",
			Help:      "Realtime events received from clients.",
		}, []string{"type"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindcare",
			Name:      "ws_broadcasts_total",
			Help:      "Realtime events broadcast to clients.",
		}, []string{"type"}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindcare",
			Name:      "chat_requests_total",
			Help:      "Chat assistant requests.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mindcare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	m.registry.MustRegister(
		m.Connections,
		m.Events,
		m.Broadcasts,
		m.ChatRequests,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
