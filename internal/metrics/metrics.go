// Package metrics exposes Prometheus collectors for the shop API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	OrdersPlaced    prometheus.Counter
	OrdersFailed    *prometheus.CounterVec
	OrderValue      prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	EventsProcessed *prometheus.CounterVec
}

func New(service string) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop", Subsystem: "orders", Name: "placed_total",
			Help: "Orders committed.",
		}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop", Subsystem: "orders", Name: "failed_total",
			Help: "Order placements rejected or rolled back, by error kind.",
		}, []string{"kind"}),
		OrderValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shop", Subsystem: "orders", Name: "value",
			Help:    "Total amount of committed orders.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop", Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop", Subsystem: "worker", Name: "events_total",
			Help: "Consumed order events by type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	m.reg.MustRegister(
		m.OrdersPlaced, m.OrdersFailed, m.OrderValue,
		m.HTTPRequests, m.HTTPDuration, m.EventsProcessed,
		collectors.NewGoCollector(),
	)
	if service != "" {
		m.reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shop", Name: "info", Help: "Service info.",
			ConstLabels: prometheus.Labels{"service": service},
		}))
	}
	return m
}

func (m *Metrics) OrderPlaced(total float64) {
	m.OrdersPlaced.Inc()
	m.OrderValue.Observe(total)
}

func (m *Metrics) OrderFailed(kind string) { m.OrdersFailed.WithLabelValues(kind).Inc() }

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) EventProcessed(eventType, outcome string) {
	m.EventsProcessed.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
