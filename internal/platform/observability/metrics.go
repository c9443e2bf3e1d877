package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

// Metrics owns the Prometheus collectors for the order API.
type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	finalizations   *prometheus.CounterVec
	finalizeLatency prometheus.Histogram
	stockShortages  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// NewMetrics registers collectors on a dedicated registry under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_status_transitions_total",
			Help:      "Order status transition attempts by source, target and result.",
		}, []string{"from", "to", "result"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_finalizations_total",
			Help:      "Order acceptance finalizations by result.",
		}, []string{"result"}),
		finalizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orders_finalization_duration_seconds",
			Help:      "Time spent finalizing accepted orders.",
			Buckets:   prometheus.DefBuckets,
		}),
		stockShortages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_stock_shortages_total",
			Help:      "Acceptances aborted because a product ran out of stock.",
		}, []string{"product_id"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registry.MustRegister(
		m.transitions,
		m.finalizations,
		m.finalizeLatency,
		m.stockShortages,
		m.httpRequests,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition counts a status transition attempt.
func (m *Metrics) ObserveTransition(from, to domain.OrderStatus, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), result).Inc()
}

// ObserveFinalization counts a finalization and records its latency.
func (m *Metrics) ObserveFinalization(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(result).Inc()
	m.finalizeLatency.Observe(elapsed.Seconds())
}

// IncStockShortage counts an acceptance aborted on productID.
func (m *Metrics) IncStockShortage(productID string) {
	if m == nil {
		return
	}
	m.stockShortages.WithLabelValues(productID).Inc()
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
