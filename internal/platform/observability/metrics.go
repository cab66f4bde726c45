package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus collectors exported by the API process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	fulfillmentRuns  *prometheus.CounterVec
	fulfillmentSteps *prometheus.CounterVec
	stockMutations   *prometheus.CounterVec
	carrierRequests  *prometheus.CounterVec
	emailDispatches  *prometheus.CounterVec
}

// NewMetrics builds a registry pre-populated with process and runtime collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "admin_api"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, labelled by method, route and status class.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		fulfillmentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fulfillment",
			Name:      "runs_total",
			Help:      "Order confirmation and cancellation runs by outcome.",
		}, []string{"operation", "outcome"}),
		fulfillmentSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fulfillment",
			Name:      "step_failures_total",
			Help:      "Individual pipeline step failures by step and severity.",
		}, []string{"step", "severity"}),
		stockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "mutations_total",
			Help:      "Stock ledger mutations by kind and result.",
		}, []string{"kind", "result"}),
		carrierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carrier",
			Name:      "requests_total",
			Help:      "Outbound carrier API calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
		emailDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "email_dispatches_total",
			Help:      "Transactional email dispatch attempts by kind and result.",
		}, []string{"kind", "result"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.fulfillmentRuns,
		m.fulfillmentSteps,
		m.stockMutations,
		m.carrierRequests,
		m.emailDispatches,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records a single handled request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordFulfillmentRun counts one completed pipeline run.
func (m *Metrics) RecordFulfillmentRun(operation string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.fulfillmentRuns.WithLabelValues(operation, outcome).Inc()
}

// RecordFulfillmentStepFailure counts a single failed pipeline step.
func (m *Metrics) RecordFulfillmentStepFailure(step, severity string) {
	if m == nil {
		return
	}
	m.fulfillmentSteps.WithLabelValues(step, severity).Inc()
}

// RecordStockMutation counts one reduce or restore attempt.
func (m *Metrics) RecordStockMutation(kind string, ok bool) {
	if m == nil {
		return
	}
	m.stockMutations.WithLabelValues(kind, resultLabel(ok)).Inc()
}

// RecordCarrierRequest counts one outbound carrier API call.
func (m *Metrics) RecordCarrierRequest(endpoint string, ok bool) {
	if m == nil {
		return
	}
	m.carrierRequests.WithLabelValues(endpoint, resultLabel(ok)).Inc()
}

// RecordEmailDispatch counts one transactional email attempt.
func (m *Metrics) RecordEmailDispatch(kind string, ok bool) {
	if m == nil {
		return
	}
	m.emailDispatches.WithLabelValues(kind, resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
