package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "http_request_duration_ms",
		Help:        "HTTP request latency in milliseconds.",
		Buckets:     []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route", "method"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// OrderMetrics counts order outcomes.
type OrderMetrics struct {
	created     prometheus.Counter
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer, service string) *OrderMetrics {
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			ConstLabels: prometheus.Labels{"service": service},
			Name:        "orders_created_total",
			Help:        "Orders committed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			ConstLabels: prometheus.Labels{"service": service},
			Name:        "orders_rejected_total",
			Help:        "Checkout attempts that did not produce an order, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			ConstLabels: prometheus.Labels{"service": service},
			Name:        "order_status_transitions_total",
			Help:        "Committed status transitions.",
		}, []string{"from", "to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			ConstLabels: prometheus.Labels{"service": service},
			Name:        "payment_signals_total",
			Help:        "Payment confirmation events handled, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.created, m.rejected, m.transitions, m.payments)
	return m
}

func (m *OrderMetrics) OrderCreated() { m.created.Inc() }

func (m *OrderMetrics) OrderRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *OrderMetrics) StatusChanged(from, to string) { m.transitions.WithLabelValues(from, to).Inc() }

func (m *OrderMetrics) PaymentHandled(outcome string) { m.payments.WithLabelValues(outcome).Inc() }

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
