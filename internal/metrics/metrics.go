// Package metrics exposes Prometheus collectors for reservations, orders and
// the expiry sweep. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reservation_service"

type Metrics struct {
	registry            *prometheus.Registry
	reservations        *prometheus.CounterVec
	orders              *prometheus.CounterVec
	orderCreateDuration prometheus.Histogram
	sweepExpired        prometheus.Counter
	sweepFailures       prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_operations_total",
			Help:      "Reservation operations by result.",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_requests_total",
			Help:      "Order creation requests by outcome.",
		}, []string{"outcome"}),
		orderCreateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_create_duration_seconds",
			Help:      "Latency of the order creation pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Reservations expired by the sweep.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Reservations the sweep failed to expire.",
		}),
	}
	reg.MustRegister(
		m.reservations,
		m.orders,
		m.orderCreateDuration,
		m.sweepExpired,
		m.sweepFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveReservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOrder(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
	m.orderCreateDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveSweep(expired, failed int) {
	if m == nil {
		return
	}
	m.sweepExpired.Add(float64(expired))
	m.sweepFailures.Add(float64(failed))
}
