package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Order failure reasons used as label values.
const (
	ReasonValidation   = "validation"
	ReasonUnauthorized = "unauthorized"
	ReasonStock        = "insufficient_stock"
	ReasonConflict     = "conflict"
	ReasonStorage      = "storage"
	ReasonUpload       = "upload"
)

// OrderMetrics records order creation and lifecycle activity.
type OrderMetrics struct {
	createDuration *prometheus.HistogramVec
	created        prometheus.Counter
	failed         *prometheus.CounterVec
	numberRetries  prometheus.Counter
	transitions    *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	createDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_create_duration_seconds",
		Help:    "Duration of order creation attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders committed.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_create_failures_total",
		Help: "Order creation attempts that were rejected or failed.",
	}, []string{"reason"})
	numberRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_number_retries_total",
		Help: "Order number collisions that triggered a regeneration.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status changes applied by admins.",
	}, []string{"from", "to"})
	reg.MustRegister(createDuration, created, failed, numberRetries, transitions)
	return &OrderMetrics{
		createDuration: createDuration,
		created:        created,
		failed:         failed,
		numberRetries:  numberRetries,
		transitions:    transitions,
	}
}

// ObserveCreate records the duration of a creation attempt.
func (m *OrderMetrics) ObserveCreate(outcome string, duration time.Duration) {
	if m == nil || m.createDuration == nil {
		return
	}
	m.createDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCreated increments the committed order counter.
func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncFailure increments the failure counter for the given reason.
func (m *OrderMetrics) IncFailure(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncNumberRetry counts an order number regeneration.
func (m *OrderMetrics) IncNumberRetry() {
	if m == nil || m.numberRetries == nil {
		return
	}
	m.numberRetries.Inc()
}

// IncTransition counts a status change.
func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
