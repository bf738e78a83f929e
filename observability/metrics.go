package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for the call relay. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	EventsReceivedTotal *prometheus.CounterVec
	EventsIgnoredTotal  *prometheus.CounterVec
	LifecycleTotal      *prometheus.CounterVec
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryLatency     prometheus.Histogram
	InflightDeliveries  prometheus.Gauge
	SubscriptionsFanout prometheus.Histogram
}

// NewMetrics creates the relay instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsReceivedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_events_received_total",
			Help: "Inbound call webhooks by authentication outcome.",
		}, []string{"outcome"}),
		EventsIgnoredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_events_ignored_total",
			Help: "Inbound payloads dropped before fan-out, by reason.",
		}, []string{"reason"}),
		LifecycleTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_lifecycle_total",
			Help: "Subscription lifecycle events by resulting transition.",
		}, []string{"transition"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_deliveries_total",
			Help: "Trigger deliveries by status.",
		}, []string{"status"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrelay_delivery_latency_seconds",
			Help:    "Trigger delivery latency.",
			Buckets: prometheus.DefBuckets,
		}),
		InflightDeliveries: f.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_inflight_deliveries",
			Help: "Trigger deliveries currently in flight.",
		}),
		SubscriptionsFanout: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrelay_fanout_subscriptions",
			Help:    "Subscriptions matched per dispatched call event.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordReceived counts an inbound call webhook.
func (m *Metrics) RecordReceived(outcome string) {
	if m == nil {
		return
	}
	m.EventsReceivedTotal.WithLabelValues(outcome).Inc()
}

// RecordIgnored counts a payload dropped before fan-out.
func (m *Metrics) RecordIgnored(reason string) {
	if m == nil {
		return
	}
	m.EventsIgnoredTotal.WithLabelValues(reason).Inc()
}

// RecordLifecycle counts a lifecycle event by transition.
func (m *Metrics) RecordLifecycle(transition string) {
	if m == nil {
		return
	}
	m.LifecycleTotal.WithLabelValues(transition).Inc()
}

// RecordFanout observes how many subscriptions an event was sent to.
func (m *Metrics) RecordFanout(n int) {
	if m == nil {
		return
	}
	m.SubscriptionsFanout.Observe(float64(n))
}

// Inflight adjusts the in-flight delivery gauge by delta.
func (m *Metrics) Inflight(delta float64) {
	if m == nil {
		return
	}
	m.InflightDeliveries.Add(delta)
}
