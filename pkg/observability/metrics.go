package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message kinds used as the "kind" label.
const (
	KindSend    = "send"
	KindPublish = "publish"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics collects runtime metrics. A nil *Metrics is valid and records
// nothing, so components can call it unconditionally.
type Metrics struct {
	messagesEnqueued  *prometheus.CounterVec
	messagesDelivered *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	queueWait         prometheus.Histogram
	queueDepth        prometheus.Gauge
	inFlight          prometheus.Gauge
	instancesCreated  *prometheus.CounterVec
}

// NewMetrics creates the runtime metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_messages_enqueued_total",
				Help: "Total number of envelopes enqueued",
			},
			[]string{"kind"},
		),
		messagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_messages_delivered_total",
				Help: "Total number of envelopes dequeued and processed",
			},
			[]string{"agent_type", "outcome"},
		),
		messagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_messages_dropped_total",
				Help: "Total number of messages dropped before delivery",
			},
			[]string{"reason"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_handler_duration_seconds",
				Help:    "Handler execution duration in seconds, suspension included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type"},
		),
		queueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentrt_queue_wait_seconds",
				Help:    "Time envelopes spend queued before dequeue",
				Buckets: prometheus.DefBuckets,
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentrt_queue_depth",
				Help: "Number of envelopes waiting in the dispatch queue",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentrt_handlers_in_flight",
				Help: "Number of handler invocations started and not yet finished",
			},
		),
		instancesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_instances_created_total",
				Help: "Total number of agent instances created",
			},
			[]string{"agent_type"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.messagesEnqueued,
			m.messagesDelivered,
			m.messagesDropped,
			m.handlerDuration,
			m.queueWait,
			m.queueDepth,
			m.inFlight,
			m.instancesCreated,
		)
	}
	return m
}

// MetricsHandler returns an HTTP handler exposing g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordEnqueued counts n envelopes of the given kind.
func (m *Metrics) RecordEnqueued(kind string, n int) {
	if m == nil {
		return
	}
	m.messagesEnqueued.WithLabelValues(kind).Add(float64(n))
}

// RecordDelivery records a finished delivery.
func (m *Metrics) RecordDelivery(agentType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.messagesDelivered.WithLabelValues(agentType, outcome).Inc()
	m.handlerDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordDropped counts a message discarded before delivery.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// ObserveQueueWait records how long an envelope was queued.
func (m *Metrics) ObserveQueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(d.Seconds())
}

// SetQueueDepth sets the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetInFlight sets the in-flight handlers gauge.
func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// RecordInstanceCreated counts a new agent instance.
func (m *Metrics) RecordInstanceCreated(agentType string) {
	if m == nil {
		return
	}
	m.instancesCreated.WithLabelValues(agentType).Inc()
}
