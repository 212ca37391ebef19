package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CoordinationMetrics provides Prometheus-compatible metrics for the
// election, bus and registry subsystems.
type CoordinationMetrics struct {
	// Election metrics
	electionsWon  prometheus.Counter
	demotions     prometheus.Counter
	isLeader      prometheus.Gauge
	leaseTerm     prometheus.Gauge

	// Bus metrics
	messagesPublished *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	dispatchQueueLen  prometheus.Gauge

	// Registry metrics
	activePods prometheus.Gauge

	registry *prometheus.Registry
}

// NewCoordinationMetrics creates a new metrics instance
func NewCoordinationMetrics(namespace string) *CoordinationMetrics {
	if namespace == "" {
		namespace = "podsync"
	}

	m := &CoordinationMetrics{
		registry: prometheus.NewRegistry(),
	}

	m.electionsWon = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "elections_won_total",
		Help:      "Total number of lease acquisitions by this pod",
	})

	m.demotions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "demotions_total",
		Help:      "Total number of leadership surrenders by this pod",
	})

	m.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "is_leader",
		Help:      "1 when this pod currently believes it is leader",
	})

	m.leaseTerm = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_term",
		Help:      "Term of the last held or observed leadership lease",
	})

	m.messagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_published_total",
		Help:      "Total coordination messages published",
	}, []string{"type", "channel"})

	m.messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total coordination messages dispatched to handlers",
	}, []string{"type"})

	m.messagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Total inbound messages dropped before dispatch",
	}, []string{"reason"})

	m.dispatchQueueLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_length",
		Help:      "Current depth of the inbound dispatch queue",
	})

	m.activePods = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_pods",
		Help:      "Pods seen alive in the last registry snapshot",
	})

	m.registry.MustRegister(
		m.electionsWon,
		m.demotions,
		m.isLeader,
		m.leaseTerm,
		m.messagesPublished,
		m.messagesReceived,
		m.messagesDropped,
		m.dispatchQueueLen,
		m.activePods,
	)

	return m
}

// LeadershipChanged records a promotion or demotion.
func (m *CoordinationMetrics) LeadershipChanged(isLeader bool, term int64) {
	m.leaseTerm.Set(float64(term))
	if isLeader {
		m.electionsWon.Inc()
		m.isLeader.Set(1)
	} else {
		m.demotions.Inc()
		m.isLeader.Set(0)
	}
}

// MessagePublished records an outbound publish.
func (m *CoordinationMetrics) MessagePublished(msgType, channel string) {
	m.messagesPublished.WithLabelValues(msgType, channel).Inc()
}

// MessageReceived records a dispatched inbound message.
func (m *CoordinationMetrics) MessageReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

// MessageDropped records an inbound message dropped before dispatch.
func (m *CoordinationMetrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// QueueLength updates the dispatch queue depth gauge.
func (m *CoordinationMetrics) QueueLength(n int) {
	m.dispatchQueueLen.Set(float64(n))
}

// ActivePods updates the registry snapshot gauge.
func (m *CoordinationMetrics) ActivePods(n int) {
	m.activePods.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *CoordinationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
