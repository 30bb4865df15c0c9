// Package metrics holds the Prometheus collectors for the webhook, the
// WhatsApp sender and the reconcile pipeline. Every observe method is safe
// on a nil receiver so callers can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "travel"

// MessagingMetrics exposes counters/histograms for WhatsApp traffic.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Inbound WhatsApp webhook messages by type and handling status",
		}, []string{"message_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends by result",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(method).Observe(seconds)
}

// ReconcileMetrics tracks turn outcomes. It satisfies enquiry.Observer and
// conversation.TurnObserver.
type ReconcileMetrics struct {
	turnsTotal       *prometheus.CounterVec
	semanticEmpty    prometheus.Counter
	reconcileLatency prometheus.Histogram
	disengagements   prometheus.Counter
	repliesTotal     *prometheus.CounterVec
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	m := &ReconcileMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enquiry",
			Name:      "reconcile_total",
			Help:      "Reconciled turns by outcome",
		}, []string{"outcome"}),
		semanticEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enquiry",
			Name:      "semantic_empty_total",
			Help:      "Turns where the LLM extractor returned nothing",
		}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enquiry",
			Name:      "reconcile_latency_seconds",
			Help:      "Latency of extraction, merge and persistence for one turn",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		disengagements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "disengagements_total",
			Help:      "Conversations ended by the user",
		}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "replies_total",
			Help:      "Replies by how they were produced",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.semanticEmpty, m.reconcileLatency, m.disengagements, m.repliesTotal)
	return m
}

func (m *ReconcileMetrics) ObserveReconcile(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.reconcileLatency.Observe(duration.Seconds())
}

func (m *ReconcileMetrics) ObserveSemanticEmpty() {
	if m == nil {
		return
	}
	m.semanticEmpty.Inc()
}

func (m *ReconcileMetrics) ObserveDisengagement() {
	if m == nil {
		return
	}
	m.disengagements.Inc()
}

func (m *ReconcileMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(outcome).Inc()
}
