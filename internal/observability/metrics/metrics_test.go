package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMessagingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMessagingMetrics(reg)
	m.ObserveInbound("text", "enqueued")
	m.ObserveInbound("text", "enqueued")
	m.ObserveOutbound("sent")
	m.ObserveWebhookLatency("POST", 0.05)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("text", "enqueued")); got != 2 {
		t.Fatalf("expected 2 inbound, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboundTotal.WithLabelValues("sent")); got != 1 {
		t.Fatalf("expected 1 outbound, got %v", got)
	}
}

func TestReconcileMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetrics(reg)
	m.ObserveReconcile("updated", 120*time.Millisecond)
	m.ObserveSemanticEmpty()
	m.ObserveDisengagement()
	m.ObserveReply("generated")

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("updated")); got != 1 {
		t.Fatalf("expected 1 turn, got %v", got)
	}
	if got := testutil.ToFloat64(m.disengagements); got != 1 {
		t.Fatalf("expected 1 disengagement, got %v", got)
	}
	if n := testutil.CollectAndCount(m.reconcileLatency); n != 1 {
		t.Fatalf("expected latency histogram, got %d series", n)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MessagingMetrics
	m.ObserveInbound("text", "status")
	m.ObserveOutbound("sent")
	m.ObserveWebhookLatency("POST", 0.1)

	var r *ReconcileMetrics
	r.ObserveReconcile("updated", time.Second)
	r.ObserveSemanticEmpty()
	r.ObserveDisengagement()
	r.ObserveReply("generated")
}
