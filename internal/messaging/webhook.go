// Package messaging speaks the WhatsApp Cloud API: it verifies and accepts
// webhook notifications and sends text replies through the Graph API.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/events"
	"github.com/wolfman30/travel-enquiry-bot/internal/observability/metrics"
	"github.com/wolfman30/travel-enquiry-bot/internal/phone"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

var webhookTracer = otel.Tracer("travel.internal.messaging.webhook")

const (
	maxWebhookBody = 1 << 20
	publishTimeout = 3 * time.Second
)

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, msg conversation.InboundMessage, opts ...conversation.PublishOption) (string, error)
}

// ProcessedTracker remembers which WhatsApp message ids were already queued.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookConfig holds the credentials Meta uses to talk to us.
type WebhookConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret string
}

// WebhookHandler serves GET and POST /webhook.
type WebhookHandler struct {
	cfg       WebhookConfig
	publisher inboundPublisher
	processed ProcessedTracker
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewWebhookHandler(cfg WebhookConfig, publisher inboundPublisher, processed ProcessedTracker, m *metrics.MessagingMetrics, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if processed == nil {
		processed = events.NewMemoryProcessedStore()
	}
	return &WebhookHandler{
		cfg:       cfg,
		publisher: publisher,
		processed: processed,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Verify answers Meta's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || h.cfg.VerifyToken == "" || token != h.cfg.VerifyToken {
		h.logger.Warn("webhook verification failed", "mode", mode)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive accepts a notification and queues every new text message.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()
	defer func() {
		h.metrics.ObserveWebhookLatency(r.Method, h.now().Sub(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.cfg.AppSecret != "" && !ValidateSignature(body, r.Header.Get(signatureHeader), h.cfg.AppSecret) {
		h.logger.Warn("invalid whatsapp signature")
		span.RecordError(errors.New("invalid whatsapp signature"))
		h.metrics.ObserveInbound("unknown", "rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("ignoring malformed webhook payload", "error", err)
		h.metrics.ObserveInbound("unknown", "malformed")
		w.WriteHeader(http.StatusOK)
		return
	}

	queued := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Statuses) > 0 {
				h.metrics.ObserveInbound("status", "ignored")
			}
			for _, msg := range change.Value.Messages {
				ok, err := h.accept(ctx, change.Value, msg)
				if err != nil {
					span.RecordError(err)
					http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
					return
				}
				if ok {
					queued++
				}
			}
		}
	}
	span.SetAttributes(attribute.Int("travel.whatsapp.queued", queued))
	w.WriteHeader(http.StatusOK)
}

// accept queues one message. It reports false for skipped messages and an
// error only when the job could not be enqueued.
func (h *WebhookHandler) accept(ctx context.Context, value ChangeValue, msg WebhookMessage) (bool, error) {
	text := msg.TextBody()
	if text == "" || msg.ID == "" || msg.From == "" {
		h.metrics.ObserveInbound(msgType(msg), "ignored")
		return false, nil
	}

	seen, err := h.processed.AlreadyProcessed(ctx, events.ProviderWhatsApp, msg.ID)
	if err != nil {
		h.logger.Warn("processed lookup failed", "error", err, "message_id", msg.ID)
	}
	if seen {
		h.metrics.ObserveInbound(msg.Type, "duplicate")
		return false, nil
	}

	from := phone.FromWhatsAppID(msg.From)
	inbound := conversation.InboundMessage{
		MessageID:   msg.ID,
		From:        from,
		Body:        text,
		ProfileName: value.profileName(msg.From),
		ReceivedAt:  msg.SentAt(h.now().UTC()),
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	jobID, err := h.publisher.EnqueueInbound(publishCtx, inbound)
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "message_id", msg.ID, "from", from)
		h.metrics.ObserveInbound(msg.Type, "enqueue_failed")
		return false, err
	}

	if _, err := h.processed.MarkProcessed(ctx, events.ProviderWhatsApp, msg.ID); err != nil {
		h.logger.Warn("failed to mark message processed", "error", err, "message_id", msg.ID)
	}
	h.metrics.ObserveInbound(msg.Type, "enqueued")
	h.logger.Info("whatsapp message queued", "job_id", jobID, "from", from)
	return true, nil
}

func msgType(msg WebhookMessage) string {
	if msg.Type == "" {
		return "unknown"
	}
	return msg.Type
}
