package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/observability/metrics"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

var sendTracer = otel.Tracer("travel.internal.messaging.whatsapp_send")

const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v19.0"
	sendAttempts        = 3
)

// SenderConfig carries the Cloud API credentials for one business number.
type SenderConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	Version       string
}

// WhatsAppSender posts text messages to the Graph API.
type WhatsAppSender struct {
	cfg        SenderConfig
	httpClient *http.Client
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
	backoff    func() time.Duration
}

func NewWhatsAppSender(cfg SenderConfig, m *metrics.MessagingMetrics, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = DefaultGraphVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &WhatsAppSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		metrics:    m,
		logger:     logger,
		backoff: func() time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
}

var _ conversation.ReplyMessenger = (*WhatsAppSender)(nil)

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             sendText      `json:"text"`
	Context          *replyContext `json:"context,omitempty"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type replyContext struct {
	MessageID string `json:"message_id"`
}

// SendReply answers a user, quoting the inbound message when ReplyTo is set.
func (s *WhatsAppSender) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	return s.send(ctx, reply.To, reply.Body, reply.ReplyTo)
}

// SendText pushes a plain message, used for sales desk alerts.
func (s *WhatsAppSender) SendText(ctx context.Context, to, body string) error {
	return s.send(ctx, to, body, "")
}

func (s *WhatsAppSender) send(ctx context.Context, to, body, replyTo string) error {
	if s.cfg.AccessToken == "" || s.cfg.PhoneNumberID == "" {
		return errors.New("messaging: whatsapp credentials missing")
	}
	to = strings.TrimPrefix(strings.TrimSpace(to), "+")
	if to == "" {
		return errors.New("messaging: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := sendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("travel.to", to))

	payload := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	}
	if replyTo != "" {
		payload.Context = &replyContext{MessageID: replyTo}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: encode send request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.cfg.BaseURL, s.cfg.Version, s.cfg.PhoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.metrics.ObserveOutbound("sent")
				s.logger.Info("whatsapp message sent", "to", to, "message_id", parseMessageID(respBody))
				return nil
			}
			lastErr = fmt.Errorf("messaging: whatsapp send failed: %s", formatGraphError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < sendAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = sendAttempts
			case <-time.After(s.backoff()):
			}
		}
	}

	s.metrics.ObserveOutbound("failed")
	span.RecordError(lastErr)
	s.logger.Warn("whatsapp send failed", "to", to, "error", lastErr)
	return lastErr
}

func parseMessageID(body []byte) string {
	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Messages) == 0 {
		return ""
	}
	return parsed.Messages[0].ID
}

type graphAPIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func formatGraphError(status int, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed graphAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Error.Code, parsed.Error.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Error.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}
