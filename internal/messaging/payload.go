package messaging

import (
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the subset of the WhatsApp Cloud API notification we read.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         ValueMetadata    `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
	Statuses         []WebhookStatus  `json:"statuses"`
}

type ValueMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type WebhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

type WebhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// TextBody returns the trimmed text body, or "" for non-text messages.
func (m WebhookMessage) TextBody() string {
	if m.Type != "text" || m.Text == nil {
		return ""
	}
	return strings.TrimSpace(m.Text.Body)
}

// SentAt parses the unix-seconds timestamp, falling back to fallback.
func (m WebhookMessage) SentAt(fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}

func (v ChangeValue) profileName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return strings.TrimSpace(c.Profile.Name)
		}
	}
	return ""
}
