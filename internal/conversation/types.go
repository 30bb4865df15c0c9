package conversation

import (
	"errors"
	"time"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

// Message roles stored in the per-phone history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyMessage is returned for inbound messages without a sender or body.
var ErrEmptyMessage = errors.New("conversation: inbound message requires sender and body")

// Message is one turn in the recent conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is a WhatsApp text received from a user.
type InboundMessage struct {
	MessageID   string    `json:"messageId" dynamodbav:"messageId"`
	From        string    `json:"from" dynamodbav:"from"`
	Body        string    `json:"body" dynamodbav:"body"`
	ProfileName string    `json:"profileName,omitempty" dynamodbav:"profileName,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt" dynamodbav:"receivedAt"`
}

// Response is the outcome of one handled turn.
type Response struct {
	Reply             string        `json:"reply" dynamodbav:"reply"`
	EnquiryID         string        `json:"enquiryId,omitempty" dynamodbav:"enquiryId,omitempty"`
	Stage             enquiry.Stage `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
	MissingFields     []string      `json:"missingFields,omitempty" dynamodbav:"missingFields,omitempty"`
	AllPrimaryPresent bool          `json:"allPrimaryPresent" dynamodbav:"allPrimaryPresent"`
	Disengaged        bool          `json:"disengaged" dynamodbav:"disengaged"`
	Fallback          bool          `json:"fallback" dynamodbav:"fallback"`
	InputTokens       int           `json:"inputTokens" dynamodbav:"inputTokens"`
	OutputTokens      int           `json:"outputTokens" dynamodbav:"outputTokens"`
}
