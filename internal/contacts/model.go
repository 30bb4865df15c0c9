// Package contacts tracks every WhatsApp number that has written in and the
// token-accounted log of each exchange, for the admin dashboard.
package contacts

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no contact exists for a phone number.
var ErrNotFound = errors.New("contacts: not found")

// Contact aggregates activity for one phone number.
type Contact struct {
	PhoneNumber        string    `json:"phoneNumber"`
	FirstContactDate   time.Time `json:"firstContactDate"`
	LastContactDate    time.Time `json:"lastContactDate"`
	TotalConversations int       `json:"totalConversations"`
	TotalInputTokens   int64     `json:"totalInputTokens"`
	TotalOutputTokens  int64     `json:"totalOutputTokens"`
}

// Message is one side of a logged exchange.
type Message struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
}

// Conversation is one logged user message and the bot's reply.
type Conversation struct {
	ID                string    `json:"id"`
	PhoneNumber       string    `json:"phoneNumber"`
	Messages          []Message `json:"messages"`
	TotalInputTokens  int       `json:"totalInputTokens"`
	TotalOutputTokens int       `json:"totalOutputTokens"`
	StartedAt         time.Time `json:"startedAt"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
}

// Exchange is what the conversation engine records after each turn.
type Exchange struct {
	Phone        string
	UserMessage  string
	Reply        string
	InputTokens  int
	OutputTokens int
	At           time.Time
}

func (x Exchange) conversation(id string) Conversation {
	return Conversation{
		ID:          id,
		PhoneNumber: x.Phone,
		Messages: []Message{
			{Role: "user", Content: x.UserMessage, Timestamp: x.At, InputTokens: x.InputTokens},
			{Role: "assistant", Content: x.Reply, Timestamp: x.At, OutputTokens: x.OutputTokens},
		},
		TotalInputTokens:  x.InputTokens,
		TotalOutputTokens: x.OutputTokens,
		StartedAt:         x.At,
		LastMessageAt:     x.At,
	}
}

// Stats are the dashboard totals.
type Stats struct {
	TotalContacts      int   `json:"totalContacts"`
	TotalConversations int   `json:"totalConversations"`
	TotalInputTokens   int64 `json:"totalInputTokens"`
	TotalOutputTokens  int64 `json:"totalOutputTokens"`
	TotalTokens        int64 `json:"totalTokens"`
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// Pages is the page count for total rows.
func (p Page) Pages(total int) int {
	p = p.Normalize()
	return int(math.Ceil(float64(total) / float64(p.Limit)))
}

// Store persists contacts and the conversation log.
type Store interface {
	Touch(ctx context.Context, phone string) error
	SaveExchange(ctx context.Context, x Exchange) error
	ListContacts(ctx context.Context, search string, page Page) ([]Contact, int, error)
	GetContact(ctx context.Context, phone string) (*Contact, error)
	ListConversations(ctx context.Context, phone string, page Page) ([]Conversation, int, error)
	Stats(ctx context.Context) (Stats, error)
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

type exclusions map[string]struct{}

func newExclusions(phones []string) exclusions {
	ex := make(exclusions, len(phones))
	for _, p := range phones {
		if p = strings.TrimSpace(p); p != "" {
			ex[p] = struct{}{}
		}
	}
	return ex
}

func (e exclusions) has(phone string) bool {
	_, ok := e[phone]
	return ok
}

func (e exclusions) list() []string {
	out := make([]string, 0, len(e))
	for p := range e {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
