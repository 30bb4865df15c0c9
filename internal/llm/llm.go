// Package llm is the completion seam used for semantic extraction and
// reply generation. Groq (through its OpenAI-compatible API), Gemini and
// Bedrock sit behind the same Client, and Chain fails over between them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one line of the conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	// Model overrides the client's default when the provider recognises it.
	Model    string
	System   []string
	Messages []Message
	// MaxTokens of zero leaves the provider default.
	MaxTokens int32
	// Temperature below zero leaves the provider default.
	Temperature float32
	TopP        float32
	// JSONMode asks for a single JSON object as the reply.
	JSONMode bool
}

// Usage is the token count a provider billed for a completion.
type Usage struct {
	Input  int32
	Output int32
}

// Total is Input plus Output.
func (u Usage) Total() int32 {
	return u.Input + u.Output
}

// Completion is the provider's reply.
type Completion struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client completes a conversation.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

var errNoMessages = errors.New("llm: request has no messages")

// jsonInstruction is appended to the system prompt for providers without a
// native JSON response mode.
const jsonInstruction = "Reply with a single JSON object and nothing else."

// prepared is a Request split into what providers actually send: system
// text, including any system-role messages, and the user/assistant turns.
type prepared struct {
	system []string
	turns  []Message
}

func (r Request) prepare() (prepared, error) {
	var p prepared
	for _, block := range r.System {
		if block = strings.TrimSpace(block); block != "" {
			p.system = append(p.system, block)
		}
	}
	for _, m := range r.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			p.system = append(p.system, content)
		case RoleUser, RoleAssistant:
			p.turns = append(p.turns, Message{Role: m.Role, Content: content})
		default:
			return prepared{}, fmt.Errorf("llm: unsupported role %q", m.Role)
		}
	}
	if len(p.turns) == 0 {
		return prepared{}, errNoMessages
	}
	return p, nil
}

func (r Request) temperature() (float32, bool) {
	return r.Temperature, r.Temperature >= 0
}
