package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "llama-3.1-8b-instant"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompatible talks to any OpenAI-style chat completions API. The bot
// points it at Groq.
type OpenAICompatible struct {
	api   chatCompleter
	model string
}

// NewOpenAICompatible builds a client for baseURL, or Groq when baseURL is
// empty.
func NewOpenAICompatible(apiKey, baseURL, model string) (*OpenAICompatible, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = GroqBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return newOpenAICompatible(openai.NewClientWithConfig(cfg), model), nil
}

func newOpenAICompatible(api chatCompleter, model string) *OpenAICompatible {
	if api == nil {
		panic("llm: chat completer cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = GroqModel
	}
	return &OpenAICompatible{api: api, model: model}
}

var openAIRoles = map[Role]string{
	RoleUser:      openai.ChatMessageRoleUser,
	RoleAssistant: openai.ChatMessageRoleAssistant,
}

func (c *OpenAICompatible) Complete(ctx context.Context, req Request) (Completion, error) {
	p, err := req.prepare()
	if err != nil {
		return Completion{}, err
	}

	chat := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(p.system)+len(p.turns)),
		MaxTokens: int(req.MaxTokens),
		TopP:      req.TopP,
	}
	if m := strings.TrimSpace(req.Model); m != "" {
		chat.Model = m
	}
	if t, ok := req.temperature(); ok {
		chat.Temperature = t
	}
	if req.JSONMode {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, s := range p.system {
		chat.Messages = append(chat.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	for _, m := range p.turns {
		chat.Messages = append(chat.Messages, openai.ChatCompletionMessage{Role: openAIRoles[m.Role], Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, chat)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: chat completion on %s: %w", chat.Model, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("llm: chat completion on %s returned no choices", chat.Model)
	}
	choice := resp.Choices[0]
	return Completion{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage:      Usage{Input: int32(resp.Usage.PromptTokens), Output: int32(resp.Usage.CompletionTokens)},
	}, nil
}
