package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const GeminiModel = "gemini-2.5-flash"

// Gemini completes through Google's Gemini API. Earlier turns become chat
// history and the final turn is the message sent.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = GeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (Completion, error) {
	p, err := req.prepare()
	if err != nil {
		return Completion{}, err
	}

	// Groq model names mean nothing to Gemini; only honour gemini ids.
	name := g.model
	if strings.HasPrefix(req.Model, "gemini") {
		name = req.Model
	}
	model := g.client.GenerativeModel(name)
	configureGemini(model, req, p.system)

	chat := model.StartChat()
	chat.History = geminiHistory(p.turns[:len(p.turns)-1])
	last := p.turns[len(p.turns)-1]

	resp, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return Completion{}, fmt.Errorf("llm: gemini %s: %w", name, err)
	}
	return geminiCompletion(resp)
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func configureGemini(model *genai.GenerativeModel, req Request, system []string) {
	if t, ok := req.temperature(); ok {
		model.SetTemperature(t)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
}

func geminiHistory(turns []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history
}

func geminiCompletion(resp *genai.GenerateContentResponse) (Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, errors.New("llm: gemini returned no content")
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := Completion{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if out.Text == "" {
		return Completion{}, fmt.Errorf("llm: gemini returned no text (finish reason %s)", out.StopReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{Input: u.PromptTokenCount, Output: u.CandidatesTokenCount}
	}
	return out, nil
}
