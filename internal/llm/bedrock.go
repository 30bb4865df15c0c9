package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock completes through the Bedrock Converse API. Its model id always
// wins over Request.Model, which carries Groq model names.
type Bedrock struct {
	api   converseAPI
	model string
}

func NewBedrock(api converseAPI, model string) *Bedrock {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &Bedrock{api: api, model: model}
}

func (b *Bedrock) Complete(ctx context.Context, req Request) (Completion, error) {
	if strings.TrimSpace(b.model) == "" {
		return Completion{}, errors.New("llm: bedrock model id is required")
	}
	p, err := req.prepare()
	if err != nil {
		return Completion{}, err
	}
	if req.JSONMode {
		p.system = append(p.system, jsonInstruction)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.model),
		InferenceConfig: bedrockInference(req),
	}
	for _, s := range p.system {
		input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: s})
	}
	for _, m := range p.turns {
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}

	out, err := b.api.Converse(ctx, input)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: bedrock %s: %w", b.model, err)
	}
	return bedrockCompletion(out)
}

// bedrockInference returns nil when every knob is left at its default.
func bedrockInference(req Request) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens, set = aws.Int32(req.MaxTokens), true
	}
	if t, ok := req.temperature(); ok {
		cfg.Temperature, set = aws.Float32(t), true
	}
	if req.TopP > 0 {
		cfg.TopP, set = aws.Float32(req.TopP), true
	}
	if !set {
		return nil
	}
	return cfg
}

func bedrockCompletion(out *bedrockruntime.ConverseOutput) (Completion, error) {
	if out == nil {
		return Completion{}, errors.New("llm: bedrock returned no output")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Completion{}, errors.New("llm: bedrock output is not a message")
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	completion := Completion{
		Text:       strings.TrimSpace(text.String()),
		StopReason: string(out.StopReason),
	}
	if completion.Text == "" {
		return Completion{}, errors.New("llm: bedrock returned no text")
	}
	if u := out.Usage; u != nil {
		completion.Usage = Usage{Input: aws.ToInt32(u.InputTokens), Output: aws.ToInt32(u.OutputTokens)}
	}
	return completion, nil
}
