package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/llm"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const (
	providerGroq    = "groq"
	providerGemini  = "gemini"
	providerBedrock = "bedrock"
)

// BuildLLMClient puts Groq first, then each provider named in
// LLM_FALLBACK_PROVIDER (comma separated, in order) that has credentials.
// It returns nil when nothing is usable; the bot then runs on heuristics and
// canned replies.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var providers []llm.Provider
	if strings.TrimSpace(cfg.GroqAPIKey) != "" {
		groq, err := llm.NewOpenAICompatible(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqReplyModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: groq client: %w", err)
		}
		providers = append(providers, llm.Provider{Name: providerGroq, Client: groq})
	}
	for _, name := range fallbackProviders(cfg.LLMFallbackProvider) {
		client, err := buildFallbackLLM(ctx, name, cfg, awsCfg)
		if err != nil {
			return nil, err
		}
		if client == nil {
			logger.Warn("llm fallback provider not configured, skipping", "provider", name)
			continue
		}
		providers = append(providers, llm.Provider{Name: name, Client: client})
	}

	switch len(providers) {
	case 0:
		logger.Warn("no LLM provider configured; semantic extraction and generated replies disabled")
		return nil, nil
	case 1:
		logger.Info("llm provider ready", "provider", providers[0].Name)
		return providers[0].Client, nil
	default:
		chain := llm.NewChain(logger, providers...)
		logger.Info("llm provider chain ready", "providers", strings.Join(chain.Names(), ","))
		return chain, nil
	}
}

func fallbackProviders(setting string) []string {
	var names []string
	for _, name := range strings.Split(setting, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func buildFallbackLLM(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (llm.Client, error) {
	switch name {
	case providerGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil
		}
		client, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, nil
	case providerBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" || awsCfg == nil {
			return nil, nil
		}
		return llm.NewBedrock(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM fallback provider %q", name)
	}
}
