package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Factory creates LLM providers based on configuration
type Factory struct {
	config Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{config: config, logger: logger}
}

// CreateProvider creates the configured LLM provider
func (f *Factory) CreateProvider(ctx context.Context) (Provider, error) {
	gen := f.config.Generation

	switch strings.ToLower(f.config.Provider) {
	case "openai", "":
		if f.config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openAI API key not configured")
		}
		f.logger.Info("using OpenAI provider", zap.String("model", f.config.OpenAIModel))
		return NewOpenAIProvider(f.config.OpenAIAPIKey, f.config.OpenAIModel, f.config.OpenAIBaseURL, gen), nil

	case "anthropic", "claude":
		if f.config.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		f.logger.Info("using Anthropic provider", zap.String("model", f.config.AnthropicModel))
		return NewAnthropicProvider(f.config.AnthropicAPIKey, f.config.AnthropicModel, gen), nil

	case "gemini", "google":
		if f.config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		f.logger.Info("using Google Gemini provider", zap.String("model", f.config.GeminiModel))
		p, err := NewGeminiProvider(ctx, f.config.GeminiAPIKey, f.config.GeminiModel, gen)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "ollama":
		if f.config.OllamaURL == "" {
			return nil, fmt.Errorf("ollama URL not configured")
		}
		f.logger.Info("using Ollama provider",
			zap.String("model", f.config.OllamaModel), zap.String("url", f.config.OllamaURL))
		return NewOllamaProvider(f.config.OllamaURL, f.config.OllamaModel, gen), nil

	case "bedrock", "aws":
		f.logger.Info("using AWS Bedrock provider",
			zap.String("model", f.config.BedrockModel), zap.String("region", f.config.BedrockRegion))
		p, err := NewBedrockProvider(ctx, f.config.BedrockRegion, f.config.BedrockModel, gen)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openai, anthropic, gemini, ollama, bedrock)", f.config.Provider)
	}
}
