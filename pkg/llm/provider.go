package llm

import (
	"context"

	"github.com/valentinpelus/attackref/pkg/types"
)

// Provider defines the interface for text-generation providers (OpenAI, Claude, Gemini, Ollama, Bedrock)
type Provider interface {
	// GenerateProcedure returns an illustrative procedure example for a technique
	GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error)

	// Ping makes the smallest possible call to check the provider is reachable
	Ping(ctx context.Context) error

	// Name returns the provider name (for logging)
	Name() string
}

// GenerationOptions are the prompt and sampling parameters shared by all providers
type GenerationOptions struct {
	MaxTokens      int
	Temperature    float64
	PromptTemplate string // empty uses DefaultProcedurePromptTemplate
}

// DefaultGenerationOptions mirrors the defaults of the configuration layer
var DefaultGenerationOptions = GenerationOptions{MaxTokens: 800, Temperature: 0.7}

func (o GenerationOptions) withDefaults() GenerationOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultGenerationOptions.MaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = DefaultGenerationOptions.Temperature
	}
	return o
}

// pingMaxTokens bounds the connection test call
const pingMaxTokens = 5

// Config holds common configuration for LLM providers
type Config struct {
	Provider string // "openai", "anthropic", "gemini", "ollama", "bedrock"

	Generation GenerationOptions

	// OpenAI-specific
	OpenAIAPIKey  string
	OpenAIModel   string // e.g., "gpt-4o-mini", "gpt-3.5-turbo"
	OpenAIBaseURL string // optional, for OpenAI-compatible endpoints

	// Anthropic-specific
	AnthropicAPIKey string
	AnthropicModel  string // e.g., "claude-3-5-sonnet-20241022"

	// Gemini-specific
	GeminiAPIKey string
	GeminiModel  string // e.g., "gemini-1.5-pro"

	// Ollama-specific
	OllamaURL   string
	OllamaModel string

	// AWS Bedrock-specific
	BedrockRegion string // e.g., "us-east-1", "us-west-2"
	BedrockModel  string // e.g., "anthropic.claude-3-5-sonnet-20241022-v2:0"
}
