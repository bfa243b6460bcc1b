package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/valentinpelus/attackref/pkg/types"
)

// GeminiProvider implements the Provider interface for Google's Gemini models
type GeminiProvider struct {
	client  *genai.Client
	model   string
	opts    GenerationOptions
	prompts *PromptBuilder
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, model string, opts GenerationOptions) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-1.5-pro" // Default to Gemini 1.5 Pro
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	opts = opts.withDefaults()
	return &GeminiProvider{
		client:  client,
		model:   model,
		opts:    opts,
		prompts: NewPromptBuilder(opts.PromptTemplate),
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Google Gemini (%s)", p.model)
}

// GenerateProcedure asks Gemini for a procedure example
func (p *GeminiProvider) GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(p.opts.Temperature)),
		MaxOutputTokens:   int32(p.opts.MaxTokens),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(p.prompts.Build(req)), config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("Gemini returned no candidates")
	}
	return text, nil
}

// Ping sends a tiny prompt to verify the API key
func (p *GeminiProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text("Hello"), &genai.GenerateContentConfig{
		MaxOutputTokens: pingMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("Gemini API call failed: %w", err)
	}
	return nil
}
