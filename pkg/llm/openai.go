package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/valentinpelus/attackref/pkg/types"
)

// OpenAIProvider implements the Provider interface for OpenAI's chat models
type OpenAIProvider struct {
	client  openai.Client
	model   string
	opts    GenerationOptions
	prompts *PromptBuilder
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may point at any
// OpenAI-compatible endpoint; empty uses the public API.
func NewOpenAIProvider(apiKey, model, baseURL string, opts GenerationOptions, extra ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, extra...)

	opts = opts.withDefaults()
	return &OpenAIProvider{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		opts:    opts,
		prompts: NewPromptBuilder(opts.PromptTemplate),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

// GenerateProcedure asks the chat completions API for a procedure example
func (p *OpenAIProvider) GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(p.prompts.Build(req)),
		},
		MaxTokens:   openai.Int(int64(p.opts.MaxTokens)),
		Temperature: openai.Float(p.opts.Temperature),
	}

	return p.complete(ctx, params)
}

// Ping sends a tiny completion to verify credentials and connectivity
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Hello"),
		},
		MaxTokens: openai.Int(pingMaxTokens),
	}

	_, err := p.complete(ctx, params)
	return err
}

func (p *OpenAIProvider) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
