package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valentinpelus/attackref/pkg/types"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude models
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	opts    GenerationOptions
	prompts *PromptBuilder
	client  *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string, opts GenerationOptions) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-sonnet-20241022" // Default to Claude 3.5 Sonnet
	}
	opts = opts.withDefaults()
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicBaseURL,
		opts:    opts,
		prompts: NewPromptBuilder(opts.PromptTemplate),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

// Anthropic API structures
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Type    string                  `json:"type"`
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

// GenerateProcedure asks Claude for a procedure example
func (p *AnthropicProvider) GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error) {
	temperature := p.opts.Temperature
	return p.send(ctx, anthropicRequest{
		Model:       p.model,
		System:      SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: p.prompts.Build(req)}},
		MaxTokens:   p.opts.MaxTokens,
		Temperature: &temperature,
	})
}

// Ping sends a tiny message to verify the API key
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.send(ctx, anthropicRequest{
		Model:     p.model,
		Messages:  []anthropicMessage{{Role: "user", Content: "Hello"}},
		MaxTokens: pingMaxTokens,
	})
	return err
}

func (p *AnthropicProvider) send(ctx context.Context, reqBody anthropicRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return "", fmt.Errorf("failed to decode Anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Anthropic returned no content")
	}

	return strings.TrimSpace(text.String()), nil
}
