package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/valentinpelus/attackref/pkg/types"
)

// bedrockInvoker is the part of the Bedrock runtime client the provider needs
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider implements the Provider interface for AWS Bedrock
type BedrockProvider struct {
	client  bedrockInvoker
	model   string
	region  string
	opts    GenerationOptions
	prompts *PromptBuilder
}

// NewBedrockProvider creates a new AWS Bedrock provider
func NewBedrockProvider(ctx context.Context, region, model string, opts GenerationOptions) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1" // Default region
	}
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0" // Default model
	}

	// Load AWS credentials from environment/IAM role
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newBedrockProvider(bedrockruntime.NewFromConfig(cfg), region, model, opts), nil
}

func newBedrockProvider(client bedrockInvoker, region, model string, opts GenerationOptions) *BedrockProvider {
	opts = opts.withDefaults()
	return &BedrockProvider{
		client:  client,
		model:   model,
		region:  region,
		opts:    opts,
		prompts: NewPromptBuilder(opts.PromptTemplate),
	}
}

// Name returns the provider name
func (p *BedrockProvider) Name() string {
	return fmt.Sprintf("AWS Bedrock (%s)", p.model)
}

// Bedrock request/response structures (using Claude's format on Bedrock)
type bedrockClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockClaudeRequest struct {
	System           string                 `json:"system,omitempty"`
	Messages         []bedrockClaudeMessage `json:"messages"`
	MaxTokens        int                    `json:"max_tokens"`
	Temperature      float64                `json:"temperature,omitempty"`
	AnthropicVersion string                 `json:"anthropic_version"`
}

type bedrockClaudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockClaudeResponse struct {
	ID      string                      `json:"id"`
	Type    string                      `json:"type"`
	Role    string                      `json:"role"`
	Content []bedrockClaudeContentBlock `json:"content"`
}

// GenerateProcedure invokes the configured Bedrock model for a procedure example
func (p *BedrockProvider) GenerateProcedure(ctx context.Context, req types.ProcedureRequest) (string, error) {
	return p.invoke(ctx, bedrockClaudeRequest{
		System:           SystemPrompt,
		Messages:         []bedrockClaudeMessage{{Role: "user", Content: p.prompts.Build(req)}},
		MaxTokens:        p.opts.MaxTokens,
		Temperature:      p.opts.Temperature,
		AnthropicVersion: "bedrock-2023-05-31",
	})
}

// Ping invokes the model with a tiny prompt
func (p *BedrockProvider) Ping(ctx context.Context) error {
	_, err := p.invoke(ctx, bedrockClaudeRequest{
		Messages:         []bedrockClaudeMessage{{Role: "user", Content: "Hello"}},
		MaxTokens:        pingMaxTokens,
		AnthropicVersion: "bedrock-2023-05-31",
	})
	return err
}

func (p *BedrockProvider) invoke(ctx context.Context, reqBody bedrockClaudeRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        jsonData,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Bedrock API: %w", err)
	}

	var bedrockResp bedrockClaudeResponse
	if err := json.Unmarshal(resp.Body, &bedrockResp); err != nil {
		return "", fmt.Errorf("failed to decode Bedrock response: %w", err)
	}

	if len(bedrockResp.Content) == 0 {
		return "", fmt.Errorf("Bedrock returned no content")
	}

	var text strings.Builder
	for _, block := range bedrockResp.Content {
		text.WriteString(block.Text)
	}
	return strings.TrimSpace(text.String()), nil
}
