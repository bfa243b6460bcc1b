package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Host  string
	Port  int
	Debug bool

	LogFile     string
	FeedbackCSV string
	MitreCSV    string
	StaticDir   string

	AdminAuthToken     string   // protects destructive feedback routes when set
	CORSAllowedOrigins []string // "*" allows any origin

	LLMProvider     string // "openai", "anthropic", "gemini", "ollama", "bedrock"
	LLMMaxTokens    int
	LLMTemperature  float64
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	OllamaURL       string
	OllamaModel     string
	BedrockRegion   string
	BedrockModel    string
	PromptTemplate  string

	// Procedure archive
	ArchiveDatabaseURL string

	// Slack notification on thumbs_down feedback
	SlackWebhookURL string
}

// LoadDotEnv loads a .env file into the process environment if one exists
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Host:  getEnv("APP_HOST", "0.0.0.0"),
		Port:  getEnvInt("APP_PORT", 8000),
		Debug: getEnvBool("APP_DEBUG", false),

		LogFile:     getEnv("LOG_FILE", "app.log"),
		FeedbackCSV: getEnv("FEEDBACK_CSV", "feedback.csv"),
		MitreCSV:    getEnv("MITRE_CSV", "mitre.csv"),
		StaticDir:   getEnv("STATIC_DIR", "."),

		AdminAuthToken:     getEnv("ADMIN_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", getEnvInt("OPENAI_MAX_TOKENS", 800)),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", getEnvFloat("OPENAI_TEMPERATURE", 0.7)),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3"),
		BedrockRegion:   getEnv("BEDROCK_REGION", "us-east-1"),
		BedrockModel:    getEnv("BEDROCK_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		PromptTemplate:  getEnv("PROCEDURE_PROMPT_TEMPLATE", ""),

		ArchiveDatabaseURL: getEnv("ARCHIVE_DATABASE_URL", ""),
		SlackWebhookURL:    getEnv("SLACK_WEBHOOK_URL", ""),
	}
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports configuration problems that degrade features without preventing startup
func (c *Config) Validate() []string {
	var warnings []string

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			warnings = append(warnings, "OPENAI_API_KEY not set; procedure generation will not work")
		}
	case "anthropic", "claude":
		if c.AnthropicAPIKey == "" {
			warnings = append(warnings, "ANTHROPIC_API_KEY not set; procedure generation will not work")
		}
	case "gemini", "google":
		if c.GeminiAPIKey == "" {
			warnings = append(warnings, "GEMINI_API_KEY not set; procedure generation will not work")
		}
	case "ollama", "bedrock", "aws":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown LLM_PROVIDER %q; procedure generation will not work", c.LLMProvider))
	}

	if c.Port <= 0 || c.Port > 65535 {
		warnings = append(warnings, fmt.Sprintf("APP_PORT %d out of range", c.Port))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		warnings = append(warnings, fmt.Sprintf("LLM_TEMPERATURE %.2f outside 0-2", c.LLMTemperature))
	}
	if c.AdminAuthToken == "" {
		warnings = append(warnings, "ADMIN_AUTH_TOKEN not set; anyone can clear feedback")
	}

	return warnings
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvInt gets an int environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
