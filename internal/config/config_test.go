package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "LLM_PROVIDER", "FEEDBACK_CSV", "OPENAI_MAX_TOKENS", "LLM_MAX_TOKENS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "feedback.csv", cfg.FeedbackCSV)
	assert.Equal(t, 800, cfg.LLMMaxTokens)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_MAX_TOKENS", "")
	t.Setenv("OPENAI_MAX_TOKENS", "1200")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("FEEDBACK_CSV", "/data/feedback.csv")

	cfg := LoadConfig()
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, 1200, cfg.LLMMaxTokens)
	assert.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "/data/feedback.csv", cfg.FeedbackCSV)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("LLM_TEMPERATURE", "warm")
	t.Setenv("OPENAI_TEMPERATURE", "")

	cfg := LoadConfig()
	assert.Equal(t, 8000, cfg.Port)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
}

func TestValidate(t *testing.T) {
	cfg := &Config{LLMProvider: "openai", Port: 8000, LLMTemperature: 0.7, AdminAuthToken: "x"}
	warnings := cfg.Validate()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "OPENAI_API_KEY")

	cfg.OpenAIAPIKey = "sk-test"
	assert.Empty(t, cfg.Validate())

	cfg.LLMProvider = "mystery"
	assert.NotEmpty(t, cfg.Validate())

	cfg = &Config{LLMProvider: "ollama", Port: 0, LLMTemperature: 3}
	assert.Len(t, cfg.Validate(), 3)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ATTACKREF_DOTENV_PROBE=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ATTACKREF_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("ATTACKREF_DOTENV_PROBE"))
}
