package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://localhost:1234/v1", cfg.BaseURL)
	assert.Equal(t, "not-needed", cfg.APIKey)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxToolIterations)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)

	// Model has no default.
	assert.Error(t, cfg.Validate())
	cfg.Model = "qwen"
	assert.NoError(t, cfg.Validate())
}

func TestProviderPresets(t *testing.T) {
	tests := []struct {
		input string
		want  Provider
		url   string
	}{
		{"lmstudio", ProviderLMStudio, "http://localhost:1234/v1"},
		{"LM-Studio", ProviderLMStudio, "http://localhost:1234/v1"},
		{"ollama", ProviderOllama, "http://localhost:11434/v1"},
		{"llamacpp", ProviderLlamaCpp, "http://localhost:8080/v1"},
		{"llama.cpp", ProviderLlamaCpp, "http://localhost:8080/v1"},
		{"vllm", ProviderVLLM, "http://localhost:8000/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParseProvider(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.url, p.BaseURL())
		})
	}

	_, err := ParseProvider("unknown")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Model = "m"
		return cfg
	}
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"whitespace model", func(c *Config) { c.Model = "  " }, "model is required"},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://host" }, "must start with http"},
		{"temperature high", func(c *Config) { c.Temperature = 2.5 }, "temperature"},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, "max_tokens"},
		{"zero iterations", func(c *Config) { c.MaxToolIterations = 0 }, "max_tool_iterations"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("all errors reported", func(t *testing.T) {
		cfg := valid()
		cfg.Model = ""
		cfg.MaxTokens = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model")
		assert.Contains(t, err.Error(), "max_tokens")
	})
}

func TestLoadFromReader(t *testing.T) {
	yml := `
model: qwen2.5-32b
provider: ollama
system_prompt: You are terse.
temperature: 0.2
timeout: 90s
retry:
  max_attempts: 5
  initial_delay: 250ms
log:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "qwen2.5-32b", cfg.Model)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, "not-needed", cfg.APIKey)
}

func TestLoadFromReader_ExplicitBaseURLWins(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("provider: vllm\nbase_url: http://gpu-box:9000/v1\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:9000/v1", cfg.BaseURL)
}

func TestLoadFromReader_Errors(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("modle: typo\n"))
	assert.Error(t, err)

	_, err = LoadFromReader(strings.NewReader("provider: openrouter\n"))
	assert.Error(t, err)

	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: m\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "m", cfg.Model)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvProvider: "llamacpp",
		EnvModel:    "mistral",
		EnvAPIKey:   "sk-local",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, ProviderLlamaCpp, cfg.Provider)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, "sk-local", cfg.APIKey)

	env[EnvBaseURL] = "http://custom-server:8080/v1"
	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "http://custom-server:8080/v1", cfg.BaseURL)

	env[EnvProvider] = "bogus"
	cfg = Default()
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvModel, "env-model")
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvBaseURL, "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, "http://localhost:1234/v1", cfg.BaseURL)
}

func TestSessionConversion(t *testing.T) {
	cfg := Default()
	cfg.Model = "m"
	cfg.SystemPrompt = "sys"
	cfg.Temperature = 0.3

	sc := cfg.Session()
	assert.Equal(t, "m", sc.Model)
	assert.Equal(t, "sys", sc.SystemPrompt)
	require.NotNil(t, sc.Temperature)
	assert.Equal(t, 0.3, *sc.Temperature)
	assert.True(t, sc.AutoExecute)
	assert.Equal(t, 5, sc.MaxToolIterations)

	r := cfg.RetryPolicy()
	assert.Equal(t, 3, r.MaxAttempts)
	assert.Equal(t, time.Second, r.InitialDelay)

	assert.Len(t, cfg.SessionOptions(), 2)
	assert.NotNil(t, cfg.Transport())
}
