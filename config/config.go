// Package config loads client settings from YAML files and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, the provider
// preset named by OPENAGENT_PROVIDER or the file, then explicit environment
// overrides. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/option"
	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/openagent/retry"
	"github.com/spetersoncode/openagent/session"
)

// Environment variables read by FromEnv and ApplyEnv.
const (
	EnvBaseURL  = "OPENAGENT_BASE_URL"
	EnvModel    = "OPENAGENT_MODEL"
	EnvAPIKey   = "OPENAGENT_API_KEY"
	EnvProvider = "OPENAGENT_PROVIDER"
)

// Defaults applied by Default.
const (
	DefaultTimeout           = 60 * time.Second
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 4096
	DefaultMaxToolIterations = 5
	DefaultAPIKey            = "not-needed"
	DefaultConcurrency       = 4
)

// Config holds everything needed to build sessions.
type Config struct {
	Provider          Provider      `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	SystemPrompt      string        `yaml:"system_prompt"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	AutoExecute       bool          `yaml:"auto_execute"`
	MaxToolIterations int           `yaml:"max_tool_iterations"`
	Concurrency       int           `yaml:"concurrency"`
	Retry             RetryConfig   `yaml:"retry"`
	Log               LogConfig     `yaml:"log"`
}

// RetryConfig mirrors retry.Config for files.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration. Model is left empty; it has
// no sensible default.
func Default() Config {
	r := retry.DefaultConfig()
	return Config{
		Provider:          ProviderLMStudio,
		BaseURL:           ProviderLMStudio.BaseURL(),
		APIKey:            DefaultAPIKey,
		Temperature:       DefaultTemperature,
		MaxTokens:         DefaultMaxTokens,
		Timeout:           DefaultTimeout,
		AutoExecute:       true,
		MaxToolIterations: DefaultMaxToolIterations,
		Concurrency:       DefaultConcurrency,
		Retry: RetryConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: r.InitialDelay,
			MaxDelay:     r.MaxDelay,
			Multiplier:   r.Multiplier,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults. Unknown keys are
// rejected. The result is not validated, so callers can still overlay the
// environment and flags.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if cfg.Provider != "" {
		p, err := ParseProvider(string(cfg.Provider))
		if err != nil {
			return Config{}, err
		}
		// A provider without an explicit base_url uses its preset.
		if cfg.BaseURL == Default().BaseURL {
			cfg.BaseURL = p.BaseURL()
		}
		cfg.Provider = p
	}
	return cfg, nil
}

// FromEnv returns the defaults overlaid with the process environment.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays variables found through lookup. A provider selects its
// preset base URL; an explicit base URL wins over the preset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvProvider); ok && v != "" {
		if err := c.UseProvider(v); err != nil {
			return err
		}
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.APIKey = v
	}
	return nil
}

// UseProvider switches to the named provider and its default base URL.
func (c *Config) UseProvider(name string) error {
	p, err := ParseProvider(name)
	if err != nil {
		return err
	}
	c.Provider = p
	c.BaseURL = p.BaseURL()
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f is out of range [0, 2]", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.MaxToolIterations < 1 {
		errs = append(errs, fmt.Errorf("max_tool_iterations must be at least 1, got %d", c.MaxToolIterations))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url %q must start with http:// or https://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url %q has no host", raw)
	}
	return nil
}

// Session converts the configuration into session settings.
func (c Config) Session() session.Config {
	temperature := c.Temperature
	return session.Config{
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		SystemPrompt:      c.SystemPrompt,
		Temperature:       &temperature,
		MaxTokens:         c.MaxTokens,
		AutoExecute:       c.AutoExecute,
		MaxToolIterations: c.MaxToolIterations,
	}
}

// RetryPolicy converts the retry section.
func (c Config) RetryPolicy() retry.Config {
	r := retry.DefaultConfig()
	r.MaxAttempts = c.Retry.MaxAttempts
	r.InitialDelay = c.Retry.InitialDelay
	r.MaxDelay = c.Retry.MaxDelay
	r.Multiplier = c.Retry.Multiplier
	return r
}

// Transport builds the OpenAI-compatible transport. Timeout bounds the wait
// for response headers only, so long streams are not cut off.
func (c Config) Transport() *session.OpenAITransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = c.Timeout
	client := &http.Client{Transport: base}
	return session.NewOpenAITransport(c.BaseURL, c.APIKey, option.WithHTTPClient(client))
}

// SessionOptions returns the options implied by the configuration.
func (c Config) SessionOptions() []session.Option {
	return []session.Option{
		session.WithTransport(c.Transport()),
		session.WithRetry(c.RetryPolicy()),
	}
}
