package config

import (
	"fmt"
	"strings"
)

// Provider names a local OpenAI-compatible server.
type Provider string

const (
	ProviderLMStudio Provider = "lmstudio"
	ProviderOllama   Provider = "ollama"
	ProviderLlamaCpp Provider = "llamacpp"
	ProviderVLLM     Provider = "vllm"
)

// Providers lists the known presets.
var Providers = []Provider{ProviderLMStudio, ProviderOllama, ProviderLlamaCpp, ProviderVLLM}

// BaseURL returns the provider's default endpoint.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderLMStudio:
		return "http://localhost:1234/v1"
	case ProviderOllama:
		return "http://localhost:11434/v1"
	case ProviderLlamaCpp:
		return "http://localhost:8080/v1"
	case ProviderVLLM:
		return "http://localhost:8000/v1"
	default:
		return ""
	}
}

// ParseProvider accepts the common spellings of each provider, ignoring case.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lmstudio", "lm-studio", "lm_studio":
		return ProviderLMStudio, nil
	case "ollama":
		return ProviderOllama, nil
	case "llamacpp", "llama-cpp", "llama_cpp", "llama.cpp":
		return ProviderLlamaCpp, nil
	case "vllm":
		return ProviderVLLM, nil
	default:
		return "", fmt.Errorf("config: unknown provider %q (must be lmstudio, ollama, llamacpp or vllm)", s)
	}
}
