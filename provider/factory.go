// Package provider implements the streaming adapters that normalize
// each LLM backend's wire protocol into the model.StreamEvent shape.
//
// Three backends are supported:
//   - Anthropic (message-events SSE: content_block_start/delta, message_stop)
//   - OpenAI and OpenAI-compatible endpoints (chat-completions SSE keyed
//     on choices[0].delta)
//   - Ollama (local inference server; no credential required)
//
// Every adapter produces the same ordered event sequence: content
// deltas, tool-call deltas, done. The sequence is finite and not
// restartable; retrying means issuing a new Stream call. Tool-call
// fragments are passed through raw; reassembly is the accumulator's
// job, not the adapter's.
package provider

import (
	"fmt"

	"pfagent/config"
	"pfagent/model"
)

// ProviderType identifies the backend implementation.
type ProviderType string

const (
	ProviderTypeOllama    ProviderType = "ollama"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
)

// Config holds backend-specific connection settings.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}

// New creates a provider from connection settings. Backends that
// require a credential fail here, before any network call is made.
func New(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// FromSettings builds a provider from application settings, resolving
// the credential through the config layer.
func FromSettings(cfg *config.Config) (model.Provider, error) {
	return New(Config{
		Type:    ProviderType(cfg.Provider),
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.Credential(),
	})
}
