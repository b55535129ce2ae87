// Package llm abstracts the AI model backends: a local ollama subprocess
// and raw-HTTP cloud provider clients. Callers pick a backend through
// ResolveBackend and drive it through an Invoker, which adds retry with
// exponential backoff.
package llm

import (
	"context"
	"fmt"

	"algodraft/internal/config"
)

// Message roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn passed to a backend as history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend sends one chat exchange to a model and returns the raw text
// response. history is prior turns, oldest first; system and user are the
// current system prompt and user message.
type Backend interface {
	Chat(ctx context.Context, system, user string, history []Message) (string, error)
	Model() string
	Provider() string
}

// ResolveBackend constructs the backend described by cfg. In cloud mode
// the API key must resolve (config file or environment) and the provider
// must be known; both failures surface immediately with a descriptive
// error rather than on first use.
func ResolveBackend(cfg config.Config) (Backend, error) {
	switch cfg.Mode {
	case config.ModeLocal:
		return NewOllamaBackend(cfg.LocalModel), nil
	case config.ModeCloud:
		return resolveCloud(cfg)
	default:
		return nil, fmt.Errorf("unknown mode %q (must be %q or %q)",
			cfg.Mode, config.ModeLocal, config.ModeCloud)
	}
}

// ResolveCodeBackend is ResolveBackend but prefers the dedicated local
// code model when running in local mode.
func ResolveCodeBackend(cfg config.Config) (Backend, error) {
	if cfg.Mode == config.ModeLocal {
		model := cfg.LocalCodeModel
		if model == "" {
			model = cfg.LocalModel
		}
		return NewOllamaBackend(model), nil
	}
	return ResolveBackend(cfg)
}

func resolveCloud(cfg config.Config) (Backend, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for cloud mode: set api_key in config or the %s environment variable",
			config.APIKeyEnvVar)
	}
	model := cfg.CloudModel
	if model == "" {
		model = config.CloudProviders[cfg.CloudProvider]
	}
	switch cfg.CloudProvider {
	case "openai":
		return NewOpenAIBackend(apiKey, model), nil
	case "anthropic":
		return NewAnthropicBackend(apiKey, model), nil
	case "huggingface":
		return NewHuggingFaceBackend(apiKey, model), nil
	case "gemini":
		return NewGeminiBackend(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown cloud provider %q (supported: %v)",
			cfg.CloudProvider, config.ProviderNames())
	}
}
