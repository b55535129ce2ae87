// Package config holds AlgoDraft configuration from .algodraft/config.json.
// This is the single source of truth for runtime settings: model mode
// (local vs cloud), model identifiers, embedding engine, and logging.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"algodraft/internal/logging"
)

// Modes for model selection.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// APIKeyEnvVar is the environment fallback for the cloud credential.
const APIKeyEnvVar = "ALGODRAFT_API_KEY"

// CloudProviders maps supported provider names to their default models.
var CloudProviders = map[string]string{
	"openai":      "gpt-4o",
	"anthropic":   "claude-3-sonnet-20240229",
	"huggingface": "meta-llama/Llama-2-70b-chat-hf",
	"gemini":      "gemini-2.5-flash",
}

// Config holds the persisted AlgoDraft settings.
type Config struct {
	// Mode selects the backend family: "local" (ollama) or "cloud".
	Mode string `json:"mode"`

	// Local (ollama) model identifiers.
	LocalModel     string `json:"local_model"`
	LocalCodeModel string `json:"local_code_model"`

	// Cloud provider settings.
	CloudProvider string `json:"cloud_provider"`
	CloudModel    string `json:"cloud_model"`
	APIKey        string `json:"api_key"`

	// Embedding engine configuration for the vector store.
	Embedding *EmbeddingConfig `json:"embedding,omitempty"`

	// Logging configuration (consumed by the logging package).
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// EmbeddingConfig selects and configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `json:"provider"`

	OllamaEndpoint string `json:"ollama_endpoint,omitempty"` // Default: "http://localhost:11434"
	OllamaModel    string `json:"ollama_model,omitempty"`    // Default: "nomic-embed-text"

	GenAIAPIKey string `json:"genai_api_key,omitempty"`
	GenAIModel  string `json:"genai_model,omitempty"` // Default: "gemini-embedding-001"
}

// LoggingConfig mirrors the shape read by the logging package.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// Default returns the default configuration written on first run.
func Default() Config {
	return Config{
		Mode:           ModeLocal,
		LocalModel:     "mistral",
		LocalCodeModel: "deepseek-coder:6.7b",
		CloudProvider:  "openai",
		CloudModel:     "gpt-4o",
		APIKey:         "",
	}
}

// fileMu serializes config file access across goroutines.
var fileMu sync.Mutex

// DefaultPath returns the default path to .algodraft/config.json,
// anchored at the workspace root (the directory holding .algodraft or go.mod).
func DefaultPath() string {
	root, err := findWorkspaceRoot()
	if err != nil {
		return filepath.Join(".algodraft", "config.json")
	}
	return filepath.Join(root, ".algodraft", "config.json")
}

func findWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".algodraft")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// Load reads configuration from path. A missing file is created with
// defaults; a corrupt file is restored from defaults. Missing keys are
// backfilled so older config files keep working.
func Load(path string) (Config, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if werr := saveLocked(path, cfg); werr != nil {
				return cfg, fmt.Errorf("failed to write default config: %w", werr)
			}
			return cfg, nil
		}
		return Default(), fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		logging.Get(logging.CategoryConfig).Error("Config file corrupted: %v. Restoring from defaults.", err)
		cfg = Default()
		if werr := saveLocked(path, cfg); werr != nil {
			return cfg, fmt.Errorf("failed to restore default config: %w", werr)
		}
		return cfg, nil
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero-valued required keys.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.LocalModel == "" {
		c.LocalModel = def.LocalModel
	}
	if c.LocalCodeModel == "" {
		c.LocalCodeModel = def.LocalCodeModel
	}
	if c.CloudProvider == "" {
		c.CloudProvider = def.CloudProvider
	}
	if c.CloudModel == "" {
		c.CloudModel = def.CloudModel
	}
}

// Save writes the configuration atomically: marshal to a temp file in the
// same directory, then rename over the target.
func Save(path string, cfg Config) error {
	fileMu.Lock()
	defer fileMu.Unlock()
	return saveLocked(path, cfg)
}

func saveLocked(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}

	logging.Get(logging.CategoryConfig).Debug("Config saved to %s", path)
	return nil
}

// Validate checks mode and provider values before a config update is applied.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeCloud:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeCloud, c.Mode)
	}

	if c.CloudProvider != "" {
		if _, ok := CloudProviders[strings.ToLower(c.CloudProvider)]; !ok {
			return fmt.Errorf("unsupported cloud provider: %s. Supported: %s",
				c.CloudProvider, strings.Join(ProviderNames(), ", "))
		}
	}
	return nil
}

// ResolveAPIKey returns the configured credential, falling back to the
// ALGODRAFT_API_KEY environment variable.
func (c Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(APIKeyEnvVar)
}

// Redacted returns a copy safe for API responses: the api_key is masked.
func (c Config) Redacted() Config {
	out := c
	if out.APIKey != "" {
		out.APIKey = "***hidden***"
	}
	if out.Embedding != nil && out.Embedding.GenAIAPIKey != "" {
		emb := *out.Embedding
		emb.GenAIAPIKey = "***hidden***"
		out.Embedding = &emb
	}
	return out
}

// ProviderNames returns the supported cloud provider names, sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(CloudProviders))
	for name := range CloudProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
