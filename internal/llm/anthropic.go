package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey, model string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   model,
		Timeout: 120 * time.Second,
	}
}

// AnthropicBackend implements Backend for the Anthropic messages API.
// Unlike OpenAI, the system prompt travels in a dedicated top-level field
// and only user/assistant turns go in the messages array.
type AnthropicBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewAnthropicBackend creates an Anthropic backend with default config.
func NewAnthropicBackend(apiKey, model string) *AnthropicBackend {
	return NewAnthropicBackendWithConfig(DefaultAnthropicConfig(apiKey, model))
}

// NewAnthropicBackendWithConfig creates an Anthropic backend with custom config.
func NewAnthropicBackendWithConfig(config AnthropicConfig) *AnthropicBackend {
	return &AnthropicBackend{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name.
func (c *AnthropicBackend) Model() string { return c.model }

// Provider identifies this backend.
func (c *AnthropicBackend) Provider() string { return "anthropic" }

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends one exchange to the messages endpoint.
func (c *AnthropicBackend) Chat(ctx context.Context, system, user string, history []Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	messages := make([]Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, Message{Role: RoleUser, Content: user})

	reqBody := anthropicRequest{
		Model:     c.model,
		System:    system,
		Messages:  messages,
		MaxTokens: 4096,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic API error (status %d): %s", resp.StatusCode, truncateBody(body))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("Anthropic API error: %s", apiResp.Error.Message)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
