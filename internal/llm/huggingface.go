package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceConfig holds configuration for the Hugging Face client.
type HuggingFaceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultHuggingFaceConfig returns sensible defaults.
func DefaultHuggingFaceConfig(apiKey, model string) HuggingFaceConfig {
	return HuggingFaceConfig{
		APIKey:  apiKey,
		BaseURL: "https://api-inference.huggingface.co/models",
		Model:   model,
		Timeout: 120 * time.Second,
	}
}

// HuggingFaceBackend implements Backend for the HF inference API. The API
// takes a single flat prompt, so the transcript is flattened into the
// same bracketed-role format used for local models.
type HuggingFaceBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHuggingFaceBackend creates a Hugging Face backend with default config.
func NewHuggingFaceBackend(apiKey, model string) *HuggingFaceBackend {
	return NewHuggingFaceBackendWithConfig(DefaultHuggingFaceConfig(apiKey, model))
}

// NewHuggingFaceBackendWithConfig creates a Hugging Face backend with custom config.
func NewHuggingFaceBackendWithConfig(config HuggingFaceConfig) *HuggingFaceBackend {
	return &HuggingFaceBackend{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name.
func (c *HuggingFaceBackend) Model() string { return c.model }

// Provider identifies this backend.
func (c *HuggingFaceBackend) Provider() string { return "huggingface" }

type huggingFaceRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type huggingFaceResult struct {
	GeneratedText string `json:"generated_text"`
}

// Chat sends one exchange to the inference endpoint.
func (c *HuggingFaceBackend) Chat(ctx context.Context, system, user string, history []Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	reqBody := huggingFaceRequest{Inputs: buildTranscript(system, user, history)}
	reqBody.Parameters.MaxNewTokens = 2048
	reqBody.Parameters.Temperature = 0.7
	reqBody.Parameters.ReturnFullText = false

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	// 503 means the model is cold-loading on HF's side; the invoker's
	// retry loop handles it.
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Hugging Face API error (status %d): %s", resp.StatusCode, truncateBody(body))
	}

	var results []huggingFaceResult
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no generation returned")
	}
	return strings.TrimSpace(results[0].GeneratedText), nil
}
