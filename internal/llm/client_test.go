package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIChatRequestShape(t *testing.T) {
	var captured openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewOpenAIBackendWithConfig(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o"})
	got, err := c.Chat(context.Background(), "sys", "hello", []Message{{Role: RoleUser, Content: "earlier"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hi there" {
		t.Errorf("got %q", got)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %+v, want 3", captured.Messages)
	}
	if captured.Messages[0].Role != RoleSystem || captured.Messages[0].Content != "sys" {
		t.Errorf("system turn = %+v", captured.Messages[0])
	}
	if captured.Messages[2].Content != "hello" {
		t.Errorf("final turn = %+v", captured.Messages[2])
	}
}

func TestOpenAIChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewOpenAIBackendWithConfig(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := c.Chat(context.Background(), "", "q", nil)
	if err == nil {
		t.Fatal("expected API error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestAnthropicChatSystemField(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("x-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"claude says"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewAnthropicBackendWithConfig(AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	history := []Message{
		{Role: RoleSystem, Content: "old system turn"},
		{Role: RoleUser, Content: "earlier"},
	}
	got, err := c.Chat(context.Background(), "persona", "now", history)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "claude says" {
		t.Errorf("got %q", got)
	}
	if captured.System != "persona" {
		t.Errorf("system field = %q", captured.System)
	}
	// System turns must not leak into the messages array.
	for _, m := range captured.Messages {
		if m.Role == RoleSystem {
			t.Errorf("system role in messages: %+v", captured.Messages)
		}
	}
	if len(captured.Messages) != 2 {
		t.Errorf("messages = %+v, want 2", captured.Messages)
	}
}

func TestHuggingFaceChatFlattensTranscript(t *testing.T) {
	var inputs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req huggingFaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		inputs = req.Inputs
		w.Write([]byte(`[{"generated_text":"  hf output  "}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewHuggingFaceBackendWithConfig(HuggingFaceConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	got, err := c.Chat(context.Background(), "sys", "q", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hf output" {
		t.Errorf("got %q, want trimmed output", got)
	}
	if !strings.HasPrefix(inputs, "[system]\nsys\n") {
		t.Errorf("inputs = %q", inputs)
	}
}

func TestGeminiChatRoleMapping(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gemini says"}]}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewGeminiBackendWithConfig(GeminiConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	history := []Message{
		{Role: RoleUser, Content: "earlier"},
		{Role: RoleAssistant, Content: "reply"},
	}
	got, err := c.Chat(context.Background(), "sys", "now", history)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "gemini says" {
		t.Errorf("got %q", got)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("systemInstruction = %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 3 {
		t.Fatalf("contents = %+v, want 3", captured.Contents)
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("assistant turn should map to model role: %+v", captured.Contents[1])
	}
}

func TestChatWithoutAPIKey(t *testing.T) {
	backends := []Backend{
		NewOpenAIBackend("", "m"),
		NewAnthropicBackend("", "m"),
		NewHuggingFaceBackend("", "m"),
		NewGeminiBackend("", "m"),
	}
	for _, b := range backends {
		if _, err := b.Chat(context.Background(), "", "q", nil); err == nil {
			t.Errorf("%s: expected error without API key", b.Provider())
		}
	}
}
