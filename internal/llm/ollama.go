package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"algodraft/internal/logging"
)

// OllamaConfig holds configuration for the local ollama backend.
type OllamaConfig struct {
	Model   string
	Binary  string
	Timeout time.Duration
}

// DefaultOllamaConfig returns sensible defaults for a local model.
func DefaultOllamaConfig(model string) OllamaConfig {
	return OllamaConfig{
		Model:   model,
		Binary:  "ollama",
		Timeout: 300 * time.Second,
	}
}

// OllamaBackend runs prompts through the local ollama CLI. The transcript
// (system prompt, history, current message) is written to the subprocess
// on stdin as bracketed role blocks; stdout is the model response.
type OllamaBackend struct {
	model   string
	binary  string
	timeout time.Duration
}

// NewOllamaBackend creates an ollama backend with default config.
func NewOllamaBackend(model string) *OllamaBackend {
	return NewOllamaBackendWithConfig(DefaultOllamaConfig(model))
}

// NewOllamaBackendWithConfig creates an ollama backend with custom config.
func NewOllamaBackendWithConfig(config OllamaConfig) *OllamaBackend {
	return &OllamaBackend{
		model:   config.Model,
		binary:  config.Binary,
		timeout: config.Timeout,
	}
}

// Model returns the configured model name.
func (o *OllamaBackend) Model() string { return o.model }

// Provider identifies this backend as the local runner.
func (o *OllamaBackend) Provider() string { return "ollama" }

// ensuredModels records models already confirmed present locally, so the
// list/pull check runs once per model per process. Config reloads that
// swap models trigger a fresh check for the new name.
var ensuredModels sync.Map

// Chat runs one exchange through `ollama run <model>`. The model is
// confirmed present (pulling it if needed) before the first use.
func (o *OllamaBackend) Chat(ctx context.Context, system, user string, history []Message) (string, error) {
	if _, ok := ensuredModels.Load(o.model); !ok {
		if err := o.EnsureModel(ctx); err != nil {
			return "", err
		}
	}

	prompt := buildTranscript(system, user, history)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.binary, "run", o.model)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.AgentDebug("Running %s run %s (%d prompt chars)", o.binary, o.model, len(prompt))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("ollama run timed out after %s (model %s)", o.timeout, o.model)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("ollama run failed: %w: %s", err, detail)
		}
		return "", fmt.Errorf("ollama run failed: %w", err)
	}

	response := strings.TrimSpace(stdout.String())
	logging.AgentDebug("ollama responded in %s (%d chars)", elapsed.Round(time.Millisecond), len(response))
	return response, nil
}

// buildTranscript flattens the exchange into bracketed role blocks for
// models driven over plain stdin.
func buildTranscript(system, user string, history []Message) string {
	var b strings.Builder
	if system != "" {
		b.WriteString("[system]\n")
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range history {
		b.WriteString("[" + m.Role + "]\n")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("[user]\n")
	b.WriteString(user)
	b.WriteString("\n")
	return b.String()
}

// EnsureModel checks that the model is present locally and pulls it if
// missing. Safe to call at startup; a pull can take minutes on first run.
func (o *OllamaBackend) EnsureModel(ctx context.Context) error {
	listCmd := exec.CommandContext(ctx, o.binary, "list")
	out, err := listCmd.Output()
	if err != nil {
		return fmt.Errorf("ollama not available (is it installed and running?): %w", err)
	}
	// Model names in `ollama list` may carry a tag suffix.
	base := strings.SplitN(o.model, ":", 2)[0]
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && (fields[0] == o.model || strings.HasPrefix(fields[0], base+":")) {
			ensuredModels.Store(o.model, true)
			return nil
		}
	}

	logging.Agent("Model %s not found locally, pulling...", o.model)
	pullCmd := exec.CommandContext(ctx, o.binary, "pull", o.model)
	var stderr bytes.Buffer
	pullCmd.Stderr = &stderr
	if err := pullCmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ollama pull %s failed: %w: %s", o.model, err, detail)
		}
		return fmt.Errorf("ollama pull %s failed: %w", o.model, err)
	}
	logging.Agent("Model %s pulled", o.model)
	ensuredModels.Store(o.model, true)
	return nil
}
