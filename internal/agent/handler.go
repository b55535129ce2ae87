package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"algodraft/internal/config"
	"algodraft/internal/conversation"
	"algodraft/internal/input"
	"algodraft/internal/llm"
	"algodraft/internal/logging"
	"algodraft/internal/prompt"
)

// Retriever finds paper chunks relevant to a query. The vector store
// satisfies this through a thin adapter in the server.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]ScoredDocument, error)
}

// Options carry per-request overrides of the workspace config, plus the
// session to converse in. Zero values mean "use the configured default".
type Options struct {
	Mode          string
	CloudProvider string
	Model         string
	SessionID     string
	MaxResults    int

	// Context, when set, is used verbatim by Analyze instead of retrieval.
	Context string
	// Language is the target language for GenerateCode.
	Language string
}

// How much of each retrieved chunk is quoted into conversational prompts.
const contextSnippetLimit = 500

// How many prior exchange pairs single-shot flows (query, generate) see.
const singleShotHistoryTurns = 3

// Handler orchestrates the four interaction flows. Every public method
// returns a *Response, never an error: failures become error responses so
// nothing propagates to the transport layer as a panic or a bare 500.
type Handler struct {
	cfgMu     sync.RWMutex
	cfg       config.Config
	templates *prompt.Registry
	sessions  *conversation.Store
	retriever Retriever

	resolve     func(config.Config) (llm.Backend, error)
	resolveCode func(config.Config) (llm.Backend, error)
	invoker     *llm.Invoker
}

// NewHandler builds a handler over the given collaborators. retriever may
// be nil when no corpus has been ingested; query then reports the missing
// corpus and the other flows proceed without context.
func NewHandler(cfg config.Config, templates *prompt.Registry, sessions *conversation.Store, retriever Retriever) *Handler {
	return &Handler{
		cfg:         cfg,
		templates:   templates,
		sessions:    sessions,
		retriever:   retriever,
		resolve:     llm.ResolveBackend,
		resolveCode: llm.ResolveCodeBackend,
		invoker:     llm.NewInvoker(),
	}
}

// SetResolver replaces the backend factories, for tests.
func (h *Handler) SetResolver(resolve, resolveCode func(config.Config) (llm.Backend, error)) {
	h.resolve = resolve
	if resolveCode != nil {
		h.resolveCode = resolveCode
	} else {
		h.resolveCode = resolve
	}
}

// SetInvoker replaces the retry policy, for tests.
func (h *Handler) SetInvoker(inv *llm.Invoker) {
	h.invoker = inv
}

// SetConfig swaps the config snapshot used for subsequent requests.
// Safe to call while requests are in flight: each request reads the
// snapshot once and keeps it for the rest of the call.
func (h *Handler) SetConfig(cfg config.Config) {
	h.cfgMu.Lock()
	h.cfg = cfg
	h.cfgMu.Unlock()
}

// Config returns the current config snapshot.
func (h *Handler) Config() config.Config {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.cfg
}

// Query answers a research question grounded in retrieved paper context.
// Retrieval failure is fatal for this flow: an answer not grounded in the
// corpus would defeat its purpose.
func (h *Handler) Query(ctx context.Context, question string, opts Options) *Response {
	cleaned, err := input.ValidatePrompt(question, 0)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	input.CheckInjection(cleaned)

	docs, err := h.retrieveContext(ctx, cleaned, opts.MaxResults)
	if err != nil {
		logging.AgentError("Query retrieval failed: %v", err)
		return ErrorResponse(fmt.Sprintf("Failed to retrieve context: %v", err))
	}

	system, err := h.templates.Get("research_assistant", map[string]string{
		"context": formatContext(docs, 0),
	})
	if err != nil {
		return ErrorResponse(err.Error())
	}

	history := h.history(opts.SessionID, singleShotHistoryTurns)
	resp := h.complete(ctx, h.resolve, system, cleaned, history, opts)
	h.record(opts.SessionID, cleaned, resp)
	return resp
}

// Analyze reviews submitted code. Related corpus context is attached when
// retrieval succeeds but is never required.
func (h *Handler) Analyze(ctx context.Context, code string, opts Options) *Response {
	cleaned, err := input.ValidateCode(code)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	input.CheckInjection(cleaned)

	system, err := h.templates.Get("code_reviewer", nil)
	if err != nil {
		return ErrorResponse(err.Error())
	}

	user := cleaned
	if opts.Context != "" {
		user = "Related research context:\n" + opts.Context + "\n\nCode to review:\n" + cleaned
	} else if docs, err := h.retrieveContext(ctx, snippet(cleaned, contextSnippetLimit), opts.MaxResults); err == nil && len(docs) > 0 {
		user = "Related research context:\n" + formatContext(docs, contextSnippetLimit) +
			"\n\nCode to review:\n" + cleaned
	} else if err != nil {
		logging.AgentWarn("Analyze proceeding without context: %v", err)
	}

	resp := h.complete(ctx, h.resolve, system, user, nil, opts)
	return resp
}

// Chat holds a multi-turn conversation. When no session ID is supplied a
// session is created and its ID returned alongside the response.
func (h *Handler) Chat(ctx context.Context, message string, opts Options) (*Response, string) {
	cleaned, err := input.ValidatePrompt(message, 0)
	if err != nil {
		return ErrorResponse(err.Error()), opts.SessionID
	}
	input.CheckInjection(cleaned)

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = h.sessions.CreateSession("")
	}

	contextText := "No additional context."
	if docs, err := h.retrieveContext(ctx, cleaned, opts.MaxResults); err == nil && len(docs) > 0 {
		contextText = "Relevant research context:\n" + formatContext(docs, contextSnippetLimit)
	} else if err != nil {
		logging.AgentWarn("Chat proceeding without context: %v", err)
	}

	system, err := h.templates.Get("chat", map[string]string{"context": contextText})
	if err != nil {
		return ErrorResponse(err.Error()), sessionID
	}

	history := h.history(sessionID, 0)
	resp := h.complete(ctx, h.resolve, system, cleaned, history, opts)
	h.record(sessionID, cleaned, resp)
	return resp, sessionID
}

// GenerateCode produces code for a description, preferring the dedicated
// code model in local mode. Corpus context degrades gracefully.
func (h *Handler) GenerateCode(ctx context.Context, description string, opts Options) *Response {
	cleaned, err := input.ValidatePrompt(description, 0)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	input.CheckInjection(cleaned)

	contextText := ""
	if docs, err := h.retrieveContext(ctx, cleaned, opts.MaxResults); err == nil && len(docs) > 0 {
		contextText = formatContext(docs, contextSnippetLimit)
	} else if err != nil {
		logging.AgentWarn("GenerateCode proceeding without context: %v", err)
	}

	system, err := h.templates.Get("code_generator", map[string]string{"context": contextText})
	if err != nil {
		return ErrorResponse(err.Error())
	}

	user := cleaned
	if opts.Language != "" {
		user = fmt.Sprintf("Target language: %s\n\n%s", opts.Language, cleaned)
	}

	history := h.history(opts.SessionID, singleShotHistoryTurns)
	resp := h.complete(ctx, h.resolveCode, system, user, history, opts)
	h.record(opts.SessionID, cleaned, resp)
	return resp
}

// complete resolves a backend, invokes the model with retry, and parses
// the raw response. All failures collapse into an error response.
func (h *Handler) complete(ctx context.Context, resolve func(config.Config) (llm.Backend, error), system, user string, history []llm.Message, opts Options) *Response {
	cfg := h.effectiveConfig(opts)
	backend, err := resolve(cfg)
	if err != nil {
		logging.AgentError("Backend resolution failed: %v", err)
		return ErrorResponse(err.Error())
	}

	raw, err := h.invoker.Invoke(ctx, backend, system, user, history)
	if err != nil {
		logging.AgentError("Model invocation failed: %v", err)
		return ErrorResponse(fmt.Sprintf("AI model error: %v", err))
	}

	resp := Parse(raw)
	if resp.Error == "" {
		resp.ModelUsed = backend.Model()
		resp.ProviderUsed = backend.Provider()
	}
	return resp
}

// effectiveConfig applies per-request overrides to the config snapshot.
func (h *Handler) effectiveConfig(opts Options) config.Config {
	cfg := h.Config()
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if opts.CloudProvider != "" {
		cfg.CloudProvider = opts.CloudProvider
		if opts.Model == "" {
			// A provider switch invalidates the configured model.
			cfg.CloudModel = ""
		}
	}
	if opts.Model != "" {
		if cfg.Mode == config.ModeLocal {
			cfg.LocalModel = opts.Model
			cfg.LocalCodeModel = opts.Model
		} else {
			cfg.CloudModel = opts.Model
		}
	}
	return cfg
}

// retrieveContext queries the retriever, treating a nil retriever as an
// empty corpus.
func (h *Handler) retrieveContext(ctx context.Context, query string, limit int) ([]ScoredDocument, error) {
	if h.retriever == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	return h.retriever.Retrieve(ctx, query, limit)
}

// history converts stored session entries into backend messages.
func (h *Handler) history(sessionID string, maxTurns int) []llm.Message {
	if sessionID == "" {
		return nil
	}
	entries := h.sessions.History(sessionID, maxTurns)
	messages := make([]llm.Message, len(entries))
	for i, e := range entries {
		messages[i] = llm.Message{Role: e.Role, Content: e.Content}
	}
	return messages
}

// record appends a successful exchange to the session.
func (h *Handler) record(sessionID, userMessage string, resp *Response) {
	if sessionID == "" || resp.Error != "" {
		return
	}
	h.sessions.AddMessage(sessionID, llm.RoleUser, userMessage)
	h.sessions.AddMessage(sessionID, llm.RoleAssistant, resp.Raw)
}

// formatContext renders retrieved documents as a numbered context block.
// truncate > 0 caps each chunk at that many characters.
func formatContext(docs []ScoredDocument, truncate int) string {
	if len(docs) == 0 {
		return "No relevant context found."
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		source := doc.Metadata["source"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (%s) %s", i+1, source, snippet(doc.Content, truncate))
	}
	return b.String()
}

// snippet caps s at limit characters when limit > 0.
func snippet(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// SessionHistory exposes a session's full retained messages.
func (h *Handler) SessionHistory(sessionID string) []conversation.Message {
	return h.sessions.Messages(sessionID)
}

// ClearSession removes a session, reporting whether it existed.
func (h *Handler) ClearSession(sessionID string) bool {
	return h.sessions.ClearSession(sessionID)
}

// ListSessions lists live session metadata.
func (h *Handler) ListSessions() []conversation.SessionInfo {
	return h.sessions.ListSessions()
}

// CleanupSessions expires idle sessions, returning how many were removed.
func (h *Handler) CleanupSessions() int {
	return h.sessions.CleanupExpired()
}
