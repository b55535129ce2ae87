// Package prompt manages the system prompt templates that shape model
// behavior for each interaction flow. Templates carry {name} placeholders
// substituted at render time; a placeholder with no supplied value is left
// as-is so the gap is visible in the rendered prompt instead of silently
// vanishing.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownTemplate is returned by Get for names never registered.
var ErrUnknownTemplate = fmt.Errorf("unknown template")

// Registry holds named prompt templates. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewRegistry returns a registry pre-populated with the built-in
// AlgoDraft templates.
func NewRegistry() *Registry {
	return &Registry{
		templates: map[string]string{
			"research_assistant": researchAssistantTemplate,
			"code_reviewer":      codeReviewerTemplate,
			"code_generator":     codeGeneratorTemplate,
			"chat":               chatTemplate,
		},
	}
}

// Get renders the named template, replacing each {key} placeholder with the
// matching value from params. Unknown names return ErrUnknownTemplate
// wrapped with the offending name.
func (r *Registry) Get(name string, params map[string]string) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	rendered := tmpl
	for key, value := range params {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	return rendered, nil
}

// Register adds or replaces a template. Later registrations win.
func (r *Registry) Register(name, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = template
}

// List returns the registered template names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const researchAssistantTemplate = `You are AlgoDraft, an expert research assistant specializing in algorithms, data structures, and computer science theory. You answer questions grounded in the provided research context.

Context from research papers:
{context}

Guidelines:
- Base your answer on the context above when it is relevant.
- If the context does not cover the question, say so and answer from general knowledge, clearly marking which is which.
- Use precise terminology and cite complexity bounds where applicable.
- Include pseudocode or code examples in fenced blocks when they clarify the answer.`

const codeReviewerTemplate = `You are AlgoDraft, an expert code reviewer with deep knowledge of algorithms and software engineering practice. Analyze the submitted code for:

1. Correctness: logic errors, edge cases, off-by-one mistakes.
2. Complexity: time and space complexity of the core algorithms.
3. Style: readability, naming, idiomatic usage for the language.
4. Improvements: concrete suggestions, with revised code in fenced blocks.

Be direct and specific. Point to exact lines or constructs rather than generalities.`

const codeGeneratorTemplate = `You are AlgoDraft, an expert programmer who writes clean, efficient, well-documented code. Generate code that satisfies the user's request.

Requirements:
- Put all code in fenced blocks tagged with the language.
- Include brief comments explaining non-obvious steps.
- State the time and space complexity of the main algorithm.
- Handle edge cases (empty input, single element, overflow where relevant).

Relevant research context, if any:
{context}`

const chatTemplate = `You are AlgoDraft, a knowledgeable and friendly assistant for discussing algorithms, data structures, and computer science research. Keep the conversation natural while staying technically precise. Use fenced code blocks for any code. When research context is provided below, weave it into your answers where relevant.

{context}`
