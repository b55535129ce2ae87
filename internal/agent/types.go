// Package agent implements the AlgoDraft response pipeline: parsing raw
// model output into structured sections and orchestrating the query,
// analysis, chat, and code-generation flows.
package agent

// Section kinds.
const (
	SectionText  = "text"
	SectionCode  = "code"
	SectionError = "error"
)

// CodeBlock is a single extracted code block from an AI response.
type CodeBlock struct {
	Language string `json:"language"`
	Content  string `json:"content"`
	Label    string `json:"label"`
}

// Section is one part of a parsed AI response: text, code, or error.
type Section struct {
	Kind     string `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language"` // Only set for code sections
}

// Response is the structured result of one agent flow.
//
// Invariants: HasCode is true exactly when CodeBlocks is non-empty, and a
// non-empty Error implies Sections holds a single error section with all
// other fields left at their zero values.
type Response struct {
	Sections   []Section   `json:"sections"`
	CodeBlocks []CodeBlock `json:"code_blocks"`
	Summary    string      `json:"summary"`
	HasCode    bool        `json:"has_code"`
	Raw        string      `json:"raw"`
	Error      string      `json:"error,omitempty"`

	ModelUsed    string `json:"model_used"`
	ProviderUsed string `json:"provider_used"`
}

// ErrorResponse builds the uniform error shape returned by every flow:
// the error string plus a single error section.
func ErrorResponse(msg string) *Response {
	return &Response{
		Error:    msg,
		Sections: []Section{{Kind: SectionError, Content: msg}},
	}
}

// ToMap converts the response to its plain-data form for JSON transport.
func (r *Response) ToMap() map[string]interface{} {
	sections := make([]map[string]interface{}, len(r.Sections))
	for i, s := range r.Sections {
		sections[i] = map[string]interface{}{
			"type":     s.Kind,
			"content":  s.Content,
			"language": s.Language,
		}
	}
	blocks := make([]map[string]interface{}, len(r.CodeBlocks))
	for i, b := range r.CodeBlocks {
		blocks[i] = map[string]interface{}{
			"language": b.Language,
			"content":  b.Content,
			"label":    b.Label,
		}
	}

	out := map[string]interface{}{
		"sections":      sections,
		"code_blocks":   blocks,
		"summary":       r.Summary,
		"has_code":      r.HasCode,
		"raw":           r.Raw,
		"model_used":    r.ModelUsed,
		"provider_used": r.ProviderUsed,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Document is one retrieved context passage from the vector store.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredDocument pairs a document with its similarity score.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}
