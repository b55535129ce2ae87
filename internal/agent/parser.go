package agent

import (
	"regexp"
	"strings"
)

// codeBlockPattern matches fenced code blocks: ```lang\nbody```.
// The language token is optional and the body is non-greedy up to the next
// closing fence. An opening fence with no closing fence does not match and
// is deliberately left as plain text.
var codeBlockPattern = regexp.MustCompile("(?s)```(\\w*)[ \t]*\n(.*?)```")

const emptyResponseError = "Empty response from AI model."

// Parse splits raw model output into an ordered sequence of text and code
// sections, extracting every fenced code block with its declared language.
func Parse(rawText string) *Response {
	trimmed := strings.TrimSpace(rawText)
	if trimmed == "" {
		return ErrorResponse(emptyResponseError)
	}

	var sections []Section
	var codeBlocks []CodeBlock
	var textParts []string

	lastEnd := 0
	for _, m := range codeBlockPattern.FindAllStringSubmatchIndex(trimmed, -1) {
		start, end := m[0], m[1]

		// Text before this code block
		if before := strings.TrimSpace(trimmed[lastEnd:start]); before != "" {
			sections = append(sections, Section{Kind: SectionText, Content: before})
			textParts = append(textParts, before)
		}

		lang := trimmed[m[2]:m[3]]
		if lang == "" {
			lang = "text"
		}
		body := strings.TrimSpace(trimmed[m[4]:m[5]])

		sections = append(sections, Section{Kind: SectionCode, Content: body, Language: lang})
		codeBlocks = append(codeBlocks, CodeBlock{Language: lang, Content: body})
		lastEnd = end
	}

	// Any remaining text after the last code block
	if remaining := strings.TrimSpace(trimmed[lastEnd:]); remaining != "" {
		sections = append(sections, Section{Kind: SectionText, Content: remaining})
		textParts = append(textParts, remaining)
	}

	// No fence matched anywhere: the entire text is one section
	if len(sections) == 0 {
		sections = append(sections, Section{Kind: SectionText, Content: trimmed})
		textParts = append(textParts, trimmed)
	}

	return &Response{
		Sections:   sections,
		CodeBlocks: codeBlocks,
		Summary:    strings.Join(textParts, "\n\n"),
		HasCode:    len(codeBlocks) > 0,
		Raw:        trimmed,
	}
}

// ExtractFirstCodeBlock returns only the first fenced code block from the
// response, or nil if there is none.
func ExtractFirstCodeBlock(rawText string) *CodeBlock {
	m := codeBlockPattern.FindStringSubmatch(rawText)
	if m == nil {
		return nil
	}
	lang := m[1]
	if lang == "" {
		lang = "text"
	}
	return &CodeBlock{Language: lang, Content: strings.TrimSpace(m[2])}
}
