// Package input validates and sanitizes user inputs before they reach the
// AI model. The injection detector is advisory only: it logs a warning and
// never blocks, so legitimate inputs that happen to match a pattern still
// flow through.
package input

import (
	"fmt"
	"regexp"
	"strings"

	"algodraft/internal/logging"
)

// Maximum input lengths (characters) to prevent abuse.
const (
	MaxPromptLength = 50000
	MaxCodeLength   = 100000
)

var (
	trailingWS    = regexp.MustCompile(`[ \t]+\n`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// injectionPatterns are heuristic phrases associated with prompt-injection
// attempts. False negatives are expected; this is defense-in-depth, not a
// security boundary.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`disregard\s+(all\s+)?above`),
	regexp.MustCompile(`you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`pretend\s+you\s+are`),
	regexp.MustCompile(`act\s+as\s+if`),
	regexp.MustCompile(`new\s+instructions?\s*:`),
	regexp.MustCompile(`system\s*:\s*`),
}

// embeddedCodePattern matches fenced code regions inside free-form user text.
var embeddedCodePattern = regexp.MustCompile("(?s)```(\\w*)\n(.*?)```")

// Sanitize normalizes input text: trims the ends, strips trailing
// horizontal whitespace before newlines, collapses runs of 3+ newlines to
// exactly 2, and removes null bytes. Never fails; empty input yields "".
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(text)
	text = trailingWS.ReplaceAllString(text, "\n")
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return text
}

// ValidatePrompt sanitizes a user prompt and checks emptiness and length.
// Returns the sanitized text on success.
func ValidatePrompt(text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = MaxPromptLength
	}
	cleaned := Sanitize(text)
	if cleaned == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	if len(cleaned) > maxLength {
		return "", fmt.Errorf("prompt too long (%d chars). Maximum allowed: %d characters",
			len(cleaned), maxLength)
	}
	return cleaned, nil
}

// ValidateCode sanitizes code input for analysis/review, with a fixed
// length ceiling.
func ValidateCode(code string) (string, error) {
	cleaned := Sanitize(code)
	if cleaned == "" {
		return "", fmt.Errorf("code input cannot be empty")
	}
	if len(cleaned) > MaxCodeLength {
		return "", fmt.Errorf("code too long (%d chars). Maximum allowed: %d characters",
			len(cleaned), MaxCodeLength)
	}
	return cleaned, nil
}

// CheckInjection reports whether text contains a potential prompt-injection
// pattern. Pure detector: it logs a warning but never modifies or rejects
// the input.
func CheckInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			logging.InputWarn("Potential prompt injection detected: %s", pattern.String())
			return true
		}
	}
	return false
}

// CodeContext is the result of extracting embedded code from a user prompt.
type CodeContext struct {
	HasCode    bool
	CodeBlocks []EmbeddedBlock
	CleanText  string
}

// EmbeddedBlock is one fenced region found in user text.
type EmbeddedBlock struct {
	Language string
	Content  string
}

// ExtractCodeContext detects fenced code regions embedded in free-form user
// text, returning each with its language ("text" when untagged) and the
// text with those regions removed.
func ExtractCodeContext(text string) CodeContext {
	var blocks []EmbeddedBlock
	for _, m := range embeddedCodePattern.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, EmbeddedBlock{Language: lang, Content: strings.TrimSpace(m[2])})
	}
	clean := strings.TrimSpace(embeddedCodePattern.ReplaceAllString(text, ""))
	return CodeContext{
		HasCode:    len(blocks) > 0,
		CodeBlocks: blocks,
		CleanText:  clean,
	}
}
