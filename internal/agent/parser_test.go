package agent

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePlainText(t *testing.T) {
	resp := Parse("  The answer is 42.  ")

	if resp.Error != "" {
		t.Fatalf("Unexpected error: %s", resp.Error)
	}
	if len(resp.Sections) != 1 {
		t.Fatalf("Expected 1 section, got %d", len(resp.Sections))
	}
	if resp.Sections[0].Kind != SectionText || resp.Sections[0].Content != "The answer is 42." {
		t.Errorf("Unexpected section: %+v", resp.Sections[0])
	}
	if resp.Summary != "The answer is 42." {
		t.Errorf("Summary mismatch: %q", resp.Summary)
	}
	if resp.HasCode {
		t.Error("HasCode should be false for plain text")
	}
}

func TestParseSingleCodeBlock(t *testing.T) {
	raw := "Here:\n```python\ndef f(): pass\n```\nDone."
	resp := Parse(raw)

	want := []Section{
		{Kind: SectionText, Content: "Here:"},
		{Kind: SectionCode, Content: "def f(): pass", Language: "python"},
		{Kind: SectionText, Content: "Done."},
	}
	if diff := cmp.Diff(want, resp.Sections); diff != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", diff)
	}

	if len(resp.CodeBlocks) != 1 {
		t.Fatalf("Expected 1 code block, got %d", len(resp.CodeBlocks))
	}
	if resp.CodeBlocks[0].Language != "python" {
		t.Errorf("Expected python, got %s", resp.CodeBlocks[0].Language)
	}
	if !resp.HasCode {
		t.Error("HasCode should be true")
	}
	if resp.Summary != "Here:\n\nDone." {
		t.Errorf("Summary mismatch: %q", resp.Summary)
	}
}

func TestParseTwoCodeBlocksInterleaved(t *testing.T) {
	raw := "Intro\n```go\na := 1\n```\nmiddle\n```python\nb = 2\n```\noutro"
	resp := Parse(raw)

	kinds := make([]string, len(resp.Sections))
	for i, s := range resp.Sections {
		kinds[i] = s.Kind
	}
	wantKinds := []string{SectionText, SectionCode, SectionText, SectionCode, SectionText}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Fatalf("Section kinds mismatch (-want +got):\n%s", diff)
	}

	if len(resp.CodeBlocks) != 2 {
		t.Fatalf("Expected 2 code blocks, got %d", len(resp.CodeBlocks))
	}
	if resp.CodeBlocks[0].Language != "go" || resp.CodeBlocks[1].Language != "python" {
		t.Errorf("Code blocks out of source order: %+v", resp.CodeBlocks)
	}
}

func TestParseConsecutiveFences(t *testing.T) {
	raw := "```go\na\n```\n```go\nb\n```"
	resp := Parse(raw)

	// No placeholder text section between back-to-back fences.
	for _, s := range resp.Sections {
		if s.Kind == SectionText {
			t.Errorf("Unexpected text section: %+v", s)
		}
	}
	if len(resp.Sections) != 2 || len(resp.CodeBlocks) != 2 {
		t.Errorf("Expected 2 code sections, got %d sections / %d blocks",
			len(resp.Sections), len(resp.CodeBlocks))
	}
}

func TestParseUntaggedFenceDefaultsToText(t *testing.T) {
	resp := Parse("```\nplain body\n```")
	if len(resp.CodeBlocks) != 1 {
		t.Fatalf("Expected 1 code block, got %d", len(resp.CodeBlocks))
	}
	if resp.CodeBlocks[0].Language != "text" {
		t.Errorf("Expected default language 'text', got %q", resp.CodeBlocks[0].Language)
	}
}

func TestParseUnterminatedFenceIsPlainText(t *testing.T) {
	raw := "Look at this:\n```python\ndef broken():"
	resp := Parse(raw)

	if resp.HasCode {
		t.Error("Unterminated fence must not produce a code block")
	}
	if len(resp.Sections) != 1 || resp.Sections[0].Kind != SectionText {
		t.Fatalf("Expected a single text section, got %+v", resp.Sections)
	}
	if !strings.Contains(resp.Sections[0].Content, "```python") {
		t.Error("Unterminated fence should fall through into the text")
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   \n  "} {
		resp := Parse(raw)
		if resp.Error == "" {
			t.Errorf("Parse(%q): expected error response", raw)
		}
		if len(resp.Sections) != 1 || resp.Sections[0].Kind != SectionError {
			t.Errorf("Parse(%q): expected single error section, got %+v", raw, resp.Sections)
		}
		if resp.Raw != "" || resp.Summary != "" || resp.HasCode {
			t.Errorf("Parse(%q): error response must leave other fields empty: %+v", raw, resp)
		}
	}
}

func TestExtractFirstCodeBlock(t *testing.T) {
	raw := "a\n```go\nfirst\n```\nb\n```python\nsecond\n```"
	block := ExtractFirstCodeBlock(raw)
	if block == nil {
		t.Fatal("Expected a code block")
	}
	if block.Language != "go" || block.Content != "first" {
		t.Errorf("Wrong block: %+v", block)
	}

	if got := ExtractFirstCodeBlock("no fences here"); got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
}
