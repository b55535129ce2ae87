package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestGetSubstitutesParams(t *testing.T) {
	r := NewRegistry()
	got, err := r.Get("research_assistant", map[string]string{"context": "PAPER-42"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(got, "PAPER-42") {
		t.Errorf("rendered template missing substituted context:\n%s", got)
	}
	if strings.Contains(got, "{context}") {
		t.Errorf("placeholder left after substitution")
	}
}

func TestGetLeavesUnmatchedPlaceholders(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", "Hello {name}, context: {context}")
	got, err := r.Get("custom", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(got, "Hello Ada") {
		t.Errorf("name not substituted: %q", got)
	}
	if !strings.Contains(got, "{context}") {
		t.Errorf("unmatched placeholder should survive: %q", got)
	}
}

func TestGetUnknownTemplate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("error = %v, want ErrUnknownTemplate", err)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error should name the template: %v", err)
	}
}

func TestBuiltinsPresent(t *testing.T) {
	r := NewRegistry()
	want := []string{"chat", "code_generator", "code_reviewer", "research_assistant"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], name)
		}
	}
}

func TestRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	r.Register("chat", "replacement {context}")
	got, err := r.Get("chat", map[string]string{"context": "x"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "replacement x" {
		t.Errorf("override not applied: %q", got)
	}
}
