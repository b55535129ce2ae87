package ingest

import (
	"strings"
	"testing"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunks := Chunk("a short paper", DefaultChunkOptions())
	if len(chunks) != 1 || chunks[0] != "a short paper" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkEmptyText(t *testing.T) {
	if chunks := Chunk("   \n\n  ", DefaultChunkOptions()); chunks != nil {
		t.Fatalf("chunks = %v, want nil", chunks)
	}
}

func TestChunkSplitsAtParagraphs(t *testing.T) {
	paraA := strings.Repeat("alpha ", 20)
	paraB := strings.Repeat("beta ", 20)
	paraC := strings.Repeat("gamma ", 20)
	text := paraA + "\n\n" + paraB + "\n\n" + paraC

	chunks := Chunk(text, ChunkOptions{ChunkSize: 150, Overlap: 0})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 150 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(c))
		}
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, strings.Repeat("word ", 15)+"END"+string(rune('A'+i)))
	}
	text := strings.Join(paras, "\n\n")

	chunks := Chunk(text, ChunkOptions{ChunkSize: 120, Overlap: 30})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Each later chunk starts with material from the previous one.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 40 {
			head = head[:40]
		}
		if !strings.Contains(chunks[i-1], strings.TrimSpace(strings.Split(head, "\n")[0])) {
			t.Errorf("chunk %d does not overlap previous: head %q", i, head)
		}
	}
}

func TestChunkKeepsFencesIntact(t *testing.T) {
	code := "```python\n" + strings.Repeat("x = 1\n", 10) + "```"
	text := strings.Repeat("intro text ", 10) + "\n\n" + code + "\n\n" + strings.Repeat("outro ", 10)

	chunks := Chunk(text, ChunkOptions{ChunkSize: 200, Overlap: 0})
	for i, c := range chunks {
		if strings.Count(c, "```")%2 != 0 {
			t.Errorf("chunk %d has unbalanced fence markers:\n%s", i, c)
		}
	}
}

func TestChunkOversizedLine(t *testing.T) {
	text := strings.Repeat("a", 500)
	chunks := Chunk(text, ChunkOptions{ChunkSize: 200, Overlap: 0})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	if total != 500 {
		t.Errorf("content lost or duplicated: %d chars total", total)
	}
}
