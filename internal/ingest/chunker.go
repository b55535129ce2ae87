package ingest

import (
	"strings"
)

// ChunkOptions controls how documents are split before embedding.
type ChunkOptions struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// Overlap is how many trailing characters of one chunk are repeated
	// at the start of the next, to keep context across boundaries.
	Overlap int
}

// DefaultChunkOptions returns the standard chunking parameters.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize: 1500,
		Overlap:   200,
	}
}

// Chunk splits text into overlapping chunks, preferring paragraph
// boundaries. A paragraph longer than the chunk size is split at line
// boundaries, and as a last resort mid-line. Fenced code regions are kept
// intact within a chunk when they fit.
func Chunk(text string, opts ChunkOptions) []string {
	if opts.ChunkSize <= 0 {
		opts = DefaultChunkOptions()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.ChunkSize {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)

	var chunks []string
	var current strings.Builder
	for _, para := range paragraphs {
		if len(para) > opts.ChunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, splitLong(para, opts)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > opts.ChunkSize {
			chunk := current.String()
			chunks = append(chunks, chunk)
			current.Reset()
			if opts.Overlap > 0 {
				current.WriteString(tail(chunk, opts.Overlap))
				current.WriteString("\n\n")
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitParagraphs splits on blank lines but keeps fenced code regions
// attached to a single paragraph so a fence marker never lands at a
// chunk boundary.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	var paragraphs []string
	var pending string
	inFence := false
	for _, part := range raw {
		if pending != "" {
			pending += "\n\n" + part
		} else {
			pending = part
		}
		if strings.Count(part, "```")%2 == 1 {
			inFence = !inFence
		}
		if !inFence {
			paragraphs = append(paragraphs, pending)
			pending = ""
		}
	}
	if pending != "" {
		paragraphs = append(paragraphs, pending)
	}
	return paragraphs
}

// splitLong splits an oversized paragraph at line boundaries, then by
// raw slicing when a single line is still too long.
func splitLong(para string, opts ChunkOptions) []string {
	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(para, "\n") {
		for len(line) > opts.ChunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:opts.ChunkSize])
			line = line[opts.ChunkSize:]
		}
		if current.Len()+len(line)+1 > opts.ChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// tail returns the last n characters of s without cutting mid-word when
// avoidable.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if idx := strings.IndexAny(cut, " \n"); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}
