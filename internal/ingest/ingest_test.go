package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodraft/internal/store"
)

// hashEngine derives a deterministic vector from text content.
type hashEngine struct{}

func (hashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r) / 1000
	}
	return vec, nil
}

func (h hashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := h.Embed(ctx, t)
		out[i] = vec
	}
	return out, nil
}

func (hashEngine) Dimensions() int { return 4 }
func (hashEngine) Name() string    { return "hash" }

func newTestIngester(t *testing.T) (*Ingester, *store.VectorStore) {
	t.Helper()
	vs, err := store.Open(filepath.Join(t.TempDir(), "store.db"), hashEngine{})
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	return New(vs, hashEngine{}), vs
}

func writePapers(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestIngestDir(t *testing.T) {
	ing, vs := newTestIngester(t)
	dir := writePapers(t, map[string]string{
		"sorting.md":  "Quicksort partitions around a pivot.",
		"graphs.txt":  "BFS explores level by level.",
		"notes.tex":   "\\section{Dynamic Programming}",
		"ignored.pdf": "binary stuff",
	})

	result, err := ing.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Files)
	assert.Equal(t, 3, result.Chunks)

	n, err := vs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIngestDirMissing(t *testing.T) {
	ing, _ := newTestIngester(t)
	_, err := ing.IngestDir(context.Background(), "/nonexistent/papers")
	require.Error(t, err)
}

func TestIngestFileReplacesPrevious(t *testing.T) {
	ing, vs := newTestIngester(t)
	dir := writePapers(t, map[string]string{"paper.md": "version one"})
	path := filepath.Join(dir, "paper.md")

	_, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	_, err = ing.IngestFile(context.Background(), path)
	require.NoError(t, err)

	n, err := vs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "re-ingesting a file must not duplicate chunks")
}

// shortEngine drops the last vector from every batch.
type shortEngine struct{ hashEngine }

func (s shortEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.hashEngine.EmbedBatch(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

func TestIngestFileShortEmbeddingBatch(t *testing.T) {
	vs, err := store.Open(filepath.Join(t.TempDir(), "store.db"), hashEngine{})
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	ing := New(vs, shortEngine{})

	dir := writePapers(t, map[string]string{"paper.md": "some corpus text"})
	_, err = ing.IngestFile(context.Background(), filepath.Join(dir, "paper.md"))
	require.ErrorContains(t, err, "embedding count mismatch")

	n, err := vs.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing may be stored on a short batch")
}

func TestIngestFileEmpty(t *testing.T) {
	ing, _ := newTestIngester(t)
	dir := writePapers(t, map[string]string{"empty.md": "   \n\n"})

	n, err := ing.IngestFile(context.Background(), filepath.Join(dir, "empty.md"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReingestClearsStore(t *testing.T) {
	ing, vs := newTestIngester(t)
	dirA := writePapers(t, map[string]string{"old.md": "old corpus"})
	_, err := ing.IngestDir(context.Background(), dirA)
	require.NoError(t, err)

	dirB := writePapers(t, map[string]string{"new.md": "new corpus"})
	result, err := ing.Reingest(context.Background(), dirB)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)

	sources, err := vs.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new.md"}, sources)
}

func TestSupportedFile(t *testing.T) {
	assert.True(t, SupportedFile("paper.md"))
	assert.True(t, SupportedFile("paper.TXT"))
	assert.True(t, SupportedFile("paper.tex"))
	assert.False(t, SupportedFile("paper.pdf"))
	assert.False(t, SupportedFile("paper"))
}
