// Package ingest loads research papers from a directory, chunks them, and
// embeds the chunks into the vector store. Files are processed
// concurrently with a bounded worker group.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"algodraft/internal/embedding"
	"algodraft/internal/logging"
	"algodraft/internal/store"
)

// supportedExtensions lists the paper formats the loader accepts.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".tex": true,
}

// Ingester drives the papers-to-store pipeline.
type Ingester struct {
	store   *store.VectorStore
	engine  embedding.Engine
	opts    ChunkOptions
	workers int
}

// New creates an ingester over the given store and embedding engine.
func New(vs *store.VectorStore, engine embedding.Engine) *Ingester {
	return &Ingester{
		store:   vs,
		engine:  engine,
		opts:    DefaultChunkOptions(),
		workers: 4,
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

// IngestDir ingests every supported file under dir. Returns an error if
// the directory is unreadable or any file fails; files ingest
// concurrently but a single failure cancels the run.
func (ing *Ingester) IngestDir(ctx context.Context, dir string) (Result, error) {
	files, err := listPapers(dir)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		logging.Ingest("No papers found in %s", dir)
		return Result{}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)
	chunkCounts := make([]int, len(files))
	for i, path := range files {
		g.Go(func() error {
			n, err := ing.IngestFile(ctx, path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
			}
			chunkCounts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result
	result.Files = len(files)
	for _, n := range chunkCounts {
		result.Chunks += n
	}
	logging.Ingest("Ingested %d chunk(s) from %d file(s) in %s", result.Chunks, result.Files, dir)
	return result, nil
}

// IngestFile chunks and embeds one file, replacing any chunks previously
// stored for the same source name. Returns the number of chunks stored.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	source := filepath.Base(path)

	chunks := Chunk(string(data), ing.opts)
	if len(chunks) == 0 {
		logging.Ingest("Skipping empty file %s", source)
		return 0, nil
	}

	embeddings, err := ing.engine.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	if _, err := ing.store.DeleteBySource(ctx, source); err != nil {
		return 0, err
	}
	for i, chunk := range chunks {
		meta := map[string]string{
			"source": source,
			"chunk":  fmt.Sprintf("%d", i),
		}
		if err := ing.store.AddWithEmbedding(ctx, chunk, embeddings[i], meta); err != nil {
			return 0, err
		}
	}
	logging.Ingest("Ingested %s: %d chunk(s)", source, len(chunks))
	return len(chunks), nil
}

// Reingest clears the store and ingests dir from scratch.
func (ing *Ingester) Reingest(ctx context.Context, dir string) (Result, error) {
	if err := ing.store.Clear(ctx); err != nil {
		return Result{}, err
	}
	return ing.IngestDir(ctx, dir)
}

// listPapers returns the supported files directly under dir, sorted by
// name (WalkDir order).
func listPapers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read papers directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if supportedExtensions[ext] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// SupportedFile reports whether the ingester accepts the given filename.
func SupportedFile(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}
