// Package store persists paper chunks and their embeddings in a local
// sqlite database and serves similarity search over them. Embeddings are
// stored as JSON arrays; search loads candidates and ranks them by cosine
// similarity in process, which is plenty for a per-workspace corpus.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"algodraft/internal/embedding"
	"algodraft/internal/logging"
)

// Document is one stored chunk of a research paper.
type Document struct {
	ID       int64             `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredDocument pairs a document with its similarity to a query.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// VectorStore is the sqlite-backed chunk store. Safe for concurrent use.
type VectorStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine embedding.Engine
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	embedding TEXT,
	metadata TEXT,
	source TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string, engine embedding.Engine) (*VectorStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("Opened vector store at %s", dbPath)
	return &VectorStore{db: db, engine: engine}, nil
}

// Add embeds content and stores it with its metadata. The source metadata
// key, when present, is indexed for later removal by file.
func (s *VectorStore) Add(ctx context.Context, content string, metadata map[string]string) error {
	embeddingVec, err := s.engine.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	return s.AddWithEmbedding(ctx, content, embeddingVec, metadata)
}

// AddWithEmbedding stores a chunk whose embedding was computed elsewhere
// (the ingest pipeline batches embeddings).
func (s *VectorStore) AddWithEmbedding(ctx context.Context, content string, embeddingVec []float32, metadata map[string]string) error {
	embeddingJSON, err := json.Marshal(embeddingVec)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO chunks (content, embedding, metadata, source) VALUES (?, ?, ?, ?)",
		content, string(embeddingJSON), string(metaJSON), metadata["source"],
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// SimilaritySearch returns the limit most similar chunks to the query.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, limit int) ([]Document, error) {
	scored, err := s.SimilaritySearchWithScore(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(scored))
	for i, sd := range scored {
		docs[i] = sd.Document
	}
	return docs, nil
}

// SimilaritySearchWithScore is SimilaritySearch but keeps the cosine
// similarity of each hit.
func (s *VectorStore) SimilaritySearchWithScore(ctx context.Context, query string, limit int) ([]ScoredDocument, error) {
	if limit <= 0 {
		limit = 5
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, embedding, metadata FROM chunks WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var docs []Document
	var vectors [][]float32
	var metas []sql.NullString
	for rows.Next() {
		var doc Document
		var embeddingJSON, metaJSON sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Content, &embeddingJSON, &metaJSON); err != nil {
			logging.StoreDebug("Skipping unreadable chunk row: %v", err)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON.String), &vec); err != nil {
			continue
		}
		docs = append(docs, doc)
		vectors = append(vectors, vec)
		metas = append(metas, metaJSON)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	// FindTopK drops chunks whose stored vector does not match the query
	// dimensions (an engine change can leave stale embeddings behind).
	ranked := embedding.FindTopK(queryVec, vectors, limit)
	out := make([]ScoredDocument, 0, len(ranked))
	for _, hit := range ranked {
		doc := docs[hit.Index]
		if m := metas[hit.Index]; m.Valid && m.String != "" {
			if err := json.Unmarshal([]byte(m.String), &doc.Metadata); err != nil {
				doc.Metadata = nil
			}
		}
		out = append(out, ScoredDocument{Document: doc, Score: hit.Similarity})
	}
	return out, nil
}

// Count reports the number of stored chunks.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Sources returns the distinct source files represented in the store.
func (s *VectorStore) Sources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT source FROM chunks WHERE source IS NOT NULL AND source != '' ORDER BY source",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			continue
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteBySource removes every chunk ingested from the named source file,
// returning how many were deleted.
func (s *VectorStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", source, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("Removed %d chunk(s) for source %s", n, source)
	}
	return n, nil
}

// Clear removes every chunk. Used by full reingestion.
func (s *VectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *VectorStore) Close() error {
	return s.db.Close()
}
