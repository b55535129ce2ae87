// Package server exposes the agent over HTTP. Handlers translate JSON
// requests into agent calls and never surface Go errors to clients:
// the agent returns structured error responses, and a recover middleware
// catches anything else.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"algodraft/internal/agent"
	"algodraft/internal/config"
	"algodraft/internal/ingest"
	"algodraft/internal/logging"
	"algodraft/internal/store"
)

// maxUploadBytes caps paper uploads at 20 MB.
const maxUploadBytes = 20 << 20

// Server routes HTTP traffic to the agent and the ingestion pipeline.
type Server struct {
	mux        *http.ServeMux
	handler    *agent.Handler
	store      *store.VectorStore
	ingester   *ingest.Ingester
	papersDir  string
	configPath string
	cfgMu      sync.Mutex
}

// New assembles the server. store and ingester may be nil when no corpus
// exists yet; the corpus endpoints then report accordingly.
func New(h *agent.Handler, vs *store.VectorStore, ing *ingest.Ingester, papersDir, configPath string) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		handler:    h,
		store:      vs,
		ingester:   ing,
		papersDir:  papersDir,
		configPath: configPath,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)

	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSessionHistory)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleClearSession)
	s.mux.HandleFunc("POST /sessions/cleanup", s.handleCleanupSessions)

	s.mux.HandleFunc("GET /config", s.handleGetConfig)
	s.mux.HandleFunc("POST /config", s.handleSetConfig)

	s.mux.HandleFunc("GET /papers", s.handleListPapers)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /remove-file", s.handleRemoveFile)
}

// ServeHTTP implements http.Handler with panic recovery.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ServerError("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "internal server error",
			})
		}
	}()
	logging.API("%s %s", r.Method, r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

// ===== request/response plumbing =====

type askRequest struct {
	Question    string `json:"question"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
	Mode        string `json:"mode"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	SessionID   string `json:"session_id"`
	MaxResults  int    `json:"max_results"`
	Context     string `json:"context"`
	Language    string `json:"language"`
}

func (req *askRequest) options() agent.Options {
	return agent.Options{
		Mode:          req.Mode,
		CloudProvider: req.Provider,
		Model:         req.Model,
		SessionID:     req.SessionID,
		MaxResults:    req.MaxResults,
		Context:       req.Context,
		Language:      req.Language,
	}
}

func decode(w http.ResponseWriter, r *http.Request, req *askRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.ServerError("Failed to encode response: %v", err)
	}
}

// writeResponse renders an agent response, adding any extra fields. The
// HTTP status stays 200 even for model failures: the error travels in the
// body, matching what conversational clients expect.
func writeResponse(w http.ResponseWriter, resp *agent.Response, extra map[string]any) {
	payload := resp.ToMap()
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, http.StatusOK, payload)
}

// ===== interaction flows =====

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "question is required"})
		return
	}
	resp := s.handler.Query(r.Context(), req.Question, req.options())
	writeResponse(w, resp, map[string]any{"answer": resp.Summary})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "code is required"})
		return
	}
	resp := s.handler.Analyze(r.Context(), req.Code, req.options())
	writeResponse(w, resp, map[string]any{"analysis": resp.Summary})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message is required"})
		return
	}
	resp, sessionID := s.handler.Chat(r.Context(), req.Message, req.options())
	writeResponse(w, resp, map[string]any{"session_id": sessionID})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "description is required"})
		return
	}
	resp := s.handler.GenerateCode(r.Context(), req.Description, req.options())
	writeResponse(w, resp, nil)
}

// ===== sessions =====

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.handler.ListSessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages := s.handler.SessionHistory(id)
	if messages == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("session %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   messages,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.handler.ClearSession(id) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("session %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": id})
}

func (s *Server) handleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	removed := s.handler.CleanupSessions()
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// ===== configuration =====

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.handler.Config().Redacted())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	cfg := s.handler.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if s.configPath != "" {
		if err := config.Save(s.configPath, cfg); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": fmt.Sprintf("failed to save config: %v", err)})
			return
		}
	}
	s.handler.SetConfig(cfg)
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// ReloadConfig swaps the active config. The fsnotify watcher calls this
// when the config file changes on disk.
func (s *Server) ReloadConfig(cfg config.Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.handler.SetConfig(cfg)
	logging.Server("Config reloaded from disk")
}

// ===== corpus management =====

func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	var papers []string
	if s.papersDir != "" {
		entries, err := os.ReadDir(s.papersDir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() && ingest.SupportedFile(e.Name()) {
					papers = append(papers, e.Name())
				}
			}
		}
	}
	var chunks int
	if s.store != nil {
		if n, err := s.store.Count(r.Context()); err == nil {
			chunks = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"papers": papers,
		"count":  len(papers),
		"chunks": chunks,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "ingestion is not configured"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file field is required"})
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !ingest.SupportedFile(name) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("unsupported file type: %s (use .txt, .md, or .tex)", name),
		})
		return
	}

	if err := os.MkdirAll(s.papersDir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create papers directory"})
		return
	}
	dest := filepath.Join(s.papersDir, name)
	out, err := os.Create(dest)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store file"})
		return
	}
	if _, err := io.Copy(out, io.LimitReader(file, maxUploadBytes)); err != nil {
		out.Close()
		os.Remove(dest)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store file"})
		return
	}
	out.Close()

	chunks, err := s.ingester.IngestFile(r.Context(), dest)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": fmt.Sprintf("stored %s but ingestion failed: %v", name, err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": name,
		"chunks":   chunks,
	})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filename is required"})
		return
	}
	name := filepath.Base(req.Filename)

	var removedChunks int64
	if s.store != nil {
		n, err := s.store.DeleteBySource(r.Context(), name)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		removedChunks = n
	}
	path := filepath.Join(s.papersDir, name)
	fileRemoved := os.Remove(path) == nil
	if !fileRemoved && removedChunks == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("%s not found", name)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename":       name,
		"file_removed":   fileRemoved,
		"chunks_removed": removedChunks,
	})
}

// ===== misc =====

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "algodraft",
		"endpoints": []string{"/query", "/analyze", "/chat", "/generate", "/sessions", "/config", "/papers", "/upload", "/remove-file", "/health"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if s.store != nil {
		if n, err := s.store.Count(r.Context()); err == nil {
			payload["chunks"] = n
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// StoreRetriever adapts the vector store to the agent's retrieval
// interface.
type StoreRetriever struct {
	Store *store.VectorStore
}

// Retrieve implements agent.Retriever.
func (sr StoreRetriever) Retrieve(ctx context.Context, query string, limit int) ([]agent.ScoredDocument, error) {
	scored, err := sr.Store.SimilaritySearchWithScore(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]agent.ScoredDocument, len(scored))
	for i, sd := range scored {
		docs[i] = agent.ScoredDocument{
			Document: agent.Document{Content: sd.Content, Metadata: sd.Metadata},
			Score:    sd.Score,
		}
	}
	return docs, nil
}
