package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"algodraft/internal/agent"
	"algodraft/internal/config"
	"algodraft/internal/conversation"
	"algodraft/internal/embedding"
	"algodraft/internal/ingest"
	"algodraft/internal/llm"
	"algodraft/internal/logging"
	"algodraft/internal/prompt"
	"algodraft/internal/server"
	"algodraft/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// serve flags
	port            int
	cleanupInterval time.Duration

	// ask flags
	askMode     string
	askProvider string
	askModel    string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "algodraft",
	Short: "AlgoDraft - research-grounded algorithm assistant",
	Long: `AlgoDraft is a retrieval-augmented assistant for algorithms and
computer science research. It ingests research papers into a local vector
store and answers questions, reviews code, chats, and generates code
grounded in that corpus, using either a local ollama model or a cloud
provider.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AlgoDraft HTTP API",
	Long: `Starts the HTTP API serving the four interaction flows (/query,
/analyze, /chat, /generate) plus session, config, and corpus management
endpoints. The config file is watched for changes and reloaded live.`,
	RunE: runServe,
}

// ingestCmd loads papers into the vector store.
var ingestCmd = &cobra.Command{
	Use:   "ingest [papers-dir]",
	Short: "Ingest research papers into the vector store",
	Long: `Chunks and embeds every .txt, .md, and .tex file in the papers
directory (default <workspace>/papers) into the local vector store.
Re-ingesting a file replaces its previous chunks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

// askCmd answers a single question from the command line.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-off research question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: auto-detected)")

	serveCmd.Flags().IntVarP(&port, "port", "p", 8000, "port to listen on")
	serveCmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", 5*time.Minute, "how often idle sessions are reaped")

	askCmd.Flags().StringVar(&askMode, "mode", "", "override mode (local or cloud)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "override cloud provider")
	askCmd.Flags().StringVar(&askModel, "model", "", "override model")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// components bundles everything a command needs.
type components struct {
	cfg        config.Config
	configPath string
	papersDir  string
	handler    *agent.Handler
	store      *store.VectorStore
	ingester   *ingest.Ingester
}

func buildComponents(ws string, needStore bool) (*components, error) {
	configPath := filepath.Join(ws, ".algodraft", "config.json")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	c := &components{
		cfg:        cfg,
		configPath: configPath,
		papersDir:  filepath.Join(ws, "papers"),
	}

	var retriever agent.Retriever
	if needStore {
		engine, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding engine: %w", err)
		}
		vs, err := store.Open(filepath.Join(ws, ".algodraft", "store.db"), engine)
		if err != nil {
			return nil, err
		}
		c.store = vs
		c.ingester = ingest.New(vs, engine)
		retriever = server.StoreRetriever{Store: vs}
	}

	c.handler = agent.NewHandler(cfg, prompt.NewRegistry(), conversation.NewStore(), retriever)
	return c, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	c, err := buildComponents(ws, true)
	if err != nil {
		return err
	}
	defer c.store.Close()

	// Warm up the local models so the first request doesn't pay for a pull.
	// Models are also ensured lazily on first use, covering overrides and
	// config reloads.
	if c.cfg.Mode == config.ModeLocal {
		warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		for _, model := range []string{c.cfg.LocalModel, c.cfg.LocalCodeModel} {
			if model == "" {
				continue
			}
			if err := llm.NewOllamaBackend(model).EnsureModel(warmCtx); err != nil {
				logger.Warn("Local model not ready; requests may fail until ollama is up",
					zap.String("model", model), zap.Error(err))
			}
		}
		cancel()
	}

	srv := server.New(c.handler, c.store, c.ingester, c.papersDir, c.configPath)

	watcher, err := config.NewWatcher(c.configPath, srv.ReloadConfig)
	if err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		logger.Warn("Config watcher failed to start", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session reaper.
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.handler.CleanupSessions(); removed > 0 {
					logger.Info("Reaped idle sessions", zap.Int("removed", removed))
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("AlgoDraft API listening", zap.Int("port", port), zap.String("workspace", ws))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	c, err := buildComponents(ws, true)
	if err != nil {
		return err
	}
	defer c.store.Close()

	dir := c.papersDir
	if len(args) > 0 {
		dir = args[0]
	}

	logger.Info("Ingesting papers", zap.String("dir", dir))
	result, err := c.ingester.IngestDir(cmd.Context(), dir)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d chunk(s) from %d file(s)\n", result.Chunks, result.Files)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	c, err := buildComponents(ws, true)
	if err != nil {
		return err
	}
	defer c.store.Close()

	question := args[0]
	for _, a := range args[1:] {
		question += " " + a
	}

	resp := c.handler.Query(cmd.Context(), question, agent.Options{
		Mode:          askMode,
		CloudProvider: askProvider,
		Model:         askModel,
	})
	if resp.Error != "" {
		return errors.New(resp.Error)
	}

	out, err := json.MarshalIndent(resp.ToMap(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
