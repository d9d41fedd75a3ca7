package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/api"
	"github.com/clauselens/clauselens/internal/config"
	"github.com/clauselens/clauselens/internal/engine"
	"github.com/clauselens/clauselens/internal/enhance"
	"github.com/clauselens/clauselens/internal/jobs"
	"github.com/clauselens/clauselens/internal/ollama"
	"github.com/clauselens/clauselens/internal/query"
	"github.com/clauselens/clauselens/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clauselens server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running clauselens server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clauselens system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "clauselens.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clauselens version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("clauselens is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("clauselens is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Completion backend. A missing backend is not fatal: analysis falls
	// back to keyword scanning and queries to extractive answers.
	eng := buildEngine(ctx, cfg)

	jobStore := jobs.NewStore()

	// Open the durable archive unless disabled, and refill the job store
	// from it so analyses completed before the restart keep answering.
	// Without it, results live only in memory and are lost on restart.
	var archive analysis.Archiver
	var chunkSource query.ChunkSource
	if cfg.Storage.Durable {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}()
		archive = store
		chunkSource = store

		restored, err := store.Rehydrate(ctx, jobStore, slog.Default())
		if err != nil {
			return fmt.Errorf("rehydrating archived analyses: %w", err)
		}
		if restored > 0 {
			slog.Info("restored archived analyses", "count", restored)
		}
	} else {
		slog.Info("durable archive disabled, results held in memory only")
	}

	// The two background queues. Analysis and enhancement run on separate
	// dispatchers so a slow enhancement fan-out never delays fresh
	// uploads.
	analysisQueue := jobs.NewDispatcher(cfg.Analysis.MaxConcurrentJobs, 0, func(id string, err error) {
		// Normal failures are already recorded with a sanitized message;
		// this catches panicking jobs that never reached Fail.
		jobStore.Fail(id, "Analysis failed")
	})
	enhanceQueue := jobs.NewDispatcher(cfg.Enhance.MaxConcurrentTasks, 0, nil)
	go analysisQueue.Run(ctx)
	go enhanceQueue.Run(ctx)
	defer analysisQueue.Close()
	defer enhanceQueue.Close()

	pipe := analysis.NewPipeline(eng, jobStore, archive, pipelineOptions(cfg), slog.Default())

	var enhancer analysis.Enhancer
	if eng != nil {
		enhancer = enhance.New(eng, enhance.Options{
			TaskTimeout:        cfg.EnhanceTaskTimeout(),
			MaxConcurrentTasks: cfg.Enhance.MaxConcurrentTasks,
		}, slog.Default())
	}

	svc := analysis.NewService(jobStore, analysisQueue, enhanceQueue, pipe, enhancer, slog.Default())
	queryEngine := query.NewEngine(jobStore, chunkSource, eng, query.Options{TopK: cfg.Query.TopK}, slog.Default())

	// Build HTTP handler and server.
	handler := api.NewAppHandler(api.AppDeps{
		Service:        svc,
		Jobs:           jobStore,
		Query:          queryEngine,
		Token:          cfg.Server.AuthToken,
		MaxUploadBytes: int64(cfg.Server.MaxUploadBytes),
		EnhanceDefault: cfg.Enhance.Enabled,
		Logger:         slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP tool server on its own port (streamable HTTP transport).
	mcpSrv := server.NewStreamableHTTPServer(api.NewMCPServer(api.MCPDeps{
		Jobs:  jobStore,
		Query: queryEngine,
	}))
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpSrv.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clauselens listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func pipelineOptions(cfg config.Config) analysis.Options {
	opts := analysis.Options{
		ChunkSize:         cfg.Analysis.ChunkSize,
		ChunkOverlap:      cfg.Analysis.ChunkOverlap,
		DedupThreshold:    cfg.Analysis.DedupThreshold,
		CompletionTimeout: cfg.EngineTimeout(),
	}
	if overrides := cfg.CategoryWeightOverrides(); len(overrides) > 0 {
		weights := analysis.DefaultCategoryWeights()
		for name, w := range overrides {
			weights[analysis.ClauseType(name)] = w
		}
		opts.CategoryWeights = weights
	}
	return opts
}

// buildEngine constructs the configured completion backend, or nil when
// the local Ollama server is unreachable.
func buildEngine(ctx context.Context, cfg config.Config) engine.Engine {
	if cfg.Engine.Backend == "openrouter" {
		return engine.NewOpenRouterEngine(cfg.Engine.OpenRouterKey, cfg.Engine.Model)
	}

	client := ollama.New(cfg.Engine.OllamaBaseURL)
	if !client.IsRunning(ctx) {
		printWarning("Ollama not reachable at %s — continuing in keyword-only mode", cfg.Engine.OllamaBaseURL)
		return nil
	}
	if !client.HasModel(ctx, cfg.Engine.Model) {
		printWarning("model %q not found — pull it with: ollama pull %s", cfg.Engine.Model, cfg.Engine.Model)
	}
	return engine.NewOllamaEngine(cfg.Engine.OllamaBaseURL, cfg.Engine.Model)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("clauselens is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop clauselens (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to clauselens (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	// Check server health.
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d (MCP on %d)", cfg.Server.Port, cfg.Server.MCPPort)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Engine", "%s", cfg.Engine.Backend)
	if cfg.Engine.Backend == "ollama" {
		ollamaClient := ollama.New(cfg.Engine.OllamaBaseURL)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ollamaClient.IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Engine.OllamaBaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
	}
	printStatus("Model", "%s", cfg.Engine.Model)

	if cfg.Storage.Durable {
		printStatus("Archive", "sqlite in %s", cfg.Storage.DataDir)
	} else {
		printStatus("Archive", "disabled (memory only)")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
