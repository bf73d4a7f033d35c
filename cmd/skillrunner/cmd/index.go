package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/index"
	"github.com/skillrunner/skillrunner/internal/logging"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI    bool
		force    bool
		backend  string
		manifest string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the Tool Document index from a skill manifest",
		Long: `Build the Tool Document index so skills can be found by search_skills.

This loads a skill manifest, generates embeddings for each tool, and
builds both the BM25 and vector indices used for hybrid retrieval.

Backend Selection:
  (default)          Ollama on every platform
  --backend=mlx      Use MLX (Apple Silicon, ~1.7x faster)
  --backend=ollama   Use Ollama (cross-platform)

Use --force to clear existing index data and rebuild from scratch. A
manifest rarely has more than a few hundred tools, so a full rebuild is
expected to finish in seconds and there is no resume-from-checkpoint mode.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Set up signal handling for Ctrl+C so context cancellation
			// propagates and any in-flight embedding calls stop.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if backend != "" {
				os.Setenv("SKILLRUNNER_EMBEDDER", backend)
			}

			return runIndexWithOptions(ctx, cmd, path, false, noTUI, force, manifest)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: ollama (default), mlx, or static")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Path to the skill manifest (default: <root>/skills.yaml)")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

// clearIndexData removes all index-related files from the data directory.
// This preserves the .skillrunner.yaml config file, which is at project
// root rather than in dataDir.
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "bm25.bleve"),
		filepath.Join(dataDir, "bm25.db"),
		filepath.Join(dataDir, "bm25.db-wal"),
		filepath.Join(dataDir, "bm25.db-shm"),
		filepath.Join(dataDir, "vectors.hnsw"),
		filepath.Join(dataDir, "manifest_baseline.json"),
	}

	for _, path := range indexFiles {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

// resolveManifestPath returns the manifest flag value if set, or
// <root>/skills.yaml otherwise.
func resolveManifestPath(root, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(root, "skills.yaml")
}

func runIndexWithOptions(ctx context.Context, cmd *cobra.Command, path string, offline bool, noTUI bool, force bool, manifestFlag string) error {
	// Initialize logging for CLI observability. File-only so it doesn't
	// interfere with user-facing stdout output.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	manifestPath := resolveManifestPath(root, manifestFlag)
	if _, err := os.Stat(manifestPath); err != nil {
		return fmt.Errorf("manifest not found at %s: %w", manifestPath, err)
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(root, ".skillrunner")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared existing index data, starting fresh...\n")
		slog.Info("index_force_clear", slog.String("data_dir", dataDir))
	}

	// Clean up a stale serve.pid if that process no longer exists.
	servePidPath := filepath.Join(dataDir, "serve.pid")
	if pidData, err := os.ReadFile(servePidPath); err == nil {
		var pid int
		if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr == nil && pid > 0 {
			if process, findErr := os.FindProcess(pid); findErr == nil {
				if sigErr := process.Signal(syscall.Signal(0)); sigErr != nil {
					_ = os.Remove(servePidPath)
					slog.Debug("removed stale serve.pid", slog.Int("pid", pid))
				}
			}
		}
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := catalog.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25Path := filepath.Join(dataDir, "bm25.bleve")
	bm25, err := catalog.NewBleveBM25Index(bm25Path, catalog.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to create BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	if cfg.Embeddings.InterBatchDelay != "" {
		if delay, parseErr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); parseErr == nil && delay > 0 {
			thermalCfg.InterBatchDelay = delay
		}
	}
	embed.SetThermalConfig(thermalCfg)

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)

		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageLoading,
			Message: fmt.Sprintf("Connecting to %s embedder...", provider),
		})

		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()

		if err != nil {
			return fmt.Errorf("embedder initialization failed: %w", err)
		}
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectorCfg := catalog.VectorStoreConfig{Dimensions: embedder.Dimensions(), Metric: "cos", M: 16, EfSearch: 64}
	vector, err := catalog.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if err := vector.Load(vectorPath); err != nil {
		slog.Debug("no existing vector store to load", slog.String("error", err.Error()))
	}

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Engine:   engine,
		Embedder: embedder,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}

	_, err = runner.Run(ctx, index.RunnerConfig{ManifestPath: manifestPath})
	if err != nil {
		return err
	}

	if err := bm25.Save(bm25Path); err != nil {
		slog.Warn("failed to save bm25 index", slog.String("error", err.Error()))
	}
	if err := vector.Save(vectorPath); err != nil {
		slog.Warn("failed to save vector store", slog.String("error", err.Error()))
	}

	return nil
}
