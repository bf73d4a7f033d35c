package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/execute"
	"github.com/skillrunner/skillrunner/internal/logging"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/mcp"
	"github.com/skillrunner/skillrunner/internal/runtime"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/secret"
	"github.com/skillrunner/skillrunner/internal/session"
	"github.com/skillrunner/skillrunner/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var transport string
	var manifestFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent command protocol over MCP",
		Long: `Serve list_skills, search_skills, and execute to AI clients.

The server speaks the Model Context Protocol over stdio, so any MCP
client (Claude Code, Cursor) can discover and run installed skills.
Run 'skillrunner index' first to build the discovery index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), transport, manifestFlag)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")
	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "Path to the skill manifest (default: <root>/skills.yaml)")

	return cmd
}

// manifestHolder adapts an atomically-swappable manifest to both the MCP
// server's provider interface and the executor's resolver interface.
type manifestHolder struct {
	current atomic.Pointer[manifest.Manifest]
}

func (h *manifestHolder) Manifest() *manifest.Manifest {
	return h.current.Load()
}

func (h *manifestHolder) Skill(name string) (*manifest.Skill, bool) {
	m := h.current.Load()
	if m == nil {
		return nil, false
	}
	sk, ok := m.Skills[name]
	return sk, ok
}

// SkillNames enables the executor's "did you mean" suggestions.
func (h *manifestHolder) SkillNames() []string {
	m := h.current.Load()
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Skills))
	for name := range m.Skills {
		names = append(names, name)
	}
	return names
}

// newSecretStore selects the configured secret backend, wrapped so every
// access is logged by (namespace, key, operation) without value content.
func newSecretStore(cfg *config.Config) secret.Store {
	var backend secret.Store
	switch cfg.Runtime.SecretBackend {
	case "env":
		backend = secret.NewEnvStore()
	default:
		backend = secret.NewKeyringStore()
	}
	return secret.NewLoggingStore(backend, slog.Default())
}

// newRuntimeRegistry wires the three runtime adapters.
func newRuntimeRegistry(ctx context.Context, cfg *config.Config) (*runtime.Registry, func(), error) {
	component, err := runtime.NewComponentAdapter(ctx, cfg.Runtime.ComponentCacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create component runtime: %w", err)
	}
	container := runtime.NewContainerAdapter(cfg.Runtime.ContainerBinary)
	native := runtime.NewNativeAdapter(cfg.Runtime.NativeAllowlist)

	registry := runtime.NewRegistry(component, container, native)
	cleanup := func() { _ = component.Close(context.Background()) }
	return registry, cleanup, nil
}

// usageFanout delivers one usage event to the catalog's counters and the
// bounded execution log.
type usageFanout struct {
	metadata catalog.MetadataStore
	history  *session.Log
}

func (u *usageFanout) RecordUsage(toolID string, succeeded bool, at time.Time) {
	if u.metadata != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := u.metadata.RecordUsage(ctx, toolID, succeeded, at); err != nil {
			slog.Warn("failed to record usage", slog.String("tool_id", toolID), slog.String("error", err.Error()))
		}
	}
	if u.history != nil {
		u.history.RecordUsage(toolID, succeeded, at)
	}
}

func runServe(ctx context.Context, transport, manifestFlag string) error {
	// MCP protocol requires stdout to be used exclusively for JSON-RPC, so
	// logging goes to file only.
	logCleanup, err := logging.SetupMCPMode()
	if err == nil {
		defer logCleanup()
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".skillrunner")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	manifestPath := resolveManifestPath(root, manifestFlag)
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest (run 'skillrunner init' first): %w", err)
	}
	for _, issue := range manifest.Validate(m) {
		slog.Warn("manifest validation", slog.String("issue", issue.Error()))
	}
	holder := &manifestHolder{}
	holder.current.Store(m)

	// Discovery side: metadata, lexical, vector, embedder, engine.
	metadata, err := catalog.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25Path := filepath.Join(dataDir, "bm25.bleve")
	bm25, err := catalog.NewBleveBM25Index(bm25Path, catalog.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		slog.Warn("embedder unavailable, falling back to static embeddings", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vector, err := catalog.NewHNSWStore(catalog.VectorStoreConfig{
		Dimensions: embedder.Dimensions(), Metric: "cos", M: 16, EfSearch: 64,
	})
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if err := vector.Load(vectorPath); err != nil {
		slog.Debug("no existing vector store to load", slog.String("error", err.Error()))
	}

	engineCfg := search.DefaultConfig()
	if cfg.Search.RRFConstant > 0 {
		engineCfg.RRFConstant = cfg.Search.RRFConstant
	}
	engineCfg.DefaultWeights = search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight}
	metrics := telemetry.NewQueryMetrics(nil)
	engine, err := search.NewEngine(bm25, vector, embedder, metadata, engineCfg, search.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	// Execution side: secrets, adapters, history, executor.
	secrets := newSecretStore(cfg)
	registry, registryCleanup, err := newRuntimeRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer registryCleanup()

	history, err := session.Load(dataDir, cfg.History.MaxEntries)
	if err != nil {
		slog.Warn("execution log unreadable, starting fresh", slog.String("error", err.Error()))
		history = session.NewLog(cfg.History.MaxEntries)
	}
	defer func() {
		if cfg.History.AutoSave {
			if err := history.Save(dataDir); err != nil {
				slog.Warn("failed to save execution log", slog.String("error", err.Error()))
			}
		}
	}()

	usage := &usageFanout{metadata: metadata, history: history}
	executor := execute.New(holder, secrets, registry, usage, slog.Default())

	server, err := mcp.NewServer(engine, metadata, executor, holder, embedder, cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	server.SetMetrics(metrics)
	if err := server.RegisterResources(ctx); err != nil {
		slog.Warn("failed to register resources", slog.String("error", err.Error()))
	}

	slog.Info("serving skill catalog",
		slog.Int("skills", len(m.Skills)),
		slog.String("manifest", manifestPath),
		slog.String("transport", transport))

	return server.Serve(ctx, transport)
}
