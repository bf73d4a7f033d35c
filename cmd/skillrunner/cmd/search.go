package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/daemon"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/logging"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	skill    string // restrict results to one skill
	format   string // "text", "json"
	bm25Only bool   // skip semantic search, use BM25 only
	local    bool   // Force local search (bypass daemon)
	explain  bool   // show search decision process
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the right tool for a task",
		Long: `Search the installed tool catalog using hybrid search.

Combines BM25 (keyword) and semantic (embedding) search with
Reciprocal Rank Fusion, so both "git log" and "show me commit
history" find the same tool.

Examples:
  skillrunner search "show me running pods"
  skillrunner search "send an email" --limit 5
  skillrunner search "apply" --skill deploy
  skillrunner search "convert currency" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.skill, "skill", "", "Restrict results to one named skill")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Force local search (bypass daemon)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show search decision process (BM25/vector results, weights, RRF fusion)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	// Initialize logging for CLI observability.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	// Find project root
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	// Check for index
	dataDir := filepath.Join(root, ".skillrunner")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'skillrunner index' first")
	}

	// Try daemon-based search first (fast, keeps embedder loaded).
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)
	if !opts.local && client.IsRunning() {
		slog.Info("search_using_daemon")
		results, err := client.SearchSkills(ctx, daemon.SearchParams{
			Query:    query,
			TopK:     opts.limit,
			Skill:    opts.skill,
			BM25Only: opts.bm25Only,
			Explain:  opts.explain,
		})
		if err != nil {
			// Daemon error - log warning and fall through to local search
			slog.Warn("Daemon search failed, falling back to local",
				slog.String("error", err.Error()))
		} else {
			slog.Info("search_complete", slog.String("mode", "daemon"), slog.Int("results", len(results)))
			return formatDaemonResults(cmd, query, results, opts.format)
		}
	}

	// Local path: open the stores directly.
	results, err := searchLocal(ctx, root, dataDir, query, opts)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.String("mode", "local"), slog.Int("results", len(results)))
	return formatLocalResults(cmd, query, results, opts.format)
}

// searchLocal runs one query against the on-disk index without a daemon.
func searchLocal(ctx context.Context, root, dataDir, query string, opts searchOptions) ([]*search.SearchResult, error) {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := catalog.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25, err := catalog.NewBleveBM25Index(filepath.Join(dataDir, "bm25.bleve"), catalog.DefaultBM25Config())
	if err != nil {
		return nil, fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	// One-shot CLI queries use the configured embedder. With --bm25-only,
	// or when the configured embedder cannot be created, the static
	// embedder stands in and the search runs keyword-only rather than failing.
	var embedder embed.Embedder
	if opts.bm25Only {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		cancel()
		if err != nil {
			slog.Warn("embedder unavailable, using keyword-only search", slog.String("error", err.Error()))
			embedder = embed.NewStaticEmbedder768()
			opts.bm25Only = true
		}
	}
	defer func() { _ = embedder.Close() }()

	vector, err := catalog.NewHNSWStore(catalog.VectorStoreConfig{
		Dimensions: embedder.Dimensions(), Metric: "cos", M: 16, EfSearch: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if err := vector.Load(filepath.Join(dataDir, "vectors.hnsw")); err != nil {
		slog.Debug("no vector store on disk, keyword-only", slog.String("error", err.Error()))
		opts.bm25Only = true
	}

	engineCfg := search.DefaultConfig()
	if cfg.Search.RRFConstant > 0 {
		engineCfg.RRFConstant = cfg.Search.RRFConstant
	}
	if cfg.Search.MaxResults > 0 {
		engineCfg.DefaultLimit = cfg.Search.MaxResults
	}
	engine, err := search.NewEngine(bm25, vector, embedder, metadata, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	return engine.Search(ctx, query, search.SearchOptions{
		Limit:            opts.limit,
		SkillFilter:      opts.skill,
		BM25Only:         opts.bm25Only,
		Explain:          opts.explain,
		MaxContextTokens: cfg.Search.MaxContextTokens,
	})
}

// formatDaemonResults renders results that came over the daemon socket.
func formatDaemonResults(cmd *cobra.Command, query string, results []daemon.SearchResult, format string) error {
	stdout := cmd.OutOrStdout()

	if format == "json" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintf(stdout, "no tools found for %q\n", query)
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(stdout, "%d. %s  (%.3f)\n", i+1, r.ToolID, r.Score)
		if r.Summary != "" {
			fmt.Fprintf(stdout, "   %s\n", r.Summary)
		}
		if r.Signature != "" {
			fmt.Fprintf(stdout, "   run: %s\n", r.Signature)
		}
		if r.Explain != nil {
			fmt.Fprintf(stdout, "   explain: bm25=%d vector=%d weights=%.2f/%.2f k=%d\n",
				r.Explain.BM25ResultCount, r.Explain.VectorResultCount,
				r.Explain.BM25Weight, r.Explain.SemanticWeight, r.Explain.RRFConstant)
		}
	}
	return nil
}

// formatLocalResults renders engine results from the local path.
func formatLocalResults(cmd *cobra.Command, query string, results []*search.SearchResult, format string) error {
	stdout := cmd.OutOrStdout()

	if format == "json" {
		type jsonResult struct {
			ToolID   string  `json:"tool_id"`
			Skill    string  `json:"skill"`
			Instance string  `json:"instance"`
			Tool     string  `json:"tool"`
			Summary  string  `json:"summary,omitempty"`
			Score    float64 `json:"score"`
		}
		list := make([]jsonResult, 0, len(results))
		for _, r := range results {
			if r == nil || r.Document == nil {
				continue
			}
			summary := r.CompressedDescription
			if summary == "" {
				summary = r.Document.Description
			}
			list = append(list, jsonResult{
				ToolID: r.Document.ID, Skill: r.Document.Skill,
				Instance: r.Document.Instance, Tool: r.Document.Tool,
				Summary: summary, Score: r.Score,
			})
		}
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintf(stdout, "no tools found for %q\n", query)
		return nil
	}

	m := loadManifestQuiet()
	for i, r := range results {
		if r == nil || r.Document == nil {
			continue
		}
		fmt.Fprintf(stdout, "%d. %s  (%.3f)\n", i+1, r.Document.ID, r.Score)
		summary := r.CompressedDescription
		if summary == "" {
			summary = r.Document.Description
		}
		if summary != "" {
			fmt.Fprintf(stdout, "   %s\n", summary)
		}
		if m != nil {
			if sk, ok := m.Skills[r.Document.Skill]; ok {
				for _, t := range sk.Tools {
					if t.Name == r.Document.Tool {
						fmt.Fprintf(stdout, "   run: %s\n", t.Signature(sk.Name))
					}
				}
			}
		}
		if r.Explain != nil {
			fmt.Fprintf(stdout, "   explain: bm25=%d vector=%d weights=%.2f/%.2f k=%d\n",
				r.Explain.BM25ResultCount, r.Explain.VectorResultCount,
				r.Explain.Weights.BM25, r.Explain.Weights.Semantic, r.Explain.RRFConstant)
		}
	}
	return nil
}

// loadManifestQuiet loads the manifest for signature display; nil on any
// failure since search output is still useful without signatures.
func loadManifestQuiet() *manifest.Manifest {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return nil
	}
	m, err := manifest.Load(resolveManifestPath(root, ""))
	if err != nil {
		return nil
	}
	return m
}
