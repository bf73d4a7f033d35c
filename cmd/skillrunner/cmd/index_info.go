package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/ui"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and statistics",
		Long: `Display detailed information about the Tool Document index including
embedding model, dimensions, document counts, and file sizes.

This command helps you:
- Check which model the current index uses
- Debug dimension mismatch errors
- Verify the index was built correctly after reindexing
- Compare index configurations across projects`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIndexInfo(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// indexInfo summarizes the state of an on-disk Tool Document index.
type indexInfo struct {
	Location    string
	ProjectRoot string

	IndexModel      string
	IndexBackend    string
	IndexDimensions int

	DocumentCount   int
	IndexSizeBytes  int64
	BM25SizeBytes   int64
	VectorSizeBytes int64

	CurrentModel      string
	CurrentBackend    string
	CurrentDimensions int
	Compatible        bool
}

func runIndexInfo(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".skillrunner")
	metadataPath := filepath.Join(dataDir, "metadata.db")

	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s\nRun 'skillrunner index %s' to create one", dataDir, path)
	}

	metadata, err := catalog.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer metadata.Close()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	info, err := buildIndexInfo(ctx, metadata, dataDir, root, cfg)
	if err != nil {
		return fmt.Errorf("failed to get index info: %w", err)
	}

	if jsonOutput {
		return outputIndexInfoJSON(cmd, info)
	}
	return outputIndexInfoHuman(cmd, info)
}

func buildIndexInfo(ctx context.Context, metadata catalog.MetadataStore, dataDir, root string, cfg *config.Config) (*indexInfo, error) {
	docIDs, err := metadata.AllDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	indexModel, _ := metadata.GetState(ctx, catalog.StateKeyIndexModel)
	dimStr, _ := metadata.GetState(ctx, catalog.StateKeyIndexDimension)
	var indexDims int
	fmt.Sscanf(dimStr, "%d", &indexDims)

	info := &indexInfo{
		Location:        dataDir,
		ProjectRoot:     root,
		IndexModel:      indexModel,
		IndexDimensions: indexDims,
		DocumentCount:   len(docIDs),
		IndexSizeBytes:  dirSize(filepath.Join(dataDir, "bm25.bleve")) + fileSize(filepath.Join(dataDir, "metadata.db")),
		BM25SizeBytes:   dirSize(filepath.Join(dataDir, "bm25.bleve")),
		VectorSizeBytes: fileSize(filepath.Join(dataDir, "vectors.hnsw")),
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	if err == nil {
		defer embedder.Close()
		embedInfo := embed.GetInfo(embedCtx, embedder)
		info.CurrentModel = embedInfo.Model
		info.CurrentBackend = string(embedInfo.Provider)
		info.CurrentDimensions = embedInfo.Dimensions
		info.Compatible = info.IndexModel == "" || (info.CurrentModel == info.IndexModel && info.CurrentDimensions == info.IndexDimensions)
	}

	return info, nil
}

func fileSize(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return stat.Size()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi == nil || fi.IsDir() {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total
}

func outputIndexInfoJSON(cmd *cobra.Command, info *indexInfo) error {
	output := map[string]interface{}{
		"location": info.Location,
		"project":  info.ProjectRoot,
		"embedding": map[string]interface{}{
			"model":      info.IndexModel,
			"dimensions": info.IndexDimensions,
		},
		"statistics": map[string]interface{}{
			"documents":         info.DocumentCount,
			"index_size_bytes":  info.IndexSizeBytes,
			"bm25_size_bytes":   info.BM25SizeBytes,
			"vector_size_bytes": info.VectorSizeBytes,
		},
		"current_embedder": map[string]interface{}{
			"model":      info.CurrentModel,
			"backend":    info.CurrentBackend,
			"dimensions": info.CurrentDimensions,
			"compatible": info.Compatible,
		},
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputIndexInfoHuman(cmd *cobra.Command, info *indexInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Index Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Location:    %s\n", info.Location)
	fmt.Fprintf(out, "Project:     %s\n", info.ProjectRoot)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Embedding Configuration:")
	if info.IndexModel != "" {
		fmt.Fprintf(out, "  Model:       %s\n", info.IndexModel)
		fmt.Fprintf(out, "  Dimensions:  %d\n", info.IndexDimensions)
	} else {
		fmt.Fprintln(out, "  (not stored - index has no tool documents yet)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Index Statistics:")
	fmt.Fprintf(out, "  Documents:   %d\n", info.DocumentCount)
	fmt.Fprintf(out, "  Index Size:  %s\n", ui.FormatBytes(info.IndexSizeBytes))
	fmt.Fprintf(out, "  BM25 Size:   %s\n", ui.FormatBytes(info.BM25SizeBytes))
	fmt.Fprintf(out, "  Vector Size: %s\n", ui.FormatBytes(info.VectorSizeBytes))
	fmt.Fprintln(out)

	if info.CurrentModel != "" {
		fmt.Fprintln(out, "Current Embedder:")
		fmt.Fprintf(out, "  Model:       %s\n", info.CurrentModel)
		fmt.Fprintf(out, "  Backend:     %s\n", info.CurrentBackend)
		fmt.Fprintf(out, "  Dimensions:  %d\n", info.CurrentDimensions)

		if info.Compatible {
			fmt.Fprintln(out, "  Status:      Compatible")
		} else {
			fmt.Fprintln(out, "  Status:      INCOMPATIBLE")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Dimension mismatch detected!")
			fmt.Fprintf(out, "    Index: %d dims (%s)\n", info.IndexDimensions, info.IndexModel)
			fmt.Fprintf(out, "    Current: %d dims (%s)\n", info.CurrentDimensions, info.CurrentModel)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "    Semantic search will be disabled until reindex.")
			fmt.Fprintf(out, "    Run 'skillrunner index --force' to rebuild with %s.\n", info.CurrentModel)
		}
	}

	return nil
}
