package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/daemon"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog and index status",
		Long: `Show the installed skill set, index storage, embedder, and daemon
state. Use this before 'skillrunner serve' to confirm the catalog is
ready.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOut, noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOut, noColor bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".skillrunner")

	info := ui.StatusInfo{
		ProjectName:    filepath.Base(root),
		EmbedderType:   "unknown",
		EmbedderStatus: "offline",
		WatcherStatus:  "n/a",
	}

	// Manifest counts
	if m, err := manifest.Load(resolveManifestPath(root, "")); err == nil {
		info.TotalSkills = len(m.Skills)
		for _, sk := range m.Skills {
			info.TotalTools += len(sk.Tools) * max(len(sk.Instances), 1)
		}
	}

	// Storage sizes and index freshness
	metadataPath := filepath.Join(dataDir, "metadata.db")
	info.MetadataSize = fileSize(metadataPath)
	info.BM25Size = dirSize(filepath.Join(dataDir, "bm25.bleve"))
	info.VectorSize = fileSize(filepath.Join(dataDir, "vectors.hnsw")) + fileSize(filepath.Join(dataDir, "vectors.hnsw.meta"))
	info.TotalSize = info.MetadataSize + info.BM25Size + info.VectorSize

	if stat, err := os.Stat(metadataPath); err == nil {
		info.LastIndexed = stat.ModTime()
	}

	if fileExists(metadataPath) {
		if metadata, err := catalog.NewSQLiteMetadataStore(metadataPath); err == nil {
			if model, err := metadata.GetState(cmd.Context(), catalog.StateKeyIndexModel); err == nil && model != "" {
				info.EmbedderModel = model
			}
			_ = metadata.Close()
		}
	}

	// Daemon state doubles as the live embedder state.
	client := daemon.NewClient(daemon.DefaultConfig())
	if client.IsRunning() {
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		if status, err := client.Status(ctx); err == nil {
			info.EmbedderType = status.EmbedderType
			info.EmbedderStatus = status.EmbedderStatus
			info.WatcherStatus = "running"
		}
		cancel()
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
	if jsonOut {
		return renderer.RenderJSON(info)
	}
	if err := renderer.Render(info); err != nil {
		return err
	}
	if info.TotalSkills == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No skills installed - run 'skillrunner init' to scaffold a manifest.")
	}
	return nil
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
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
