package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/output"
)

func newCompactCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rebuild the vector index without orphaned nodes",
		Long: `Rebuild the HNSW vector index, dropping the orphaned nodes that
re-embedding leaves behind.

The daemon compacts automatically when the catalog is idle; this
command forces a rebuild now, e.g. after a large manifest change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Compact even when there are few orphans")

	return cmd
}

func runCompact(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	vectorPath := filepath.Join(root, ".skillrunner", "vectors.hnsw")
	if !fileExists(vectorPath) {
		return fmt.Errorf("no vector index found. Run 'skillrunner index' first")
	}

	vector, err := catalog.NewHNSWStore(catalog.VectorStoreConfig{Dimensions: 1})
	if err != nil {
		return err
	}
	defer func() { _ = vector.Close() }()
	// Load restores the persisted config, including the real dimension.
	if err := vector.Load(vectorPath); err != nil {
		return fmt.Errorf("failed to load vector index: %w", err)
	}

	stats := vector.Stats()
	out.Statusf("ℹ", "%d node(s), %d orphan(s)", stats.GraphNodes, stats.Orphans)

	if stats.Orphans == 0 {
		out.Success("nothing to compact")
		return nil
	}
	if !force && stats.Orphans < 10 {
		out.Success("orphan count is small; pass --force to compact anyway")
		return nil
	}

	removed, err := vector.Compact(cmd.Context())
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	if err := vector.Save(vectorPath); err != nil {
		return fmt.Errorf("failed to save compacted index: %w", err)
	}

	out.Successf("removed %d orphaned node(s)", removed)
	return nil
}
