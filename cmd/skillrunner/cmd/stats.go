package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
)

func newStatsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tool usage counters",
		Long: `Show the usage counters the catalog keeps per tool document: how
often each tool ran, its success rate, and when it was last used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum tools to show")

	return cmd
}

func runStats(cmd *cobra.Command, limit int) error {
	stdout := cmd.OutOrStdout()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	metadataPath := filepath.Join(root, ".skillrunner", "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found. Run 'skillrunner index' first")
	}

	metadata, err := catalog.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	ids, err := metadata.AllDocumentIDs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tool documents: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(stdout, "no tool documents indexed")
		return nil
	}

	docs, err := metadata.GetDocuments(cmd.Context(), ids)
	if err != nil {
		return fmt.Errorf("failed to read tool documents: %w", err)
	}

	// Most-used first; unused tools sort last alphabetically.
	sort.Slice(docs, func(i, j int) bool {
		ti := docs[i].SucceededCount + docs[i].FailedCount
		tj := docs[j].SucceededCount + docs[j].FailedCount
		if ti != tj {
			return ti > tj
		}
		return docs[i].ID < docs[j].ID
	})

	shown := 0
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if limit > 0 && shown >= limit {
			break
		}
		total := doc.SucceededCount + doc.FailedCount
		if total == 0 {
			fmt.Fprintf(stdout, "%-40s never used\n", doc.ID)
		} else {
			fmt.Fprintf(stdout, "%-40s %4d run(s)  %3.0f%% ok  last %s\n",
				doc.ID, total,
				float64(doc.SucceededCount)/float64(total)*100,
				doc.LastUsedAt.Format("2006-01-02 15:04:05"))
		}
		shown++
	}
	fmt.Fprintf(stdout, "%d of %d tool(s) shown\n", shown, len(docs))
	return nil
}
