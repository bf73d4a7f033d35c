package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/session"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var summary bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool executions",
		Long: `Show the bounded execution log: which tools ran, when, and whether
they succeeded. The log keeps outcomes only — never tool output or
configuration — and is capped at history.max_entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit, summary)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "Aggregate per tool instead of listing runs")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int, summary bool) error {
	stdout := cmd.OutOrStdout()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	log, err := session.Load(filepath.Join(root, ".skillrunner"), cfg.History.MaxEntries)
	if err != nil {
		return fmt.Errorf("failed to read execution log: %w", err)
	}

	if summary {
		summaries := log.Summarize()
		if len(summaries) == 0 {
			fmt.Fprintln(stdout, "no executions recorded")
			return nil
		}
		for _, s := range summaries {
			fmt.Fprintf(stdout, "%-40s %4d run(s)  %3.0f%% ok  last %s\n",
				s.ToolID, s.Count,
				float64(s.Succeeded)/float64(s.Count)*100,
				s.LastUsed.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	records := log.List()
	if len(records) == 0 {
		fmt.Fprintln(stdout, "no executions recorded")
		return nil
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for _, r := range records {
		status := "ok"
		if !r.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(stdout, "%s  %-40s %s\n", r.At.Format("2006-01-02 15:04:05"), r.ToolID, status)
	}
	return nil
}
