package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/daemon"
	"github.com/skillrunner/skillrunner/internal/manifest"
)

func newSkillsCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List installed skills, instances, and tools",
		Long: `List every skill the manifest declares, with its instances and the
execution signature of each tool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkills(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Case-insensitive substring filter on skill names")

	return cmd
}

func runSkills(cmd *cobra.Command, filter string) error {
	stdout := cmd.OutOrStdout()

	// Fast path via the daemon when it is running.
	client := daemon.NewClient(daemon.DefaultConfig())
	if client.IsRunning() {
		result, err := client.ListSkills(cmd.Context(), daemon.ListSkillsParams{Filter: filter, Limit: 1000})
		if err != nil {
			return err
		}
		for _, sk := range result.Skills {
			printSkillSummary(stdout, sk.Name, sk.Runtime, sk.Description, sk.Instances, sk.Tools)
		}
		fmt.Fprintf(stdout, "%d skill(s)\n", result.Total)
		return nil
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	m, err := manifest.Load(resolveManifestPath(root, ""))
	if err != nil {
		return fmt.Errorf("failed to load manifest (run 'skillrunner init' first): %w", err)
	}

	names := make([]string, 0, len(m.Skills))
	for name := range m.Skills {
		if filter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(filter)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sk := m.Skills[name]
		instances := make([]string, 0, len(sk.Instances))
		for instName := range sk.Instances {
			instances = append(instances, instName)
		}
		sort.Strings(instances)
		tools := make([]string, 0, len(sk.Tools))
		for _, t := range sk.Tools {
			tools = append(tools, t.Signature(sk.Name))
		}
		printSkillSummary(stdout, sk.Name, string(sk.Runtime), sk.Description, instances, tools)
	}
	fmt.Fprintf(stdout, "%d skill(s)\n", len(names))
	return nil
}

func printSkillSummary(w io.Writer, name, runtimeKind, description string, instances, tools []string) {
	fmt.Fprintf(w, "%s (%s)\n", name, runtimeKind)
	if description != "" {
		fmt.Fprintf(w, "  %s\n", description)
	}
	if len(instances) > 0 {
		fmt.Fprintf(w, "  instances: %s\n", strings.Join(instances, ", "))
	}
	for _, tool := range tools {
		fmt.Fprintf(w, "  - %s\n", tool)
	}
	fmt.Fprintln(w)
}
