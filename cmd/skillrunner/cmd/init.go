package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/configs"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/lifecycle"
	"github.com/skillrunner/skillrunner/internal/output"
)

// MCPServerConfig represents one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig represents the root .mcp.json structure.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force      bool
		offline    bool
		configOnly bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize skillrunner for a project",
		Long: `Initialize skillrunner for the current project.

This command:
1. Scaffolds skills.yaml with a working example skill (if absent)
2. Generates the .skillrunner.yaml configuration template
3. Creates the .skillrunner state directory layout
4. Configures MCP integration for AI clients (.mcp.json)
5. Builds the discovery index (unless --config-only)

After running, restart your MCP client to pick up the server.`,
		Example: `  # Initialize in current project
  skillrunner init

  # Force reinitialize (overwrite existing config)
  skillrunner init --force

  # Fix config only (skip indexing)
  skillrunner init --force --config-only

  # Use offline mode (static embeddings)
  skillrunner init --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInit(ctx, cmd, force, offline, configOnly)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama required)")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Configure only, skip indexing")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, force, offline, configOnly bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	// 1. Starter manifest.
	manifestPath := filepath.Join(root, "skills.yaml")
	if fileExists(manifestPath) && !force {
		out.Status("", fmt.Sprintf("skills.yaml exists at %s (keeping it)", manifestPath))
	} else {
		if err := os.WriteFile(manifestPath, []byte(configs.SkillManifestTemplate), 0644); err != nil {
			return fmt.Errorf("failed to write skills.yaml: %w", err)
		}
		out.Successf("wrote %s", manifestPath)
	}

	// 2. Project config.
	configPath := filepath.Join(root, ".skillrunner.yaml")
	if fileExists(configPath) && !force {
		out.Status("", fmt.Sprintf("config exists at %s (keeping it)", configPath))
	} else {
		if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
			return fmt.Errorf("failed to write .skillrunner.yaml: %w", err)
		}
		out.Successf("wrote %s", configPath)
	}

	// 3. State directory layout: instances/, index/, cache/components/.
	dataDir := filepath.Join(root, ".skillrunner")
	for _, sub := range []string{"", "instances", "index", filepath.Join("cache", "components"), "logs"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	out.Successf("created state layout under %s", dataDir)

	// 4. MCP integration.
	if err := configureMCP(root, force); err != nil {
		out.Warningf("MCP configuration skipped: %v", err)
	} else {
		out.Success("configured .mcp.json")
	}

	// Embedder availability check, with an Ollama install hint.
	if !offline {
		mgr := lifecycle.NewOllamaManager()
		if installed, _, err := mgr.IsInstalled(); err != nil || !installed {
			out.Warning("Ollama not found - semantic search will use the static fallback")
			out.Status("", "Run 'skillrunner setup' to install Ollama, or pass --offline to silence this")
		}
	}

	// 5. Index.
	if configOnly {
		out.Status("", "Skipping indexing (--config-only)")
		return nil
	}
	if err := runIndexWithOptions(ctx, cmd, root, offline, false, force, ""); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	out.Newline()
	out.Success("skillrunner is ready - restart your MCP client, or try:")
	out.Status("", "  skillrunner search \"echo text\"")
	out.Status("", "  skillrunner execute echo-skill:say text=hello")
	return nil
}

// configureMCP writes (or merges into) .mcp.json so MCP clients launch
// skillrunner in this project. An existing skillrunner entry is kept
// unless force is set.
func configureMCP(root string, force bool) error {
	execPath, err := os.Executable()
	if err != nil {
		execPath = "skillrunner"
	}

	mcpPath := filepath.Join(root, ".mcp.json")
	cfg := MCPConfig{MCPServers: map[string]MCPServerConfig{}}

	if raw, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf(".mcp.json exists but is not valid JSON: %w", err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = map[string]MCPServerConfig{}
		}
		if _, exists := cfg.MCPServers["skillrunner"]; exists && !force {
			return nil
		}
	}

	cfg.MCPServers["skillrunner"] = MCPServerConfig{
		Type:    "stdio",
		Command: execPath,
		Args:    []string{"serve"},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(mcpPath, buf.Bytes(), 0644)
}
