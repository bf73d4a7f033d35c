package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/daemon"
	"github.com/skillrunner/skillrunner/internal/execute"
	"github.com/skillrunner/skillrunner/internal/logging"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/output"
	"github.com/skillrunner/skillrunner/internal/session"
)

func newExecuteCmd() *cobra.Command {
	var instance string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "execute <skill[@instance]:tool> [key=value ...]",
		Short: "Run a skill's tool inside its sandbox",
		Long: `Run one tool of an installed skill.

The target is "skill:tool" or "skill@instance:tool"; the instance
defaults to "default". Arguments are key=value pairs validated against
the tool's declared parameters before anything runs.

Examples:
  skillrunner execute echo-skill:say text=hello
  skillrunner execute kubernetes@prod:get resource=pods
  skillrunner execute deploy:apply path=./app.yaml --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args[0], args[1:], instance, jsonOut)
		},
	}

	cmd.Flags().StringVar(&instance, "instance", "", "Instance name (overrides @instance in the target)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw ExecutionResult as JSON")

	return cmd
}

// parseTarget splits "skill[@instance]:tool" into its parts.
func parseTarget(target string) (skill, instance, tool string, err error) {
	instance = "default"
	head, tool, ok := strings.Cut(target, ":")
	if !ok || tool == "" || head == "" {
		return "", "", "", fmt.Errorf("target must be skill[@instance]:tool, got %q", target)
	}
	if name, inst, hasInst := strings.Cut(head, "@"); hasInst {
		if name == "" || inst == "" {
			return "", "", "", fmt.Errorf("target must be skill[@instance]:tool, got %q", target)
		}
		head, instance = name, inst
	}
	return head, instance, tool, nil
}

// parseArguments turns key=value pairs into the arguments object.
func parseArguments(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("arguments must be key=value pairs, got %q", pair)
		}
		args[key] = value
	}
	return args, nil
}

func runExecute(cmd *cobra.Command, target string, argPairs []string, instanceFlag string, jsonOut bool) error {
	skillName, instanceName, toolName, err := parseTarget(target)
	if err != nil {
		return err
	}
	if instanceFlag != "" {
		instanceName = instanceFlag
	}
	arguments, err := parseArguments(argPairs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// Fast path: a running daemon already has the executor warm.
	client := daemon.NewClient(daemon.DefaultConfig())
	if client.IsRunning() {
		result, err := client.Execute(ctx, daemon.ExecuteParams{
			Skill: skillName, Tool: toolName, Instance: instanceName, Arguments: arguments,
		})
		if err != nil {
			return err
		}
		return printExecuteResult(cmd, result, jsonOut)
	}

	// Local path: wire the executor directly.
	result, err := executeLocal(ctx, skillName, toolName, instanceName, arguments)
	if err != nil {
		return err
	}
	return printExecuteResult(cmd, result, jsonOut)
}

// executeLocal runs one tool without a daemon: load manifest, wire the
// executor, run, record history.
func executeLocal(ctx context.Context, skillName, toolName, instanceName string, arguments map[string]any) (*daemon.ExecuteResult, error) {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	dataDir := filepath.Join(root, ".skillrunner")

	m, err := manifest.Load(resolveManifestPath(root, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest (run 'skillrunner init' first): %w", err)
	}
	holder := &manifestHolder{}
	holder.current.Store(m)

	secrets := newSecretStore(cfg)
	registry, registryCleanup, err := newRuntimeRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer registryCleanup()

	history, err := session.Load(dataDir, cfg.History.MaxEntries)
	if err != nil {
		history = session.NewLog(cfg.History.MaxEntries)
	}
	defer func() {
		if cfg.History.AutoSave {
			_ = history.Save(dataDir)
		}
	}()

	executor := execute.New(holder, secrets, registry, &usageFanout{history: history}, slog.Default())

	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("arguments must form a JSON object: %w", err)
	}

	result, execErr := executor.Execute(ctx, skillName, toolName, instanceName, argsJSON)
	if execErr != nil {
		return nil, execErr
	}
	return &daemon.ExecuteResult{
		Success:    true,
		Output:     result.OutputJSON,
		Truncated:  result.Truncated,
		DurationMS: result.DurationMS,
	}, nil
}

func printExecuteResult(cmd *cobra.Command, result *daemon.ExecuteResult, jsonOut bool) error {
	stdout := cmd.OutOrStdout()
	out := output.New(cmd.ErrOrStderr())

	if jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	if !result.Success {
		out.Errorf("execution failed (%s): %s", result.ErrorCategory, result.ErrorMessage)
		return fmt.Errorf("execution failed")
	}

	if len(result.Output) > 0 {
		fmt.Fprintln(stdout, string(result.Output))
	}
	if result.Truncated {
		out.Warning("output truncated at the configured size cap")
	}
	out.Statusf("⏱", "completed in %d ms", result.DurationMS)
	return nil
}
