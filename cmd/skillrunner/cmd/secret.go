package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/output"
	"github.com/skillrunner/skillrunner/internal/secret"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets used by skill instances",
		Long: `Store, list, and delete the secrets instances reference with
secret://namespace/key. Values go to the OS keyring (or the configured
backend) and are only ever read back during sandbox assembly — list
shows key names, never values.`,
	}

	cmd.AddCommand(newSecretSetCmd())
	cmd.AddCommand(newSecretListCmd())
	cmd.AddCommand(newSecretDeleteCmd())

	return cmd
}

func openSecretStore() secret.Store {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	return newSecretStore(cfg)
}

// parseSecretRef splits "namespace/key".
func parseSecretRef(ref string) (namespace, key string, err error) {
	namespace, key, ok := strings.Cut(ref, "/")
	if !ok || namespace == "" || key == "" {
		return "", "", fmt.Errorf("secret reference must be namespace/key, got %q", ref)
	}
	return namespace, key, nil
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <namespace/key>",
		Short: "Store a secret value (prompted, never echoed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, key, err := parseSecretRef(args[0])
			if err != nil {
				return err
			}

			out := output.New(cmd.ErrOrStderr())

			var value []byte
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s/%s: ", namespace, key)
				value, err = term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("failed to read value: %w", err)
				}
			} else {
				// Piped input, e.g. `cat token | skillrunner secret set api/token`.
				raw, readErr := io.ReadAll(os.Stdin)
				if readErr != nil {
					return fmt.Errorf("failed to read value from stdin: %w", readErr)
				}
				value = []byte(strings.TrimRight(string(raw), "\r\n"))
			}
			if len(value) == 0 {
				return fmt.Errorf("empty secret value")
			}

			store := openSecretStore()
			if err := store.Set(cmd.Context(), namespace, key, value); err != nil {
				return err
			}
			out.Successf("stored %s/%s", namespace, key)
			return nil
		},
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <namespace>",
		Short: "List secret key names in a namespace (values are never shown)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := openSecretStore()
			keys, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no secrets in namespace %q\n", args[0])
				return nil
			}
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", args[0], key)
			}
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <namespace/key>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, key, err := parseSecretRef(args[0])
			if err != nil {
				return err
			}
			store := openSecretStore()
			if err := store.Delete(cmd.Context(), namespace, key); err != nil {
				return err
			}
			output.New(cmd.ErrOrStderr()).Successf("deleted %s/%s", namespace, key)
			return nil
		},
	}
}
