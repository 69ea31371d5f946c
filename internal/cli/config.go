package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yanizio/sqlscope/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the settings document",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings with secrets removed",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, err := openManager(cmd, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), config.ExternalForm(mgr.Get()))
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the settings document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, err := openManager(cmd, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", mgr.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <json|->",
			Short: "Merge a partial JSON document into the settings file",
			Long: `Merge a partial JSON document into the settings file.  Absent keys keep
their value, null restores the default.  Pass "-" to read from stdin.

  sqlscope config set '{"ollama":{"model":"mistral"}}'`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw := []byte(args[0])
				if args[0] == "-" {
					b, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return err
					}
					raw = b
				}
				patch, err := config.ParsePatch(raw)
				if err != nil {
					return err
				}
				mgr, err := openManager(cmd, opts)
				if err != nil {
					return err
				}
				s, err := mgr.Update(patch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), config.ExternalForm(s))
			},
		},
	)
	return cmd
}

func openManager(cmd *cobra.Command, opts *options) (*config.Manager, error) {
	boot, err := config.LoadBootstrap()
	if err != nil {
		return nil, err
	}
	loader, err := newLoader(cmd.Context(), boot)
	if err != nil {
		return nil, err
	}
	return config.NewManager(opts.settingsPath(boot), loader)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
