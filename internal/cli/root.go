// Package cli holds the sqlscope command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanizio/sqlscope/internal/config"
	"github.com/yanizio/sqlscope/internal/vault"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

type options struct {
	configPath string
}

// NewRootCmd builds a fresh command tree.  Tests call it once per case so
// flag state never leaks between runs.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "sqlscope",
		Short: "SQL Server observability bridge",
		Long: `sqlscope serves SQL Server telemetry stored in Elasticsearch, live DMV
snapshots, and Ollama-generated health summaries over a small JSON API.

Its settings live in one YAML document (config/settings.yaml by default)
that can be inspected and updated at runtime through /config.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("sqlscope %s\n", Version))
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"settings file (default: $APP_CONFIG_FILE or config/settings.yaml)")

	root.AddCommand(newServeCmd(opts), newConfigCmd(opts))
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

// settingsPath picks the flag, then the bootstrap file setting.
func (o *options) settingsPath(boot config.Bootstrap) string {
	if o.configPath != "" {
		return o.configPath
	}
	return boot.File
}

// newLoader builds the Loader described by boot, wiring Vault when enabled.
func newLoader(ctx context.Context, boot config.Bootstrap) (*config.Loader, error) {
	opts := []config.LoaderOption{config.WithStrict(boot.StrictEnv)}
	if boot.Vault.Enabled {
		cli, err := vault.New(ctx, boot.Vault.CacheTTL, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.WithSecrets(cli))
	}
	l := config.NewLoader(opts...)
	l.SecretTimeout = boot.Vault.Timeout
	return l, nil
}
