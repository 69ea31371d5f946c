package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/yanizio/sqlscope/internal/api"
	"github.com/yanizio/sqlscope/internal/config"
	"github.com/yanizio/sqlscope/internal/logger"
	"github.com/yanizio/sqlscope/internal/server"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

// serve wires bootstrap → logger → loader → manager → router → server.
func serve(ctx context.Context, opts *options) error {
	boot, err := config.LoadBootstrap()
	if err != nil {
		return err
	}

	log, err := logger.New(boot.Log.Dir, boot.Log.Level, isatty.IsTerminal(os.Stdout.Fd()))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	loader, err := newLoader(ctx, boot)
	if err != nil {
		log.Errorw("vault client init failed", "err", err)
		return err
	}

	mgr, err := config.NewManager(opts.settingsPath(boot), loader, config.WithLogger(log))
	if err != nil {
		log.Errorw("initial config load failed", "err", err)
		return err
	}

	srv := server.New(boot.HTTP, api.NewRouter(api.DefaultDeps(mgr)))
	return server.Run(ctx, srv)
}
