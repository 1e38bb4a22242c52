package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the authority over HTTP",
		Long: `Open the SQLite authority and serve it under /api.

Devices point "eventcore --api http://host:8080" at the server. The server
enforces one registration per identity per event, so devices may retry
joins safely.

Example:
  eventcore serve --db ./eventcore.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $EVENTCORE_ADDR or :8080)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Addr
	}
	srv := api.New(st, opts.Logger)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(addr)
	}()

	opts.Logger.Info("authority listening", "addr", addr, "db", opts.Config.DBPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s. Press Ctrl-C to stop.\n", opts.Config.DBPath, addr)

	select {
	case err := <-errc:
		return WrapExitError(ExitCommandError, "server error", err)
	case sig := <-sigChan:
		opts.Logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}
	opts.Logger.Info("authority stopped gracefully")
	return nil
}
