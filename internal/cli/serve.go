package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/httpapi"
	"github.com/rbruinekool/singularity/internal/reconcile"
	"github.com/rbruinekool/singularity/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and dispatcher",
		Long: `Serve the HTTP control API, the operator endpoints and the websocket
event feed, and dispatch animation state changes to the renderer.

Without remote.baseURL the API still runs but nothing is sent to a renderer.

Example:
  singularity serve --db ./singularity.db --listen :8080
  SINGULARITY_REMOTE_BASE_URL=http://renderer:5000 singularity serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	setupLogging(cfg)

	eng := engine.New()
	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithPublisher(eng))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	hub := httpapi.NewHub(nil)
	hub.Register(eng)

	var pusher httpapi.Pusher
	d := newDispatcher(cfg, st, dispatch.WithNotify(hub.NotifyDispatch))
	if d != nil {
		d.Register(eng)
		pusher = d
		slog.Info("dispatching to renderer", "remote", cfg.Remote.BaseURL)
	} else {
		slog.Warn("remote.baseURL not set, state changes will not be dispatched")
	}

	srv := httpapi.New(st, reconcile.New(st), pusher, hub, httpapi.WithBacklog(eng.QueueLen))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ServeListener(gctx, ln)
	})
	g.Go(func() error {
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	err = g.Wait()
	if d != nil {
		d.Wait()
	}
	if err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
