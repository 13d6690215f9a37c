// Command sweeper purges ghosts whose shrine window has elapsed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/protocol6713/internal/config"
	"github.com/punchamoorthee/protocol6713/internal/logging"
	"github.com/punchamoorthee/protocol6713/internal/service"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Purge expired ghost accounts",
		Long: `Tombstones self-killed accounts whose 72 hour shrine window has elapsed.
Each ghost's remaining Talents are forfeited to the house.

Configuration is read from the environment (DB_DRIVER, DB_SOURCE, LOG_LEVEL,
SWEEP_INTERVAL) and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logging.New(cmd.ErrOrStderr(), mustLevel(cfg.LogLevel), "sweeper")
			return nil
		},
	}

	cmd.AddCommand(newOnceCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func mustLevel(s string) slog.Level {
	lvl, _ := logging.ParseLevel(s)
	return lvl
}

func newOnceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single purge pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := openService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := svc.PurgeGhosts(cmd.Context())
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d ghosts, forfeited %d talents\n", len(res.Purged), res.Forfeited)
			}
			return err
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Purge on every SWEEP_INTERVAL until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, closeStore, err := openService(ctx, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sweepLoop(ctx, svc, opts.cfg.SweepInterval, opts.logger) })
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddr, opts.cfg.ShutdownTimeout) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose /metrics on (disabled when empty)")
	return cmd
}

func openService(ctx context.Context, opts *rootOptions) (*service.Service, func(), error) {
	st, err := store.Open(ctx, opts.cfg.DBDriver, opts.cfg.DBSource)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return service.New(st, service.WithLogger(opts.logger)), st.Close, nil
}

// sweepLoop purges immediately and then on every tick. A failed pass is
// logged and retried on the next tick; successful passes are logged by the
// service.
func sweepLoop(ctx context.Context, svc *service.Service, every time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger.Info("sweeper started", "interval", every)
	for {
		_, err := svc.PurgeGhosts(ctx)
		switch {
		case ctx.Err() != nil:
			logger.Info("sweeper stopped")
			return nil
		case err != nil:
			logger.Error("purge pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func metricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func serveMetrics(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: metricsRouter(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
