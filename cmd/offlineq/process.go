package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newProcessCmd(c *cli) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Replay pending items against the remote",
		Long: `Run one processing pass and print its result. With --watch the queue is
processed on the configured schedule and whenever connectivity returns, until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if watch {
					return runWatch(ctx, a)
				}
				a.probeOnce(ctx)
				result, err := a.manager.ProcessQueue(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep processing until interrupted")
	return cmd
}

// runWatch runs auto-sync with the prober, change listener and metrics
// endpoint alongside it
func runWatch(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if a.prober != nil {
		g.Go(func() error { return ignoreCanceled(a.prober.Run(gctx)) })
	}
	if a.listener != nil {
		g.Go(func() error { return ignoreCanceled(a.listener.Run(gctx)) })
	}
	if addr := a.cfg.Metrics.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsHandler(a.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		serveHTTP(gctx, g, a.logger.With("server", "metrics"), srv)
	}

	if err := a.manager.StartAutoSync(gctx); err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	a.logger.Info("watching queue", "schedule", a.cfg.Queue.Schedule, "probe_url", a.cfg.Network.ProbeURL)

	<-gctx.Done()
	if err := a.manager.StopAutoSync(); err != nil {
		a.logger.Debug("auto sync already stopped", "error", err)
	}
	return g.Wait()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// serveHTTP runs srv in g and shuts it down gracefully once ctx is done
func serveHTTP(ctx context.Context, g *errgroup.Group, logger *slog.Logger, srv *http.Server) {
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err)
			return err
		}
		logger.Info("http server stopped")
		return nil
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
