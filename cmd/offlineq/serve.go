package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c0deZ3R0/go-offline-queue/transport/httptransport"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		listen string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP document server",
		Long: `Serve the document API over the memory or Postgres remote so that other
offlineq instances can use it with remote.kind: http.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *c.cfg
			if cfg.Remote.Kind == "http" {
				return fmt.Errorf("serve needs a memory or postgres remote, not %q", cfg.Remote.Kind)
			}
			cfg.Remote.Listen = false
			if listen != "" {
				cfg.Serve.Listen = listen
			}
			if token != "" {
				cfg.Serve.Token = token
			}

			a := &app{cfg: &cfg, logger: c.logger}
			if err := a.openRemote(); err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveDocuments(ctx, a)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (overrides serve.listen)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token clients must present")
	return cmd
}

func serveDocuments(ctx context.Context, a *app) error {
	handler := httptransport.NewHandler(a.remote,
		httptransport.WithServerToken(a.cfg.Serve.Token),
		httptransport.WithCompression(true),
		httptransport.WithServerLogger(a.logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	serveHTTP(gctx, g, a.logger.With("server", "documents"), &http.Server{
		Addr:              a.cfg.Serve.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	})

	if addr := a.cfg.Metrics.Listen; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		serveHTTP(gctx, g, a.logger.With("server", "metrics"), &http.Server{
			Addr:              addr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}
	return g.Wait()
}
