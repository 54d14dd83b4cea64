package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	"github.com/c0deZ3R0/go-offline-queue/config"
	"github.com/c0deZ3R0/go-offline-queue/conflict"
	promcollector "github.com/c0deZ3R0/go-offline-queue/metrics/prometheus"
	"github.com/c0deZ3R0/go-offline-queue/network"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
	memoryremote "github.com/c0deZ3R0/go-offline-queue/remote/memory"
	"github.com/c0deZ3R0/go-offline-queue/remote/postgres"
	"github.com/c0deZ3R0/go-offline-queue/storage/memory"
	"github.com/c0deZ3R0/go-offline-queue/storage/sqlite"
	"github.com/c0deZ3R0/go-offline-queue/transport/httptransport"
)

// app holds every component built from one configuration
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    queuekit.Store
	remote   queuekit.Remote
	monitor  *network.Monitor
	prober   *network.Prober
	cache    *cache.Cache
	listener *postgres.Listener
	registry *prometheus.Registry
	manager  *queuekit.Manager

	closers []func() error
}

// openApp wires the store, remote, monitor, cache and metrics into a manager
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStore(); err != nil {
		return nil, err
	}
	if err := a.openRemote(); err != nil {
		return nil, err
	}

	a.monitor = network.NewMonitor(cfg.Network.AssumeOnline, network.WithLogger(logger))
	if cfg.Network.ProbeURL != "" {
		a.prober = network.NewProber(cfg.Network.ProbeURL, a.monitor, logger)
		a.prober.Interval = cfg.Network.Interval
		a.prober.Timeout = cfg.Network.Timeout
		a.prober.FailureThreshold = cfg.Network.FailureThreshold
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithLogger(logger),
	}
	if s, ok := a.store.(*sqlite.Store); ok && cfg.Cache.Persist {
		cacheOpts = append(cacheOpts, cache.WithPersister(s))
	}
	a.cache = cache.New(cacheOpts...)
	if err := a.cache.Restore(ctx); err != nil {
		logger.Warn("failed to restore response cache", "error", err)
	}

	if a.listener != nil {
		a.listener.Subscribe(postgres.InvalidateCache(a.cache))
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []queuekit.Option{
		queuekit.WithStore(a.store),
		queuekit.WithRemote(a.remote),
		queuekit.WithMonitor(a.monitor),
		queuekit.WithCache(a.cache),
		queuekit.WithScope(cfg.Queue.UserID, cfg.Queue.TeamID),
		queuekit.WithMaxRetries(cfg.Queue.MaxRetries),
		queuekit.WithItemTimeout(cfg.Queue.ItemTimeout),
		queuekit.WithConflictPolicy(conflict.Strategy(cfg.Queue.ConflictPolicy)),
		queuekit.WithLogger(logger),
		queuekit.WithMetrics(promcollector.NewCollector(a.registry)),
		queuekit.WithBackoff(&queuekit.ExponentialBackoff{
			InitialDelay: cfg.Queue.BackoffInitial,
			MaxDelay:     cfg.Queue.BackoffMax,
			Multiplier:   2,
		}),
	}
	if cfg.Queue.Schedule != "" {
		opts = append(opts, queuekit.WithAutoSync(cfg.Queue.Schedule))
	}
	if cfg.Queue.ClaimLease > 0 {
		opts = append(opts, queuekit.WithClaimLease(cfg.Queue.ClaimLease))
	}

	m, err := queuekit.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	a.manager = m
	ok = true
	return a, nil
}

func (a *app) openStore() error {
	switch a.cfg.Store.Kind {
	case "memory":
		a.store = memory.New()
	case "sqlite":
		sc := sqlite.DefaultConfig(a.cfg.Store.Path)
		sc.EnableWAL = a.cfg.Store.EnableWAL
		sc.Logger = a.logger
		s, err := sqlite.New(sc)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = s
	default:
		return fmt.Errorf("unknown store kind %q", a.cfg.Store.Kind)
	}
	return nil
}

func (a *app) openRemote() error {
	rc := a.cfg.Remote
	switch rc.Kind {
	case "memory":
		a.remote = memoryremote.New()
	case "http":
		a.remote = httptransport.NewClient(rc.URL, &http.Client{},
			httptransport.WithClientCompression(true),
			httptransport.WithClientTimeout(rc.Timeout),
			httptransport.WithRateLimit(rc.RateLimit, rc.Burst),
			httptransport.WithToken(rc.Token),
			httptransport.WithClientLogger(a.logger),
		)
	case "postgres":
		pc := postgres.DefaultConfig(rc.DSN)
		pc.Logger = a.logger
		r, err := postgres.New(pc)
		if err != nil {
			return fmt.Errorf("open postgres remote: %w", err)
		}
		a.remote = r
		a.closers = append(a.closers, r.Close)

		if rc.Listen {
			l, err := postgres.NewListener(rc.DSN, a.logger)
			if err != nil {
				return fmt.Errorf("create change listener: %w", err)
			}
			a.listener = l
			a.closers = append(a.closers, l.Close)
		}
	default:
		return fmt.Errorf("unknown remote kind %q", rc.Kind)
	}
	return nil
}

// probeOnce refreshes the connectivity status before a one-shot command
func (a *app) probeOnce(ctx context.Context) {
	if a.prober != nil {
		a.prober.Probe(ctx)
	}
}

// Close releases everything openApp acquired
func (a *app) Close() error {
	var errs []error
	// the manager owns the store once it exists
	switch {
	case a.manager != nil:
		errs = append(errs, a.manager.Close())
	case a.store != nil:
		errs = append(errs, a.store.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
