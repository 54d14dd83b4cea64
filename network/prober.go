package network

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/c0deZ3R0/go-offline-queue/logging"
)

const (
	DefaultProbeInterval    = 15 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultFailureThreshold = 2
)

// Prober polls an HTTP health endpoint and feeds a Monitor. It reports
// offline after FailureThreshold consecutive failed probes and online after a
// single successful one.
type Prober struct {
	URL              string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	Client           *http.Client
	Monitor          *Monitor
	Logger           *slog.Logger

	failures int
}

// NewProber creates a prober with default timings
func NewProber(url string, monitor *Monitor, logger *slog.Logger) *Prober {
	return &Prober{
		URL:              url,
		Interval:         DefaultProbeInterval,
		Timeout:          DefaultProbeTimeout,
		FailureThreshold: DefaultFailureThreshold,
		Client:           &http.Client{},
		Monitor:          monitor,
		Logger:           logging.For(logger, "network.prober"),
	}
}

// Probe performs one health check and applies the result to the monitor.
// It returns whether the endpoint answered with a 2xx status.
func (p *Prober) Probe(ctx context.Context) bool {
	ok := p.check(ctx)
	if ok {
		p.failures = 0
		p.Monitor.SetOnline(true)
		return true
	}

	p.failures++
	threshold := p.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	if p.failures >= threshold {
		p.Monitor.SetOnline(false)
	}
	return false
}

func (p *Prober) check(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		p.logger().Error("invalid probe URL", "url", p.URL, "error", err)
		return false
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		p.logger().Debug("health probe failed", "url", p.URL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger().Debug("health probe unhealthy", "url", p.URL, "status", resp.StatusCode)
		return false
	}
	return true
}

// Run probes immediately and then every Interval until ctx is done
func (p *Prober) Run(ctx context.Context) error {
	if p.Monitor == nil {
		return errors.New("prober has no monitor")
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	p.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger == nil {
		p.Logger = logging.For(nil, "network.prober")
	}
	return p.Logger
}
