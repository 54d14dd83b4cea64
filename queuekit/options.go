package queuekit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	"github.com/c0deZ3R0/go-offline-queue/conflict"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/network"
)

// DefaultItemTimeout bounds one remote dispatch
const DefaultItemTimeout = 30 * time.Second

// Option is a functional option for configuring a Manager via NewManager.
type Option func(*Manager) error

// WithStore injects the durable store. Required.
func WithStore(s Store) Option {
	return func(m *Manager) error {
		if s == nil {
			return errors.New("store must not be nil")
		}
		m.store = s
		return nil
	}
}

// WithRemote injects the remote document store. Required.
func WithRemote(r Remote) Option {
	return func(m *Manager) error {
		if r == nil {
			return errors.New("remote must not be nil")
		}
		m.remote = r
		return nil
	}
}

// WithMonitor sets the network monitor. Without one the manager assumes it is online.
func WithMonitor(mon *network.Monitor) Option {
	return func(m *Manager) error {
		m.monitor = mon
		return nil
	}
}

// WithCache enables the read-side response cache used by Get
func WithCache(c *cache.Cache) Option {
	return func(m *Manager) error {
		m.cache = c
		return nil
	}
}

// WithScope limits processing, stats and listings to one user and team
func WithScope(userID, teamID string) Option {
	return func(m *Manager) error {
		m.scope = Filter{UserID: userID, TeamID: teamID}
		return nil
	}
}

// WithMaxRetries sets the retry budget for items that do not declare their own
func WithMaxRetries(n int) Option {
	return func(m *Manager) error {
		if n < 0 {
			return errors.New("max retries must not be negative")
		}
		m.maxRetries = n
		return nil
	}
}

// WithItemTimeout bounds each remote dispatch
func WithItemTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return errors.New("item timeout must be positive")
		}
		m.itemTimeout = d
		return nil
	}
}

// WithClaimLease sets how old another manager's claim on a PROCESSING item
// must be before a pass treats it as abandoned and requeues it. It defaults
// to twice the item timeout and must outlast it.
func WithClaimLease(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return errors.New("claim lease must be positive")
		}
		m.claimLease = d
		return nil
	}
}

// WithConflictPolicy sets the strategy applied to conflicts on items that do
// not declare one. USER_CHOICE leaves them pending.
func WithConflictPolicy(s conflict.Strategy) Option {
	return func(m *Manager) error {
		if !s.Valid() {
			return conflict.ErrUnknownStrategy
		}
		m.policy = s
		return nil
	}
}

// WithLogger sets the manager's logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = l
		return nil
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(c MetricsCollector) Option {
	return func(m *Manager) error {
		if c != nil {
			m.metrics = c
		}
		return nil
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// WithAutoSync configures the cron schedule StartAutoSync uses, e.g.
// "@every 1m" or "*/5 * * * *". An empty schedule syncs on reconnect only.
func WithAutoSync(schedule string) Option {
	return func(m *Manager) error {
		if schedule != "" {
			if _, err := cron.ParseStandard(schedule); err != nil {
				return queueErrors.NewValidationError(queueErrors.OpConfig, err)
			}
		}
		m.schedule = schedule
		return nil
	}
}

// WithBackoff overrides the auto-sync backoff between passes with transient failures
func WithBackoff(b BackoffStrategy) Option {
	return func(m *Manager) error {
		if b != nil {
			m.backoff = b
		}
		return nil
	}
}
