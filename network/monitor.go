// Package network tracks whether the remote store is reachable.
//
// A Monitor is a signal source: something else (a platform event, a test, or
// a Prober) tells it the current state, and it fans transitions out to
// subscribers. It never retries or smooths on its own.
package network

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-offline-queue/logging"
)

// Status is a snapshot of connectivity
type Status struct {
	Online bool
	Since  time.Time
}

type subscriber struct {
	id uint64
	fn func(Status)
}

// Monitor holds the current connectivity state
type Monitor struct {
	mu     sync.Mutex
	status Status
	subs   []subscriber
	nextID uint64
	now    func() time.Time
	logger *slog.Logger
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithLogger sets the monitor's logger
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logging.For(l, "network") }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor starting in the given state
func NewMonitor(online bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.For(nil, "network")
	}
	m.status = Status{Online: online, Since: m.now()}
	return m
}

// IsOnline reports the current state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Online
}

// Status returns the current snapshot
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetOnline records a new state. Subscribers run only on a transition, in
// subscription order, on the caller's goroutine and outside the lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.status.Online == online {
		m.mu.Unlock()
		return
	}
	m.status = Status{Online: online, Since: m.now()}
	status := m.status
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("network status changed", "online", online, "subscribers", len(subs))

	for _, s := range subs {
		m.notify(s, status)
	}
}

func (m *Monitor) notify(s subscriber, status Status) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("network subscriber panic recovered", "panic", r, "online", status.Online)
		}
	}()
	s.fn(status)
}

// OnStatusChange registers fn for future transitions. The returned function
// removes the subscription and is safe to call more than once.
func (m *Monitor) OnStatusChange(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}
