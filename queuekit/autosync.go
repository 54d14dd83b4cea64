package queuekit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/network"
)

// autoSync runs passes on a cron schedule, on every reconnect, and again
// after a backoff while items keep failing transiently
type autoSync struct {
	cron        *cron.Cron
	unsubscribe func()
	trigger     chan struct{}
	cancel      context.CancelFunc
	done        chan struct{}
}

func (a *autoSync) kick() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// release detaches the triggers
func (a *autoSync) release() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *autoSync) stop() {
	a.release()
	a.cancel()
	<-a.done
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

// StartAutoSync begins automatic processing until ctx is done or
// StopAutoSync is called. A first pass is triggered immediately.
func (m *Manager) StartAutoSync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return queueErrors.New(queueErrors.OpProcess, ErrManagerClosed)
	}
	if m.auto != nil {
		return queueErrors.New(queueErrors.OpProcess, errors.New("auto sync is already running"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &autoSync{
		trigger: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if m.schedule != "" {
		logger := cronLogger{l: m.logger.With("op", "autosync")}
		a.cron = cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		)
		if _, err := a.cron.AddFunc(m.schedule, a.kick); err != nil {
			cancel()
			return queueErrors.NewValidationError(queueErrors.OpConfig, err)
		}
		a.cron.Start()
	}

	if m.monitor != nil {
		a.unsubscribe = m.monitor.OnStatusChange(func(s network.Status) {
			if s.Online {
				a.kick()
			}
		})
	}

	m.auto = a
	go m.autoSyncLoop(runCtx, a)
	a.kick()

	m.logger.Info("auto sync started", "schedule", m.schedule, "reconnect_trigger", m.monitor != nil)
	return nil
}

// StopAutoSync stops automatic processing and waits for a running pass to end
func (m *Manager) StopAutoSync() error {
	m.mu.Lock()
	a := m.auto
	m.auto = nil
	m.mu.Unlock()

	if a == nil {
		return queueErrors.New(queueErrors.OpProcess, errors.New("auto sync is not running"))
	}
	a.stop()
	m.logger.Info("auto sync stopped")
	return nil
}

// endAutoSync runs when the loop exits. If the caller's context ended it
// rather than StopAutoSync or Close, the manager still points at a and the
// loop tears it down so StartAutoSync works again.
func (m *Manager) endAutoSync(a *autoSync) {
	m.mu.Lock()
	owned := m.auto == a
	if owned {
		m.auto = nil
	}
	m.mu.Unlock()

	if !owned {
		return
	}
	a.release()
	a.cancel()
	m.logger.Info("auto sync stopped", "reason", "context done")
}

func (m *Manager) autoSyncLoop(ctx context.Context, a *autoSync) {
	defer close(a.done)
	defer m.endAutoSync(a)

	attempt := 0
	var timer *time.Timer
	var retryC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			retryC = nil
		}
	}
	defer stopTimer()

	run := func() {
		res, err := m.ProcessQueue(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			m.logger.Error("auto sync pass failed", "error", err)
		case res.Skipped:
			m.logger.Debug("auto sync pass skipped", "reason", res.Reason)
			return
		case res.Retried == 0:
			attempt = 0
			m.backoff.Reset()
			stopTimer()
			return
		}

		delay := m.backoff.NextDelay(attempt)
		attempt++
		stopTimer()
		timer = time.NewTimer(delay)
		retryC = timer.C
		m.logger.Debug("transient failures remain, backing off", "delay", delay, "attempt", attempt)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.trigger:
			run()
		case <-retryC:
			timer, retryC = nil, nil
			run()
		}
	}
}
