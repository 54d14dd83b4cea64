package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	stdSync "sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	"github.com/c0deZ3R0/go-offline-queue/logging"
)

// ChangeNotification is the payload published on ChangeChannel
type ChangeNotification struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Version    int64  `json:"version"`
	Op         string `json:"op"` // INSERT, UPDATE or DELETE
}

// ChangeHandler handles one change notification
type ChangeHandler func(ChangeNotification)

// InvalidateCache returns a handler that drops c's entries for the changed document
func InvalidateCache(c *cache.Cache) ChangeHandler {
	return func(n ChangeNotification) {
		c.InvalidateDocument(context.Background(), n.Collection, n.ID)
	}
}

// parseNotification decodes a NOTIFY payload
func parseNotification(payload string) (ChangeNotification, error) {
	var n ChangeNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	if n.Collection == "" || n.ID == "" {
		return n, fmt.Errorf("notification payload without collection or id: %s", payload)
	}
	return n, nil
}

// Listener follows ChangeChannel and fans notifications out to handlers.
// pq.Listener reconnects on its own; Listener re-issues LISTEN after each
// reconnect.
type Listener struct {
	listener *pq.Listener
	logger   *slog.Logger
	closed   int32 // atomic

	mu       stdSync.RWMutex
	handlers []ChangeHandler

	pingInterval time.Duration
	done         chan struct{}
}

// NewListener prepares a listener on connectionString. It connects lazily.
func NewListener(connectionString string, logger *slog.Logger) (*Listener, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}
	l := &Listener{
		logger:       logging.For(logger, component+".listener"),
		pingInterval: 90 * time.Second,
		done:         make(chan struct{}),
	}
	l.listener = pq.NewListener(connectionString, 5*time.Second, time.Minute, l.eventCallback)
	return l, nil
}

func (l *Listener) eventCallback(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		l.logger.Info("connected for LISTEN/NOTIFY")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("disconnected from PostgreSQL", "error", err)
	case pq.ListenerEventReconnected:
		// notifications sent while disconnected are lost
		l.logger.Info("reconnected to PostgreSQL")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("connection attempt failed", "error", err)
	}
}

// Subscribe registers fn for every change
func (l *Listener) Subscribe(fn ChangeHandler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, fn)
	l.mu.Unlock()
}

// Run listens until ctx is cancelled or Close is called
func (l *Listener) Run(ctx context.Context) error {
	if atomic.LoadInt32(&l.closed) == 1 {
		return fmt.Errorf("listener is closed")
	}
	if err := l.listener.Listen(ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen to channel %s: %w", ChangeChannel, err)
	}
	l.logger.Info("listening for document changes", "channel", ChangeChannel)

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case n := <-l.listener.Notify:
			// nil after a reconnect
			if n != nil {
				l.dispatch(n.Extra)
			}
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *Listener) dispatch(payload string) {
	n, err := parseNotification(payload)
	if err != nil {
		l.logger.Warn("dropping notification", "error", err)
		return
	}
	l.mu.RLock()
	handlers := append([]ChangeHandler(nil), l.handlers...)
	l.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

// Close shuts down the listener
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	close(l.done)
	return l.listener.Close()
}
