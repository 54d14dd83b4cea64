// Package queuekit is the offline operation queue: it records mutations made
// while the client may be disconnected, replays them against the remote
// document store in priority order, and tracks write-write conflicts until
// they are resolved.
package queuekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	"github.com/c0deZ3R0/go-offline-queue/conflict"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/network"
)

// ErrManagerClosed is returned by every operation after Close
var ErrManagerClosed = errors.New("queue manager is closed")

// ErrOffline is returned by Get on a cache miss while offline
var ErrOffline = errors.New("offline and not cached")

// Manager coordinates the store, the remote, the network monitor and the cache
type Manager struct {
	store       Store
	remote      Remote
	monitor     *network.Monitor
	cache       *cache.Cache
	scope       Filter
	maxRetries  int
	itemTimeout time.Duration
	claimLease  time.Duration
	owner       string
	policy      conflict.Strategy
	logger      *slog.Logger
	metrics     MetricsCollector
	now         func() time.Time
	schedule    string
	backoff     BackoffStrategy
	validate    *validator.Validate

	// processing guards the single in-flight pass
	processing atomic.Bool
	resolveMu  sync.Mutex

	mu          sync.RWMutex
	subscribers []statsSubscriber
	nextSubID   uint64
	auto        *autoSync
	closed      bool
}

type statsSubscriber struct {
	id uint64
	fn func(Stats)
}

// NewManager builds a Manager. WithStore and WithRemote are required.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		maxRetries:  DefaultMaxRetries,
		itemTimeout: DefaultItemTimeout,
		policy:      conflict.UserChoice,
		metrics:     &NoOpMetricsCollector{},
		now:         time.Now,
		backoff:     DefaultBackoff(),
		validate:    newValidator(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, queueErrors.E(
				queueErrors.Op("queuekit.NewManager"),
				queueErrors.Component("queuekit"),
				queueErrors.KindInvalid,
				queueErrors.ErrCodeValidationFailure,
				err,
			)
		}
	}

	if m.store == nil {
		return nil, queueErrors.E(
			queueErrors.Op("queuekit.NewManager"),
			queueErrors.Component("queuekit"),
			queueErrors.KindInvalid,
			queueErrors.ErrCodeValidationFailure,
			errors.New("store is required (use WithStore(...))"),
		)
	}
	if m.remote == nil {
		return nil, queueErrors.E(
			queueErrors.Op("queuekit.NewManager"),
			queueErrors.Component("queuekit"),
			queueErrors.KindInvalid,
			queueErrors.ErrCodeValidationFailure,
			errors.New("remote is required (use WithRemote(...))"),
		)
	}

	if m.claimLease == 0 {
		m.claimLease = 2 * m.itemTimeout
	}
	if m.claimLease <= m.itemTimeout {
		return nil, queueErrors.E(
			queueErrors.Op("queuekit.NewManager"),
			queueErrors.Component("queuekit"),
			queueErrors.KindInvalid,
			queueErrors.ErrCodeValidationFailure,
			fmt.Errorf("claim lease %v must be longer than the item timeout %v", m.claimLease, m.itemTimeout),
		)
	}
	m.owner = uuid.NewString()
	m.logger = logging.For(m.logger, "queuekit")
	return m, nil
}

func (m *Manager) checkOpen(op queueErrors.Operation) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return queueErrors.New(op, ErrManagerClosed)
	}
	return nil
}

// scoped fills the manager scope into empty scope fields of f
func (m *Manager) scoped(f Filter) Filter {
	if f.UserID == "" {
		f.UserID = m.scope.UserID
	}
	if f.TeamID == "" {
		f.TeamID = m.scope.TeamID
	}
	return f
}

// AddToQueue validates req and durably records a PENDING item. It never
// touches the network.
func (m *Manager) AddToQueue(ctx context.Context, req EnqueueRequest) (*Item, error) {
	if err := m.checkOpen(queueErrors.OpEnqueue); err != nil {
		return nil, err
	}
	if err := validateRequest(m.validate, req); err != nil {
		return nil, queueErrors.NewValidationError(queueErrors.OpEnqueue, err)
	}

	now := m.now()
	item := &Item{
		ID:         uuid.NewString(),
		Type:       req.Type,
		Collection: req.Collection,
		DocumentID: req.DocumentID,
		Data:       conflict.Clone(req.Data),
		Priority:   req.Priority,
		Status:     StatusPending,
		MaxRetries: m.maxRetries,
		Timestamp:  now,
		UpdatedAt:  now,
		UserID:     req.UserID,
		TeamID:     req.TeamID,
		Metadata: Metadata{
			OriginalVersion:    req.OriginalVersion,
			ConflictResolution: req.ConflictResolution,
		},
	}
	if item.Priority == "" {
		item.Priority = PriorityNormal
	}
	if req.MaxRetries != nil {
		item.MaxRetries = *req.MaxRetries
	}
	if item.UserID == "" {
		item.UserID = m.scope.UserID
	}
	if item.TeamID == "" {
		item.TeamID = m.scope.TeamID
	}
	if len(req.Operations) > 0 {
		item.Operations = (&Item{Operations: req.Operations}).Clone().Operations
	}

	if err := m.store.SaveItem(ctx, item); err != nil {
		m.logger.Error("failed to persist queue item", "item_id", item.ID, "error", err)
		return nil, queueErrors.NewStorageError(queueErrors.OpEnqueue, err)
	}

	m.logger.Debug("queued operation",
		"item_id", item.ID,
		"type", item.Type,
		"collection", item.Collection,
		"priority", item.Priority)
	return item.Clone(), nil
}

// GetQueueItems lists items in insertion order
func (m *Manager) GetQueueItems(ctx context.Context, filter Filter) ([]*Item, error) {
	if err := m.checkOpen(queueErrors.OpLoad); err != nil {
		return nil, err
	}
	items, err := m.store.ListItems(ctx, m.scoped(filter))
	if err != nil {
		return nil, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}
	return items, nil
}

// GetItem returns one item by id
func (m *Manager) GetItem(ctx context.Context, id string) (*Item, error) {
	if err := m.checkOpen(queueErrors.OpLoad); err != nil {
		return nil, err
	}
	item, err := m.store.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, queueErrors.NewNotFoundError(queueErrors.OpLoad, "queuekit", err)
		}
		return nil, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}
	return item, nil
}

// GetQueueStats counts the items in scope by status
func (m *Manager) GetQueueStats(ctx context.Context) (Stats, error) {
	if err := m.checkOpen(queueErrors.OpLoad); err != nil {
		return Stats{}, err
	}
	return m.stats(ctx)
}

func (m *Manager) stats(ctx context.Context) (Stats, error) {
	items, err := m.store.ListItems(ctx, m.scope)
	if err != nil {
		return Stats{}, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}
	return ComputeStats(items), nil
}

// RemoveFromQueue deletes an item and its conflict record. Items a pass is
// working on are refused with ErrItemInFlight.
func (m *Manager) RemoveFromQueue(ctx context.Context, id string) error {
	if err := m.checkOpen(queueErrors.OpRemove); err != nil {
		return err
	}
	if err := m.store.DeleteItem(ctx, id); err != nil {
		switch {
		case errors.Is(err, ErrItemNotFound):
			return queueErrors.NewNotFoundError(queueErrors.OpRemove, "queuekit", err)
		case errors.Is(err, ErrItemInFlight):
			return queueErrors.E(queueErrors.OpRemove, queueErrors.Component("queuekit"), queueErrors.KindInvalid, err)
		}
		return queueErrors.NewStorageError(queueErrors.OpRemove, err)
	}
	m.logger.Debug("removed queue item", "item_id", id)
	return nil
}

// ClearQueue removes matching items, skipping any that are in flight, and
// returns how many were removed
func (m *Manager) ClearQueue(ctx context.Context, filter Filter) (int, error) {
	if err := m.checkOpen(queueErrors.OpRemove); err != nil {
		return 0, err
	}
	n, err := m.store.ClearItems(ctx, m.scoped(filter))
	if err != nil {
		return 0, queueErrors.NewStorageError(queueErrors.OpRemove, err)
	}
	m.logger.Info("cleared queue", "removed", n, "status", filter.Status)
	return n, nil
}

// GetConflicts lists open conflicts in scope
func (m *Manager) GetConflicts(ctx context.Context, filter Filter) ([]*ConflictResolution, error) {
	if err := m.checkOpen(queueErrors.OpLoad); err != nil {
		return nil, err
	}
	records, err := m.store.ListConflicts(ctx, m.scoped(filter))
	if err != nil {
		return nil, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}
	return records, nil
}

// IsOnline reports the monitor state; without a monitor the manager is always online
func (m *Manager) IsOnline() bool {
	if m.monitor == nil {
		return true
	}
	return m.monitor.IsOnline()
}

// OnNetworkStatusChange subscribes to connectivity transitions
func (m *Manager) OnNetworkStatusChange(fn func(online bool)) (unsubscribe func()) {
	if m.monitor == nil {
		return func() {}
	}
	return m.monitor.OnStatusChange(func(s network.Status) { fn(s.Online) })
}

// Subscribe registers fn to receive stats after every processing pass
func (m *Manager) Subscribe(fn func(Stats)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, statsSubscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subscribers {
				if s.id == id {
					m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func (m *Manager) notifySubscribers(stats Stats) {
	m.mu.RLock()
	subs := make([]statsSubscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("stats subscriber panic recovered", "panic", r)
				}
			}()
			s.fn(stats)
		}()
	}
}

// Get reads a document through the response cache. While offline, only
// cached documents are served.
func (m *Manager) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := m.checkOpen(queueErrors.OpCache); err != nil {
		return nil, err
	}

	load := func(ctx context.Context) ([]byte, error) {
		if !m.IsOnline() {
			return nil, queueErrors.NewNetworkError(queueErrors.OpCache, ErrOffline)
		}
		doc, err := m.remote.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	}

	if m.cache == nil {
		raw, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return decodeDocument(raw)
	}

	raw, err := m.cache.GetOrLoad(ctx, cache.Signature(collection, id, nil), load)
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

func decodeDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, queueErrors.New(queueErrors.OpCache, fmt.Errorf("decode cached document: %w", err))
	}
	return &doc, nil
}

func (m *Manager) invalidate(ctx context.Context, item *Item) {
	if m.cache == nil {
		return
	}
	if item.Type == OpBatch {
		for _, op := range item.Operations {
			if op.DocumentID != "" {
				m.cache.InvalidateDocument(ctx, op.Collection, op.DocumentID)
			}
		}
		return
	}
	if item.DocumentID != "" {
		m.cache.InvalidateDocument(ctx, item.Collection, item.DocumentID)
	}
}

// Close stops auto-sync and closes the store. It is safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	auto := m.auto
	m.auto = nil
	m.mu.Unlock()

	if auto != nil {
		auto.stop()
	}

	if err := m.store.Close(); err != nil {
		m.logger.Error("error closing store", "error", err)
		return queueErrors.NewWithComponent(queueErrors.OpClose, "store", err)
	}
	m.logger.Info("queue manager closed")
	return nil
}
