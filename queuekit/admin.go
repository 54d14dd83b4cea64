package queuekit

import (
	"context"
	"errors"
	"time"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

// ErrPassRunning is returned by admin operations that cannot run during a pass
var ErrPassRunning = errors.New("a processing pass is running")

// AdminOps exposes maintenance operations that regular callers should not need
type AdminOps struct {
	m *Manager
}

// Admin returns the maintenance operations
func (m *Manager) Admin() *AdminOps {
	return &AdminOps{m: m}
}

// Snapshot is a point-in-time dump of the queue for debugging
type Snapshot struct {
	TakenAt      time.Time             `json:"takenAt"`
	Online       bool                  `json:"online"`
	Stats        Stats                 `json:"stats"`
	Items        []*Item               `json:"items"`
	Conflicts    []*ConflictResolution `json:"conflicts"`
	CacheEntries int                   `json:"cacheEntries"`
}

// ClearCache empties the response cache and its persisted copy
func (a *AdminOps) ClearCache(ctx context.Context) error {
	if a.m.cache == nil {
		return nil
	}
	if err := a.m.cache.Clear(ctx); err != nil {
		return queueErrors.NewWithComponent(queueErrors.OpCache, "cache", err)
	}
	return nil
}

// RetryFailed moves FAILED items back to PENDING with a fresh retry budget
func (a *AdminOps) RetryFailed(ctx context.Context, filter Filter) (int, error) {
	if err := a.m.checkOpen(queueErrors.OpStore); err != nil {
		return 0, err
	}
	filter = a.m.scoped(filter)
	filter.Status = StatusFailed
	items, err := a.m.store.ListItems(ctx, filter)
	if err != nil {
		return 0, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}

	n := 0
	for _, it := range items {
		it.Status = StatusPending
		it.RetryCount = 0
		it.Error = ""
		it.UpdatedAt = a.m.now()
		if err := a.m.store.SaveItem(ctx, it); err != nil {
			return n, queueErrors.NewStorageError(queueErrors.OpStore, err)
		}
		n++
	}
	a.m.logger.Info("failed items requeued", "count", n)
	return n, nil
}

// PurgeCompleted deletes COMPLETED items in scope
func (a *AdminOps) PurgeCompleted(ctx context.Context) (int, error) {
	if err := a.m.checkOpen(queueErrors.OpRemove); err != nil {
		return 0, err
	}
	filter := a.m.scope
	filter.Status = StatusCompleted
	n, err := a.m.store.ClearItems(ctx, filter)
	if err != nil {
		return 0, queueErrors.NewStorageError(queueErrors.OpRemove, err)
	}
	a.m.logger.Info("completed items purged", "count", n)
	return n, nil
}

// RecoverInterrupted requeues PROCESSING items left by a crashed pass
// without running one, using the same claim rules as a pass. It refuses to
// run while a pass is in progress.
func (a *AdminOps) RecoverInterrupted(ctx context.Context) (int, error) {
	if err := a.m.checkOpen(queueErrors.OpStore); err != nil {
		return 0, err
	}
	if !a.m.processing.CompareAndSwap(false, true) {
		return 0, queueErrors.New(queueErrors.OpStore, ErrPassRunning)
	}
	defer a.m.processing.Store(false)

	n, err := a.m.store.ResetProcessing(ctx, a.m.recovery())
	if err != nil {
		return 0, queueErrors.NewStorageError(queueErrors.OpStore, err)
	}
	return n, nil
}

// Snapshot returns every item and conflict in scope
func (a *AdminOps) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := a.m.checkOpen(queueErrors.OpLoad); err != nil {
		return nil, err
	}
	items, err := a.m.store.ListItems(ctx, a.m.scope)
	if err != nil {
		return nil, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}
	conflicts, err := a.m.store.ListConflicts(ctx, a.m.scope)
	if err != nil {
		return nil, queueErrors.NewStorageError(queueErrors.OpLoad, err)
	}

	snap := &Snapshot{
		TakenAt:   a.m.now(),
		Online:    a.m.IsOnline(),
		Stats:     ComputeStats(items),
		Items:     items,
		Conflicts: conflicts,
	}
	if a.m.cache != nil {
		snap.CacheEntries = a.m.cache.Len()
	}
	return snap, nil
}
