package queuekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

// SystemResolver is recorded as ResolvedBy for automatic resolutions
const SystemResolver = "system"

// ResolveConflict settles the open conflict on itemID with strategy.
// finalData is only used by MERGE; nil means an automatic union where the
// client wins on overlapping fields. A second call for the same item fails
// with ErrConflictNotFound.
func (m *Manager) ResolveConflict(ctx context.Context, itemID string, strategy conflict.Strategy, finalData map[string]any, userID string) (*Item, error) {
	if err := m.checkOpen(queueErrors.OpResolve); err != nil {
		return nil, err
	}
	return m.resolve(ctx, itemID, strategy, finalData, userID)
}

// ResolveAll applies strategy to every open conflict in scope and returns how
// many were settled. Failures are joined and do not stop the rest.
func (m *Manager) ResolveAll(ctx context.Context, strategy conflict.Strategy, userID string) (int, error) {
	if err := m.checkOpen(queueErrors.OpResolve); err != nil {
		return 0, err
	}
	if !strategy.Automatic() {
		return 0, queueErrors.NewValidationError(queueErrors.OpResolve, fmt.Errorf("%w: %q", conflict.ErrPendingStrategy, strategy))
	}

	records, err := m.store.ListConflicts(ctx, m.scope)
	if err != nil {
		return 0, queueErrors.NewStorageError(queueErrors.OpResolve, err)
	}

	var errs []error
	resolved := 0
	for _, rec := range records {
		if _, err := m.resolve(ctx, rec.ItemID, strategy, nil, userID); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", rec.ItemID, err))
			continue
		}
		resolved++
	}
	m.logger.Info("bulk conflict resolution finished",
		"strategy", strategy,
		"resolved", resolved,
		"failed", len(errs))
	return resolved, errors.Join(errs...)
}

func (m *Manager) resolve(ctx context.Context, itemID string, strategy conflict.Strategy, finalData map[string]any, userID string) (*Item, error) {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	logger := m.logger.With("item_id", itemID, "strategy", strategy)

	rec, err := m.store.GetConflict(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrConflictNotFound) {
			return nil, queueErrors.NewConflictError(queueErrors.OpResolve, err)
		}
		return nil, queueErrors.NewStorageError(queueErrors.OpResolve, err)
	}

	decision, err := conflict.Plan(strategy, rec.ServerData, rec.ClientData, finalData)
	if err != nil {
		return nil, queueErrors.NewValidationError(queueErrors.OpResolve, err)
	}

	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, queueErrors.NewStorageError(queueErrors.OpResolve, err)
	}

	if decision.Write {
		wctx, cancel := context.WithTimeout(ctx, m.itemTimeout)
		err := m.writeResolution(wctx, rec, decision)
		cancel()
		if err != nil {
			if !decision.Force && errors.Is(err, ErrVersionMismatch) {
				m.refreshConflict(ctx, rec)
				logger.Info("server changed during merge, conflict refreshed", "server_version", rec.ServerVersion)
				return nil, queueErrors.NewConflictError(queueErrors.OpResolve, err)
			}
			logger.Warn("resolution write failed, conflict stays open", "error", err)
			return nil, queueErrors.E(queueErrors.OpResolve, queueErrors.Component("queuekit"), err)
		}
	}

	now := m.now()
	item.Status = StatusCompleted
	item.Error = ""
	item.Data = decision.Data
	item.UpdatedAt = now
	item.Metadata.ConflictResolution = strategy
	item.Metadata.ResolvedBy = userID
	item.Metadata.ResolvedAt = &now

	if err := m.store.CompleteResolution(ctx, item); err != nil {
		if errors.Is(err, ErrConflictNotFound) {
			return nil, queueErrors.NewConflictError(queueErrors.OpResolve, err)
		}
		logger.Error("failed to complete resolution", "error", err)
		return nil, queueErrors.NewStorageError(queueErrors.OpResolve, err)
	}

	m.invalidate(ctx, item)
	m.metrics.RecordConflictResolved(strategy)
	logger.Info("conflict resolved", "resolved_by", userID, "wrote", decision.Write)
	return item.Clone(), nil
}

// writeResolution pushes the decided value. A forced write recreates a
// document the server deleted; a conditional one is pinned to the server
// version captured in the record.
func (m *Manager) writeResolution(ctx context.Context, rec *ConflictResolution, d conflict.Decision) error {
	if d.Force {
		if rec.ServerVersion == "" {
			_, err := m.remote.Create(ctx, rec.Collection, rec.DocumentID, d.Data)
			if errors.Is(err, ErrVersionMismatch) {
				_, err = m.remote.Update(ctx, rec.Collection, rec.DocumentID, d.Data, "")
			}
			return err
		}
		_, err := m.remote.Update(ctx, rec.Collection, rec.DocumentID, d.Data, "")
		if errors.Is(err, ErrNotFound) {
			_, err = m.remote.Create(ctx, rec.Collection, rec.DocumentID, d.Data)
		}
		return err
	}

	if rec.ServerVersion == "" {
		_, err := m.remote.Create(ctx, rec.Collection, rec.DocumentID, d.Data)
		return err
	}
	_, err := m.remote.Update(ctx, rec.Collection, rec.DocumentID, d.Data, rec.ServerVersion)
	if errors.Is(err, ErrNotFound) {
		// deleted since detection, which is a mismatch too
		return fmt.Errorf("%w: document was deleted", ErrVersionMismatch)
	}
	return err
}

// refreshConflict replaces the record's server snapshot with the current one
func (m *Manager) refreshConflict(ctx context.Context, rec *ConflictResolution) {
	doc, err := m.remote.Get(ctx, rec.Collection, rec.DocumentID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec.ServerData = nil
		rec.ServerVersion = ""
	case err != nil:
		m.logger.Warn("failed to refresh conflict snapshot", "item_id", rec.ItemID, "error", err)
		return
	default:
		rec.ServerData = doc.Data
		rec.ServerVersion = doc.Version
	}
	rec.DetectedAt = m.now()
	if err := m.store.UpdateConflict(ctx, rec); err != nil {
		m.logger.Error("failed to store refreshed conflict", "item_id", rec.ItemID, "error", err)
	}
}
