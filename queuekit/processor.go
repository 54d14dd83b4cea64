package queuekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

// PassResult summarises one processing pass
type PassResult struct {
	// Skipped is set when the pass did not run; Reason says why
	Skipped bool
	Reason  string

	Processed    int
	Completed    int
	Retried      int
	Failed       int
	Conflicts    int
	AutoResolved int

	Duration time.Duration
	Stats    Stats
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeTransient
	outcomePermanent
	outcomeConflict
)

type dispatchResult struct {
	kind outcomeKind
	err  error
	doc  *Document
	// server is the conflicting server document, nil when the server has none
	server *Document
}

// ProcessQueue runs one pass over the pending items in scope. It returns
// immediately, without error, when offline or when another pass is running.
// Item failures are recorded on the items and never returned.
func (m *Manager) ProcessQueue(ctx context.Context) (*PassResult, error) {
	if err := m.checkOpen(queueErrors.OpProcess); err != nil {
		return nil, err
	}
	if !m.IsOnline() {
		return &PassResult{Skipped: true, Reason: "offline"}, nil
	}
	if !m.processing.CompareAndSwap(false, true) {
		return &PassResult{Skipped: true, Reason: "pass already running"}, nil
	}
	defer m.processing.Store(false)

	start := time.Now()
	result := &PassResult{}
	logger := m.logger.With("op", "process")

	if n, err := m.store.ResetProcessing(ctx, m.recovery()); err != nil {
		logger.Warn("failed to recover interrupted items", "error", err)
	} else if n > 0 {
		logger.Info("recovered interrupted items", "count", n)
	}

	filter := m.scope
	filter.Status = StatusPending
	items, err := m.store.ListItems(ctx, filter)
	if err != nil {
		logger.Error("failed to list pending items", "error", err)
		return nil, queueErrors.NewStorageError(queueErrors.OpProcess, err)
	}
	SortForProcessing(items)

	logger.Debug("starting processing pass", "pending", len(items))

	var passErr error
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			passErr = err
			break
		}
		if !m.IsOnline() {
			logger.Info("went offline, stopping pass early", "processed", result.Processed)
			break
		}
		m.processItem(ctx, it.ID, result)
	}

	// Stats and notifications go out even when the pass was cut short
	final := context.WithoutCancel(ctx)
	stats, err := m.stats(final)
	if err != nil {
		logger.Warn("failed to compute queue stats", "error", err)
	}
	result.Stats = stats
	result.Duration = time.Since(start)

	m.metrics.RecordPassDuration(result.Duration)
	m.metrics.RecordQueueStats(stats)
	m.notifySubscribers(stats)

	logger.Info("processing pass finished",
		"processed", result.Processed,
		"completed", result.Completed,
		"retried", result.Retried,
		"failed", result.Failed,
		"conflicts", result.Conflicts,
		"auto_resolved", result.AutoResolved,
		"duration", result.Duration)

	return result, passErr
}

// recovery selects the interrupted items a pass may requeue: its own
// leftovers and claims in scope that outlived the lease. Claims held by
// live managers sharing the store are left alone.
func (m *Manager) recovery() Recovery {
	return Recovery{
		Filter:      m.scope,
		Owner:       m.owner,
		StaleBefore: m.now().Add(-m.claimLease),
	}
}

func (m *Manager) processItem(ctx context.Context, id string, result *PassResult) {
	logger := m.logger.With("item_id", id)

	item, err := m.store.ClaimItem(ctx, id, Claim{Owner: m.owner, At: m.now()})
	if err != nil {
		if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrItemNotFound) {
			logger.Debug("item changed since listing, skipping", "reason", err)
			return
		}
		logger.Error("failed to claim item", "error", err)
		return
	}
	result.Processed++

	dctx, cancel := context.WithTimeout(ctx, m.itemTimeout)
	res := m.dispatch(dctx, item)
	cancel()

	// Transitions are persisted even if the caller cancelled mid-dispatch
	persist := context.WithoutCancel(ctx)

	if res.kind != outcomeSuccess && ctx.Err() != nil {
		// The pass was cancelled, not the item; put it back untouched.
		item.Status = StatusPending
		item.UpdatedAt = m.now()
		if err := m.store.SaveItem(persist, item); err != nil {
			logger.Error("failed to release cancelled item", "error", err)
		}
		return
	}

	switch res.kind {
	case outcomeSuccess:
		m.complete(persist, item, res.doc)
		result.Completed++
	case outcomeConflict:
		result.Conflicts++
		if m.recordConflict(persist, item, res.server) {
			result.AutoResolved++
		}
	case outcomePermanent:
		m.fail(persist, item, res.err)
		result.Failed++
	default:
		if m.retryOrFail(persist, item, res.err) {
			result.Retried++
		} else {
			result.Failed++
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, item *Item) dispatchResult {
	switch item.Type {
	case OpCreate:
		return m.dispatchCreate(ctx, item)
	case OpUpdate:
		return m.dispatchUpdate(ctx, item)
	case OpDelete:
		err := m.remote.Delete(ctx, item.Collection, item.DocumentID)
		if err == nil || errors.Is(err, ErrNotFound) {
			return dispatchResult{kind: outcomeSuccess}
		}
		return classify(err)
	case OpBatch:
		if _, err := m.remote.Commit(ctx, item.Operations); err != nil {
			return classify(err)
		}
		return dispatchResult{kind: outcomeSuccess}
	default:
		return dispatchResult{kind: outcomePermanent, err: fmt.Errorf("unknown operation type %q", item.Type)}
	}
}

func (m *Manager) dispatchCreate(ctx context.Context, item *Item) dispatchResult {
	doc, err := m.remote.Create(ctx, item.Collection, item.DocumentID, item.Data)
	if err == nil {
		return dispatchResult{kind: outcomeSuccess, doc: doc}
	}
	if errors.Is(err, ErrVersionMismatch) && item.DocumentID != "" {
		// the client-chosen id is taken on the server
		return m.snapshotConflict(ctx, item)
	}
	return classify(err)
}

func (m *Manager) dispatchUpdate(ctx context.Context, item *Item) dispatchResult {
	expected := item.Metadata.OriginalVersion
	if expected != "" {
		server, err := m.remote.Get(ctx, item.Collection, item.DocumentID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return classify(err)
		}
		serverVersion := ""
		if err == nil {
			serverVersion = server.Version
		} else {
			server = nil
		}
		if conflict.Detect(expected, serverVersion) {
			return dispatchResult{kind: outcomeConflict, server: server}
		}
	}

	doc, err := m.remote.Update(ctx, item.Collection, item.DocumentID, item.Data, expected)
	switch {
	case err == nil:
		return dispatchResult{kind: outcomeSuccess, doc: doc}
	case errors.Is(err, ErrVersionMismatch):
		// lost the race between Get and Update
		return m.snapshotConflict(ctx, item)
	case errors.Is(err, ErrNotFound) && expected != "":
		return dispatchResult{kind: outcomeConflict}
	}
	return classify(err)
}

// snapshotConflict captures the current server document for a conflict record
func (m *Manager) snapshotConflict(ctx context.Context, item *Item) dispatchResult {
	server, err := m.remote.Get(ctx, item.Collection, item.DocumentID)
	if errors.Is(err, ErrNotFound) {
		return dispatchResult{kind: outcomeConflict}
	}
	if err != nil {
		return dispatchResult{kind: outcomeTransient, err: err}
	}
	return dispatchResult{kind: outcomeConflict, server: server}
}

// classify maps a remote error to an outcome. Anything the remote did not
// mark as a rejection is treated as transient.
func classify(err error) dispatchResult {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionMismatch):
		return dispatchResult{kind: outcomePermanent, err: err}
	case queueErrors.IsPermanent(err), queueErrors.HasCode(err, queueErrors.ErrCodeValidationFailure):
		return dispatchResult{kind: outcomePermanent, err: err}
	default:
		return dispatchResult{kind: outcomeTransient, err: err}
	}
}

func (m *Manager) complete(ctx context.Context, item *Item, doc *Document) {
	item.Status = StatusCompleted
	item.Error = ""
	item.UpdatedAt = m.now()
	if item.Type == OpCreate && item.DocumentID == "" && doc != nil {
		item.DocumentID = doc.ID
	}
	if err := m.store.SaveItem(ctx, item); err != nil {
		m.logger.Error("failed to mark item completed", "item_id", item.ID, "error", err)
	}
	m.invalidate(ctx, item)
	m.metrics.RecordItemOutcome(item.Type, OutcomeCompleted)
	m.logger.Debug("item completed", "item_id", item.ID, "type", item.Type)
}

func (m *Manager) fail(ctx context.Context, item *Item, cause error) {
	item.Status = StatusFailed
	item.Error = cause.Error()
	item.UpdatedAt = m.now()
	if err := m.store.SaveItem(ctx, item); err != nil {
		m.logger.Error("failed to mark item failed", "item_id", item.ID, "error", err)
	}
	m.metrics.RecordItemOutcome(item.Type, OutcomeFailed)
	m.logger.Warn("item failed permanently", "item_id", item.ID, "type", item.Type, "error", cause)
}

// retryOrFail spends one retry. It reports whether the item went back to PENDING.
func (m *Manager) retryOrFail(ctx context.Context, item *Item, cause error) bool {
	item.RetryCount++
	if item.RetryCount > item.MaxRetries {
		item.Status = StatusFailed
		item.Error = cause.Error()
		item.UpdatedAt = m.now()
		if err := m.store.SaveItem(ctx, item); err != nil {
			m.logger.Error("failed to mark item failed", "item_id", item.ID, "error", err)
		}
		m.metrics.RecordItemOutcome(item.Type, OutcomeFailed)
		m.logger.Warn("item exhausted its retries",
			"item_id", item.ID,
			"retry_count", item.RetryCount,
			"max_retries", item.MaxRetries,
			"error", cause)
		return false
	}

	item.Status = StatusPending
	item.Error = ""
	item.UpdatedAt = m.now()
	if err := m.store.SaveItem(ctx, item); err != nil {
		m.logger.Error("failed to return item to pending", "item_id", item.ID, "error", err)
	}
	m.metrics.RecordItemOutcome(item.Type, OutcomeRetried)
	m.logger.Info("item will be retried",
		"item_id", item.ID,
		"retry_count", item.RetryCount,
		"max_retries", item.MaxRetries,
		"error", cause)
	return true
}

// recordConflict stores the conflict and, when a non-interactive strategy
// applies, resolves it straight away. It reports whether it was auto-resolved.
func (m *Manager) recordConflict(ctx context.Context, item *Item, server *Document) bool {
	now := m.now()
	rec := &ConflictResolution{
		ItemID:          item.ID,
		Collection:      item.Collection,
		DocumentID:      item.DocumentID,
		ClientData:      conflict.Clone(item.Data),
		OriginalVersion: item.Metadata.OriginalVersion,
		Strategy:        conflict.UserChoice,
		UserID:          item.UserID,
		TeamID:          item.TeamID,
		DetectedAt:      now,
	}
	if server != nil {
		rec.ServerData = conflict.Clone(server.Data)
		rec.ServerVersion = server.Version
	}

	item.Status = StatusConflict
	item.Error = fmt.Sprintf("conflict: expected version %q, server has %q", rec.OriginalVersion, rec.ServerVersion)
	item.UpdatedAt = now

	if err := m.store.MarkConflict(ctx, item, rec); err != nil {
		m.logger.Error("failed to record conflict", "item_id", item.ID, "error", err)
		return false
	}
	m.metrics.RecordItemOutcome(item.Type, OutcomeConflict)
	m.logger.Info("conflict detected",
		"item_id", item.ID,
		"collection", item.Collection,
		"document_id", item.DocumentID,
		"server_version", rec.ServerVersion,
		"original_version", rec.OriginalVersion,
		"fields", rec.ConflictingFields())

	strategy := item.Metadata.ConflictResolution
	if strategy == "" {
		strategy = m.policy
	}
	if !strategy.Automatic() {
		return false
	}
	if _, err := m.resolve(ctx, item.ID, strategy, nil, SystemResolver); err != nil {
		m.logger.Warn("automatic conflict resolution failed, leaving it open",
			"item_id", item.ID,
			"strategy", strategy,
			"error", err)
		return false
	}
	return true
}
