// Package storetest is a contract suite every queuekit.Store implementation runs
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) queuekit.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewItem builds a PENDING item for tests
func NewItem(id string, opts ...func(*queuekit.Item)) *queuekit.Item {
	it := &queuekit.Item{
		ID:         id,
		Type:       queuekit.OpUpdate,
		Collection: "notes",
		DocumentID: "doc-" + id,
		Data:       map[string]any{"title": "t-" + id},
		Priority:   queuekit.PriorityNormal,
		Status:     queuekit.StatusPending,
		MaxRetries: queuekit.DefaultMaxRetries,
		Timestamp:  base,
		UpdatedAt:  base,
		UserID:     "u1",
		TeamID:     "t1",
	}
	for _, o := range opts {
		o(it)
	}
	return it
}

// claim is a fresh claim held by manager "m1"
var claim = queuekit.Claim{Owner: "m1", At: base}

func withStatus(s queuekit.Status) func(*queuekit.Item) {
	return func(it *queuekit.Item) { it.Status = s }
}

func record(itemID string) *queuekit.ConflictResolution {
	return &queuekit.ConflictResolution{
		ItemID:          itemID,
		Collection:      "notes",
		DocumentID:      "doc-" + itemID,
		ServerData:      map[string]any{"title": "server"},
		ClientData:      map[string]any{"title": "client"},
		ServerVersion:   "v2",
		OriginalVersion: "v1",
		Strategy:        conflict.UserChoice,
		UserID:          "u1",
		TeamID:          "t1",
		DetectedAt:      base,
	}
}

// Run executes the contract suite
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) queuekit.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("SaveAndGetRoundTrip", func(t *testing.T) {
		s := open(t)
		it := NewItem("a", func(it *queuekit.Item) {
			it.Type = queuekit.OpBatch
			it.Operations = []queuekit.Operation{
				{Type: queuekit.OpCreate, Collection: "notes", Data: map[string]any{"n": float64(1)}},
				{Type: queuekit.OpDelete, Collection: "tags", DocumentID: "x"},
			}
			it.Metadata.OriginalVersion = "v1"
			it.Metadata.ConflictResolution = conflict.Merge
		})
		require.NoError(t, s.SaveItem(ctx, it))

		got, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, it.Type, got.Type)
		assert.Equal(t, it.Operations, got.Operations)
		assert.Equal(t, "v1", got.Metadata.OriginalVersion)
		assert.Equal(t, conflict.Merge, got.Metadata.ConflictResolution)
		assert.True(t, it.Timestamp.Equal(got.Timestamp))

		_, err = s.GetItem(ctx, "missing")
		assert.ErrorIs(t, err, queuekit.ErrItemNotFound)
	})

	t.Run("SaveReplacesInPlace", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("a")))
		require.NoError(t, s.SaveItem(ctx, NewItem("b")))

		it := NewItem("a", withStatus(queuekit.StatusFailed))
		it.Error = "boom"
		it.RetryCount = 4
		require.NoError(t, s.SaveItem(ctx, it))

		items, err := s.ListItems(ctx, queuekit.Filter{})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "a", items[0].ID, "replacing must keep insertion order")
		assert.Equal(t, queuekit.StatusFailed, items[0].Status)
		assert.Equal(t, "boom", items[0].Error)
		assert.Equal(t, 4, items[0].RetryCount)
	})

	t.Run("ListFilterAndOrder", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("i%d", i)
			require.NoError(t, s.SaveItem(ctx, NewItem(id, func(it *queuekit.Item) {
				if i%2 == 1 {
					it.UserID = "u2"
					it.Collection = "tasks"
				}
			})))
		}

		all, err := s.ListItems(ctx, queuekit.Filter{})
		require.NoError(t, err)
		var ids []string
		for _, it := range all {
			ids = append(ids, it.ID)
		}
		assert.Equal(t, []string{"i0", "i1", "i2", "i3", "i4"}, ids)

		u2, err := s.ListItems(ctx, queuekit.Filter{UserID: "u2", Collection: "tasks"})
		require.NoError(t, err)
		assert.Len(t, u2, 2)

		none, err := s.ListItems(ctx, queuekit.Filter{UserID: "u2", Collection: "notes"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("a")))

		claimed, err := s.ClaimItem(ctx, "a", claim)
		require.NoError(t, err)
		assert.Equal(t, queuekit.StatusProcessing, claimed.Status)
		require.NotNil(t, claimed.Claim)
		assert.Equal(t, "m1", claimed.Claim.Owner)

		_, err = s.ClaimItem(ctx, "a", queuekit.Claim{Owner: "m2", At: base})
		assert.ErrorIs(t, err, queuekit.ErrNotClaimable)

		_, err = s.ClaimItem(ctx, "missing", claim)
		assert.ErrorIs(t, err, queuekit.ErrItemNotFound)

		stored, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, stored.Claim)
		assert.Equal(t, "m1", stored.Claim.Owner)
		assert.True(t, stored.Claim.At.Equal(base))
	})

	t.Run("ClaimDroppedWhenItemLeavesProcessing", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("a")))
		claimed, err := s.ClaimItem(ctx, "a", claim)
		require.NoError(t, err)

		claimed.Status = queuekit.StatusCompleted
		require.NoError(t, s.SaveItem(ctx, claimed))

		got, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, queuekit.StatusCompleted, got.Status)
		assert.Nil(t, got.Claim)
	})

	t.Run("DeleteRefusesInFlightAndDropsConflict", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("busy")))
		_, err := s.ClaimItem(ctx, "busy", claim)
		require.NoError(t, err)
		assert.ErrorIs(t, s.DeleteItem(ctx, "busy"), queuekit.ErrItemInFlight)

		c := NewItem("c", withStatus(queuekit.StatusConflict))
		require.NoError(t, s.MarkConflict(ctx, c, record("c")))
		require.NoError(t, s.DeleteItem(ctx, "c"))
		_, err = s.GetConflict(ctx, "c")
		assert.ErrorIs(t, err, queuekit.ErrConflictNotFound)

		assert.ErrorIs(t, s.DeleteItem(ctx, "c"), queuekit.ErrItemNotFound)
	})

	t.Run("ClearSkipsProcessing", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("p")))
		require.NoError(t, s.SaveItem(ctx, NewItem("busy")))
		require.NoError(t, s.MarkConflict(ctx, NewItem("c", withStatus(queuekit.StatusConflict)), record("c")))
		_, err := s.ClaimItem(ctx, "busy", claim)
		require.NoError(t, err)

		n, err := s.ClearItems(ctx, queuekit.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		left, err := s.ListItems(ctx, queuekit.Filter{})
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "busy", left[0].ID)

		conflicts, err := s.ListConflicts(ctx, queuekit.Filter{})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("ClearByStatus", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("done", withStatus(queuekit.StatusCompleted))))
		require.NoError(t, s.SaveItem(ctx, NewItem("todo")))

		n, err := s.ClearItems(ctx, queuekit.Filter{Status: queuekit.StatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetItem(ctx, "todo")
		assert.NoError(t, err)
	})

	t.Run("ResetProcessing", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("stale")))
		require.NoError(t, s.SaveItem(ctx, NewItem("mine")))
		require.NoError(t, s.SaveItem(ctx, NewItem("live")))
		require.NoError(t, s.SaveItem(ctx, NewItem("elsewhere", func(it *queuekit.Item) { it.UserID = "u2" })))
		require.NoError(t, s.SaveItem(ctx, NewItem("idle")))

		later := base.Add(time.Hour)
		for id, c := range map[string]queuekit.Claim{
			"stale":     {Owner: "crashed", At: base},
			"mine":      {Owner: "m1", At: later},
			"live":      {Owner: "m2", At: later},
			"elsewhere": {Owner: "crashed", At: base},
		} {
			_, err := s.ClaimItem(ctx, id, c)
			require.NoError(t, err)
		}

		n, err := s.ResetProcessing(ctx, queuekit.Recovery{
			Filter:      queuekit.Filter{UserID: "u1"},
			Owner:       "m1",
			StaleBefore: base.Add(time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n, "only the stale claim and the owner's own claim in scope are reset")

		want := map[string]queuekit.Status{
			"stale":     queuekit.StatusPending,
			"mine":      queuekit.StatusPending,
			"live":      queuekit.StatusProcessing,
			"elsewhere": queuekit.StatusProcessing,
			"idle":      queuekit.StatusPending,
		}
		for id, status := range want {
			got, err := s.GetItem(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status, id)
			if status == queuekit.StatusPending {
				assert.Nil(t, got.Claim, id)
			}
		}
	})

	t.Run("ConflictLifecycle", func(t *testing.T) {
		s := open(t)
		it := NewItem("a")
		require.NoError(t, s.SaveItem(ctx, it))

		it.Status = queuekit.StatusConflict
		it.Error = "conflict"
		require.NoError(t, s.MarkConflict(ctx, it, record("a")))

		got, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, queuekit.StatusConflict, got.Status)

		rec, err := s.GetConflict(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "v2", rec.ServerVersion)
		assert.Equal(t, map[string]any{"title": "server"}, rec.ServerData)
		assert.Equal(t, map[string]any{"title": "client"}, rec.ClientData)
		assert.Equal(t, conflict.UserChoice, rec.Strategy)

		rec.ServerVersion = "v3"
		rec.ServerData = map[string]any{"title": "newer"}
		require.NoError(t, s.UpdateConflict(ctx, rec))
		rec, err = s.GetConflict(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "v3", rec.ServerVersion)

		list, err := s.ListConflicts(ctx, queuekit.Filter{UserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
		list, err = s.ListConflicts(ctx, queuekit.Filter{UserID: "other"})
		require.NoError(t, err)
		assert.Empty(t, list)

		resolvedAt := base.Add(time.Minute)
		it.Status = queuekit.StatusCompleted
		it.Error = ""
		it.Metadata.ResolvedBy = "alice"
		it.Metadata.ResolvedAt = &resolvedAt
		require.NoError(t, s.CompleteResolution(ctx, it))

		_, err = s.GetConflict(ctx, "a")
		assert.ErrorIs(t, err, queuekit.ErrConflictNotFound)
		got, err = s.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, queuekit.StatusCompleted, got.Status)
		assert.Equal(t, "alice", got.Metadata.ResolvedBy)
		require.NotNil(t, got.Metadata.ResolvedAt)
		assert.True(t, resolvedAt.Equal(*got.Metadata.ResolvedAt))

		assert.ErrorIs(t, s.CompleteResolution(ctx, it), queuekit.ErrConflictNotFound)
		assert.ErrorIs(t, s.UpdateConflict(ctx, rec), queuekit.ErrConflictNotFound)
	})

	t.Run("ReturnedItemsAreCopies", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveItem(ctx, NewItem("a")))

		got, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		got.Data["title"] = "mutated"
		got.Status = queuekit.StatusFailed

		again, err := s.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "t-a", again.Data["title"])
		assert.Equal(t, queuekit.StatusPending, again.Status)
	})
}
