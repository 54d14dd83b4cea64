package queuekit

import (
	"context"
	"errors"
)

var (
	// ErrItemNotFound is returned for an unknown item id
	ErrItemNotFound = errors.New("queue item not found")
	// ErrNotClaimable is returned by ClaimItem when the item is no longer PENDING
	ErrNotClaimable = errors.New("queue item is not pending")
	// ErrItemInFlight is returned when removing an item a pass is working on
	ErrItemInFlight = errors.New("queue item is being processed")
	// ErrConflictNotFound is returned when no pending conflict exists for an item
	ErrConflictNotFound = errors.New("conflict not found")
)

// Store is the durable on-device record of queue items and conflict records.
// Every method is atomic on its own.
type Store interface {
	// SaveItem inserts or replaces one item. The claim is kept only for
	// PROCESSING items.
	SaveItem(ctx context.Context, item *Item) error

	// GetItem returns ErrItemNotFound for unknown ids
	GetItem(ctx context.Context, id string) (*Item, error)

	// ListItems returns matching items in insertion order
	ListItems(ctx context.Context, filter Filter) ([]*Item, error)

	// ClaimItem moves a PENDING item to PROCESSING under claim and returns
	// it, or fails with ErrNotClaimable
	ClaimItem(ctx context.Context, id string, claim Claim) (*Item, error)

	// DeleteItem removes an item and its conflict record. PROCESSING items are
	// refused with ErrItemInFlight.
	DeleteItem(ctx context.Context, id string) error

	// ClearItems removes matching items that are not PROCESSING, with their
	// conflict records, and returns how many were removed
	ClearItems(ctx context.Context, filter Filter) (int, error)

	// ResetProcessing moves the PROCESSING items r matches back to PENDING,
	// dropping their claims, and returns how many moved
	ResetProcessing(ctx context.Context, r Recovery) (int, error)

	// MarkConflict saves the item and the conflict record in one transaction
	MarkConflict(ctx context.Context, item *Item, record *ConflictResolution) error

	// UpdateConflict replaces an existing record, or returns ErrConflictNotFound
	UpdateConflict(ctx context.Context, record *ConflictResolution) error

	// GetConflict returns ErrConflictNotFound when the item has no open conflict
	GetConflict(ctx context.Context, itemID string) (*ConflictResolution, error)

	// ListConflicts returns open conflicts matching the filter's scope fields
	ListConflicts(ctx context.Context, filter Filter) ([]*ConflictResolution, error)

	// CompleteResolution deletes the item's conflict record and saves the item
	// in one transaction. It returns ErrConflictNotFound if the record is gone.
	CompleteResolution(ctx context.Context, item *Item) error

	Close() error
}
