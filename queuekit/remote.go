package queuekit

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a Remote when the document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrVersionMismatch is returned by a Remote when a conditional write lost
	// the race, or a create hit an existing id
	ErrVersionMismatch = errors.New("document version mismatch")
)

// Document is a remote record with its optimistic-concurrency version
type Document struct {
	ID      string         `json:"id"`
	Version string         `json:"version"`
	Data    map[string]any `json:"data"`
}

// Remote is the remote document database the queue replays into.
// Implementations classify their own failures: transient ones as retryable
// network errors, refusals as permanent rejections.
type Remote interface {
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Create stores a new document. An empty id lets the remote assign one.
	Create(ctx context.Context, collection, id string, data map[string]any) (*Document, error)

	// Update replaces a document's data. A non-empty expectedVersion makes the
	// write conditional; an empty one writes unconditionally.
	Update(ctx context.Context, collection, id string, data map[string]any, expectedVersion string) (*Document, error)

	Delete(ctx context.Context, collection, id string) error

	// Commit applies all operations atomically or none of them. The result
	// holds one entry per operation, nil for deletes.
	Commit(ctx context.Context, ops []Operation) ([]*Document, error)
}
