// Package memory provides an in-process queuekit.Remote with versioned
// documents. It backs tests, demos and the serve command's default backend.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// Method names passed to a FaultFunc
const (
	MethodGet    = "get"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodDelete = "delete"
	MethodCommit = "commit"
)

// FaultFunc lets tests fail a call before it touches any state.
// Returning nil lets the call through.
type FaultFunc func(method, collection, id string) error

type record struct {
	version int
	data    map[string]any
	// deleted records are tombstones that keep the last version, so a
	// re-created document never reissues a version
	deleted bool
}

// Remote is a thread-safe document store keyed by collection and id.
// Versions are decimal counters starting at "1" and are never reused for an
// id, even across delete and re-create.
type Remote struct {
	mu     sync.Mutex
	docs   map[string]map[string]*record
	fault  FaultFunc
	writes int
	calls  map[string]int
}

var _ queuekit.Remote = (*Remote)(nil)

// New returns an empty remote
func New() *Remote {
	return &Remote{
		docs:  make(map[string]map[string]*record),
		calls: make(map[string]int),
	}
}

// SetFault installs fn for every subsequent call; nil clears it
func (r *Remote) SetFault(fn FaultFunc) {
	r.mu.Lock()
	r.fault = fn
	r.mu.Unlock()
}

// FailNext fails the next n calls of method with err
func (r *Remote) FailNext(method string, n int, err error) {
	remaining := n
	r.SetFault(func(m, _, _ string) error {
		if m != method || remaining <= 0 {
			return nil
		}
		remaining--
		return err
	})
}

// Put writes a document directly, bumping its version, as another client would
func (r *Remote) Put(collection, id string, data map[string]any) *queuekit.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.put(r.docs, collection, id, data)
	return toDocument(id, rec)
}

// Writes counts successful mutating calls
func (r *Remote) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Calls counts attempted calls of method, including injected failures
func (r *Remote) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// Len returns the number of documents in collection
func (r *Remote) Len(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.docs[collection] {
		if !rec.deleted {
			n++
		}
	}
	return n
}

func (r *Remote) enter(method, collection, id string) error {
	r.calls[method]++
	if r.fault != nil {
		return r.fault(method, collection, id)
	}
	return nil
}

func (r *Remote) Get(ctx context.Context, collection, id string) (*queuekit.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodGet, collection, id); err != nil {
		return nil, err
	}
	rec, ok := live(r.docs, collection, id)
	if !ok {
		return nil, notFound(collection, id)
	}
	return toDocument(id, rec), nil
}

func (r *Remote) Create(ctx context.Context, collection, id string, data map[string]any) (*queuekit.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodCreate, collection, id); err != nil {
		return nil, err
	}
	id, rec, err := r.create(r.docs, collection, id, data)
	if err != nil {
		return nil, err
	}
	r.writes++
	return toDocument(id, rec), nil
}

func (r *Remote) Update(ctx context.Context, collection, id string, data map[string]any, expectedVersion string) (*queuekit.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodUpdate, collection, id); err != nil {
		return nil, err
	}
	rec, err := r.update(r.docs, collection, id, data, expectedVersion)
	if err != nil {
		return nil, err
	}
	r.writes++
	return toDocument(id, rec), nil
}

func (r *Remote) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodDelete, collection, id); err != nil {
		return err
	}
	rec, ok := live(r.docs, collection, id)
	if !ok {
		return notFound(collection, id)
	}
	rec.deleted, rec.data = true, nil
	r.writes++
	return nil
}

// Commit applies ops to a copy of the store and swaps it in only when every
// operation succeeded. Deleting a missing document inside a batch is a no-op.
func (r *Remote) Commit(ctx context.Context, ops []queuekit.Operation) ([]*queuekit.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodCommit, "", ""); err != nil {
		return nil, err
	}

	staged := r.snapshot()
	out := make([]*queuekit.Document, len(ops))
	for i, op := range ops {
		switch op.Type {
		case queuekit.OpCreate:
			id, rec, err := r.create(staged, op.Collection, op.DocumentID, op.Data)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			out[i] = toDocument(id, rec)
		case queuekit.OpUpdate:
			rec, err := r.update(staged, op.Collection, op.DocumentID, op.Data, "")
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			out[i] = toDocument(op.DocumentID, rec)
		case queuekit.OpDelete:
			if rec, ok := live(staged, op.Collection, op.DocumentID); ok {
				rec.deleted, rec.data = true, nil
			}
		default:
			return nil, queueErrors.NewRejectedError(queueErrors.OpRemote, fmt.Errorf("operation %d: unsupported type %q", i, op.Type))
		}
	}
	r.docs = staged
	r.writes++
	return out, nil
}

func (r *Remote) snapshot() map[string]map[string]*record {
	cp := make(map[string]map[string]*record, len(r.docs))
	for coll, docs := range r.docs {
		m := make(map[string]*record, len(docs))
		for id, rec := range docs {
			m[id] = &record{version: rec.version, data: rec.data, deleted: rec.deleted}
		}
		cp[coll] = m
	}
	return cp
}

func (r *Remote) create(docs map[string]map[string]*record, collection, id string, data map[string]any) (string, *record, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := live(docs, collection, id); exists {
		return "", nil, fmt.Errorf("%s/%s already exists: %w", collection, id, queuekit.ErrVersionMismatch)
	}
	return id, r.put(docs, collection, id, data), nil
}

func (r *Remote) update(docs map[string]map[string]*record, collection, id string, data map[string]any, expected string) (*record, error) {
	rec, ok := live(docs, collection, id)
	if !ok {
		return nil, notFound(collection, id)
	}
	if expected != "" && expected != strconv.Itoa(rec.version) {
		return nil, fmt.Errorf("%s/%s is at version %d, not %s: %w", collection, id, rec.version, expected, queuekit.ErrVersionMismatch)
	}
	return r.put(docs, collection, id, data), nil
}

func (r *Remote) put(docs map[string]map[string]*record, collection, id string, data map[string]any) *record {
	coll, ok := docs[collection]
	if !ok {
		coll = make(map[string]*record)
		docs[collection] = coll
	}
	version := 1
	if prev, ok := coll[id]; ok {
		version = prev.version + 1
	}
	rec := &record{version: version, data: conflict.Clone(data)}
	coll[id] = rec
	return rec
}

// live returns the record unless it is missing or a tombstone
func live(docs map[string]map[string]*record, collection, id string) (*record, bool) {
	rec, ok := docs[collection][id]
	if !ok || rec.deleted {
		return nil, false
	}
	return rec, true
}

func toDocument(id string, rec *record) *queuekit.Document {
	return &queuekit.Document{ID: id, Version: strconv.Itoa(rec.version), Data: conflict.Clone(rec.data)}
}

func notFound(collection, id string) error {
	return fmt.Errorf("%s/%s: %w", collection, id, queuekit.ErrNotFound)
}
