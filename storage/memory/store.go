// Package memory is an in-process queuekit.Store for tests and embedded use.
// Nothing survives the process.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// Store keeps items in insertion order behind one mutex, which makes every
// method trivially atomic
type Store struct {
	mu        sync.RWMutex
	order     []string
	items     map[string]*queuekit.Item
	conflicts map[string]*queuekit.ConflictResolution
	closed    bool
}

var _ queuekit.Store = (*Store)(nil)

var errClosed = errors.New("memory store is closed")

// New creates an empty store
func New() *Store {
	return &Store{
		items:     make(map[string]*queuekit.Item),
		conflicts: make(map[string]*queuekit.ConflictResolution),
	}
}

func (s *Store) SaveItem(_ context.Context, item *queuekit.Item) error {
	if item == nil || item.ID == "" {
		return errors.New("item must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.saveLocked(item)
	return nil
}

func (s *Store) saveLocked(item *queuekit.Item) {
	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	c := item.Clone()
	if c.Status != queuekit.StatusProcessing {
		c.Claim = nil
	}
	s.items[item.ID] = c
}

func (s *Store) GetItem(_ context.Context, id string) (*queuekit.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, queuekit.ErrItemNotFound)
	}
	return it.Clone(), nil
}

func (s *Store) ListItems(_ context.Context, filter queuekit.Filter) ([]*queuekit.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]*queuekit.Item, 0, len(s.order))
	for _, id := range s.order {
		if it := s.items[id]; filter.Matches(it) {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

func (s *Store) ClaimItem(_ context.Context, id string, claim queuekit.Claim) (*queuekit.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, queuekit.ErrItemNotFound)
	}
	if it.Status != queuekit.StatusPending {
		return nil, fmt.Errorf("item %s is %s: %w", id, it.Status, queuekit.ErrNotClaimable)
	}
	it.Status = queuekit.StatusProcessing
	it.Claim = &claim
	return it.Clone(), nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, queuekit.ErrItemNotFound)
	}
	if it.Status == queuekit.StatusProcessing {
		return fmt.Errorf("item %s: %w", id, queuekit.ErrItemInFlight)
	}
	s.deleteLocked(id)
	return nil
}

func (s *Store) deleteLocked(id string) {
	delete(s.items, id)
	delete(s.conflicts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) ClearItems(_ context.Context, filter queuekit.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	var victims []string
	for _, id := range s.order {
		it := s.items[id]
		if it.Status != queuekit.StatusProcessing && filter.Matches(it) {
			victims = append(victims, id)
		}
	}
	for _, id := range victims {
		s.deleteLocked(id)
	}
	return len(victims), nil
}

func (s *Store) ResetProcessing(_ context.Context, r queuekit.Recovery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	n := 0
	for _, it := range s.items {
		if r.Matches(it) {
			it.Status = queuekit.StatusPending
			it.Claim = nil
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkConflict(_ context.Context, item *queuekit.Item, record *queuekit.ConflictResolution) error {
	if item == nil || record == nil || item.ID != record.ItemID {
		return errors.New("conflict record must belong to the item")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.saveLocked(item)
	s.conflicts[record.ItemID] = record.Clone()
	return nil
}

func (s *Store) UpdateConflict(_ context.Context, record *queuekit.ConflictResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.conflicts[record.ItemID]; !ok {
		return fmt.Errorf("item %s: %w", record.ItemID, queuekit.ErrConflictNotFound)
	}
	s.conflicts[record.ItemID] = record.Clone()
	return nil
}

func (s *Store) GetConflict(_ context.Context, itemID string) (*queuekit.ConflictResolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	rec, ok := s.conflicts[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, queuekit.ErrConflictNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) ListConflicts(_ context.Context, filter queuekit.Filter) ([]*queuekit.ConflictResolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	var out []*queuekit.ConflictResolution
	for _, id := range s.order {
		if rec, ok := s.conflicts[id]; ok && filter.MatchesConflict(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *Store) CompleteResolution(_ context.Context, item *queuekit.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.conflicts[item.ID]; !ok {
		return fmt.Errorf("item %s: %w", item.ID, queuekit.ErrConflictNotFound)
	}
	delete(s.conflicts, item.ID)
	s.saveLocked(item)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
