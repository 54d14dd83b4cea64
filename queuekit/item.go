package queuekit

import (
	"sort"
	"time"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
)

// OperationType is the kind of mutation an item carries
type OperationType string

const (
	OpCreate OperationType = "CREATE"
	OpUpdate OperationType = "UPDATE"
	OpDelete OperationType = "DELETE"
	OpBatch  OperationType = "BATCH"
)

// Priority orders items inside a pass
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank is higher for more urgent priorities; unknown values rank with NORMAL
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Status is an item's lifecycle state
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusConflict   Status = "CONFLICT"
)

// DefaultMaxRetries is used when neither the item nor the manager sets one
const DefaultMaxRetries = 3

// Operation is one sub-operation of a BATCH item
type Operation struct {
	Type       OperationType  `json:"type" validate:"required,oneof=CREATE UPDATE DELETE"`
	Collection string         `json:"collection" validate:"required"`
	DocumentID string         `json:"documentId,omitempty" validate:"required_if=Type UPDATE,required_if=Type DELETE"`
	Data       map[string]any `json:"data,omitempty"`
}

// Metadata carries concurrency and resolution bookkeeping
type Metadata struct {
	OriginalVersion    string            `json:"originalVersion,omitempty"`
	ConflictResolution conflict.Strategy `json:"conflictResolution,omitempty"`
	ResolvedBy         string            `json:"resolvedBy,omitempty"`
	ResolvedAt         *time.Time        `json:"resolvedAt,omitempty"`
}

// Item is one queued mutation. It is created once and mutated in place as it
// moves through its lifecycle.
type Item struct {
	ID         string         `json:"id"`
	Type       OperationType  `json:"type"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"documentId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Operations []Operation    `json:"operations,omitempty"`
	Priority   Priority       `json:"priority"`
	Status     Status         `json:"status"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	UserID     string         `json:"userId,omitempty"`
	TeamID     string         `json:"teamId,omitempty"`
	Metadata   Metadata       `json:"metadata"`

	// Claim is held while the item is PROCESSING and cleared on every other
	// transition
	Claim *Claim `json:"claim,omitempty"`
}

// Claim records which manager moved an item to PROCESSING, and when
type Claim struct {
	Owner string    `json:"owner"`
	At    time.Time `json:"at"`
}

// Clone returns a copy that shares no maps or slices with it
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	c.Data = conflict.Clone(it.Data)
	if it.Operations != nil {
		c.Operations = make([]Operation, len(it.Operations))
		for i, op := range it.Operations {
			op.Data = conflict.Clone(op.Data)
			c.Operations[i] = op
		}
	}
	if it.Metadata.ResolvedAt != nil {
		t := *it.Metadata.ResolvedAt
		c.Metadata.ResolvedAt = &t
	}
	if it.Claim != nil {
		cl := *it.Claim
		c.Claim = &cl
	}
	return &c
}

// ConflictResolution is the pending record of a detected conflict. It exists
// exactly while its item has status CONFLICT.
type ConflictResolution struct {
	ItemID          string            `json:"itemId"`
	Collection      string            `json:"collection"`
	DocumentID      string            `json:"documentId"`
	ServerData      map[string]any    `json:"serverData"`
	ClientData      map[string]any    `json:"clientData"`
	ServerVersion   string            `json:"serverVersion"`
	OriginalVersion string            `json:"originalVersion"`
	Strategy        conflict.Strategy `json:"strategy"`
	UserID          string            `json:"userId,omitempty"`
	TeamID          string            `json:"teamId,omitempty"`
	DetectedAt      time.Time         `json:"detectedAt"`
}

// Clone returns a copy that shares no maps with it
func (c *ConflictResolution) Clone() *ConflictResolution {
	if c == nil {
		return nil
	}
	out := *c
	out.ServerData = conflict.Clone(c.ServerData)
	out.ClientData = conflict.Clone(c.ClientData)
	return &out
}

// ConflictingFields lists the fields both sides changed differently
func (c *ConflictResolution) ConflictingFields() []string {
	return conflict.ConflictingFields(c.ServerData, c.ClientData)
}

// Filter selects items or conflicts. Empty fields match everything; set
// fields are combined with AND.
type Filter struct {
	UserID     string
	TeamID     string
	Status     Status
	Priority   Priority
	Collection string
}

// Matches reports whether it satisfies f
func (f Filter) Matches(it *Item) bool {
	if f.UserID != "" && it.UserID != f.UserID {
		return false
	}
	if f.TeamID != "" && it.TeamID != f.TeamID {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Priority != "" && it.Priority != f.Priority {
		return false
	}
	if f.Collection != "" && it.Collection != f.Collection {
		return false
	}
	return true
}

// MatchesConflict applies the scoping fields of f to a conflict record
func (f Filter) MatchesConflict(c *ConflictResolution) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.TeamID != "" && c.TeamID != f.TeamID {
		return false
	}
	if f.Collection != "" && c.Collection != f.Collection {
		return false
	}
	return true
}

// Recovery selects PROCESSING items to hand back to PENDING: those inside
// Filter whose claim belongs to Owner or was taken before StaleBefore. Items
// without a claim time always qualify. Filter.Status is ignored.
type Recovery struct {
	Filter      Filter
	Owner       string
	StaleBefore time.Time
}

// Matches reports whether r recovers it
func (r Recovery) Matches(it *Item) bool {
	f := r.Filter
	f.Status = StatusProcessing
	if !f.Matches(it) {
		return false
	}
	switch {
	case it.Claim == nil || it.Claim.At.IsZero():
		return true
	case r.Owner != "" && it.Claim.Owner == r.Owner:
		return true
	default:
		return it.Claim.At.Before(r.StaleBefore)
	}
}

// Stats summarises the queue
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Conflicts  int `json:"conflicts"`
	Completed  int `json:"completed"`
}

// ComputeStats counts items by status
func ComputeStats(items []*Item) Stats {
	s := Stats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusFailed:
			s.Failed++
		case StatusConflict:
			s.Conflicts++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// SortForProcessing orders items by priority, then timestamp. The sort is
// stable, so items with equal timestamps keep the store's insertion order.
func SortForProcessing(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
}
