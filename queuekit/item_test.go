package queuekit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

func TestSortForProcessing(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []*Item{
		{ID: "low", Priority: PriorityLow, Timestamp: base},
		{ID: "normal-late", Priority: PriorityNormal, Timestamp: base.Add(2 * time.Second)},
		{ID: "critical", Priority: PriorityCritical, Timestamp: base.Add(3 * time.Second)},
		{ID: "normal-early", Priority: PriorityNormal, Timestamp: base.Add(time.Second)},
		{ID: "normal-tie-a", Priority: PriorityNormal, Timestamp: base.Add(5 * time.Second)},
		{ID: "normal-tie-b", Priority: PriorityNormal, Timestamp: base.Add(5 * time.Second)},
		{ID: "high", Priority: PriorityHigh, Timestamp: base.Add(4 * time.Second)},
	}

	SortForProcessing(items)

	want := []string{"critical", "high", "normal-early", "normal-late", "normal-tie-a", "normal-tie-b", "low"}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, items[i].ID, id)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	if Priority("").Rank() != PriorityNormal.Rank() {
		t.Error("unset priority should rank as NORMAL")
	}
	if !(PriorityCritical.Rank() > PriorityHigh.Rank() && PriorityHigh.Rank() > PriorityNormal.Rank() && PriorityNormal.Rank() > PriorityLow.Rank()) {
		t.Error("priority ranks are out of order")
	}
}

func TestComputeStats(t *testing.T) {
	items := []*Item{
		{Status: StatusPending}, {Status: StatusPending}, {Status: StatusProcessing},
		{Status: StatusFailed}, {Status: StatusConflict}, {Status: StatusCompleted},
	}
	got := ComputeStats(items)
	want := Stats{Total: 6, Pending: 2, Processing: 1, Failed: 1, Conflicts: 1, Completed: 1}
	if got != want {
		t.Errorf("ComputeStats() = %+v, want %+v", got, want)
	}
}

func TestFilterMatches(t *testing.T) {
	it := &Item{UserID: "u1", TeamID: "t1", Status: StatusPending, Priority: PriorityHigh, Collection: "notes"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"all fields", Filter{UserID: "u1", TeamID: "t1", Status: StatusPending, Priority: PriorityHigh, Collection: "notes"}, true},
		{"other user", Filter{UserID: "u2"}, false},
		{"other team", Filter{TeamID: "t2"}, false},
		{"other status", Filter{Status: StatusFailed}, false},
		{"other priority", Filter{Priority: PriorityLow}, false},
		{"other collection", Filter{Collection: "plans"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(it); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemClone(t *testing.T) {
	now := time.Now()
	orig := &Item{
		Data:       map[string]any{"a": 1},
		Operations: []Operation{{Type: OpCreate, Collection: "notes", Data: map[string]any{"b": 2}}},
		Metadata:   Metadata{ResolvedAt: &now},
	}
	c := orig.Clone()
	c.Data["a"] = 9
	c.Operations[0].Data["b"] = 9
	*c.Metadata.ResolvedAt = now.Add(time.Hour)

	if orig.Data["a"] != 1 || orig.Operations[0].Data["b"] != 2 {
		t.Error("Clone shares payload maps with the original")
	}
	if !orig.Metadata.ResolvedAt.Equal(now) {
		t.Error("Clone shares ResolvedAt with the original")
	}
	if (*Item)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestExponentialBackoff(t *testing.T) {
	eb := &ExponentialBackoff{InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}

	want := []time.Duration{10, 20, 40, 80, 100, 100}
	for attempt, w := range want {
		if got := eb.NextDelay(attempt); got != w*time.Millisecond {
			t.Errorf("NextDelay(%d) = %v, want %v", attempt, got, w*time.Millisecond)
		}
	}
	if got := eb.NextDelay(-1); got != 10*time.Millisecond {
		t.Errorf("NextDelay(-1) = %v, want the initial delay", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want outcomeKind
	}{
		{"not found", fmt.Errorf("x: %w", ErrNotFound), outcomePermanent},
		{"version mismatch", fmt.Errorf("x: %w", ErrVersionMismatch), outcomePermanent},
		{"rejected", queueErrors.NewRejectedError(queueErrors.OpRemote, errors.New("bad payload")), outcomePermanent},
		{"validation", queueErrors.NewValidationError(queueErrors.OpRemote, errors.New("bad field")), outcomePermanent},
		{"network", queueErrors.NewNetworkError(queueErrors.OpRemote, errors.New("reset")), outcomeTransient},
		{"unclassified", errors.New("something odd"), outcomeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err).kind; got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
