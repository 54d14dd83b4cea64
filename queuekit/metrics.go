package queuekit

import (
	"time"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
)

// Item outcomes reported to a MetricsCollector
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeConflict  = "conflict"
)

// MetricsCollector provides hooks for collecting queue metrics
type MetricsCollector interface {
	// RecordPassDuration records how long a processing pass took
	RecordPassDuration(duration time.Duration)

	// RecordItemOutcome records how one dispatched item ended
	RecordItemOutcome(op OperationType, outcome string)

	// RecordQueueStats records queue sizes after a pass
	RecordQueueStats(stats Stats)

	// RecordConflictResolved records one settled conflict
	RecordConflictResolved(strategy conflict.Strategy)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPassDuration(duration time.Duration)          {}
func (n *NoOpMetricsCollector) RecordItemOutcome(op OperationType, outcome string) {}
func (n *NoOpMetricsCollector) RecordQueueStats(stats Stats)                       {}
func (n *NoOpMetricsCollector) RecordConflictResolved(strategy conflict.Strategy)  {}
