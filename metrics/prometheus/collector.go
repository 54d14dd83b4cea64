// Package prometheus exports queue metrics through client_golang.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

const namespace = "offlineq"

// Collector implements queuekit.MetricsCollector
type Collector struct {
	passDuration prometheus.Histogram
	passes       prometheus.Counter
	items        *prometheus.CounterVec
	queueItems   *prometheus.GaugeVec
	resolved     *prometheus.CounterVec
}

var _ queuekit.MetricsCollector = (*Collector)(nil)

// NewCollector registers the queue metrics on reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Processing pass duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "total",
			Help:      "Processing passes that ran",
		}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "items",
			Name:      "processed_total",
			Help:      "Dispatched items by operation type and outcome",
		}, []string{"type", "outcome"}),
		queueItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Queued items by status after the last pass",
		}, []string{"status"}),
		resolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conflicts",
			Name:      "resolved_total",
			Help:      "Settled conflicts by strategy",
		}, []string{"strategy"}),
	}
}

func (c *Collector) RecordPassDuration(duration time.Duration) {
	c.passes.Inc()
	c.passDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordItemOutcome(op queuekit.OperationType, outcome string) {
	c.items.WithLabelValues(string(op), outcome).Inc()
}

func (c *Collector) RecordQueueStats(stats queuekit.Stats) {
	c.queueItems.WithLabelValues(string(queuekit.StatusPending)).Set(float64(stats.Pending))
	c.queueItems.WithLabelValues(string(queuekit.StatusProcessing)).Set(float64(stats.Processing))
	c.queueItems.WithLabelValues(string(queuekit.StatusFailed)).Set(float64(stats.Failed))
	c.queueItems.WithLabelValues(string(queuekit.StatusConflict)).Set(float64(stats.Conflicts))
	c.queueItems.WithLabelValues(string(queuekit.StatusCompleted)).Set(float64(stats.Completed))
}

func (c *Collector) RecordConflictResolved(strategy conflict.Strategy) {
	c.resolved.WithLabelValues(string(strategy)).Inc()
}
