package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection pipeline metrics.
var (
	// RunsTotal counts finished collection cycles.
	// Labels: adapter, status: "ok", "failed"
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediameter",
			Name:      "collection_runs_total",
			Help:      "Total finished collection cycles per adapter",
		},
		[]string{"adapter", "status"},
	)

	// ItemsFetched counts raw items pulled from sources.
	ItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediameter",
			Name:      "items_fetched_total",
			Help:      "Total raw items fetched per adapter",
		},
		[]string{"adapter"},
	)

	// MentionsTotal counts persisted matches.
	// Labels: adapter, outcome: "new", "duplicate"
	MentionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediameter",
			Name:      "mentions_total",
			Help:      "Total matched mentions per adapter and dedup outcome",
		},
		[]string{"adapter", "outcome"},
	)

	// UnitErrorsTotal counts non-fatal per-feed/channel/query failures.
	UnitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediameter",
			Name:      "unit_errors_total",
			Help:      "Total non-fatal unit failures inside collection cycles",
		},
		[]string{"adapter"},
	)

	// CycleDuration observes end-to-end cycle latency.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediameter",
			Name:      "cycle_duration_seconds",
			Help:      "Collection cycle duration per adapter",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"adapter"},
	)

	// TicksSkipped counts scheduler ticks dropped because the previous
	// cycle was still running.
	TicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediameter",
			Name:      "ticks_skipped_total",
			Help:      "Scheduler ticks skipped due to an in-flight cycle",
		},
		[]string{"adapter"},
	)
)
