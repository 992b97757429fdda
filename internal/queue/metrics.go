package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_pending",
			Help: "Number of items in the pending ordered set",
		},
	)

	InFlightDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_in_flight",
			Help: "Number of items on the in-flight list",
		},
	)

	ErrorDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_errors",
			Help: "Number of items on the error list",
		},
	)

	ItemsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_items_enqueued_total",
			Help: "Total number of items enqueued across all campaigns",
		},
	)

	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_items_processed_total",
			Help: "Total number of items processed by outcome",
		},
		[]string{"outcome"}, // sent, failed, dropped
	)

	StuckItemsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_stuck_items_recovered_total",
			Help: "Total number of stuck in-flight items returned to pending",
		},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Duration of item dispatch from claim to terminal outcome",
			Buckets: prometheus.DefBuckets,
		},
	)
)
