package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_events_enqueued_total",
		Help: "Total number of events placed on the processing queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_events_processed_total",
		Help: "Total number of events run through the extractor.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	EventsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_events_abandoned_total",
		Help: "Queued events withdrawn because the synchronous caller stopped waiting.",
	})

	InvalidCollections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_invalid_collections_total",
		Help: "Events whose configured collection was missing or invalid.",
	})

	Rows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "electrondump_rows_total",
		Help: "Per-event row outcome, labelled written or suppressed.",
	}, []string{"outcome"})

	RecordsKept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_records_kept_total",
		Help: "Records that passed the filter predicate.",
	})

	RecordsTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_records_truncated_total",
		Help: "Kept records dropped because the event exceeded max_objects.",
	})

	PredicateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_predicate_errors_total",
		Help: "Records whose predicate could not be evaluated.",
	})

	WriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "electrondump_write_errors_total",
		Help: "Rows that failed to reach the output artifact.",
	})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "electrondump_event_processing_duration_us",
		Help:    "Filter, flatten and write latency per event in microseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "electrondump_queue_utilization_ratio",
		Help: "Current event queue utilization (0–1).",
	})
)
