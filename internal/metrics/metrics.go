// Package metrics provides Prometheus metrics for alertscope.
// It tracks alert searches, data view resolution, filter synchronization
// and storage latencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "alertscope"
)

// Search metrics track the alert fetch pipeline.
var (
	// SearchesTotal counts alert searches issued to the backend.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of alert searches sent to the backend",
		},
		[]string{"backend", "result"}, // result: success, failure, canceled
	)

	// SearchesDeduplicatedTotal counts fetches that joined an in-flight search.
	SearchesDeduplicatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_deduplicated_total",
			Help:      "Total number of fetches served by an in-flight search with the same key",
		},
	)

	// SearchCacheTotal counts result cache lookups.
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_total",
			Help:      "Total number of search result cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// SearchLatency measures backend search latency.
	SearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "Latency of alert searches in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	// SupersededFetchesTotal counts fetch results dropped because a newer key took over.
	SupersededFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_fetches_total",
			Help:      "Total number of fetch results ignored because the parameters changed",
		},
	)
)

// Data view metrics track resolver outcomes.
var (
	// DataViewResolutionsTotal counts data view resolutions by outcome.
	DataViewResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_view_resolutions_total",
			Help:      "Total number of data view resolutions",
		},
		[]string{"domain", "result"}, // result: resolved, skipped, failed
	)

	// DataViewResolutionLatency measures the time to resolve a data view.
	DataViewResolutionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_view_resolution_latency_seconds",
			Help:      "Time to resolve a data view in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Filter group metrics track control synchronization.
var (
	// FilterNotificationsTotal counts output filter updates by outcome.
	FilterNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_notifications_total",
			Help:      "Total number of control output filter updates",
		},
		[]string{"result"}, // result: sent, unchanged, not_loaded, failed
	)

	// QueryBuildFailuresTotal counts external inputs discarded because the query failed to build.
	QueryBuildFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_build_failures_total",
			Help:      "Total number of filter/query combinations discarded because they failed to build",
		},
	)

	// FilterGroupCommandsTotal counts commands handled by filter group controllers.
	FilterGroupCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_group_commands_total",
			Help:      "Total number of filter group commands handled",
		},
		[]string{"command", "status"},
	)
)

// Toast metrics track user-visible notifications.
var (
	// ToastsTotal counts toasts raised, labeled by color.
	ToastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_total",
			Help:      "Total number of toasts raised",
		},
		[]string{"color"}, // color: danger, warning, success
	)
)

// Queue metrics track filter-change message delivery.
var (
	// QueuePublishLatency measures time to publish a message to the queue.
	QueuePublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Time to publish a message to the queue in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)

	// MessagesProcessedTotal counts filter-change messages applied by the processor.
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Total number of filter-change messages processed",
		},
		[]string{"result"},
	)
)

// Storage metrics track key-value and cache operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: memory, redis, postgres; operation: read, write, delete
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)
