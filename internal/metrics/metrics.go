package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage counters and histograms, partitioned by processor name.

var (
	// Source
	SourceBatchesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "source",
		Name:      "batches_read_total",
		Help:      "Total raw batches read from the source",
	}, []string{"processor"})

	SourceReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "source",
		Name:      "read_errors_total",
		Help:      "Total source read or decode errors",
	}, []string{"processor"})

	SourceAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "source",
		Name:      "acks_total",
		Help:      "Total batches acknowledged back to the source",
	}, []string{"processor"})

	// Normalizer
	NormalizerBatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "normalizer",
		Name:      "batches_processed_total",
		Help:      "Total normalized batches produced",
	}, []string{"processor"})

	NormalizerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "normalizer",
		Name:      "events_total",
		Help:      "Total canonical events produced",
	}, []string{"processor", "standard", "kind"})

	NormalizerSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "normalizer",
		Name:      "events_skipped_total",
		Help:      "Total raw events outside the indexed modules",
	}, []string{"processor"})

	NormalizerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "normalizer",
		Name:      "errors_total",
		Help:      "Total per-event normalization errors",
	}, []string{"processor", "kind"})

	NormalizerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faindexer",
		Subsystem: "normalizer",
		Name:      "batch_duration_seconds",
		Help:      "Normalizer batch processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"processor"})

	// Ingester
	IngesterBatchesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "batches_committed_total",
		Help:      "Total batches committed to the sink",
	}, []string{"processor"})

	IngesterBatchesAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "batches_abandoned_total",
		Help:      "Total batches abandoned because the source signalled a rollback",
	}, []string{"processor"})

	IngesterActivitiesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "activities_written_total",
		Help:      "Total activity rows handed to the sink",
	}, []string{"processor", "table"})

	IngesterSnapshotsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "snapshots_upserted_total",
		Help:      "Total current-state rows handed to the sink",
	}, []string{"processor", "table"})

	IngesterSupplyRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "supply_rows_total",
		Help:      "Total supply snapshots handed to the sink",
	}, []string{"processor"})

	IngesterStaleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "stale_events_total",
		Help:      "Total events discarded by last-write-wins gating",
	}, []string{"processor", "target"})

	IngesterNegativeBalances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "negative_balances_total",
		Help:      "Total balance updates clamped at zero",
	}, []string{"processor"})

	IngesterRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "retries_total",
		Help:      "Total transient sink failures retried",
	}, []string{"processor"})

	IngesterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "errors_total",
		Help:      "Total batch failures after retry exhaustion",
	}, []string{"processor"})

	IngesterLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faindexer",
		Subsystem: "ingester",
		Name:      "batch_duration_seconds",
		Help:      "Ingester batch processing duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"processor"})

	// Pipeline
	PipelineLastCommittedVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "pipeline",
		Name:      "last_committed_version",
		Help:      "Highest transaction version committed by the processor",
	}, []string{"processor"})

	PipelineChannelDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "pipeline",
		Name:      "channel_depth",
		Help:      "Number of batches buffered between stages",
	}, []string{"processor", "stage"})

	// Snapshot cache
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total snapshot cache hits",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total snapshot cache misses",
	}, []string{"cache"})

	// Alerts
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts delivered",
	}, []string{"type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "alert",
		Name:      "suppressed_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"type"})

	AlertsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faindexer",
		Subsystem: "alert",
		Name:      "rejected_total",
		Help:      "Total alerts not sent because the channel circuit breaker was open",
	}, []string{"type"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"name"})

	// DB pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "db_pool",
		Name:      "open_connections",
		Help:      "Number of open database connections",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "db_pool",
		Name:      "in_use_connections",
		Help:      "Number of in-use database connections",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "db_pool",
		Name:      "idle_connections",
		Help:      "Number of idle database connections",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "db_pool",
		Name:      "wait_count",
		Help:      "Total number of connections waited for",
	})

	DBPoolWaitDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faindexer",
		Subsystem: "db_pool",
		Name:      "wait_duration_seconds",
		Help:      "Total time blocked waiting for a new connection",
	})
)
