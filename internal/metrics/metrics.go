// Package metrics defines Prometheus metrics for the ledger.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Append paths.
const (
	PathExplicit = "explicit"
	PathAuto     = "auto"
	PathBackfill = "backfill"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	EntriesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_appended_total",
			Help: "Ledger entries written, by append path",
		},
		[]string{"path"},
	)

	AppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_append_duration_seconds",
			Help:    "Time spent inside the entry writer, including the chain lock wait",
			Buckets: prometheus.DefBuckets,
		},
	)

	DuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_autolog_suppressed_total",
			Help: "Automatic entries skipped because the transaction already logged explicitly",
		},
	)

	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_verifications_total",
			Help: "Chain verifications by result",
		},
		[]string{"result"},
	)

	Checkpoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_checkpoints_total",
			Help: "Checkpoint attempts by result",
		},
		[]string{"result"},
	)

	LastAnchoredSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_last_anchored_seq",
			Help: "Last global sequence number covered by a root",
		},
	)

	IntegrityCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_integrity_cache_lookups_total",
			Help: "Integrity status cache lookups by result",
		},
		[]string{"result"},
	)

	FeedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_feed_connections",
			Help: "Active ledger feed WebSocket connections",
		},
	)

	FeedEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_feed_events_dropped_total",
			Help: "Feed events dropped because a buffer was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		EntriesAppended, AppendDuration, DuplicatesSuppressed,
		Verifications, Checkpoints, LastAnchoredSeq,
		IntegrityCacheLookups, FeedConnections, FeedEventsDropped,
	)
}
