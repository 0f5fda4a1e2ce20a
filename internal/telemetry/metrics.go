package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ingest_jobs_enqueued_total", Help: "Jobs added to the queue"}, []string{"type"})
	JobsCompleted    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ingest_jobs_completed_total", Help: "Jobs completed successfully"}, []string{"type"})
	JobsRetried      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ingest_jobs_retried_total", Help: "Failed attempts that were scheduled for retry"}, []string{"type"})
	JobsFailed       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ingest_jobs_failed_total", Help: "Jobs that reached the failed state"}, []string{"type"})
	JobsCancelled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_jobs_cancelled_total", Help: "Jobs cancelled before running"})
	JobDuration      = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "ingest_job_duration_seconds", Help: "Executor run time per attempt", Buckets: prometheus.DefBuckets}, []string{"type"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ingest_queue_depth", Help: "Pending jobs waiting for a slot"})
	RunningGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ingest_jobs_running", Help: "Jobs currently executing"})
	RecordsProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_records_processed_total", Help: "Raw property records fed through normalization"})
	DuplicatesFound  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_duplicate_groups_total", Help: "Duplicate groups collapsed by deduplication"})
	RecordsPersisted = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_records_persisted_total", Help: "Normalized properties inserted into the store"})
	RecordsRejected  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_records_rejected_total", Help: "Normalized properties held back by validation"})
	SourceErrors     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ingest_source_errors_total", Help: "Data source fetch failures"}, []string{"source"})
	RateLimitWaits   = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rate_limit_waits_total", Help: "Source fetches delayed by the rate limiter"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rate_limit_rejects_total", Help: "API submissions rejected by the rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			JobsCancelled,
			JobDuration,
			QueueDepthGauge,
			RunningGauge,
			RecordsProcessed,
			DuplicatesFound,
			RecordsPersisted,
			RecordsRejected,
			SourceErrors,
			RateLimitWaits,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
