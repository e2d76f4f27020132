// Package metrics exposes Prometheus collectors for the documentation
// pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal              *prometheus.CounterVec
	tasksTotal             *prometheus.CounterVec
	taskRetriesTotal       prometheus.Counter
	snapshotCacheTotal     *prometheus.CounterVec
	crawlDurationSeconds   prometheus.Histogram
	analyzeDurationSeconds prometheus.Histogram
	rateLimitDelaySeconds  prometheus.Histogram
	testCasesTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qadoc_jobs_total",
				Help: "Total number of jobs reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qadoc_tasks_total",
				Help: "Total number of tasks reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		taskRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qadoc_task_retries_total",
				Help: "Total number of task attempt retries.",
			},
		)

		snapshotCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qadoc_snapshot_cache_total",
				Help: "Snapshot cache lookups, labeled by outcome (hit or miss).",
			},
			[]string{"outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qadoc_crawl_duration_seconds",
				Help:    "Histogram of live page crawl latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
		)

		analyzeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qadoc_analyze_duration_seconds",
				Help:    "Histogram of LLM analysis latencies.",
				Buckets: []float64{1, 2, 5, 10, 20, 45, 90},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qadoc_rate_limit_delay_seconds",
				Help:    "Histogram of delays introduced by per-job admission control.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
		)

		testCasesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qadoc_test_cases_total",
				Help: "Total number of generated test cases, labeled by category.",
			},
			[]string{"category"},
		)
	})
}

// IncJob counts a job terminal transition.
func IncJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncTask counts a task terminal transition.
func IncTask(status string) {
	Init()
	tasksTotal.WithLabelValues(status).Inc()
}

// IncTaskRetry counts one retried attempt.
func IncTaskRetry() {
	Init()
	taskRetriesTotal.Inc()
}

// IncCacheHit counts a snapshot cache hit.
func IncCacheHit() {
	Init()
	snapshotCacheTotal.WithLabelValues("hit").Inc()
}

// IncCacheMiss counts a snapshot cache miss.
func IncCacheMiss() {
	Init()
	snapshotCacheTotal.WithLabelValues("miss").Inc()
}

// ObserveCrawlDuration records one live crawl latency.
func ObserveCrawlDuration(d time.Duration) {
	Init()
	crawlDurationSeconds.Observe(d.Seconds())
}

// ObserveAnalyzeDuration records one LLM analysis latency.
func ObserveAnalyzeDuration(d time.Duration) {
	Init()
	analyzeDurationSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records a delay introduced by admission control.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// IncTestCases counts generated test cases per category.
func IncTestCases(category string, n int) {
	Init()
	testCasesTotal.WithLabelValues(category).Add(float64(n))
}
