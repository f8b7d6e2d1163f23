// Package metrics exposes the Prometheus counters and gauges the
// orchestration core updates as jobs move through the system, grounded
// on the package-level var-block-plus-init-registration pattern used
// throughout the example corpus (cuemby-warren's pkg/metrics in
// particular).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryd_jobs_submitted_total",
			Help: "Total number of jobs submitted to the registry",
		},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal state, by outcome",
		},
		[]string{"outcome"}, // "analyzed" or "failed"
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentryd_jobs_in_flight",
			Help: "Number of jobs currently being analyzed",
		},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryd_job_duration_seconds",
			Help:    "Time from job submission to terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerdictsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_verdicts_emitted_total",
			Help: "Total number of verdicts published, by analyzer and kind",
		},
		[]string{"analyzer", "kind"},
	)

	AnalyzersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentryd_analyzers_active",
			Help: "Number of AnalysisCommands currently registering or armed, across all jobs",
		},
	)

	BusSubscribersLagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryd_bus_subscribers_lagged_total",
			Help: "Total number of Lagged markers delivered to job event bus subscribers",
		},
	)

	PipelineTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentryd_pipeline_task_duration_seconds",
			Help:    "Time taken by an individual pipeline stage task",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsSubmittedTotal,
		JobsCompletedTotal,
		JobsInFlight,
		JobDuration,
		VerdictsEmittedTotal,
		AnalyzersActive,
		BusSubscribersLagged,
		PipelineTaskDuration,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records elapsed time into a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
