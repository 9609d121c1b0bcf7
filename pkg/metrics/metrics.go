package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Crucible.
// Using promauto for automatic registration with default registry.
var (
	// --- Job Metrics ---

	// JobsRunning tracks concurrent simulation jobs on this worker.
	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crucible",
			Subsystem: "executor",
			Name:      "jobs_running",
			Help:      "Number of simulation jobs currently running on this worker",
		},
	)

	// JobsTotal counts finished jobs by outcome. Outcome "completed" covers
	// runs that produced a RemoteResult (including ones carrying a
	// simulation-level error); "failed" covers boundary failures where no
	// result could be produced.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crucible",
			Subsystem: "executor",
			Name:      "jobs_total",
			Help:      "Total number of jobs executed by outcome",
		},
		[]string{"outcome"},
	)

	// JobDuration tracks end-to-end job pipeline duration.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crucible",
			Subsystem: "executor",
			Name:      "job_duration_seconds",
			Help:      "Duration of job pipeline executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1s to ~1.8h
		},
		[]string{"outcome"},
	)

	// --- Working Area Metrics ---

	// WorkAreasActive tracks live scoped working areas. A non-zero value on
	// an idle worker means a release path was missed.
	WorkAreasActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crucible",
			Subsystem: "workarea",
			Name:      "active",
			Help:      "Number of scoped working areas currently allocated",
		},
	)

	// DependencyBytes tracks the total materialized dependency size per job.
	DependencyBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "crucible",
			Subsystem: "workarea",
			Name:      "dependency_bytes",
			Help:      "Bytes of dependency artifacts materialized per job",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
		},
	)

	// --- Cluster Metrics ---

	// HeartbeatsSent counts membership heartbeats sent by this worker.
	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crucible",
			Subsystem: "cluster",
			Name:      "heartbeats_total",
			Help:      "Total membership heartbeats sent",
		},
	)

	// ActiveNodes tracks the number of live worker nodes seen by the
	// dispatcher.
	ActiveNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crucible",
			Subsystem: "cluster",
			Name:      "active_nodes",
			Help:      "Number of active worker nodes",
		},
	)

	// --- Queue Metrics ---

	// ResultsPublished counts results pushed to the result stream.
	ResultsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crucible",
			Subsystem: "queue",
			Name:      "results_published_total",
			Help:      "Total results published to the result stream",
		},
		[]string{"outcome"},
	)

	// JobsDispatched counts jobs pushed onto the job stream by the dispatcher.
	JobsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crucible",
			Subsystem: "queue",
			Name:      "jobs_dispatched_total",
			Help:      "Total jobs dispatched to the job stream",
		},
	)
)

// RecordJob records metrics for one finished job pipeline.
func RecordJob(outcome string, durationSeconds float64) {
	JobsTotal.WithLabelValues(outcome).Inc()
	JobDuration.WithLabelValues(outcome).Observe(durationSeconds)
}
