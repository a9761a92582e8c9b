package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var deploymentsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobadapter_deployments_total",
		Help: "Total number of job deployments by infrastructure target and result.",
	},
	[]string{"target", "result"},
)

var deletionsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobadapter_deletions_total",
		Help: "Total number of job deletions by infrastructure target and result.",
	},
	[]string{"target", "result"},
)

var jobsObserved = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "jobadapter_jobs",
		Help: "Number of jobs seen by the last survey, by infrastructure target and status.",
	},
	[]string{"target", "status"},
)

var probeFailuresTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobadapter_job_probe_failures_total",
		Help: "Total number of failed job health or metrics probes during listing.",
	},
	[]string{"target"},
)

var logSessionsActive = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "jobadapter_log_sessions_active",
		Help: "Number of open log streaming sessions by transport.",
	},
	[]string{"transport"},
)

var checkUp = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "jobadapter_check_up",
		Help: "Whether the last ping of a dependency check succeeded (1) or failed (0).",
	},
	[]string{"check"},
)

var checkLatency = promauto.With(prometheus.DefaultRegisterer).NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "jobadapter_check_duration_seconds",
		Help:    "Latency of dependency check pings.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	},
	[]string{"check"},
)

// RecordDeployment counts a deployment attempt.
func RecordDeployment(target, result string) {
	deploymentsTotal.WithLabelValues(target, result).Inc()
}

// RecordDeletion counts a deletion attempt.
func RecordDeletion(target, result string) {
	deletionsTotal.WithLabelValues(target, result).Inc()
}

// SetJobsObserved replaces the job counts of a target with the given per-status counts.
func SetJobsObserved(target string, byStatus map[string]int) {
	jobsObserved.DeletePartialMatch(prometheus.Labels{"target": target})

	for status, count := range byStatus {
		jobsObserved.WithLabelValues(target, status).Set(float64(count))
	}
}

// RecordProbeFailure counts a job that was degraded to an error status during listing.
func RecordProbeFailure(target string) {
	probeFailuresTotal.WithLabelValues(target).Inc()
}

// LogSessionOpened increments the open session gauge.
func LogSessionOpened(transport string) {
	logSessionsActive.WithLabelValues(transport).Inc()
}

// LogSessionClosed decrements the open session gauge.
func LogSessionClosed(transport string) {
	logSessionsActive.WithLabelValues(transport).Dec()
}

// ObserveCheck records the outcome of one dependency ping.
func ObserveCheck(check string, latency time.Duration, err error) {
	up := 1.0
	if err != nil {
		up = 0
	}

	checkUp.WithLabelValues(check).Set(up)
	checkLatency.WithLabelValues(check).Observe(latency.Seconds())
}
