// Package metrics provides Prometheus instrumentation for IronForge.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the narrow capability injected into the executor and API
// server. Each Recorder wraps its own Prometheus registry, not the global
// default one; cmd/server creates one at bootstrap and passes it down
// explicitly rather than reading it from a package global.
type Recorder struct {
	registry *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec
	jobsDLQ       *prometheus.CounterVec

	queueDepth *prometheus.GaugeVec
	dlqDepth   *prometheus.GaugeVec
	activeJobs *prometheus.GaugeVec

	jobDuration *prometheus.HistogramVec
	jobWaitTime *prometheus.HistogramVec
}

// New creates a Recorder registered on a fresh, private registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.jobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironforge_jobs_submitted_total",
		Help: "Total jobs submitted to the queue.",
	}, []string{"kind", "priority"})
	r.jobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironforge_jobs_completed_total",
		Help: "Total jobs completed successfully.",
	}, []string{"kind", "priority"})
	r.jobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironforge_jobs_failed_total",
		Help: "Total handler invocations that returned failure or timed out.",
	}, []string{"kind", "priority"})
	r.jobsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironforge_jobs_retried_total",
		Help: "Total jobs re-enqueued for retry.",
	}, []string{"kind", "priority", "retry_count"})
	r.jobsDLQ = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironforge_jobs_dlq_total",
		Help: "Total jobs moved to the dead letter queue.",
	}, []string{"kind", "priority"})

	r.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ironforge_queue_depth",
		Help: "Current number of jobs waiting in the priority queue.",
	}, []string{})
	r.dlqDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ironforge_dlq_depth",
		Help: "Current number of jobs in the dead letter queue.",
	}, []string{})
	r.activeJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ironforge_active_jobs",
		Help: "Current number of jobs locked by a worker.",
	}, []string{})

	r.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ironforge_job_duration_seconds",
		Help:    "Wall-clock time spent inside the handler.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"kind", "priority"})
	r.jobWaitTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ironforge_job_wait_time_seconds",
		Help:    "Time a job spent queued before being dequeued.",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
	}, []string{"kind", "priority"})

	r.registry.MustRegister(
		r.jobsSubmitted, r.jobsCompleted, r.jobsFailed, r.jobsRetried, r.jobsDLQ,
		r.queueDepth, r.dlqDepth, r.activeJobs,
		r.jobDuration, r.jobWaitTime,
	)
	return r
}

// Handler serves the registry's metrics in Prometheus text exposition
// format, for mounting at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) JobSubmitted(kind, priority string) {
	r.jobsSubmitted.WithLabelValues(kind, priority).Inc()
}

func (r *Recorder) JobCompleted(kind, priority string, durationSeconds float64) {
	r.jobsCompleted.WithLabelValues(kind, priority).Inc()
	r.jobDuration.WithLabelValues(kind, priority).Observe(durationSeconds)
}

func (r *Recorder) JobFailed(kind, priority string, durationSeconds float64) {
	r.jobsFailed.WithLabelValues(kind, priority).Inc()
	r.jobDuration.WithLabelValues(kind, priority).Observe(durationSeconds)
}

func (r *Recorder) JobRetried(kind, priority string, retryCount uint8) {
	r.jobsRetried.WithLabelValues(kind, priority, strconv.Itoa(int(retryCount))).Inc()
}

func (r *Recorder) JobDLQ(kind, priority string) {
	r.jobsDLQ.WithLabelValues(kind, priority).Inc()
}

func (r *Recorder) JobWaitTime(kind, priority string, waitSeconds float64) {
	r.jobWaitTime.WithLabelValues(kind, priority).Observe(waitSeconds)
}

func (r *Recorder) SetQueueDepth(n float64) { r.queueDepth.WithLabelValues().Set(n) }
func (r *Recorder) SetDLQDepth(n float64)   { r.dlqDepth.WithLabelValues().Set(n) }
func (r *Recorder) SetActiveJobs(n float64) { r.activeJobs.WithLabelValues().Set(n) }
