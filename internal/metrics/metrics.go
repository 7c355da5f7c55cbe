// Package metrics records pipeline and job outcomes as Prometheus metrics.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sourceplane/liteflow/internal/model"
)

const namespace = "liteflow"

// Recorder implements the scheduler's observer interface and keeps its
// collectors in a private registry, exported as a node-exporter textfile
type Recorder struct {
	registry *prometheus.Registry

	mu      sync.Mutex
	started map[string]bool

	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
	runs     *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]bool),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal state, by state.",
		}, []string{"state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of executed jobs, by job group and state.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"group", "state"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently running.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs, by pipeline and overall status.",
		}, []string{"pipeline", "status"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_last_run_timestamp_seconds",
			Help:      "Finish time of the last run of a pipeline.",
		}, []string{"pipeline"}),
	}
	r.registry.MustRegister(r.jobs, r.duration, r.running, r.runs, r.lastRun)
	return r
}

// JobStateChanged records transitions reported by the scheduler
func (r *Recorder) JobStateChanged(job *model.JobInstance, run model.JobRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.State == model.StateRunning {
		r.started[job.Name] = true
		r.running.Inc()
		return
	}
	if !run.State.Terminal() {
		return
	}

	r.jobs.WithLabelValues(string(run.State)).Inc()
	if r.started[job.Name] {
		delete(r.started, job.Name)
		r.running.Dec()
		if !run.FinishedAt.IsZero() {
			r.duration.WithLabelValues(job.Group, string(run.State)).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
		}
	}
}

// ObserveReport records the overall outcome of a run
func (r *Recorder) ObserveReport(report *model.PipelineReport) {
	r.runs.WithLabelValues(report.Pipeline, string(report.Status)).Inc()
	r.lastRun.WithLabelValues(report.Pipeline).Set(float64(report.FinishedAt.Unix()))
}

// Registry exposes the recorder's registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
