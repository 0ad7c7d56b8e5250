// Package metrics records what a dogpush run did, for export as a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dogpush"

// Operation is a monitor change applied to the remote service.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
	OpMuted   Operation = "muted"
)

// Drift is one of the difference sets computed by diff and push.
type Drift string

const (
	DriftNew       Drift = "new"
	DriftChanged   Drift = "changed"
	DriftUntracked Drift = "untracked"
)

// Recorder receives run telemetry.
type Recorder interface {
	ObserveRequest(method string, code int, elapsed time.Duration)
	IncOperation(op Operation)
	SetDrift(kind Drift, n int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveRequest(string, int, time.Duration) {}
func (Noop) IncOperation(Operation)                    {}
func (Noop) SetDrift(Drift, int)                       {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}

// Registry is a Recorder backed by a private Prometheus registry.
type Registry struct {
	reg        *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	operations *prometheus.CounterVec
	drift      *prometheus.GaugeVec
	lastRun    prometheus.Gauge
}

// New builds a Registry labelled with the subcommand being run.
func New(command string) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"command": command}
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "api",
			Name:        "requests_total",
			Help:        "Monitor API requests by method and status code.",
			ConstLabels: labels,
		}, []string{"method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "api",
			Name:        "request_duration_seconds",
			Help:        "Monitor API request latency.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "monitor_operations_total",
			Help:        "Monitors created, updated, deleted or muted.",
			ConstLabels: labels,
		}, []string{"operation"}),
		drift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "drift_monitors",
			Help:        "Monitors differing between local declarations and the remote service.",
			ConstLabels: labels,
		}, []string{"kind"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the run finished.",
			ConstLabels: labels,
		}),
	}
}

func (r *Registry) ObserveRequest(method string, code int, elapsed time.Duration) {
	r.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	r.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (r *Registry) IncOperation(op Operation) {
	r.operations.WithLabelValues(string(op)).Inc()
}

func (r *Registry) SetDrift(kind Drift, n int) {
	r.drift.WithLabelValues(string(kind)).Set(float64(n))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile stamps the run completion time and writes every metric to
// path in the text exposition format.
func (r *Registry) WriteTextfile(path string, finished time.Time) error {
	r.lastRun.Set(float64(finished.Unix()))
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

var _ Recorder = (*Registry)(nil)
