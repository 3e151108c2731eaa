// Package metrics publishes balancing counters through Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Activity outcomes.
const (
	ResultBalanced = "balanced"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Recorder aggregates per-activity outcomes, accumulated rows and written packages.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	activities *prometheus.CounterVec
	rows       prometheus.Counter
	packages   prometheus.Counter
	duration   prometheus.Histogram
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landbalancer",
			Name:      "activities_total",
			Help:      "Activities processed, by outcome.",
		}, []string{"result"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landbalancer",
			Name:      "sample_rows_total",
			Help:      "Sample rows accumulated.",
		}),
		packages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landbalancer",
			Name:      "packages_written_total",
			Help:      "Presample packages written.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landbalancer",
			Name:      "activity_duration_seconds",
			Help:      "Time spent generating the samples of one activity.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	r.registry.MustRegister(r.activities, r.rows, r.packages, r.duration)
	return r
}

// Registry exposes the underlying registry, e.g. for promhttp or tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Activities returns the per-outcome activity counter, nil for a nil recorder.
func (r *Recorder) Activities() *prometheus.CounterVec {
	if r == nil {
		return nil
	}
	return r.activities
}

// SampleRows returns the accumulated row counter, nil for a nil recorder.
func (r *Recorder) SampleRows() prometheus.Counter {
	if r == nil {
		return nil
	}
	return r.rows
}

// PackagesWritten returns the written package counter, nil for a nil recorder.
func (r *Recorder) PackagesWritten() prometheus.Counter {
	if r == nil {
		return nil
	}
	return r.packages
}

// ObserveActivity records one activity outcome.
func (r *Recorder) ObserveActivity(result string, rows int, d time.Duration) {
	if r == nil {
		return
	}
	r.activities.WithLabelValues(result).Inc()
	r.rows.Add(float64(rows))
	r.duration.Observe(d.Seconds())
}

// PackageWritten counts one written package.
func (r *Recorder) PackageWritten() {
	if r == nil {
		return
	}
	r.packages.Inc()
}

// Push sends the current values to a Pushgateway under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
