// Package metrics exposes run metrics for the node-exporter textfile collector.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the per-monitor run metrics in a private registry.
type Recorder struct {
	reg *prometheus.Registry

	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	entries    *prometheus.GaugeVec
	rows       *prometheus.GaugeVec
	hasChanges *prometheus.GaugeVec
	lastRun    *prometheus.GaugeVec
	duration   *prometheus.HistogramVec

	mu       sync.Mutex
	textfile string
}

func New(textfile string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg:      reg,
		textfile: strings.TrimSpace(textfile),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashwatch_runs_total",
			Help: "Completed runs by monitor and reason",
		}, []string{"monitor", "reason"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashwatch_run_failures_total",
			Help: "Failed runs by monitor and error kind",
		}, []string{"monitor", "kind"}),
		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashwatch_diff_entries",
			Help: "Diff entries of the last run by kind",
		}, []string{"monitor", "kind"}),
		rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashwatch_snapshot_rows",
			Help: "Rows in the last acquired snapshot",
		}, []string{"monitor"}),
		hasChanges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashwatch_has_changes",
			Help: "1 when the last run set the changed flag",
		}, []string{"monitor"}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashwatch_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}, []string{"monitor"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashwatch_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"monitor"}),
	}
}

// Run is the outcome of one completed run.
type Run struct {
	Monitor    string
	Reason     string
	HasChanges bool
	Added      int
	Removed    int
	Modified   int
	Rows       int
	At         time.Time
	Took       time.Duration
}

func (r *Recorder) ObserveRun(run Run) {
	r.runs.WithLabelValues(run.Monitor, run.Reason).Inc()
	r.entries.WithLabelValues(run.Monitor, "added").Set(float64(run.Added))
	r.entries.WithLabelValues(run.Monitor, "removed").Set(float64(run.Removed))
	r.entries.WithLabelValues(run.Monitor, "modified").Set(float64(run.Modified))
	r.rows.WithLabelValues(run.Monitor).Set(float64(run.Rows))
	changed := 0.0
	if run.HasChanges {
		changed = 1
	}
	r.hasChanges.WithLabelValues(run.Monitor).Set(changed)
	r.lastRun.WithLabelValues(run.Monitor).Set(float64(run.At.Unix()))
	r.duration.WithLabelValues(run.Monitor).Observe(run.Took.Seconds())
}

func (r *Recorder) ObserveFailure(monitor, kind string) {
	if kind == "" {
		kind = "other"
	}
	r.failures.WithLabelValues(monitor, kind).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Flush writes the registry to the configured textfile. No-op when unset.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(r.textfile, r.reg)
}
