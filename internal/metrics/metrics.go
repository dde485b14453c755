// Package metrics records refresh run metrics for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "convocache"

// Run outcomes.
const (
	OutcomeBuilt  = "built"   // entries rebuilt and snapshot committed
	OutcomeNoop   = "noop"    // no new content
	OutcomeFailed = "failed"  // aborted without commit
	OutcomeDryRun = "dry_run" // planned only
)

// Build statuses.
const (
	BuildOK     = "ok"
	BuildFailed = "failed"
)

// RefreshMetrics holds all Prometheus metrics for refresh runs.
// Each instance owns its registry so a run exports only its own series.
type RefreshMetrics struct {
	Registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	BuildsTotal     *prometheus.CounterVec
	PlannedDates    *prometheus.GaugeVec
	ScannedFiles    prometheus.Gauge
	CacheEntries    prometheus.Gauge
	PhaseDuration   *prometheus.GaugeVec
	LastSuccessTime prometheus.Gauge
}

// NewRefreshMetrics initializes and registers the refresh metrics on a fresh registry.
func NewRefreshMetrics() *RefreshMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RefreshMetrics{
		Registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of refresh runs by outcome.",
		}, []string{"outcome"}), // outcome: built, noop, failed, dry_run
		BuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "builds_total",
			Help:      "Total number of day builds by status.",
		}, []string{"status"}),
		PlannedDates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "planned_dates",
			Help:      "Dates planned by the last run, split into rebuilt and new entries.",
		}, []string{"kind"}), // kind: rebuild, new
		ScannedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "scanned_files",
			Help:      "Raw logs with unread bytes in the last run.",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Cache entries merged into the last aggregate.",
		}),
		PhaseDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each phase of the last run.",
		}, []string{"phase"}), // phase: scan, plan, build, commit, materialize
		LastSuccessTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without error.",
		}),
	}
}

// ObservePhase records how long a phase took.
func (m *RefreshMetrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Set(d.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically so the collector never reads a partial write.
func (m *RefreshMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
