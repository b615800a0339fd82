// Package metrics records Prometheus metrics for a run and can export them
// in the text exposition format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/migrant/internal/change"
)

// Lock acquisition results.
const (
	LockAcquired = "acquired"
	LockBusy     = "busy"
	LockError    = "error"
)

// Metrics holds the run's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	ChangesExecuted  *prometheus.CounterVec
	ChangeDuration   *prometheus.HistogramVec
	ChangesFailed    *prometheus.CounterVec
	LockAcquisitions *prometheus.CounterVec
	PendingChanges   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ChangesExecuted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrant_changes_executed_total",
				Help: "Change files executed successfully",
			},
			[]string{"type", "connector"},
		),
		ChangeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "migrant_change_duration_seconds",
				Help:    "Time spent executing one change file",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ChangesFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrant_changes_failed_total",
				Help: "Change files whose execution failed",
			},
			[]string{"type", "connector"},
		),
		LockAcquisitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrant_lock_acquisitions_total",
				Help: "Distributed lock acquisition attempts by result",
			},
			[]string{"result"},
		),
		PendingChanges: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrant_pending_changes",
				Help: "Changes found pending by the last resolution",
			},
		),
	}
}

// ObserveChange records one executed change.
func (m *Metrics) ObserveChange(id change.ID, d time.Duration, err error) {
	if err != nil {
		m.ChangesFailed.WithLabelValues(id.Type.String(), id.Connector).Inc()
		return
	}
	m.ChangesExecuted.WithLabelValues(id.Type.String(), id.Connector).Inc()
	m.ChangeDuration.WithLabelValues(id.Type.String()).Observe(d.Seconds())
}

// ObserveLock records a lock acquisition attempt.
func (m *Metrics) ObserveLock(result string) {
	m.LockAcquisitions.WithLabelValues(result).Inc()
}

// WriteTextfile atomically writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
