package metrics

import (
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// retentionMetrics is the Prometheus implementation of retention.Metrics.
type retentionMetrics struct {
	sweepsTotal   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	removedTotal  *prometheus.CounterVec
	failedTotal   prometheus.Counter
	freedBytes    prometheus.Counter
	lastSweep     prometheus.Gauge
}

// NewRetentionMetrics returns a Prometheus-backed retention.Metrics, or nil
// when metrics are disabled.
func NewRetentionMetrics() retention.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newRetentionMetrics(GetRegistry())
}

func newRetentionMetrics(reg prometheus.Registerer) *retentionMetrics {
	return &retentionMetrics{
		sweepsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_sweeps_total",
				Help:      "Total number of retention sweeps by status",
			},
			[]string{"status"},
		),
		sweepDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retention_sweep_duration_seconds",
				Help:      "Duration of retention sweeps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		removedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_removed_total",
				Help:      "Total number of blobs removed by sweep phase (rule, orphan, untracked)",
			},
			[]string{"phase"},
		),
		failedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_failures_total",
				Help:      "Total number of removals that failed during sweeps",
			},
		),
		freedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_freed_bytes_total",
				Help:      "Total bytes released by retention sweeps",
			},
		),
		lastSweep: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "retention_last_sweep_timestamp_seconds",
				Help:      "Unix time the last retention sweep finished",
			},
		),
	}
}

func (m *retentionMetrics) ObserveSweep(stats *retention.Stats, err error) {
	m.sweepsTotal.WithLabelValues(status(err)).Inc()
	m.sweepDuration.Observe(stats.Duration().Seconds())
	m.lastSweep.Set(float64(stats.EndTime.Unix()))

	// Dry runs remove nothing.
	if stats.DryRun {
		return
	}
	m.removedTotal.WithLabelValues("rule").Add(float64(stats.Removed))
	m.removedTotal.WithLabelValues("orphan").Add(float64(stats.Orphans))
	m.removedTotal.WithLabelValues("untracked").Add(float64(stats.Untracked))
	m.failedTotal.Add(float64(stats.Failed))
	m.freedBytes.Add(float64(stats.FreedBytes))
}
