package metrics

import (
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// backendMetrics is the Prometheus implementation of backend.Metrics.
type backendMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// NewBackendMetrics returns a Prometheus-backed backend.Metrics, or nil when
// metrics are disabled so backends use their no-op implementation.
func NewBackendMetrics() backend.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newBackendMetrics(GetRegistry())
}

func newBackendMetrics(reg prometheus.Registerer) *backendMetrics {
	return &backendMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_operations_total",
				Help:      "Total number of backend operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_operation_duration_seconds",
				Help:      "Duration of backend operations in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"backend", "operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_bytes_total",
				Help:      "Total bytes moved by backend operations",
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *backendMetrics) ObserveOperation(name, operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(name, operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(name, operation).Observe(duration.Seconds())
}

func (m *backendMetrics) RecordBytes(name, operation string, bytes int64) {
	m.bytesTotal.WithLabelValues(name, operation).Add(float64(bytes))
}
