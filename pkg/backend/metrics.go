package backend

import (
	"io"
	"time"
)

// Metrics provides observability for backend operations.
//
// This is optional. Backends fall back to NoopMetrics when none is given.
type Metrics interface {
	// ObserveOperation records an operation with its duration and outcome.
	// backend is the implementation name ("local", "s3").
	ObserveOperation(backend, operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred by read/write operations.
	RecordBytes(backend, operation string, bytes int64)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveOperation(backend, operation string, duration time.Duration, err error) {}
func (NoopMetrics) RecordBytes(backend, operation string, bytes int64)                            {}

// OrNoop returns m, or NoopMetrics when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return NoopMetrics{}
	}
	return m
}

// MeteredReadCloser wraps rc and reports the bytes read through it to m
// when closed.
func MeteredReadCloser(rc io.ReadCloser, m Metrics, backend, operation string) io.ReadCloser {
	return &metricsReadCloser{ReadCloser: rc, metrics: m, backend: backend, operation: operation}
}

type metricsReadCloser struct {
	io.ReadCloser
	metrics   Metrics
	backend   string
	operation string
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (n int, err error) {
	n, err = m.ReadCloser.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	// Record bytes read regardless of close error
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.backend, m.operation, m.bytesRead)
	}
	return err
}
