// Package metrics provides Prometheus metrics for the blob store.
//
// All metrics are optional. If the registry is not initialized, constructors
// return nil and components fall back to their no-op implementations.
//
// Usage:
//
//	metrics.InitRegistry()
//
//	be := local.New(local.Config{Path: dir, Metrics: metrics.NewBackendMetrics()})
//	sweeper := retention.New(idx, coord, be, cfg, retention.WithMetrics(metrics.NewRetentionMetrics()))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "blossom"

var (
	// registry is written once by InitRegistry and read many times.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry with the Go
// runtime and process collectors. Subsequent calls are ignored.
//
// If not called, GetRegistry returns nil and every constructor returns a
// nil implementation.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// durationBuckets spans fast local reads to slow remote writes.
var durationBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.5,   // 500ms
	1.0,   // 1s
	5.0,   // 5s
	30.0,  // 30s
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
