package config

import (
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/metrics"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Backend receives backend operation metrics (nil if disabled)
	Backend backend.Metrics

	// Retention receives sweep metrics (nil if disabled)
	Retention retention.Metrics
}

// InitializeMetrics creates the metrics components for cfg.
//
// When metrics are disabled every field is nil and components fall back to
// their no-op implementations. Call at most once per process.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:    metrics.NewServer(metrics.ServerConfig{Port: cfg.Server.Metrics.Port}),
		Backend:   metrics.NewBackendMetrics(),
		Retention: metrics.NewRetentionMetrics(),
	}
}
