package metrics

import (
	"context"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/prometheus/client_golang/prometheus"
)

// IndexStatser reports aggregate index counts. *index.Index satisfies it.
type IndexStatser interface {
	Stats(ctx context.Context) (*index.Stats, error)
}

// indexCollector reads index totals on every scrape.
type indexCollector struct {
	source IndexStatser

	blobs     *prometheus.Desc
	owners    *prometheus.Desc
	totalSize *prometheus.Desc
}

// RegisterIndexCollector exposes index totals (blobs, distinct owners,
// stored bytes). It is a no-op when metrics are disabled.
func RegisterIndexCollector(source IndexStatser) error {
	if !IsEnabled() {
		return nil
	}
	return GetRegistry().Register(newIndexCollector(source))
}

func newIndexCollector(source IndexStatser) *indexCollector {
	return &indexCollector{
		source:    source,
		blobs:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "index", "blobs"), "Number of blobs in the index", nil, nil),
		owners:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "index", "owners"), "Number of distinct owner pubkeys", nil, nil),
		totalSize: prometheus.NewDesc(prometheus.BuildFQName(namespace, "index", "size_bytes"), "Total size of indexed blobs in bytes", nil, nil),
	}
}

func (c *indexCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blobs
	ch <- c.owners
	ch <- c.totalSize
}

func (c *indexCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		logger.Warn("Metrics: failed to read index stats: %v", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.blobs, prometheus.GaugeValue, float64(stats.Blobs))
	ch <- prometheus.MustNewConstMetric(c.owners, prometheus.GaugeValue, float64(stats.Owners))
	ch <- prometheus.MustNewConstMetric(c.totalSize, prometheus.GaugeValue, float64(stats.TotalSize))
}
