package metrics

import (
	"context"
	"fmt"

	"github.com/hairocraft/callsync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type queueStatsCollector struct {
	store        store.Store
	jobsByStatus *prometheus.Desc
}

func newQueueStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_queue_%s", callsync, name)
	}

	return &queueStatsCollector{
		store: s,
		jobsByStatus: prometheus.NewDesc(
			fqName("jobs_total"),
			"Number of upload jobs in the queue, by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
	}
}

// RegisterQueueStatsCollector exposes the live queue breakdown on /metrics.
// Call it once, after the store is migrated.
func RegisterQueueStatsCollector(s store.Store) {
	prometheus.MustRegister(newQueueStatsCollector(s))
}

func (c *queueStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
}

// Collect implements Collector.
func (c *queueStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("queue_collector").Errorf("failed to collect queue statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(stats.Pending), "pending")
	ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(stats.Uploading), "uploading")
	ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(stats.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(stats.Completed), "completed")
}
