package agreement

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descChangesReplayed = prometheus.NewDesc(
		"replmgr_agreement_changes_replayed_total",
		"Number of changes sent to the consumer since startup.",
		[]string{"agreement"},
		nil,
	)
	descChangesSkipped = prometheus.NewDesc(
		"replmgr_agreement_changes_skipped_total",
		"Number of changes filtered or already known to the consumer since startup.",
		[]string{"agreement"},
		nil,
	)
	descSessionActive = prometheus.NewDesc(
		"replmgr_agreement_session_active",
		"Whether a replication session is currently live for the agreement.",
		[]string{"agreement"},
		nil,
	)
	descEnabled = prometheus.NewDesc(
		"replmgr_agreement_enabled",
		"Whether the agreement is enabled.",
		[]string{"agreement"},
		nil,
	)
)

// Collector exposes per-agreement replication metrics from the registry.
type Collector struct {
	registry *Registry
}

// NewCollector returns a new collector.
func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, a := range c.registry.All() {
		name := a.Name()
		replayed, skipped := a.ChangeCounts()
		ch <- prometheus.MustNewConstMetric(descChangesReplayed, prometheus.CounterValue, float64(replayed), name)
		ch <- prometheus.MustNewConstMetric(descChangesSkipped, prometheus.CounterValue, float64(skipped), name)
		ch <- prometheus.MustNewConstMetric(descSessionActive, prometheus.GaugeValue, boolToFloat(a.HasProtocol()), name)
		ch <- prometheus.MustNewConstMetric(descEnabled, prometheus.GaugeValue, boolToFloat(a.IsEnabled()), name)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
