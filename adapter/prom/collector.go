package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xhub"
)

// Collector exports per-listener metric snapshots on scrape, so slow scrape
// intervals never cost anything on the dispatch path.
type Collector struct {
	bus *xhub.Bus

	invocations *prometheus.Desc
	failures    *prometheus.Desc
	totalSecs   *prometheus.Desc
}

// NewCollector builds a collector over bus; register it yourself:
//
//	prometheus.MustRegister(prom.NewCollector(bus))
func NewCollector(bus *xhub.Bus) *Collector {
	labels := []string{"listener", "owner", "topic", "handler"}
	return &Collector{
		bus: bus,
		invocations: prometheus.NewDesc(
			"xhub_listener_invocations_total",
			"Handler invocations per listener",
			labels, nil,
		),
		failures: prometheus.NewDesc(
			"xhub_listener_failures_total",
			"Failed handler invocations per listener",
			labels, nil,
		),
		totalSecs: prometheus.NewDesc(
			"xhub_listener_busy_seconds_total",
			"Cumulative handler execution time per listener",
			labels, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.invocations
	ch <- c.failures
	ch <- c.totalSecs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.bus.AllListenerMetrics() {
		labels := []string{strconv.FormatInt(m.ListenerID, 10), m.Owner, m.Topic, m.Handler}
		ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue,
			float64(m.Invocations), labels...)
		// Failures already includes panics; injection failures are tracked
		// separately and fold in here.
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue,
			float64(m.Failures+m.InjectionFailures), labels...)
		ch <- prometheus.MustNewConstMetric(c.totalSecs, prometheus.CounterValue,
			m.TotalDuration.Seconds(), labels...)
	}
}
