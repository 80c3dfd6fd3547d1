// Package metrics exports a running Timers instance's per-region stats as
// Prometheus gauges, per SPEC_FULL.md's metrics-export addition. It is
// deliberately read-only and external to pkg/gptl: the core engine stays
// free of any dependency on the metrics stack, matching the separation
// spec §1 draws around the core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/timewell/gptl/pkg/gptl"
)

// Snapshot is the narrow view Collector needs of a running Timers: the
// per-thread, per-region call count and accumulated wallclock. Timers
// satisfies this directly; tests can fake it.
type Snapshot interface {
	Snapshot() []gptl.RegionStat
}

// Collector adapts a Snapshot into a prometheus.Collector, gathering a
// fresh snapshot on every scrape rather than caching between scrapes --
// matching the direct, lock-protected read the reporter itself does.
type Collector struct {
	src Snapshot

	calls *prometheus.Desc
	wall  *prometheus.Desc
}

// NewCollector wraps src for registration with a prometheus.Registry.
func NewCollector(src Snapshot) *Collector {
	return &Collector{
		src: src,
		calls: prometheus.NewDesc(
			"gptl_region_calls_total",
			"Total number of times a timed region was entered.",
			[]string{"region", "thread"}, nil,
		),
		wall: prometheus.NewDesc(
			"gptl_region_wallclock_seconds_total",
			"Accumulated wallclock time spent in a timed region, in seconds.",
			[]string{"region", "thread"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.calls
	ch <- c.wall
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.GaugeValue, float64(s.Calls), s.Region, s.Thread)
		ch <- prometheus.MustNewConstMetric(c.wall, prometheus.GaugeValue, s.Wall, s.Region, s.Thread)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
var _ Snapshot = (*gptl.Timers)(nil)
