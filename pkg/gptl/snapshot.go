package gptl

import "fmt"

// RegionStat is one region's accounting on one thread at snapshot time,
// exported for external consumers (the metrics package in particular)
// that want the raw numbers without going through the text reporter.
type RegionStat struct {
	Thread string
	Region string
	Calls  int64
	Wall   float64
}

// Snapshot returns every known region's current stats across every
// allocated thread, taken under the same read lock the reporter uses.
// Start and Stop update region records without that lock, so, like the
// reporter, Snapshot reads a consistent view only once no thread is
// inside Start or Stop.
func (t *Timers) Snapshot() []RegionStat {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []RegionStat
	for idx, rs := range t.threads {
		if rs == nil {
			continue
		}
		thread := fmt.Sprintf("%d", idx)
		for _, r := range rs.arena {
			if r == rs.root {
				continue
			}
			out = append(out, RegionStat{Thread: thread, Region: r.name, Calls: r.count, Wall: r.accum})
		}
	}
	return out
}
