package gptl

// GlobalStat is the stable shape GetThreadStats reduces a region's
// per-thread accounting into, per SPEC_FULL.md §4.8: total calls across
// every thread on this "rank", plus which thread produced the wallclock
// extremes. An external cross-rank aggregator (out of scope here, per
// spec.md's Non-goals) would reduce one GlobalStat per rank the same way
// this reduces one per thread.
type GlobalStat struct {
	Name          string
	TotalCalls    int64
	WallMax       float64
	WallMaxThread ThreadID
	WallMin       float64
	WallMinThread ThreadID
}

// GetThreadStats reduces name's accounting across every thread this
// Timers has allocated: summed call counts, and the thread that produced
// the largest and smallest single-region wallclock total. It fails with
// unknown_timer if no allocated thread has ever seen name.
func (t *Timers) GetThreadStats(name string) (GlobalStat, error) {
	if !t.initialized.Load() {
		return GlobalStat{}, t.fail(ErrNotInitialized)
	}

	t.mu.RLock()
	threads := make([]*regionSet, len(t.threads))
	copy(threads, t.threads)
	t.mu.RUnlock()

	stat := GlobalStat{Name: name}
	found := false

	for idx, rs := range threads {
		if rs == nil {
			continue
		}
		r := rs.find(name)
		if r == nil {
			continue
		}

		id, ok := t.registry.idAt(idx)
		if !ok {
			continue
		}

		stat.TotalCalls += r.count
		if !found || r.accum > stat.WallMax {
			stat.WallMax = r.accum
			stat.WallMaxThread = id
		}
		if !found || r.accum < stat.WallMin {
			stat.WallMin = r.accum
			stat.WallMinThread = id
		}
		found = true
	}

	if !found {
		return GlobalStat{}, t.fail(wrapf(ErrUnknownTimer, "%q", name))
	}
	return stat, nil
}
