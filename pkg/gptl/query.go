package gptl

// QueryResult carries a single region's full accounting as observed on one
// thread, per spec §6's `query(name, thread, &out)`: everything the
// reporter's rows print, made available one region at a time instead of
// through a full-process Snapshot.
type QueryResult struct {
	Name       string
	Count      int64
	Nrecurse   int64
	Onflg      bool
	Wall       float64
	WallMin    float64
	WallMax    float64
	CPUUser    float64
	CPUSys     float64
	NumParents int
}

// Query returns name's accounting on thread id. It fails with
// not_initialized before Initialize, and unknown_timer if id's thread has
// never seen name.
func (t *Timers) Query(id ThreadID, name string) (QueryResult, error) {
	if !t.initialized.Load() {
		return QueryResult{}, t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return QueryResult{}, t.fail(err)
	}

	r := rs.find(name)
	if r == nil {
		return QueryResult{}, t.fail(wrapf(ErrUnknownTimer, "%q", name))
	}

	return QueryResult{
		Name:       r.name,
		Count:      r.count,
		Nrecurse:   r.nrecurse,
		Onflg:      r.onflg,
		Wall:       r.accum,
		WallMin:    r.wallMin,
		WallMax:    r.wallMax,
		CPUUser:    r.cpuAccumUser,
		CPUSys:     r.cpuAccumSys,
		NumParents: len(r.parents),
	}, nil
}

// GetWallclock returns name's accumulated wallclock time on thread id, per
// spec §6's `get_wallclock(name, thread, &v)`.
func (t *Timers) GetWallclock(id ThreadID, name string) (float64, error) {
	res, err := t.Query(id, name)
	if err != nil {
		return 0, err
	}
	return res.Wall, nil
}

// GetNregions returns the number of real (non-sentinel) regions known to
// thread id, per spec §6's `get_nregions(thread, &n)`.
func (t *Timers) GetNregions(id ThreadID) (int, error) {
	if !t.initialized.Load() {
		return 0, t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return 0, t.fail(err)
	}
	return len(rs.arena) - 1, nil
}

// GetRegionName returns the name of the idx'th region thread id has seen,
// 0-based over that thread's insertion-ordered arena and excluding the
// sentinel root, per spec §6's `get_regionname(thread, idx, &buf, cap)`.
func (t *Timers) GetRegionName(id ThreadID, idx int) (string, error) {
	if !t.initialized.Load() {
		return "", t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return "", t.fail(err)
	}

	arenaIdx := idx + 1 // arena[0] is the sentinel root
	if idx < 0 || arenaIdx >= len(rs.arena) {
		return "", t.fail(wrapf(ErrBadValue, "region index %d out of range [0,%d)", idx, len(rs.arena)-1))
	}
	return rs.arena[arenaIdx].name, nil
}
