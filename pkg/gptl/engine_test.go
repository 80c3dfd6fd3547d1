package gptl_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewell/gptl/pkg/gptl"
)

func newTimers(t *testing.T, opts ...gptl.Option) *gptl.Timers {
	t.Helper()
	tm := gptl.New(opts...)
	require.NoError(t, tm.Initialize())
	t.Cleanup(func() { _ = tm.Finalize() })
	return tm
}

// TestScenarios walks the numbered Start/Stop scenarios spec §4.5 and §5
// call out, one t.Run per scenario.
func TestScenarios(t *testing.T) {
	// S1 -- simple nesting: both regions are recorded with count 1, and
	// outer's accumulated time is at least inner's.
	t.Run("S1 simple nesting", func(t *testing.T) {
		tm := newTimers(t)

		require.NoError(t, tm.Start(0, "outer"))
		require.NoError(t, tm.Start(0, "inner"))
		require.NoError(t, tm.Stop(0, "inner"))
		require.NoError(t, tm.Stop(0, "outer"))

		stats := byRegion(tm.Snapshot())
		require.Contains(t, stats, "outer")
		require.Contains(t, stats, "inner")
		assert.Equal(t, int64(1), stats["outer"].Calls)
		assert.Equal(t, int64(1), stats["inner"].Calls)
		assert.GreaterOrEqual(t, stats["outer"].Wall, stats["inner"].Wall)
	})

	// S2 -- multiple parents: C observed under both A and B.
	t.Run("S2 multiple parents", func(t *testing.T) {
		tm := newTimers(t, gptl.WithPrintMethod(gptl.FullTree), gptl.WithMultiParentDetail(true))

		require.NoError(t, tm.Start(0, "A"))
		require.NoError(t, tm.Start(0, "C"))
		require.NoError(t, tm.Stop(0, "C"))
		require.NoError(t, tm.Stop(0, "A"))
		require.NoError(t, tm.Start(0, "B"))
		require.NoError(t, tm.Start(0, "C"))
		require.NoError(t, tm.Stop(0, "C"))
		require.NoError(t, tm.Stop(0, "B"))

		var buf strings.Builder
		require.NoError(t, tm.WriteReport(&buf))
		assert.Regexp(t, `\*\s*C\b`, buf.String())
	})

	// S3 -- recursion: three nested starts/stops on the same name leave
	// count == 3, nrecurse == 2, and exactly one wallclock delta recorded.
	t.Run("S3 recursion", func(t *testing.T) {
		tm := newTimers(t)

		require.NoError(t, tm.Start(0, "R"))
		require.NoError(t, tm.Start(0, "R"))
		require.NoError(t, tm.Start(0, "R"))
		require.NoError(t, tm.Stop(0, "R"))
		require.NoError(t, tm.Stop(0, "R"))
		require.NoError(t, tm.Stop(0, "R"))

		stats := byRegion(tm.Snapshot())
		assert.Equal(t, int64(3), stats["R"].Calls)

		res, err := tm.Query(0, "R")
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Nrecurse)
		assert.Equal(t, res.Wall, res.WallMax) // a single delta: accum == max == min
		assert.Equal(t, res.Wall, res.WallMin)
	})

	// S4 -- unbalanced stop: stopping a name that was never started returns
	// unknown_timer, leaves the started region still open, and a later
	// correct stop completes normally.
	t.Run("S4 unbalanced stop", func(t *testing.T) {
		tm := newTimers(t)

		require.NoError(t, tm.Start(0, "A"))
		err := tm.Stop(0, "B")
		assert.ErrorIs(t, err, gptl.ErrUnknownTimer)

		require.NoError(t, tm.Stop(0, "A"))
	})

	// S5 -- depthlimit: with depthlimit=2, three nested starts A,B,C only
	// give A and B recorded stats; stopping all three restores a clean
	// stack usable for further Start/Stop calls.
	t.Run("S5 depthlimit", func(t *testing.T) {
		tm := newTimers(t, gptl.WithDepthLimit(2))

		require.NoError(t, tm.Start(0, "A"))
		require.NoError(t, tm.Start(0, "B"))
		require.NoError(t, tm.Start(0, "C")) // suppressed: logicalDepth 2 >= depthLimit 2

		require.NoError(t, tm.Stop(0, "C"))
		require.NoError(t, tm.Stop(0, "B"))
		require.NoError(t, tm.Stop(0, "A"))

		stats := byRegion(tm.Snapshot())
		assert.Contains(t, stats, "A")
		assert.Contains(t, stats, "B")
		assert.NotContains(t, stats, "C")

		// The stack is clean: a fresh start/stop pair works normally.
		require.NoError(t, tm.Start(0, "D"))
		require.NoError(t, tm.Stop(0, "D"))
	})

	// S6 -- threaded isolation: two threads each time X once; each
	// thread's X has count == 1.
	t.Run("S6 threaded isolation", func(t *testing.T) {
		tm := newTimers(t, gptl.WithMaxThreads(4), gptl.WithThreadSort(true))

		require.NoError(t, tm.Start(0, "X"))
		require.NoError(t, tm.Stop(0, "X"))
		require.NoError(t, tm.Start(1, "X"))
		require.NoError(t, tm.Stop(1, "X"))

		var total int64
		for _, s := range tm.Snapshot() {
			if s.Region == "X" {
				assert.Equal(t, int64(1), s.Calls, "thread %s", s.Thread)
				total += s.Calls
			}
		}
		assert.Equal(t, int64(2), total)
	})

	// S7 [ADD] -- Start/Stop and StartHandle/StopHandle produce identical
	// resulting snapshots for the same call script.
	t.Run("S7 handle equivalence", func(t *testing.T) {
		byName := newTimers(t)
		require.NoError(t, byName.Start(0, "outer"))
		require.NoError(t, byName.Start(0, "inner"))
		require.NoError(t, byName.Stop(0, "inner"))
		require.NoError(t, byName.Stop(0, "outer"))

		byHandle := newTimers(t)
		var hOuter, hInner gptl.Handle
		require.NoError(t, byHandle.StartHandle(0, "outer", &hOuter))
		require.NoError(t, byHandle.StartHandle(0, "inner", &hInner))
		require.NoError(t, byHandle.StopHandle(0, &hInner))
		require.NoError(t, byHandle.StopHandle(0, &hOuter))

		normalize := func(stats []gptl.RegionStat) []gptl.RegionStat {
			for i := range stats {
				stats[i].Wall = 0 // timing noise isn't part of the equivalence being checked
			}
			return stats
		}

		diff := cmp.Diff(normalize(byName.Snapshot()), normalize(byHandle.Snapshot()),
			cmpopts.SortSlices(func(a, b gptl.RegionStat) bool { return a.Region < b.Region }))
		assert.Empty(t, diff)
	})
}

// TestLifecycle covers Initialize/Finalize/Enable/Disable/Reset edge
// cases, one t.Run per case.
func TestLifecycle(t *testing.T) {
	t.Run("not initialized before Initialize", func(t *testing.T) {
		tm := gptl.New()
		assert.ErrorIs(t, tm.Start(0, "x"), gptl.ErrNotInitialized)
	})

	t.Run("already initialized twice", func(t *testing.T) {
		tm := gptl.New()
		require.NoError(t, tm.Initialize())
		t.Cleanup(func() { _ = tm.Finalize() })
		assert.ErrorIs(t, tm.Initialize(), gptl.ErrAlreadyInitialized)
	})

	t.Run("disable suppresses timing", func(t *testing.T) {
		tm := newTimers(t)
		tm.Disable()
		require.NoError(t, tm.Start(0, "x"))
		require.NoError(t, tm.Stop(0, "x"))
		assert.Empty(t, tm.Snapshot())
	})

	t.Run("reset clears stats", func(t *testing.T) {
		tm := newTimers(t)
		require.NoError(t, tm.Start(0, "x"))
		require.NoError(t, tm.Stop(0, "x"))
		require.NoError(t, tm.Reset())
		assert.Equal(t, []gptl.RegionStat{{Thread: "0", Region: "x", Calls: 0, Wall: 0}}, tm.Snapshot())
	})
}

func byRegion(stats []gptl.RegionStat) map[string]gptl.RegionStat {
	out := make(map[string]gptl.RegionStat, len(stats))
	for _, s := range stats {
		out[s.Region] = s
	}
	return out
}
