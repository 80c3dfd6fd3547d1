package gptl

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/timewell/gptl/internal/clock"
	"github.com/timewell/gptl/internal/hwcounter"
)

// osExit is a package-level indirection over os.Exit so AbortOnError is
// exercisable in tests without killing the test binary.
var osExit = os.Exit

// Handle caches a region lookup across repeated Start/Stop calls for the
// same name, skipping the hash bucket walk entirely (spec §4.5). The zero
// Handle is empty and behaves like a first-ever call.
type Handle struct {
	r *region
}

// Timers is the engine's handle: one region set per logical thread, a
// shared time source, a thread registry, and the immutable-after-init
// option set. Use New to construct one, or Default for the common
// single-instance-per-process case.
type Timers struct {
	mu       sync.RWMutex
	opts     options
	logger   logr.Logger
	source   clock.TimeSource
	fellBack bool
	registry threadRegistry
	threads  []*regionSet // index == logical thread index
	hw       hwcounter.Adapter
	cpuMHz   float64

	enabled     atomic.Bool
	initialized atomic.Bool
}

// New constructs a Timers with opts applied over the defaults. The
// returned value is not yet initialized; call Initialize before any
// Start/Stop.
func New(opts ...Option) *Timers {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	t := &Timers{opts: o, logger: o.logger, hw: hwcounter.Noop{}}
	t.enabled.Store(true)
	return t
}

// Initialize allocates the per-thread structures and selects the time
// source. It must not be called concurrently with itself, Finalize, or any
// Start/Stop/query -- spec §5: "initialize and finalize must run on a
// single thread with no concurrent callers."
func (t *Timers) Initialize() error {
	if t.initialized.Load() {
		return t.fail(ErrAlreadyInitialized)
	}
	if err := t.opts.validate(); err != nil {
		return t.fail(err)
	}

	src, fellBack, err := clock.Initialize(t.opts.timeSource)
	if err != nil {
		return t.fail(wrapf(ErrTimeSourceUnavailable, "%v", err))
	}
	if fellBack {
		t.logger.Info("time source init failed, falling back to gettimeofday",
			"requested", t.opts.timeSource.String())
	}
	t.source = src
	t.fellBack = fellBack

	switch t.opts.threadBackend {
	case MutexBackend:
		t.registry = newMutexRegistry(t.opts.maxthreads)
	case PreAssignedBackend:
		t.registry = newPreAssignedRegistry(t.opts.maxthreads)
	case SingleBackend:
		t.registry = &singleRegistry{}
	default:
		return t.fail(wrapf(ErrBadOption, "unknown thread backend %d", t.opts.threadBackend))
	}

	t.threads = make([]*regionSet, t.opts.maxthreads)
	if mhz, err := clock.CPUFrequencyMHz(); err == nil {
		t.cpuMHz = mhz
	}

	t.initialized.Store(true)
	return nil
}

// Finalize releases every per-thread structure. Regions created after this
// point (there shouldn't be any -- callers must not call Start/Stop after
// Finalize) would simply be lost.
func (t *Timers) Finalize() error {
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads = nil
	t.registry = nil
	t.initialized.Store(false)
	return nil
}

func (t *Timers) Enable()  { t.enabled.Store(true) }
func (t *Timers) Disable() { t.enabled.Store(false) }

// Reset clears every region's statistics on every allocated thread,
// preserving the set of known names, and returns every call stack to just
// the sentinel root (which is where well-formed Start/Stop sequences
// already leave it).
func (t *Timers) Reset() error {
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rs := range t.threads {
		if rs != nil {
			rs.reset()
		}
	}
	return nil
}

func (t *Timers) IsInitialized() bool { return t.initialized.Load() }

// threadSet returns (allocating on first sight) the region set for id,
// failing if the thread registry is exhausted.
func (t *Timers) threadSet(id ThreadID) (*regionSet, int, error) {
	idx, err := t.registry.current(id)
	if err != nil {
		return nil, 0, err
	}

	t.mu.RLock()
	rs := t.threads[idx]
	t.mu.RUnlock()
	if rs != nil {
		return rs, idx, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rs := t.threads[idx]; rs != nil {
		return rs, idx, nil
	}
	rs = newRegionSet(t.opts.tablesize, t.opts.maxStack)
	t.threads[idx] = rs
	if err := t.hw.InitThread(idx); err != nil {
		t.logger.Error(err, "hardware counter thread init failed", "thread", idx)
	}
	return rs, idx, nil
}

// Start begins timing region name on behalf of thread id. See spec §4.5
// for the full numbered contract this implements.
func (t *Timers) Start(id ThreadID, name string) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth >= t.opts.depthLimit {
		rs.logicalDepth++
		return nil
	}
	rs.logicalDepth++

	r := rs.intern(name)
	return t.startRegion(rs, r)
}

// StartHandle is Start's handle-caching variant: once h has been filled in
// by a prior call, subsequent calls skip intern entirely.
func (t *Timers) StartHandle(id ThreadID, name string, h *Handle) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth >= t.opts.depthLimit {
		rs.logicalDepth++
		return nil
	}
	rs.logicalDepth++

	if h.r == nil {
		h.r = rs.intern(name)
	}
	return t.startRegion(rs, h.r)
}

// StartInstr is the address-keyed variant used by auto-instrumentation
// entry points: the address's textual form is interned as the region
// name, per spec §3.
func (t *Timers) StartInstr(id ThreadID, addr uintptr) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth >= t.opts.depthLimit {
		rs.logicalDepth++
		return nil
	}
	rs.logicalDepth++

	r := rs.internAddr(addr)
	return t.startRegion(rs, r)
}

func (t *Timers) startRegion(rs *regionSet, r *region) error {
	if r.onflg {
		r.recurselvl++
		return nil
	}

	if err := rs.push(r); err != nil {
		return t.fail(err)
	}

	r.onflg = true
	if t.opts.wall {
		r.last = t.source.Now()
	}
	if t.opts.cpu {
		u, s := readCPUTimes()
		r.cpuLastUser, r.cpuLastSys = u, s
	}
	_ = t.hw.Sample() // external collaborator; core only depends on the interface
	return nil
}

// Stop ends timing region name on behalf of thread id. See spec §4.5.
func (t *Timers) Stop(id ThreadID, name string) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth > t.opts.depthLimit {
		rs.logicalDepth--
		return nil
	}
	rs.logicalDepth--

	wallNow, cpuUserNow, cpuSysNow := t.sampleNow()

	r := rs.find(name)
	if r == nil {
		rs.logicalDepth++ // not a matching Stop
		return t.fail(wrapf(ErrUnknownTimer, "%q", name))
	}
	return t.stopRegion(rs, r, wallNow, cpuUserNow, cpuSysNow)
}

// StopHandle is Stop's handle-caching variant.
func (t *Timers) StopHandle(id ThreadID, h *Handle) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}
	if h == nil || h.r == nil {
		return t.fail(wrapf(ErrUnknownTimer, "nil handle"))
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth > t.opts.depthLimit {
		rs.logicalDepth--
		return nil
	}
	rs.logicalDepth--

	wallNow, cpuUserNow, cpuSysNow := t.sampleNow()
	return t.stopRegion(rs, h.r, wallNow, cpuUserNow, cpuSysNow)
}

// StopInstr is Stop's address-keyed variant.
func (t *Timers) StopInstr(id ThreadID, addr uintptr) error {
	if !t.enabled.Load() {
		return nil
	}
	if !t.initialized.Load() {
		return t.fail(ErrNotInitialized)
	}

	rs, _, err := t.threadSet(id)
	if err != nil {
		return t.fail(err)
	}

	if rs.logicalDepth > t.opts.depthLimit {
		rs.logicalDepth--
		return nil
	}
	rs.logicalDepth--

	wallNow, cpuUserNow, cpuSysNow := t.sampleNow()

	r := rs.findAddr(addr)
	if r == nil {
		rs.logicalDepth++ // not a matching Stop
		return t.fail(wrapf(ErrUnknownTimer, "%s", instrName(addr)))
	}
	return t.stopRegion(rs, r, wallNow, cpuUserNow, cpuSysNow)
}

// sampleNow reads the configured time source(s) before any region lookup,
// minimizing the bias the lookup itself would otherwise add to the
// measurement (spec §4.5 Stop step 3).
func (t *Timers) sampleNow() (wall, cpuUser, cpuSys float64) {
	if t.opts.wall {
		wall = t.source.Now()
	}
	if t.opts.cpu {
		cpuUser, cpuSys = readCPUTimes()
	}
	return
}

func (t *Timers) stopRegion(rs *regionSet, r *region, wallNow, cpuUserNow, cpuSysNow float64) error {
	if !r.onflg {
		rs.logicalDepth++ // not a matching Stop
		return t.fail(wrapf(ErrUnbalancedStop, "%q", r.name))
	}

	r.count++
	if r.recurselvl > 0 {
		r.nrecurse++
		r.recurselvl--
		return nil
	}

	r.onflg = false
	if _, err := rs.pop(); err != nil {
		return t.fail(err)
	}

	if t.opts.wall {
		delta := wallNow - r.last
		if delta < 0 {
			t.logger.Info("gptl: negative wallclock delta observed", "region", r.name, "delta", delta)
		}
		r.accum += delta
		if r.count-r.nrecurse == 1 {
			r.wallMin, r.wallMax = delta, delta
		} else {
			if delta < r.wallMin {
				r.wallMin = delta
			}
			if delta > r.wallMax {
				r.wallMax = delta
			}
		}
	}

	if t.opts.cpu {
		r.cpuAccumUser += cpuUserNow - r.cpuLastUser
		r.cpuAccumSys += cpuSysNow - r.cpuLastSys
	}

	return nil
}

// readCPUTimes returns the (user, sys) pair from cpuTimesFunc, in seconds.
// The value is process-wide and shared by every thread's accounting. With
// the default cpuTimesFunc it is not a CPU-time reading: "user" is the
// wallclock time since the package was loaded and "sys" is always 0, so
// the Usr/Sys columns do not measure CPU usage.
func readCPUTimes() (user, sys float64) {
	return cpuTimesFunc()
}

// cpuTimesFunc is overridable in tests.
var cpuTimesFunc = defaultCPUTimes

func defaultCPUTimes() (float64, float64) {
	// time.Duration-based rusage isn't exposed by the standard library in
	// a platform-portable way; process-start-relative wall time is used
	// as a stand-in, which is at least non-decreasing.
	return float64(time.Since(processStart)) / float64(time.Second), 0
}

var processStart = time.Now()

func (t *Timers) String() string {
	return fmt.Sprintf("gptl.Timers{threads=%d, tablesize=%d}", t.registry.count(), t.opts.tablesize)
}
