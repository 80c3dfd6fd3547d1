package gptl

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/timewell/gptl/internal/clock"
)

// PrintMethod selects the call-tree constructor's parent-selection policy
// (spec §4.6).
type PrintMethod int

const (
	FirstParent PrintMethod = iota
	LastParent
	MostFrequent
	FullTree
)

// ThreadBackend selects the thread registry implementation (spec §4.2).
type ThreadBackend int

const (
	// MutexBackend guards slot allocation with a mutex; the default,
	// correct choice when threads aren't pre-indexed by the caller.
	MutexBackend ThreadBackend = iota
	// PreAssignedBackend trusts the caller to pass a dense [0,maxthreads)
	// index directly as the ThreadID.
	PreAssignedBackend
	// SingleBackend always resolves to index 0.
	SingleBackend
)

// options holds every setting from spec §6's set_option list. It is
// immutable from Initialize onward except for the independent
// enable/disable and reset lifecycle operations, matching spec §3's
// lifecycle invariant.
type options struct {
	wall            bool
	cpu             bool
	abortOnError    bool
	overhead        bool
	depthLimit      int
	verbose         bool
	percent         bool
	doprPreamble    bool
	doprThreadsort  bool
	doprMultparent  bool
	doprCollision   bool
	doprMemusage    bool
	printMethod     PrintMethod
	tablesize       int
	maxthreads      int
	threadBackend   ThreadBackend
	timeSource      clock.Source
	logger          logr.Logger
	maxStack        int
}

func defaultOptions() options {
	return options{
		wall:          true,
		cpu:           false,
		abortOnError:  false,
		overhead:      true,
		depthLimit:    1 << 20,
		percent:       false,
		doprPreamble:  true,
		printMethod:   FirstParent,
		tablesize:     1023,
		maxthreads:    64,
		threadBackend: MutexBackend,
		timeSource:    Nanotime,
		logger:        logr.Discard(),
		maxStack:      128,
	}
}

// Clock source ids re-exported at package scope so callers don't need the
// internal/clock import.
const (
	Nanotime     = clock.Nanotime
	ClockGettime = clock.ClockGettime
	Gettimeofday = clock.Gettimeofday
	MPIWtime     = clock.MPIWtime
	PAPIUsec     = clock.PAPIUsec
	Placebo      = clock.Placebo
)

// Option configures a *Timers before Initialize. Applying an Option after
// Initialize is a programming error the caller must avoid; Initialize
// itself doesn't re-validate every field since that would require undoing
// work already done (e.g. the hash tables are sized from tablesize).
type Option func(*options)

func WithWall(enabled bool) Option { return func(o *options) { o.wall = enabled } }

func WithCPU(enabled bool) Option { return func(o *options) { o.cpu = enabled } }

func WithAbortOnError(enabled bool) Option { return func(o *options) { o.abortOnError = enabled } }

func WithOverhead(enabled bool) Option { return func(o *options) { o.overhead = enabled } }

func WithDepthLimit(n int) Option { return func(o *options) { o.depthLimit = n } }

func WithVerbose(enabled bool) Option { return func(o *options) { o.verbose = enabled } }

func WithPercent(enabled bool) Option { return func(o *options) { o.percent = enabled } }

func WithPreamble(enabled bool) Option { return func(o *options) { o.doprPreamble = enabled } }

func WithThreadSort(enabled bool) Option { return func(o *options) { o.doprThreadsort = enabled } }

func WithMultiParentDetail(enabled bool) Option {
	return func(o *options) { o.doprMultparent = enabled }
}

func WithCollisionDiagnostics(enabled bool) Option {
	return func(o *options) { o.doprCollision = enabled }
}

func WithMemUsage(enabled bool) Option { return func(o *options) { o.doprMemusage = enabled } }

func WithPrintMethod(m PrintMethod) Option { return func(o *options) { o.printMethod = m } }

func WithTableSize(n int) Option { return func(o *options) { o.tablesize = n } }

func WithMaxThreads(n int) Option { return func(o *options) { o.maxthreads = n } }

func WithThreadBackend(b ThreadBackend) Option { return func(o *options) { o.threadBackend = b } }

func WithTimeSource(id clock.Source) Option { return func(o *options) { o.timeSource = id } }

func WithLogger(l logr.Logger) Option { return func(o *options) { o.logger = l } }

func WithMaxStack(n int) Option { return func(o *options) { o.maxStack = n } }

// validate checks every option for the bounds spec §7 names as bad_value
// conditions (tablesize/maxthreads must be positive).
func (o options) validate() error {
	if o.tablesize <= 0 {
		return wrapf(ErrBadValue, "tablesize must be positive, got %d", o.tablesize)
	}
	if o.maxthreads <= 0 {
		return wrapf(ErrBadValue, "maxthreads must be positive, got %d", o.maxthreads)
	}
	if o.depthLimit <= 0 {
		return wrapf(ErrBadValue, "depthlimit must be positive, got %d", o.depthLimit)
	}
	if o.maxStack <= 0 {
		return wrapf(ErrBadValue, "max stack depth must be positive, got %d", o.maxStack)
	}
	switch o.printMethod {
	case FirstParent, LastParent, MostFrequent, FullTree:
	default:
		return wrapf(ErrBadOption, "unknown print method %d", o.printMethod)
	}
	return nil
}

// overheadPerCall is a rough per-call instrumentation overhead estimate
// used by the reporter's optional overhead column, derived from the
// discovered CPU frequency when available (spec §4.7: "2 x count x
// per_call_utr_overhead").
func overheadPerCall(cpuMHz float64) time.Duration {
	if cpuMHz <= 0 {
		return 0
	}
	// A handful of cycles for a hash lookup plus a clock read, expressed
	// in wallclock time at the discovered frequency. This is a rough
	// estimate for display purposes only, never used to adjust recorded
	// statistics.
	const cycles = 60.0
	seconds := cycles / (cpuMHz * 1e6)
	return time.Duration(seconds * float64(time.Second))
}
