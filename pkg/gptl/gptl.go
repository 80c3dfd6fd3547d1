package gptl

import (
	"io"
	"sync"
)

// defaultTimers is the package-level instance backing the top-level
// convenience functions, for the common single-instance-per-process case
// (spec §6). Callers needing more than one independent instance -- tests
// in particular -- should use New directly instead.
var (
	defaultMu     sync.Mutex
	defaultTimers *Timers
)

// Default returns the package-level Timers, constructing it on first use
// with opts applied. Once constructed, later opts arguments are ignored;
// callers that need control over construction should call New directly
// before any top-level function runs.
func Default(opts ...Option) *Timers {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTimers == nil {
		defaultTimers = New(opts...)
	}
	return defaultTimers
}

// resetDefault discards the package-level instance. It is unexported and
// called directly by this package's tests, so each test gets a clean
// Default().
func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultTimers = nil
}

// Initialize initializes the package-level instance.
func Initialize(opts ...Option) error { return Default(opts...).Initialize() }

// Finalize finalizes the package-level instance.
func Finalize() error { return Default().Finalize() }

// Enable enables the package-level instance.
func Enable() { Default().Enable() }

// Disable disables the package-level instance.
func Disable() { Default().Disable() }

// Reset resets the package-level instance.
func Reset() error { return Default().Reset() }

// Start begins timing name on thread id using the package-level instance.
func Start(id ThreadID, name string) error { return Default().Start(id, name) }

// Stop ends timing name on thread id using the package-level instance.
func Stop(id ThreadID, name string) error { return Default().Stop(id, name) }

// StartHandle is Start's handle-caching variant on the package-level
// instance.
func StartHandle(id ThreadID, name string, h *Handle) error {
	return Default().StartHandle(id, name, h)
}

// StopHandle is Stop's handle-caching variant on the package-level
// instance.
func StopHandle(id ThreadID, h *Handle) error { return Default().StopHandle(id, h) }

// WriteReport writes the package-level instance's report.
func WriteReport(w io.Writer) error { return Default().WriteReport(w) }

// Query returns name's accounting on thread id using the package-level
// instance.
func Query(id ThreadID, name string) (QueryResult, error) { return Default().Query(id, name) }

// GetWallclock returns name's accumulated wallclock time on thread id using
// the package-level instance.
func GetWallclock(id ThreadID, name string) (float64, error) { return Default().GetWallclock(id, name) }

// GetNregions returns the number of regions known to thread id using the
// package-level instance.
func GetNregions(id ThreadID) (int, error) { return Default().GetNregions(id) }

// GetRegionName returns the name of the idx'th region thread id has seen,
// using the package-level instance.
func GetRegionName(id ThreadID, idx int) (string, error) { return Default().GetRegionName(id, idx) }

// GetThreadStats reduces name's accounting across every thread using the
// package-level instance.
func GetThreadStats(name string) (GlobalStat, error) { return Default().GetThreadStats(name) }
