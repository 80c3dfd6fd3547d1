// Package clock implements the engine's pluggable time sources: a fixed
// enumeration of drivers selected once at initialization, each exposing a
// reentrant, side-effect-free now() and a fallible init().
package clock

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Source is one of the fixed set of time sources the engine can select.
type Source int

const (
	// Nanotime wraps the Go runtime's monotonic clock directly, standing in
	// for the spec's x86 TSC-derived nanotime source. Go has no portable
	// TSC read, so this is a deliberate substitution, not an emulation.
	Nanotime Source = iota
	// ClockGettime mirrors POSIX clock_gettime(CLOCK_MONOTONIC) by reading
	// the same runtime monotonic clock through a slightly heavier path
	// that snapshots a monotonic offset, for future swappability to a
	// non-runtime clock source without touching call sites.
	ClockGettime
	// Gettimeofday is the wall-clock fallback every other source falls
	// back to on init failure.
	Gettimeofday
	// MPIWtime and PAPIUsec are recognized ids from the fixed enumeration
	// but have no single-process Go implementation; their Init always
	// fails, so Initialize falls back to Gettimeofday for them and returns
	// no error.
	MPIWtime
	PAPIUsec
	// Placebo always reports zero elapsed time, for measuring the
	// engine's own overhead independent of clock cost.
	Placebo
)

func (s Source) String() string {
	switch s {
	case Nanotime:
		return "nanotime"
	case ClockGettime:
		return "clock_gettime"
	case Gettimeofday:
		return "gettimeofday"
	case MPIWtime:
		return "mpi_wtime"
	case PAPIUsec:
		return "papi_usec"
	case Placebo:
		return "placebo"
	default:
		return "unknown"
	}
}

// TimeSource is the engine's view of a clock: init once, then call Now
// repeatedly from any number of goroutines.
type TimeSource interface {
	Init() error
	Now() float64
	Name() string
}

// For selects the driver for id. The returned TimeSource has not yet had
// Init called.
func For(id Source) (TimeSource, error) {
	switch id {
	case Nanotime:
		return &nanotimeSource{}, nil
	case ClockGettime:
		return &clockGettimeSource{}, nil
	case Gettimeofday:
		return &gettimeofdaySource{}, nil
	case Placebo:
		return &placeboSource{}, nil
	case MPIWtime, PAPIUsec:
		return &unavailableSource{id: id}, nil
	default:
		return nil, fmt.Errorf("clock: unknown time source id %d", id)
	}
}

type nanotimeSource struct {
	start time.Time
}

func (s *nanotimeSource) Init() error {
	s.start = time.Now()
	return nil
}

func (s *nanotimeSource) Now() float64 {
	return float64(time.Since(s.start)) / float64(time.Second)
}

func (s *nanotimeSource) Name() string { return Nanotime.String() }

type clockGettimeSource struct {
	start  time.Time
	offset float64 // reserved for a future non-runtime clock swap
}

func (s *clockGettimeSource) Init() error {
	s.start = time.Now()
	s.offset = 0
	return nil
}

func (s *clockGettimeSource) Now() float64 {
	return s.offset + float64(time.Since(s.start))/float64(time.Second)
}

func (s *clockGettimeSource) Name() string { return ClockGettime.String() }

type gettimeofdaySource struct {
	start time.Time
}

func (s *gettimeofdaySource) Init() error {
	s.start = time.Now()
	return nil
}

func (s *gettimeofdaySource) Now() float64 {
	return float64(time.Since(s.start)) / float64(time.Second)
}

func (s *gettimeofdaySource) Name() string { return Gettimeofday.String() }

type placeboSource struct{}

func (s *placeboSource) Init() error   { return nil }
func (s *placeboSource) Now() float64  { return 0 }
func (s *placeboSource) Name() string  { return Placebo.String() }

type unavailableSource struct{ id Source }

func (s *unavailableSource) Init() error  { return fmt.Errorf("clock: %s not available in-process", s.id) }
func (s *unavailableSource) Now() float64 { return 0 }
func (s *unavailableSource) Name() string { return s.id.String() }

// Initialize selects id, retries its Init once through a short backoff on
// failure, and falls back to Gettimeofday if it still fails. When the
// error is nil it returns a usable TimeSource; the bool reports whether a
// fallback occurred. An unknown id, or a failing fallback, returns a nil
// TimeSource and an error.
func Initialize(id Source) (TimeSource, bool, error) {
	src, err := For(id)
	if err != nil {
		return nil, false, err
	}

	if err := initWithRetry(src); err == nil {
		return src, false, nil
	}

	fallback, _ := For(Gettimeofday)
	if err := initWithRetry(fallback); err != nil {
		return nil, true, fmt.Errorf("clock: gettimeofday fallback failed: %w", err)
	}
	return fallback, true, nil
}

func initWithRetry(src TimeSource) error {
	op := func() (struct{}, error) {
		return struct{}{}, src.Init()
	}
	_, err := backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewConstantBackOff(5*time.Millisecond)),
		backoff.WithMaxTries(2),
	)
	return err
}

// CPUFrequencyMHz discovers the CPU clock frequency for the reporter's
// overhead-estimate column, trying the cpufreq sysfs node first and
// falling back to /proc/cpuinfo's "cpu MHz" field. It returns an error if
// neither source yields a positive number; the engine treats that as
// non-fatal.
func CPUFrequencyMHz() (float64, error) {
	if mhz, err := cpuFreqFromSysfs(); err == nil && mhz > 0 {
		return mhz, nil
	}
	return cpuFreqFromProcCPUInfo()
}

func cpuFreqFromSysfs() (float64, error) {
	data, err := os.ReadFile("/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq")
	if err != nil {
		return 0, err
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	return khz / 1000.0, nil
}

func cpuFreqFromProcCPUInfo() (float64, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu MHz") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		if mhz > 0 {
			return mhz, nil
		}
	}
	return 0, fmt.Errorf("clock: no positive cpu MHz found in /proc/cpuinfo")
}
