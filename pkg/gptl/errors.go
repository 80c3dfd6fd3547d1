package gptl

import (
	"fmt"

	"github.com/timewell/gptl/internal/gptlerr"
)

// Re-exported so callers can errors.Is(err, gptl.ErrUnknownTimer) without a
// second import; these are the same sentinels spec §7 names.
var (
	ErrNotInitialized        = gptlerr.ErrNotInitialized
	ErrAlreadyInitialized    = gptlerr.ErrAlreadyInitialized
	ErrBadOption             = gptlerr.ErrBadOption
	ErrBadValue              = gptlerr.ErrBadValue
	ErrThreadOverflow        = gptlerr.ErrThreadOverflow
	ErrStackOverflow         = gptlerr.ErrStackOverflow
	ErrUnbalancedStop        = gptlerr.ErrUnbalancedStop
	ErrUnknownTimer          = gptlerr.ErrUnknownTimer
	ErrTimeSourceUnavailable = gptlerr.ErrTimeSourceUnavailable
	ErrIO                    = gptlerr.ErrIO
)

var (
	errStackOverflow  = ErrStackOverflow
	errUnbalancedStop = ErrUnbalancedStop
	errThreadOverflow = ErrThreadOverflow
)

func (t *Timers) fail(err error) error {
	if t.opts.abortOnError {
		t.logger.Error(err, "gptl: aborting on error")
		osExit(1)
	}
	return err
}

func wrapf(sentinel *gptlerr.Error, format string, args ...any) error {
	return gptlerr.Wrap(sentinel, fmt.Sprintf(format, args...))
}
