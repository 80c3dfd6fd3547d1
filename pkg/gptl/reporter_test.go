package gptl_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewell/gptl/pkg/gptl"
)

func TestWriteReportBeforeInitializeFails(t *testing.T) {
	tm := gptl.New()
	var buf strings.Builder
	assert.ErrorIs(t, tm.WriteReport(&buf), gptl.ErrNotInitialized)
}

func TestWriteReportIncludesEveryAllocatedThread(t *testing.T) {
	tm := newTimers(t, gptl.WithMaxThreads(2))
	require.NoError(t, tm.Start(0, "x"))
	require.NoError(t, tm.Stop(0, "x"))
	require.NoError(t, tm.Start(1, "y"))
	require.NoError(t, tm.Stop(1, "y"))

	var buf strings.Builder
	require.NoError(t, tm.WriteReport(&buf))
	out := buf.String()
	assert.Contains(t, out, "Thread 0:")
	assert.Contains(t, out, "Thread 1:")
	assert.Contains(t, out, "x")
	assert.Contains(t, out, "y")
}

func TestWriteReportThreadSortSection(t *testing.T) {
	tm := newTimers(t, gptl.WithMaxThreads(2), gptl.WithThreadSort(true))
	require.NoError(t, tm.Start(0, "X"))
	require.NoError(t, tm.Stop(0, "X"))
	require.NoError(t, tm.Start(1, "X"))
	require.NoError(t, tm.Stop(1, "X"))

	var buf strings.Builder
	require.NoError(t, tm.WriteReport(&buf))
	out := buf.String()
	assert.Contains(t, out, "Same stats sorted by thread")
	assert.Contains(t, out, "SUM:")
}

func TestWriteReportCollisionDiagnosticsSection(t *testing.T) {
	tm := newTimers(t, gptl.WithTableSize(1), gptl.WithCollisionDiagnostics(true))
	require.NoError(t, tm.Start(0, "a"))
	require.NoError(t, tm.Stop(0, "a"))
	require.NoError(t, tm.Start(0, "b"))
	require.NoError(t, tm.Stop(0, "b"))

	var buf strings.Builder
	require.NoError(t, tm.WriteReport(&buf))
	assert.Contains(t, buf.String(), "Hash table collision diagnostics")
}

func TestWriteReportMemUsageSection(t *testing.T) {
	tm := newTimers(t, gptl.WithMemUsage(true))
	require.NoError(t, tm.Start(0, "a"))
	require.NoError(t, tm.Stop(0, "a"))

	var buf strings.Builder
	require.NoError(t, tm.WriteReport(&buf))
	assert.Contains(t, buf.String(), "Memory usage:")
}

func TestWriteReportByIDRejectsOutOfRange(t *testing.T) {
	tm := newTimers(t)
	assert.ErrorIs(t, tm.WriteReportByID(-1), gptl.ErrBadValue)
	assert.ErrorIs(t, tm.WriteReportByID(1000000), gptl.ErrBadValue)
}

func TestWriteReportAlwaysEndsWithThreadMap(t *testing.T) {
	tm := newTimers(t)
	require.NoError(t, tm.Start(0, "a"))
	require.NoError(t, tm.Stop(0, "a"))

	var buf strings.Builder
	require.NoError(t, tm.WriteReport(&buf))
	assert.Regexp(t, `Thread map:\n(?:  \d+ -> [^\n]*\n)*$`, buf.String())
}
