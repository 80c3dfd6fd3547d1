package gptl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptionsValidate(t *testing.T) {
	assert.NoError(t, defaultOptions().validate())
}

func TestValidateRejectsNonPositiveTableSize(t *testing.T) {
	o := defaultOptions()
	o.tablesize = 0
	assert.ErrorIs(t, o.validate(), ErrBadValue)
}

func TestValidateRejectsNonPositiveMaxThreads(t *testing.T) {
	o := defaultOptions()
	o.maxthreads = -1
	assert.ErrorIs(t, o.validate(), ErrBadValue)
}

func TestValidateRejectsUnknownPrintMethod(t *testing.T) {
	o := defaultOptions()
	o.printMethod = PrintMethod(99)
	assert.ErrorIs(t, o.validate(), ErrBadOption)
}

func TestOverheadPerCallZeroWhenFrequencyUnknown(t *testing.T) {
	assert.Equal(t, int64(0), overheadPerCall(0).Nanoseconds())
}

func TestOverheadPerCallPositiveWhenFrequencyKnown(t *testing.T) {
	assert.Greater(t, overheadPerCall(3000).Nanoseconds(), int64(0))
}

func TestWithOptionsOverrideDefaults(t *testing.T) {
	o := defaultOptions()
	for _, apply := range []Option{
		WithWall(false),
		WithCPU(true),
		WithDepthLimit(4),
		WithTableSize(17),
	} {
		apply(&o)
	}
	assert.False(t, o.wall)
	assert.True(t, o.cpu)
	assert.Equal(t, 4, o.depthLimit)
	assert.Equal(t, 17, o.tablesize)
}
