package gptl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestThreadRegistries covers the three threadRegistry backends, one
// t.Run per backend.
func TestThreadRegistries(t *testing.T) {
	t.Run("mutex registry allocates dense indices", func(t *testing.T) {
		r := newMutexRegistry(2)

		idx0, err := r.current("alice")
		require.NoError(t, err)
		assert.Equal(t, 0, idx0)

		idx0Again, err := r.current("alice")
		require.NoError(t, err)
		assert.Equal(t, idx0, idx0Again)

		idx1, err := r.current("bob")
		require.NoError(t, err)
		assert.Equal(t, 1, idx1)

		_, err = r.current("carol")
		assert.ErrorIs(t, err, errThreadOverflow)
		assert.Equal(t, 2, r.count())

		id, ok := r.idAt(0)
		assert.True(t, ok)
		assert.Equal(t, ThreadID("alice"), id)

		id, ok = r.idAt(1)
		assert.True(t, ok)
		assert.Equal(t, ThreadID("bob"), id)

		_, ok = r.idAt(2)
		assert.False(t, ok)

		_, ok = r.idAt(-1)
		assert.False(t, ok)
	})

	t.Run("pre-assigned registry validates index", func(t *testing.T) {
		r := newPreAssignedRegistry(2)

		idx, err := r.current(1)
		require.NoError(t, err)
		assert.Equal(t, 1, idx)

		_, err = r.current(5)
		assert.ErrorIs(t, err, errThreadOverflow)

		_, err = r.current("not-an-int")
		assert.ErrorIs(t, err, errThreadOverflow)

		assert.Equal(t, 1, r.count())

		id, ok := r.idAt(1)
		assert.True(t, ok)
		assert.Equal(t, ThreadID(1), id)

		_, ok = r.idAt(0)
		assert.False(t, ok) // never seen

		_, ok = r.idAt(5)
		assert.False(t, ok) // out of bounds
	})

	t.Run("single registry always zero", func(t *testing.T) {
		r := &singleRegistry{}
		assert.Equal(t, 0, r.count())

		_, ok := r.idAt(0)
		assert.False(t, ok)

		idx, err := r.current("anything")
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.Equal(t, 1, r.count())

		id, ok := r.idAt(0)
		assert.True(t, ok)
		assert.Equal(t, ThreadID(0), id)

		_, ok = r.idAt(1)
		assert.False(t, ok)
	})
}
