package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlightSingleFlight(t *testing.T) {
	t.Parallel()

	var f flight
	assert.False(t, f.busy())

	seq, err := f.begin()
	require.NoError(t, err)
	assert.True(t, f.busy())
	assert.True(t, f.latest(seq))

	_, err = f.begin()
	assert.ErrorIs(t, err, ErrBusy)

	f.end(seq)
	assert.False(t, f.busy())
}

func TestFlightSupersededInvocation(t *testing.T) {
	t.Parallel()

	var f flight

	first, err := f.begin()
	require.NoError(t, err)
	f.end(first)

	second, err := f.begin()
	require.NoError(t, err)

	assert.False(t, f.latest(first))
	assert.True(t, f.latest(second))

	// A stale end must not release the newer invocation.
	f.end(first)
	assert.True(t, f.busy())

	f.end(second)
	assert.False(t, f.busy())
}
