package synth

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants verifies that the allocator never exceeds its capacity
// and never shares a chip channel between two keys.
func checkInvariants(t *testing.T, a *Allocator) {
	t.Helper()
	require.LessOrEqual(t, a.Count(), a.Capacity())
	require.Len(t, a.index, a.Count())

	seen := make(map[int]bool)
	for _, al := range a.Allocations() {
		require.False(t, seen[al.ChipChannel], "chip channel %d allocated twice", al.ChipChannel)
		seen[al.ChipChannel] = true
		ch, ok := a.Lookup(al.MIDIChannel, al.Note)
		require.True(t, ok)
		require.Equal(t, al.ChipChannel, ch)
	}
}

func TestAcquireLowestFree(t *testing.T) {
	a := NewAllocator(4)
	for i := 0; i < 4; i++ {
		ch, stolen, retrigger := a.Acquire(0, 60+i)
		assert.Equal(t, i, ch)
		assert.Nil(t, stolen)
		assert.False(t, retrigger)
	}
	ch, ok := a.Release(0, 61)
	require.True(t, ok)
	assert.Equal(t, 1, ch)

	ch, stolen, _ := a.Acquire(1, 70)
	assert.Equal(t, 1, ch)
	assert.Nil(t, stolen)
	checkInvariants(t, a)
}

func TestRetriggerKeepsChannel(t *testing.T) {
	a := NewAllocator(3)
	a.Acquire(0, 60)
	a.Acquire(0, 62)
	ch, stolen, retrigger := a.Acquire(0, 60)
	assert.Equal(t, 0, ch)
	assert.Nil(t, stolen)
	assert.True(t, retrigger)
	assert.Equal(t, 2, a.Count())

	// the retriggered key is still the oldest allocation
	a.Acquire(0, 64)
	_, stolen, _ = a.Acquire(0, 65)
	require.NotNil(t, stolen)
	assert.Equal(t, 60, stolen.Note)
	assert.Equal(t, 0, stolen.ChipChannel)
	checkInvariants(t, a)
}

func TestStealOldest(t *testing.T) {
	a := NewAllocator(2)
	a.Acquire(0, 60)
	a.Acquire(1, 62)

	ch, stolen, retrigger := a.Acquire(2, 64)
	assert.False(t, retrigger)
	require.NotNil(t, stolen)
	assert.Equal(t, Allocation{MIDIChannel: 0, Note: 60, ChipChannel: 0}, *stolen)
	assert.Equal(t, 0, ch)

	_, ok := a.Lookup(0, 60)
	assert.False(t, ok)
	_, ok = a.Release(0, 60)
	assert.False(t, ok)

	_, stolen, _ = a.Acquire(2, 65)
	require.NotNil(t, stolen)
	assert.Equal(t, 62, stolen.Note)
	assert.Equal(t, 2, a.Steals())
	checkInvariants(t, a)
}

func TestCapacityPlusOneStealsOnce(t *testing.T) {
	for _, capacity := range []int{6, 8} {
		a := NewAllocator(capacity)
		for n := 0; n <= capacity; n++ {
			a.Acquire(0, 40+n)
		}
		assert.Equal(t, 1, a.Steals())
		assert.Equal(t, capacity, a.Count())
		checkInvariants(t, a)
	}
}

func TestActive(t *testing.T) {
	a := NewAllocator(4)
	a.Acquire(1, 60)
	a.Acquire(0, 61)
	a.Acquire(1, 62)
	assert.Equal(t, []int{0, 2}, a.Active(1))
	assert.Equal(t, []int{1}, a.Active(0))
	assert.Empty(t, a.Active(5))

	al, ok := a.At(2)
	require.True(t, ok)
	assert.Equal(t, Allocation{MIDIChannel: 1, Note: 62, ChipChannel: 2}, al)
	_, ok = a.At(3)
	assert.False(t, ok)
	_, ok = a.At(9)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	a := NewAllocator(2)
	a.Acquire(0, 60)
	a.Acquire(0, 61)
	a.Acquire(0, 62)
	a.Reset()
	assert.Zero(t, a.Count())
	assert.Equal(t, 1, a.Steals())
	ch, stolen, _ := a.Acquire(0, 60)
	assert.Equal(t, 0, ch)
	assert.Nil(t, stolen)
}

func TestZeroCapacity(t *testing.T) {
	a := NewAllocator(0)
	ch, stolen, retrigger := a.Acquire(0, 60)
	assert.Equal(t, -1, ch)
	assert.Nil(t, stolen)
	assert.False(t, retrigger)
}

func TestRandomSequenceKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := NewAllocator(6)
	for i := 0; i < 5000; i++ {
		mch, note := rng.Intn(4), 60+rng.Intn(12)
		if rng.Intn(3) == 0 {
			a.Release(mch, note)
		} else {
			a.Acquire(mch, note)
		}
		checkInvariants(t, a)
	}
}
