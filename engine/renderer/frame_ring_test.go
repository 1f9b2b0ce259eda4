package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func newTestRing(t *testing.T, backend *gputest.Backend, depth int, transientSize uint64, timeout time.Duration) *FrameResourceRing {
	t.Helper()
	ring, err := NewFrameResourceRing(backend, newTestCache(t, backend), gpu.QueueGraphics, depth, transientSize, timeout)
	require.NoError(t, err)
	t.Cleanup(ring.Destroy)
	return ring
}

func TestFrameRingRejectsZeroDepth(t *testing.T) {
	backend := gputest.New()
	_, err := NewFrameResourceRing(backend, newTestCache(t, backend), gpu.QueueGraphics, 0, 0, 0)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFrameRingSlots(t *testing.T) {
	backend := gputest.New()
	ring := newTestRing(t, backend, 3, 0, 0)

	assert.Equal(t, 3, ring.Depth())

	// Fences start signaled, so a full first cycle acquires without blocking.
	for i := 0; i < 3; i++ {
		slot, err := ring.AcquireNext()
		require.NoError(t, err)
		assert.Equal(t, i, slot.Index())
		assert.Equal(t, SlotIdle, slot.State())
		assert.True(t, backend.FenceSignaled(slot.Fence))
	}

	slot, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Index(), "the ring wraps around")
	assert.Equal(t, slot, ring.Current())
}

func TestFrameRingLifecycle(t *testing.T) {
	backend := gputest.New()
	ring := newTestRing(t, backend, 2, 0, 0)

	slot, err := ring.AcquireNext()
	require.NoError(t, err)

	require.NoError(t, ring.Begin(slot))
	assert.Equal(t, SlotRecording, slot.State())
	assert.False(t, backend.FenceSignaled(slot.Fence), "Begin resets the slot fence")

	assert.ErrorIs(t, ring.Begin(slot), core.ErrConfiguration, "double Begin on one slot")

	require.NoError(t, ring.Submit(slot, nil, nil))
	assert.Equal(t, SlotSubmitted, slot.State())

	// The test backend models an instant GPU, so wrapping back to the slot
	// observes completion immediately.
	_, err = ring.AcquireNext()
	require.NoError(t, err)
	reacquired, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.Equal(t, slot, reacquired)
	assert.Equal(t, SlotComplete, reacquired.State())
}

func TestFrameRingSubmitWithoutRecording(t *testing.T) {
	backend := gputest.New()
	ring := newTestRing(t, backend, 2, 0, 0)

	slot, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.ErrorIs(t, ring.Submit(slot, nil, nil), core.ErrConfiguration)
}

func TestFrameRingSubmitSignalsSlotSemaphore(t *testing.T) {
	backend := gputest.New()
	ring := newTestRing(t, backend, 2, 0, 0)

	slot, err := ring.AcquireNext()
	require.NoError(t, err)
	require.NoError(t, ring.Begin(slot))

	wait, err := backend.CreateSemaphore()
	require.NoError(t, err)
	defer backend.DestroySemaphore(wait)

	require.NoError(t, ring.Submit(slot, []gpu.Semaphore{wait}, nil))

	subs := backend.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, slot.Commands.Handle(), subs[0].CommandBuffer)
	assert.Equal(t, []gpu.Semaphore{wait}, subs[0].Waits)
	assert.Contains(t, subs[0].Signals, slot.Semaphore, "the slot semaphore is always signaled for dependents")
	assert.Equal(t, slot.Fence, subs[0].Fence)
}

func TestFrameRingBackpressure(t *testing.T) {
	backend := gputest.New()
	backend.AutoSignal = false
	ring := newTestRing(t, backend, 1, 0, 30*time.Millisecond)

	slot, err := ring.AcquireNext()
	require.NoError(t, err)
	require.NoError(t, ring.Begin(slot))
	require.NoError(t, ring.Submit(slot, nil, nil))

	// With depth 1 and the submission still in flight, the next acquire must
	// block until the fence deadline.
	start := time.Now()
	_, err = ring.AcquireNext()
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	require.True(t, backend.CompleteNext(), "one submission is pending")
	reacquired, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.Equal(t, SlotComplete, reacquired.State())
}

func TestFrameRingTimeoutKeepsCurrentSlot(t *testing.T) {
	backend := gputest.New()
	backend.AutoSignal = false
	ring := newTestRing(t, backend, 2, 0, 20*time.Millisecond)

	for i := 0; i < 2; i++ {
		slot, err := ring.AcquireNext()
		require.NoError(t, err)
		require.NoError(t, ring.Begin(slot))
		require.NoError(t, ring.Submit(slot, nil, nil))
	}
	last := ring.Current()
	require.Equal(t, 1, last.Index())

	// Both slots are in flight, so the acquire times out. Current must keep
	// pointing at the last acquired slot, not at the one that never finished
	// its wait.
	_, err := ring.AcquireNext()
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, last, ring.Current())

	// Retiring the oldest submission lets the retry return that same slot;
	// the timed-out attempt must not have skipped past it.
	require.True(t, backend.CompleteNext())
	reacquired, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.Equal(t, 0, reacquired.Index())
	assert.Equal(t, SlotComplete, reacquired.State())
}

func TestFrameRingTransientBuffer(t *testing.T) {
	backend := gputest.New()
	ring := newTestRing(t, backend, 2, 128, 0)

	slot, err := ring.AcquireNext()
	require.NoError(t, err)
	require.NotZero(t, slot.TransientBuffer)
	assert.NoError(t, ring.WriteTransient(slot, 16, []byte{1, 2, 3, 4}))

	bare := newTestRing(t, backend, 1, 0, 0)
	slot, err = bare.AcquireNext()
	require.NoError(t, err)
	assert.ErrorIs(t, bare.WriteTransient(slot, 0, []byte{1}), core.ErrConfiguration)
}
