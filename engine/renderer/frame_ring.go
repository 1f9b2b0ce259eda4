package renderer

import (
	"time"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/mathx"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// SlotState tracks where one ring slot is in its lifecycle.
type SlotState int

const (
	// SlotIdle marks a slot that has not been used yet this cycle.
	SlotIdle SlotState = iota
	// SlotRecording marks a slot whose command buffer has begun.
	SlotRecording
	// SlotSubmitted marks a slot with commands submitted, fence unsignaled.
	SlotSubmitted
	// SlotComplete marks a slot whose fence has been observed signaled.
	SlotComplete
)

// FrameSlot is one per-frame resource bundle: a command recorder, a
// host-waitable fence signaling GPU completion of the slot's last
// submission, a semaphore ordering dependent GPU work, and an optional
// transient uniform buffer. The bundle is created once and mutated every
// cycle: reset, re-recorded, re-submitted.
type FrameSlot struct {
	index           int
	state           SlotState
	Commands        *CommandBuffer
	Fence           gpu.Fence
	Semaphore       gpu.Semaphore
	TransientBuffer gpu.Buffer
}

// State returns the slot's current lifecycle state.
func (s *FrameSlot) State() SlotState {
	return s.state
}

// Index is the slot's position in the ring.
func (s *FrameSlot) Index() int {
	return s.index
}

// FrameResourceRing is a fixed-depth ring of per-frame resource bundles.
// It lets the CPU record frame N+1 while the GPU consumes frame N; the ring
// depth bounds how many frames may be in flight.
type FrameResourceRing struct {
	backend gpu.Backend
	slots   []*FrameSlot
	current int
	timeout time.Duration
}

// NewFrameResourceRing creates depth slots against the given queue. Fences
// start signaled so the first acquisition of each slot does not block.
// transientSize > 0 additionally allocates a per-slot uniform buffer.
func NewFrameResourceRing(backend gpu.Backend, descriptors *DescriptorSetCache, queue gpu.QueueType, depth int, transientSize uint64, timeout time.Duration) (*FrameResourceRing, error) {
	if depth < 1 {
		return nil, core.ConfigurationError("frame ring depth must be at least 1, got %d", depth)
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if transientSize > 0 {
		// Uniform offsets into the transient buffer must honor the common
		// 256-byte alignment floor.
		transientSize = mathx.AlignUp(transientSize, 256)
	}

	ring := &FrameResourceRing{
		backend: backend,
		slots:   make([]*FrameSlot, depth),
		current: depth - 1,
		timeout: timeout,
	}

	for i := 0; i < depth; i++ {
		commands, err := NewCommandBuffer(backend, descriptors, queue)
		if err != nil {
			ring.Destroy()
			return nil, err
		}
		fence, err := backend.CreateFence(true)
		if err != nil {
			ring.Destroy()
			return nil, err
		}
		semaphore, err := backend.CreateSemaphore()
		if err != nil {
			ring.Destroy()
			return nil, err
		}
		slot := &FrameSlot{
			index:     i,
			state:     SlotIdle,
			Commands:  commands,
			Fence:     fence,
			Semaphore: semaphore,
		}
		if transientSize > 0 {
			buf, err := backend.CreateBuffer(transientSize, gpu.BufferUsageUniform|gpu.BufferUsageTransferDst)
			if err != nil {
				ring.Destroy()
				return nil, err
			}
			slot.TransientBuffer = buf
		}
		ring.slots[i] = slot
	}

	return ring, nil
}

// Depth is the number of slots in the ring.
func (fr *FrameResourceRing) Depth() int {
	return len(fr.slots)
}

// Current returns the most recently acquired slot.
func (fr *FrameResourceRing) Current() *FrameSlot {
	return fr.slots[fr.current]
}

// AcquireNext advances to the next slot and blocks the calling thread until
// that slot's fence signals, which guarantees the GPU is done with the
// slot's previous submission. This is the backpressure that keeps at most
// Depth frames in flight. The wait is bounded; expiry surfaces
// core.ErrTimeout without advancing the slot's state.
func (fr *FrameResourceRing) AcquireNext() (*FrameSlot, error) {
	next := (fr.current + 1) % len(fr.slots)
	slot := fr.slots[next]

	// The index moves only once the wait succeeds, so a timed-out acquire
	// leaves Current on the last acquired slot and a retry targets the
	// same unfinished slot.
	if err := fr.backend.WaitFence(slot.Fence, fr.timeout); err != nil {
		return nil, err
	}
	fr.current = next
	if slot.state == SlotSubmitted {
		slot.state = SlotComplete
	}
	return slot, nil
}

// Begin resets the slot's fence and command buffer and starts recording.
func (fr *FrameResourceRing) Begin(slot *FrameSlot) error {
	if slot.state == SlotRecording {
		return core.ConfigurationError("frame slot %d is already recording", slot.index)
	}
	if err := fr.backend.ResetFence(slot.Fence); err != nil {
		return err
	}
	if err := slot.Commands.Reset(); err != nil {
		return err
	}
	if err := slot.Commands.Begin(gpu.UsageOneTimeSubmit); err != nil {
		return err
	}
	slot.state = SlotRecording
	return nil
}

// Submit ends recording if needed and submits the slot's commands. The
// slot's own fence is attached so a future AcquireNext on this slot detects
// completion, and the slot's semaphore is appended to the signal list for
// GPU-side ordering of dependent passes.
func (fr *FrameResourceRing) Submit(slot *FrameSlot, waits, signals []gpu.Semaphore) error {
	if slot.state != SlotRecording {
		return core.ConfigurationError("frame slot %d submitted without recording", slot.index)
	}
	if err := slot.Commands.End(); err != nil {
		return err
	}

	signals = append(append([]gpu.Semaphore{}, signals...), slot.Semaphore)
	if err := slot.Commands.Submit(waits, signals, slot.Fence); err != nil {
		return err
	}
	slot.state = SlotSubmitted
	return nil
}

// WriteTransient updates the slot's transient uniform buffer. Only safe
// once the slot has been acquired this cycle, since the previous frame's
// reads must have completed.
func (fr *FrameResourceRing) WriteTransient(slot *FrameSlot, offset uint64, data []byte) error {
	if slot.TransientBuffer == 0 {
		return core.ConfigurationError("frame slot %d has no transient buffer", slot.index)
	}
	return fr.backend.WriteBuffer(slot.TransientBuffer, offset, data)
}

// Destroy waits out every in-flight slot, then releases all bundles.
func (fr *FrameResourceRing) Destroy() {
	for _, slot := range fr.slots {
		if slot == nil {
			continue
		}
		if slot.state == SlotSubmitted {
			if err := fr.backend.WaitFence(slot.Fence, fr.timeout); err != nil {
				core.LogWarn("frame slot %d still in flight at teardown: %s", slot.index, err)
			}
		}
		if slot.Commands != nil {
			slot.Commands.Free()
		}
		if slot.Fence != 0 {
			fr.backend.DestroyFence(slot.Fence)
		}
		if slot.Semaphore != 0 {
			fr.backend.DestroySemaphore(slot.Semaphore)
		}
		if slot.TransientBuffer != 0 {
			fr.backend.DestroyBuffer(slot.TransientBuffer)
		}
	}
	fr.slots = nil
}
