package renderer

import (
	"slices"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// BindingState tracks the resources currently bound per descriptor set and
// binding slot during command recording, together with which sets changed
// since the last draw. The recorder's pre-draw flush consumes the dirty
// sets to resolve fresh descriptor sets.
type BindingState struct {
	bindings map[uint32]map[uint32]gpu.Resource
	dirty    map[uint32]bool
}

func NewBindingState() *BindingState {
	return &BindingState{
		bindings: make(map[uint32]map[uint32]gpu.Resource),
		dirty:    make(map[uint32]bool),
	}
}

// Bind stores a resource at (set, binding) and marks the set dirty when the
// assignment actually changed.
func (bs *BindingState) Bind(set, binding uint32, res gpu.Resource) {
	slots, ok := bs.bindings[set]
	if !ok {
		slots = make(map[uint32]gpu.Resource)
		bs.bindings[set] = slots
	}
	if prev, ok := slots[binding]; ok && prev == res {
		return
	}
	slots[binding] = res
	bs.dirty[set] = true
}

// Bindings returns the slot assignments of one set, sorted by binding.
func (bs *BindingState) Bindings(set uint32) []BoundResource {
	slots := bs.bindings[set]
	out := make([]BoundResource, 0, len(slots))
	for binding, res := range slots {
		out = append(out, BoundResource{Binding: binding, Resource: res})
	}
	slices.SortFunc(out, func(a, b BoundResource) int {
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

// Resource returns the assignment at (set, binding).
func (bs *BindingState) Resource(set, binding uint32) (gpu.Resource, bool) {
	res, ok := bs.bindings[set][binding]
	return res, ok
}

type BoundResource struct {
	Binding  uint32
	Resource gpu.Resource
}

// DirtySets returns the sorted indices of sets changed since the last flush.
func (bs *BindingState) DirtySets() []uint32 {
	out := make([]uint32, 0, len(bs.dirty))
	for set := range bs.dirty {
		out = append(out, set)
	}
	slices.Sort(out)
	return out
}

// ClearDirty marks one set as flushed.
func (bs *BindingState) ClearDirty(set uint32) {
	delete(bs.dirty, set)
}

// Reset drops every binding and dirty flag, used when a command buffer is
// reset for re-recording.
func (bs *BindingState) Reset() {
	bs.bindings = make(map[uint32]map[uint32]gpu.Resource)
	bs.dirty = make(map[uint32]bool)
}
