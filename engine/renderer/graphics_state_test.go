package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func TestGraphicsStateHashStable(t *testing.T) {
	a := NewGraphicsState()
	b := NewGraphicsState()
	assert.Equal(t, a.Hash(), b.Hash(), "field-wise equal states must hash identically")
	assert.Equal(t, a.Hash(), a.Hash(), "hashing must be deterministic")
}

func TestGraphicsStateHashCoversFields(t *testing.T) {
	base := NewGraphicsState().Hash()

	wireframe := NewGraphicsState()
	wireframe.Wireframe = true
	assert.NotEqual(t, base, wireframe.Hash())

	cull := NewGraphicsState()
	cull.CullMode = gpu.CullModeNone
	assert.NotEqual(t, base, cull.Hash())

	topo := NewGraphicsState()
	topo.Topology = gpu.TopologyLineList
	assert.NotEqual(t, base, topo.Hash())

	depth := NewGraphicsState()
	depth.DepthStencil = gpu.DepthStencilState{
		DepthTest:  true,
		DepthWrite: true,
		DepthOp:    gpu.CompareOpLess,
	}
	assert.NotEqual(t, base, depth.Hash())

	vertex := NewGraphicsState()
	vertex.VertexBindings = []gpu.VertexBinding{{Binding: 0, Stride: 20}}
	vertex.VertexAttributes = []gpu.VertexAttribute{
		{Location: 0, Format: gpu.FormatR32G32Sfloat},
		{Location: 1, Format: gpu.FormatR32G32B32Sfloat, Offset: 8},
	}
	assert.NotEqual(t, base, vertex.Hash())
}

func TestGraphicsStateHashIncludesProgram(t *testing.T) {
	backend := gputest.New()
	first := newTestProgram(t, backend, uniformReflection())
	second := newTestProgram(t, backend, uniformReflection())

	a := NewGraphicsState()
	a.Program = first
	b := NewGraphicsState()
	b.Program = second
	assert.NotEqual(t, a.Hash(), b.Hash(), "distinct programs must not collide")

	c := NewGraphicsState()
	c.Program = first
	assert.Equal(t, a.Hash(), c.Hash(), "same program must hash equal")
}

func TestGraphicsStateClone(t *testing.T) {
	original := NewGraphicsState()
	original.VertexBindings = []gpu.VertexBinding{{Binding: 0, Stride: 16}}
	original.SetDynamicBuffer(0, 0)

	clone := original.Clone()
	assert.Equal(t, original.Hash(), clone.Hash())

	clone.VertexBindings[0].Stride = 32
	clone.SetDynamicBuffer(1, 3)
	assert.EqualValues(t, 16, original.VertexBindings[0].Stride, "clone must not alias the original's slices")
	assert.Len(t, original.DynamicBuffers, 1)
	assert.NotEqual(t, original.Hash(), clone.Hash())
}

func TestGraphicsStateDynamicBuffers(t *testing.T) {
	a := NewGraphicsState()
	a.SetDynamicBuffer(1, 0)
	a.SetDynamicBuffer(0, 2)
	a.SetDynamicBuffer(0, 0)

	b := NewGraphicsState()
	b.SetDynamicBuffer(0, 0)
	b.SetDynamicBuffer(0, 2)
	b.SetDynamicBuffer(1, 0)

	assert.Equal(t, a.DynamicBuffers, b.DynamicBuffers, "slots are kept sorted regardless of insertion order")
	assert.Equal(t, a.Hash(), b.Hash())

	a.SetDynamicBuffer(0, 2)
	assert.Len(t, a.DynamicBuffers, 3, "duplicate slots are not inserted twice")
}
