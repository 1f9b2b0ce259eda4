package renderer

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"slices"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// GraphicsState is a value describing the full fixed-function and shader
// configuration needed to compile a pipeline. It only describes GPU objects,
// it never owns them; the shader program it references is owned elsewhere.
// Two field-wise equal states hash identically and resolve to the same
// cached pipeline.
type GraphicsState struct {
	Program          *ShaderProgram
	Topology         gpu.Topology
	VertexBindings   []gpu.VertexBinding
	VertexAttributes []gpu.VertexAttribute
	Viewports        []gpu.Viewport
	Scissors         []gpu.Rect2D
	BlendAttachments []gpu.BlendAttachment
	DepthStencil     gpu.DepthStencilState
	CullMode         gpu.CullMode
	Wireframe        bool
	// DynamicBuffers lists set<<32|binding slots whose buffers are bound
	// with dynamic offsets. Kept sorted so the hash is order-independent.
	DynamicBuffers []uint64
}

// NewGraphicsState returns a state with the defaults most passes want: one
// full-target viewport is still the caller's job, everything else is off.
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{
		Topology: gpu.TopologyTriangleList,
		CullMode: gpu.CullModeBack,
		BlendAttachments: []gpu.BlendAttachment{{
			BlendEnable:    true,
			SrcColorFactor: gpu.BlendFactorSrcAlpha,
			DstColorFactor: gpu.BlendFactorOneMinusSrcAlpha,
			ColorOp:        gpu.BlendOpAdd,
			SrcAlphaFactor: gpu.BlendFactorSrcAlpha,
			DstAlphaFactor: gpu.BlendFactorOneMinusSrcAlpha,
			AlphaOp:        gpu.BlendOpAdd,
			WriteMask:      gpu.ColorComponentAll,
		}},
	}
}

// Clone returns a deep copy; slice fields do not alias the receiver's.
func (gs *GraphicsState) Clone() *GraphicsState {
	out := *gs
	out.VertexBindings = slices.Clone(gs.VertexBindings)
	out.VertexAttributes = slices.Clone(gs.VertexAttributes)
	out.Viewports = slices.Clone(gs.Viewports)
	out.Scissors = slices.Clone(gs.Scissors)
	out.BlendAttachments = slices.Clone(gs.BlendAttachments)
	out.DynamicBuffers = slices.Clone(gs.DynamicBuffers)
	return &out
}

// SetDynamicBuffer marks one set/binding slot as dynamically offset. The
// recorder's pre-draw flush writes flagged slots at base zero and applies
// the bound buffer offset at bind time instead.
func (gs *GraphicsState) SetDynamicBuffer(set, binding uint32) {
	key := uint64(set)<<32 | uint64(binding)
	idx, found := slices.BinarySearch(gs.DynamicBuffers, key)
	if !found {
		gs.DynamicBuffers = slices.Insert(gs.DynamicBuffers, idx, key)
	}
}

// IsDynamicBuffer reports whether one set/binding slot is flagged as
// dynamically offset.
func (gs *GraphicsState) IsDynamicBuffer(set, binding uint32) bool {
	key := uint64(set)<<32 | uint64(binding)
	_, found := slices.BinarySearch(gs.DynamicBuffers, key)
	return found
}

// Hash folds every semantic field into a 64-bit FNV-1a digest. Field order
// is fixed, so field-wise equal states produce identical hashes.
func (gs *GraphicsState) Hash() uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)

	w8 := func(v uint8) { h.Write([]byte{v}) }
	w32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		h.Write(buf[:4])
	}
	w64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf, v)
		h.Write(buf)
	}
	wf32 := func(v float32) { w32(math.Float32bits(v)) }
	wb := func(v bool) {
		if v {
			w8(1)
		} else {
			w8(0)
		}
	}

	if gs.Program != nil {
		h.Write([]byte(gs.Program.ID()))
		w64(gs.Program.Generation())
	}
	w8(uint8(gs.Topology))
	w8(uint8(gs.CullMode))
	wb(gs.Wireframe)

	w32(uint32(len(gs.VertexBindings)))
	for _, b := range gs.VertexBindings {
		w32(b.Binding)
		w32(b.Stride)
		w8(uint8(b.InputRate))
	}
	w32(uint32(len(gs.VertexAttributes)))
	for _, a := range gs.VertexAttributes {
		w32(a.Location)
		w32(a.Binding)
		w32(uint32(a.Format))
		w32(a.Offset)
	}
	w32(uint32(len(gs.Viewports)))
	for _, v := range gs.Viewports {
		wf32(v.X)
		wf32(v.Y)
		wf32(v.Width)
		wf32(v.Height)
		wf32(v.MinDepth)
		wf32(v.MaxDepth)
	}
	w32(uint32(len(gs.Scissors)))
	for _, s := range gs.Scissors {
		w32(uint32(s.Offset.X))
		w32(uint32(s.Offset.Y))
		w32(s.Extent.Width)
		w32(s.Extent.Height)
	}
	w32(uint32(len(gs.BlendAttachments)))
	for _, b := range gs.BlendAttachments {
		wb(b.BlendEnable)
		w8(uint8(b.SrcColorFactor))
		w8(uint8(b.DstColorFactor))
		w8(uint8(b.ColorOp))
		w8(uint8(b.SrcAlphaFactor))
		w8(uint8(b.DstAlphaFactor))
		w8(uint8(b.AlphaOp))
		w8(uint8(b.WriteMask))
	}
	wb(gs.DepthStencil.DepthTest)
	wb(gs.DepthStencil.DepthWrite)
	w8(uint8(gs.DepthStencil.DepthOp))
	wb(gs.DepthStencil.StencilTest)

	w32(uint32(len(gs.DynamicBuffers)))
	for _, d := range gs.DynamicBuffers {
		w64(d)
	}

	return h.Sum64()
}
