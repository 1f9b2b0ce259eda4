package renderer

import (
	"time"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/mathx"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// SubPass names one phase of a render pass by the attachments it reads and
// writes and the sub-passes whose results it consumes.
type SubPass struct {
	PreSubPasses      []uint32
	InputAttachments  []uint32
	OutputAttachments []uint32
}

// RenderPassConfig parameterizes a render pass. There is no subclassing for
// specialized passes; capability differences such as presenting to a
// swapchain are plain configuration.
type RenderPassConfig struct {
	// Presentable marks the last color attachment as a swapchain target.
	Presentable bool
	// RingDepth is the number of frames that may be in flight for this
	// pass. Small by design, 1 to 3.
	RingDepth int
	Extent    gpu.Extent2D
	Queue     gpu.QueueType

	ClearColor   [4]float32
	DepthClear   float32
	StencilClear uint32

	// TransientBufferSize > 0 allocates a per-slot uniform buffer.
	TransientBufferSize uint64
	// FenceTimeout bounds host waits when acquiring ring slots.
	FenceTimeout time.Duration
}

// RenderPass orchestrates one logical pass: attachment formats, a sub-pass
// graph, an extent, and the per-frame recording resources. It owns a
// FrameResourceRing for pipelining and a PipelineCache scoped to itself.
//
// Attachment and extent changes mark the pass dirty; the native render-pass
// object and framebuffer are rebuilt lazily on next use so several
// configuration calls batch into one rebuild.
type RenderPass struct {
	id      core.Identifier
	backend gpu.Backend
	config  RenderPassConfig

	attachmentFormats []gpu.Format
	subPasses         []SubPass
	extent            gpu.Extent2D
	dirty             bool
	rebuilds          int

	handle           gpu.RenderPass
	framebuffer      gpu.Framebuffer
	attachmentImages []gpu.Image

	ring      *FrameResourceRing
	pipelines *PipelineCache

	// waitPasses lists passes whose GPU work must complete before this
	// pass's submissions run. Acyclicity is an unchecked caller invariant.
	waitPasses []*RenderPass
}

func NewRenderPass(backend gpu.Backend, descriptors *DescriptorSetCache, config RenderPassConfig) (*RenderPass, error) {
	if config.RingDepth == 0 {
		config.RingDepth = 2
	}
	config.RingDepth = mathx.Clamp(config.RingDepth, 1, 3)
	if config.Extent.Width == 0 || config.Extent.Height == 0 {
		config.Extent = gpu.Extent2D{Width: 100, Height: 100}
	}

	ring, err := NewFrameResourceRing(backend, descriptors, config.Queue,
		config.RingDepth, config.TransientBufferSize, config.FenceTimeout)
	if err != nil {
		return nil, err
	}

	return &RenderPass{
		id:        core.NewIdentifier(),
		backend:   backend,
		config:    config,
		extent:    config.Extent,
		dirty:     true,
		ring:      ring,
		pipelines: NewPipelineCache(backend),
	}, nil
}

// ID is the pass's stable identity; it scopes pipeline cache keys.
func (rp *RenderPass) ID() core.Identifier {
	return rp.id
}

// AddAttachment appends an attachment format and marks the pass dirty.
func (rp *RenderPass) AddAttachment(format gpu.Format) {
	rp.attachmentFormats = append(rp.attachmentFormats, format)
	rp.dirty = true
}

// AttachmentFormats returns the declared attachment formats in order.
func (rp *RenderPass) AttachmentFormats() []gpu.Format {
	return rp.attachmentFormats
}

// HasDepthAttachment reports whether any attachment carries depth.
func (rp *RenderPass) HasDepthAttachment() bool {
	for _, f := range rp.attachmentFormats {
		if f.IsDepth() {
			return true
		}
	}
	return false
}

// SetSubPasses declares the sub-pass graph and marks the pass dirty. When
// never called, a single sub-pass writing every color attachment is assumed.
func (rp *RenderPass) SetSubPasses(subPasses []SubPass) {
	rp.subPasses = subPasses
	rp.dirty = true
}

// SubPassCount reports the number of sub-passes after defaulting.
func (rp *RenderPass) SubPassCount() int {
	if len(rp.subPasses) == 0 {
		return 1
	}
	return len(rp.subPasses)
}

// SetExtent resizes the pass target and marks it dirty.
func (rp *RenderPass) SetExtent(extent gpu.Extent2D) {
	if extent == rp.extent {
		return
	}
	rp.extent = extent
	rp.dirty = true
}

func (rp *RenderPass) Extent() gpu.Extent2D {
	return rp.extent
}

func (rp *RenderPass) Handle() gpu.RenderPass {
	return rp.handle
}

func (rp *RenderPass) Framebuffer() gpu.Framebuffer {
	return rp.framebuffer
}

// AttachmentImage returns the image backing attachment index, valid after
// Init. Zero when the index is out of range or the pass was never built.
func (rp *RenderPass) AttachmentImage(index int) gpu.Image {
	if index < 0 || index >= len(rp.attachmentImages) {
		return 0
	}
	return rp.attachmentImages[index]
}

// Pipelines is the pipeline cache scoped to this pass.
func (rp *RenderPass) Pipelines() *PipelineCache {
	return rp.pipelines
}

// Ring is the pass's frame resource ring.
func (rp *RenderPass) Ring() *FrameResourceRing {
	return rp.ring
}

// Rebuilds reports how many times the native objects were built.
func (rp *RenderPass) Rebuilds() int {
	return rp.rebuilds
}

// Init builds the native render-pass object, attachment images and
// framebuffer if the pass is dirty, and is a no-op otherwise. Batched
// configuration therefore costs one rebuild regardless of how many
// AddAttachment/SetExtent calls preceded it.
func (rp *RenderPass) Init() error {
	if !rp.dirty && rp.handle != 0 {
		return nil
	}
	if len(rp.attachmentFormats) == 0 {
		return core.ConfigurationError("render pass %s has no attachments", rp.id)
	}
	if err := rp.validateSubPasses(); err != nil {
		return err
	}

	// A rebuild replaces objects possibly still referenced by in-flight
	// work; drain the device first.
	if rp.handle != 0 {
		if err := rp.backend.DeviceWaitIdle(); err != nil {
			return err
		}
		rp.destroyNativeObjects()
	}

	handle, err := rp.backend.CreateRenderPass(gpu.RenderPassDescriptor{
		Attachments: rp.attachmentFormats,
		SubPasses:   rp.subPassDescriptions(),
		Presentable: rp.config.Presentable,
	})
	if err != nil {
		return err
	}
	rp.handle = handle

	rp.attachmentImages = make([]gpu.Image, 0, len(rp.attachmentFormats))
	for _, format := range rp.attachmentFormats {
		img, err := rp.backend.CreateImage(gpu.ImageDescriptor{
			Format:  format,
			Extent:  rp.extent,
			Sampled: true,
		})
		if err != nil {
			return err
		}
		rp.attachmentImages = append(rp.attachmentImages, img)
	}

	fb, err := rp.backend.CreateFramebuffer(gpu.FramebufferDescriptor{
		RenderPass:  rp.handle,
		Attachments: rp.attachmentImages,
		Extent:      rp.extent,
	})
	if err != nil {
		return err
	}
	rp.framebuffer = fb

	rp.dirty = false
	rp.rebuilds++
	core.LogDebug("render pass %s built (%d attachments, %d sub-passes, %dx%d)",
		rp.id, len(rp.attachmentFormats), rp.SubPassCount(), rp.extent.Width, rp.extent.Height)
	return nil
}

func (rp *RenderPass) validateSubPasses() error {
	n := uint32(len(rp.attachmentFormats))
	for i, sp := range rp.subPasses {
		for _, a := range sp.InputAttachments {
			if a >= n {
				return core.ConfigurationError("sub-pass %d reads unknown attachment %d", i, a)
			}
		}
		for _, a := range sp.OutputAttachments {
			if a >= n {
				return core.ConfigurationError("sub-pass %d writes unknown attachment %d", i, a)
			}
		}
		for _, p := range sp.PreSubPasses {
			if int(p) >= len(rp.subPasses) {
				return core.ConfigurationError("sub-pass %d depends on unknown sub-pass %d", i, p)
			}
		}
	}
	return nil
}

func (rp *RenderPass) subPassDescriptions() []gpu.SubPassDescription {
	if len(rp.subPasses) == 0 {
		return []gpu.SubPassDescription{{OutputAttachments: rp.colorAttachmentIndices()}}
	}
	out := make([]gpu.SubPassDescription, len(rp.subPasses))
	for i, sp := range rp.subPasses {
		out[i] = gpu.SubPassDescription{
			PreSubPasses:      sp.PreSubPasses,
			InputAttachments:  sp.InputAttachments,
			OutputAttachments: sp.OutputAttachments,
		}
	}
	return out
}

func (rp *RenderPass) colorAttachmentIndices() []uint32 {
	var out []uint32
	for i, f := range rp.attachmentFormats {
		if !f.IsDepth() {
			out = append(out, uint32(i))
		}
	}
	return out
}

// colorOutputCount is the number of color attachments one sub-pass writes,
// which the graphics state's blend attachment list must match.
func (rp *RenderPass) colorOutputCount(subPass uint32) int {
	descs := rp.subPassDescriptions()
	count := 0
	for _, a := range descs[subPass].OutputAttachments {
		if !rp.attachmentFormats[a].IsDepth() {
			count++
		}
	}
	return count
}

// pipelineDescriptor assembles the backend descriptor for compiling one
// pipeline of this pass. Viewports and scissors default to the full extent
// when the state leaves them empty.
func (rp *RenderPass) pipelineDescriptor(state *GraphicsState, subPass uint32) (gpu.PipelineDescriptor, error) {
	if rp.handle == 0 {
		if err := rp.Init(); err != nil {
			return gpu.PipelineDescriptor{}, err
		}
	}

	colorOutputs := rp.colorOutputCount(subPass)
	if len(state.BlendAttachments) != colorOutputs {
		return gpu.PipelineDescriptor{}, core.ConfigurationError(
			"graphics state has %d blend attachments, sub-pass %d of pass %s writes %d color attachments",
			len(state.BlendAttachments), subPass, rp.id, colorOutputs)
	}

	viewports := state.Viewports
	if len(viewports) == 0 {
		viewports = []gpu.Viewport{{
			Width:    float32(rp.extent.Width),
			Height:   float32(rp.extent.Height),
			MaxDepth: 1,
		}}
	}
	scissors := state.Scissors
	if len(scissors) == 0 {
		scissors = []gpu.Rect2D{{Extent: rp.extent}}
	}

	return gpu.PipelineDescriptor{
		Stages:           state.Program.StageModules(),
		Layout:           state.Program.PipelineLayout(),
		RenderPass:       rp.handle,
		SubPass:          subPass,
		Topology:         state.Topology,
		VertexBindings:   state.VertexBindings,
		VertexAttributes: state.VertexAttributes,
		Viewports:        viewports,
		Scissors:         scissors,
		BlendAttachments: state.BlendAttachments,
		DepthStencil:     state.DepthStencil,
		CullMode:         state.CullMode,
		Wireframe:        state.Wireframe,
	}, nil
}

func (rp *RenderPass) clearValues() []gpu.ClearValue {
	out := make([]gpu.ClearValue, 0, len(rp.attachmentFormats))
	for _, f := range rp.attachmentFormats {
		if f.IsDepth() {
			out = append(out, gpu.ClearValue{
				Depth:        rp.config.DepthClear,
				Stencil:      rp.config.StencilClear,
				DepthStencil: true,
			})
		} else {
			out = append(out, gpu.ClearValue{Color: rp.config.ClearColor})
		}
	}
	return out
}

// ExecuteBefore requests that other's GPU work wait for this pass's
// submissions, by making other wait on this pass's signal semaphore. This
// is a GPU-side ordering hint only; no host wait is introduced and no cycle
// detection is performed.
func (rp *RenderPass) ExecuteBefore(other *RenderPass) {
	other.waitPasses = append(other.waitPasses, rp)
}

// ExecuteAfter requests that this pass's GPU work wait for other's
// submissions.
func (rp *RenderPass) ExecuteAfter(other *RenderPass) {
	rp.waitPasses = append(rp.waitPasses, other)
}

// WaitSemaphores resolves the semaphores this pass's next submission waits
// on: the current-slot semaphore of every wired predecessor.
func (rp *RenderPass) WaitSemaphores() []gpu.Semaphore {
	out := make([]gpu.Semaphore, 0, len(rp.waitPasses))
	for _, p := range rp.waitPasses {
		out = append(out, p.ring.Current().Semaphore)
	}
	return out
}

// AcquireFrame acquires the next ring slot, waiting out the GPU if the ring
// is fully in flight, and begins recording on it. The pass is lazily built
// and opened on the slot's recorder.
func (rp *RenderPass) AcquireFrame() (*FrameSlot, error) {
	slot, err := rp.ring.AcquireNext()
	if err != nil {
		return nil, err
	}
	if err := rp.ring.Begin(slot); err != nil {
		return nil, err
	}
	if err := slot.Commands.BeginRenderPass(rp); err != nil {
		return nil, err
	}
	return slot, nil
}

// SubmitFrame closes the slot's render pass and submits it, waiting on the
// wired predecessor semaphores and signaling the slot's own.
func (rp *RenderPass) SubmitFrame(slot *FrameSlot) error {
	if err := slot.Commands.EndRenderPass(); err != nil {
		return err
	}
	return rp.ring.Submit(slot, rp.WaitSemaphores(), nil)
}

func (rp *RenderPass) destroyNativeObjects() {
	if rp.framebuffer != 0 {
		rp.backend.DestroyFramebuffer(rp.framebuffer)
		rp.framebuffer = 0
	}
	for _, img := range rp.attachmentImages {
		rp.backend.DestroyImage(img)
	}
	rp.attachmentImages = nil
	if rp.handle != 0 {
		rp.backend.DestroyRenderPass(rp.handle)
		rp.handle = 0
	}
}

// Destroy waits out in-flight work and releases the ring, the pipeline
// cache and the native pass objects.
func (rp *RenderPass) Destroy() {
	rp.ring.Destroy()
	rp.pipelines.Destroy()
	rp.destroyNativeObjects()
}
