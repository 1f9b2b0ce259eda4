package renderer

import (
	"time"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type CommandBufferState int

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateInRenderPass
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
	CommandBufferStateNotAllocated
)

// CommandBuffer records GPU commands against the currently set
// GraphicsState and resource bindings. Draw calls resolve the active state
// to a pipeline through the enclosing render pass's PipelineCache and the
// bound resources to descriptor sets through the DescriptorSetCache right
// before the draw is emitted, so state changes between draws are respected
// without manual invalidation.
//
// Recording is single-threaded per buffer; distinct buffers may record and
// submit concurrently.
type CommandBuffer struct {
	backend     gpu.Backend
	descriptors *DescriptorSetCache
	handle      gpu.CommandBuffer
	queue       gpu.QueueType
	state       CommandBufferState

	graphicsState *GraphicsState
	bindingState  *BindingState

	currentPass    *RenderPass
	currentSubPass uint32
	boundPipeline  gpu.Pipeline

	// boundSets holds the descriptor set currently bound per set index;
	// liveSets holds every set referenced since the last Reset, kept alive
	// until the owning frame slot's fence has been waited.
	boundSets map[uint32]*DescriptorSetRef
	liveSets  []*DescriptorSetRef
}

func NewCommandBuffer(backend gpu.Backend, descriptors *DescriptorSetCache, queue gpu.QueueType) (*CommandBuffer, error) {
	handle, err := backend.CreateCommandBuffer(queue, true)
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{
		backend:       backend,
		descriptors:   descriptors,
		handle:        handle,
		queue:         queue,
		state:         CommandBufferStateReady,
		graphicsState: NewGraphicsState(),
		bindingState:  NewBindingState(),
		boundSets:     make(map[uint32]*DescriptorSetRef),
	}, nil
}

// Handle exposes the native command buffer for backend-level submission.
func (cb *CommandBuffer) Handle() gpu.CommandBuffer {
	return cb.handle
}

// State returns the recorder's lifecycle state.
func (cb *CommandBuffer) State() CommandBufferState {
	return cb.state
}

// GraphicsState is the mutable state the next draw will be compiled
// against.
func (cb *CommandBuffer) GraphicsState() *GraphicsState {
	return cb.graphicsState
}

// BindingState is the mutable resource binding table the next draw will
// resolve descriptor sets from.
func (cb *CommandBuffer) BindingState() *BindingState {
	return cb.bindingState
}

func (cb *CommandBuffer) Begin(usage gpu.CommandBufferUsage) error {
	if cb.state == CommandBufferStateRecording || cb.state == CommandBufferStateInRenderPass {
		return core.ConfigurationError("command buffer already recording")
	}
	if err := cb.backend.BeginCommandBuffer(cb.handle, usage); err != nil {
		return err
	}
	cb.state = CommandBufferStateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	if cb.state == CommandBufferStateInRenderPass {
		return core.ConfigurationError("command buffer ended inside a render pass")
	}
	if cb.state != CommandBufferStateRecording {
		return core.ConfigurationError("command buffer ended without recording")
	}
	if err := cb.backend.EndCommandBuffer(cb.handle); err != nil {
		return err
	}
	cb.state = CommandBufferStateRecordingEnded
	return nil
}

// Reset returns the recorder to its ready state, releasing the descriptor
// sets referenced by the previous recording. Only safe once the previous
// submission's fence has been waited.
func (cb *CommandBuffer) Reset() error {
	if err := cb.backend.ResetCommandBuffer(cb.handle); err != nil {
		return err
	}
	for _, ref := range cb.liveSets {
		ref.Release()
	}
	cb.liveSets = nil
	cb.boundSets = make(map[uint32]*DescriptorSetRef)
	cb.bindingState.Reset()
	cb.boundPipeline = 0
	cb.currentPass = nil
	cb.currentSubPass = 0
	cb.state = CommandBufferStateReady
	return nil
}

// Submit hands the recorded commands to the GPU queue. The fence, when not
// zero, signals on completion of this submission.
func (cb *CommandBuffer) Submit(waits, signals []gpu.Semaphore, fence gpu.Fence) error {
	if cb.state != CommandBufferStateRecordingEnded {
		return core.ConfigurationError("command buffer submitted without ended recording")
	}
	if err := cb.backend.Submit(cb.handle, waits, signals, fence); err != nil {
		return err
	}
	cb.state = CommandBufferStateSubmitted
	return nil
}

// WaitIdle blocks until all submitted work on the recorder's queue is done.
// Used at shutdown and for one-time uploads outside the frame ring.
func (cb *CommandBuffer) WaitIdle() error {
	return cb.backend.QueueWaitIdle(cb.queue)
}

// BeginRenderPass lazily (re)builds the pass if it is dirty, then opens it
// for recording.
func (cb *CommandBuffer) BeginRenderPass(pass *RenderPass) error {
	if cb.state != CommandBufferStateRecording {
		return core.ConfigurationError("render pass begun outside of recording")
	}
	if err := pass.Init(); err != nil {
		return err
	}

	extent := pass.Extent()
	cb.backend.CmdBeginRenderPass(cb.handle, pass.Handle(), pass.Framebuffer(),
		gpu.Rect2D{Extent: extent}, pass.clearValues())
	cb.backend.CmdSetViewport(cb.handle, gpu.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	})
	cb.backend.CmdSetScissor(cb.handle, gpu.Rect2D{Extent: extent})

	cb.currentPass = pass
	cb.currentSubPass = 0
	cb.boundPipeline = 0
	cb.state = CommandBufferStateInRenderPass
	return nil
}

// NextSubPass advances to the next sub-pass of the open render pass.
func (cb *CommandBuffer) NextSubPass() error {
	if cb.state != CommandBufferStateInRenderPass {
		return core.ConfigurationError("next sub-pass outside of a render pass")
	}
	if int(cb.currentSubPass+1) >= cb.currentPass.SubPassCount() {
		return core.ConfigurationError("render pass %s has no sub-pass %d", cb.currentPass.ID(), cb.currentSubPass+1)
	}
	cb.backend.CmdNextSubPass(cb.handle)
	cb.currentSubPass++
	cb.boundPipeline = 0
	return nil
}

func (cb *CommandBuffer) EndRenderPass() error {
	if cb.state != CommandBufferStateInRenderPass {
		return core.ConfigurationError("render pass ended without being begun")
	}
	cb.backend.CmdEndRenderPass(cb.handle)
	cb.currentPass = nil
	cb.state = CommandBufferStateRecording
	return nil
}

// BindUniformBuffer points one set/binding slot at a buffer range for the
// next draw.
func (cb *CommandBuffer) BindUniformBuffer(set, binding uint32, buffer gpu.Buffer, offset, size uint64) {
	cb.bindingState.Bind(set, binding, gpu.Resource{
		Type:         gpu.DescriptorUniformBuffer,
		Buffer:       buffer,
		BufferOffset: offset,
		BufferRange:  size,
	})
}

// BindCombinedImageSampler points one set/binding slot at a sampled image.
func (cb *CommandBuffer) BindCombinedImageSampler(set, binding uint32, image gpu.Image) {
	cb.bindingState.Bind(set, binding, gpu.Resource{
		Type:        gpu.DescriptorCombinedImageSampler,
		Image:       image,
		ImageLayout: gpu.ImageLayoutShaderReadOnly,
	})
}

func (cb *CommandBuffer) BindVertexBuffers(firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	cb.backend.CmdBindVertexBuffers(cb.handle, firstBinding, buffers, offsets)
}

func (cb *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	cb.backend.CmdBindIndexBuffer(cb.handle, buffer, offset, indexType)
}

// PushConstants writes push-constant data against the active program's
// layout.
func (cb *CommandBuffer) PushConstants(stages gpu.ShaderStage, offset uint32, data []byte) error {
	if cb.graphicsState.Program == nil {
		return core.ConfigurationError("push constants without a shader program")
	}
	cb.backend.CmdPushConstants(cb.handle, cb.graphicsState.Program.PipelineLayout(), stages, offset, data)
	return nil
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := cb.flush(); err != nil {
		return err
	}
	cb.backend.CmdDraw(cb.handle, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	if err := cb.flush(); err != nil {
		return err
	}
	cb.backend.CmdDrawIndexed(cb.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

// flush resolves the active graphics state to a pipeline and the dirty
// binding sets to descriptor sets, binding whatever changed since the last
// draw.
func (cb *CommandBuffer) flush() error {
	if cb.state != CommandBufferStateInRenderPass {
		return core.ConfigurationError("draw outside of a render pass")
	}

	pipeline, err := cb.currentPass.Pipelines().Resolve(cb.currentPass, cb.graphicsState, cb.currentSubPass)
	if err != nil {
		return err
	}
	if pipeline != cb.boundPipeline {
		cb.backend.CmdBindPipeline(cb.handle, pipeline)
		cb.boundPipeline = pipeline
	}

	program := cb.graphicsState.Program
	for _, set := range cb.bindingState.DirtySets() {
		ref, err := cb.descriptors.Allocate(program, set)
		if err != nil {
			return err
		}
		for _, bound := range cb.bindingState.Bindings(set) {
			res := bound.Resource
			if cb.graphicsState.IsDynamicBuffer(set, bound.Binding) {
				// Flagged slots are written at base zero; the buffer offset is
				// applied per bind below so the descriptor survives offset
				// changes without a rewrite.
				res.BufferOffset = 0
			}
			if err := cb.backend.WriteDescriptor(ref.Set(), bound.Binding, res); err != nil {
				ref.Release()
				return err
			}
		}

		var dynamicOffsets []uint32
		for _, b := range program.Reflection().SetBindings(set) {
			dynamic := b.Type == gpu.DescriptorUniformBufferDynamic ||
				b.Type == gpu.DescriptorStorageBufferDynamic ||
				cb.graphicsState.IsDynamicBuffer(set, b.Binding)
			if !dynamic {
				continue
			}
			var offset uint32
			if res, ok := cb.bindingState.Resource(set, b.Binding); ok {
				offset = uint32(res.BufferOffset)
			}
			dynamicOffsets = append(dynamicOffsets, offset)
		}

		cb.backend.CmdBindDescriptorSets(cb.handle, program.PipelineLayout(), set,
			[]gpu.DescriptorSet{ref.Set()}, dynamicOffsets)

		cb.boundSets[set] = ref
		cb.liveSets = append(cb.liveSets, ref)
		cb.bindingState.ClearDirty(set)
	}

	return nil
}

// CopyBuffer records a buffer-to-buffer copy.
func (cb *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size uint64) error {
	if err := cb.requireRecording(); err != nil {
		return err
	}
	cb.backend.CmdCopyBuffer(cb.handle, src, dst, size)
	return nil
}

// CopyImage records an image-to-image copy of the given extent.
func (cb *CommandBuffer) CopyImage(src, dst gpu.Image, extent gpu.Extent2D) error {
	if err := cb.requireRecording(); err != nil {
		return err
	}
	cb.backend.CmdCopyImage(cb.handle, src, dst, extent)
	return nil
}

// BlitImage records a scaled image copy.
func (cb *CommandBuffer) BlitImage(src, dst gpu.Image, srcExtent, dstExtent gpu.Extent2D, filter gpu.Filter) error {
	if err := cb.requireRecording(); err != nil {
		return err
	}
	cb.backend.CmdBlitImage(cb.handle, src, dst, srcExtent, dstExtent, filter)
	return nil
}

// ResolveImage records a multisample resolve.
func (cb *CommandBuffer) ResolveImage(src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout) error {
	if err := cb.requireRecording(); err != nil {
		return err
	}
	cb.backend.CmdResolveImage(cb.handle, src, srcLayout, dst, dstLayout)
	return nil
}

// TransitionImageLayout records an image layout transition barrier.
func (cb *CommandBuffer) TransitionImageLayout(img gpu.Image, oldLayout, newLayout gpu.ImageLayout) error {
	if err := cb.requireRecording(); err != nil {
		return err
	}
	cb.backend.CmdTransitionImageLayout(cb.handle, img, oldLayout, newLayout)
	return nil
}

func (cb *CommandBuffer) requireRecording() error {
	if cb.state != CommandBufferStateRecording && cb.state != CommandBufferStateInRenderPass {
		return core.ConfigurationError("command recorded outside of begin/end")
	}
	return nil
}

// Free releases the native command buffer.
func (cb *CommandBuffer) Free() {
	for _, ref := range cb.liveSets {
		ref.Release()
	}
	cb.liveSets = nil
	cb.backend.FreeCommandBuffer(cb.handle)
	cb.handle = 0
	cb.state = CommandBufferStateNotAllocated
}

// RunSingleUse allocates a transient command buffer, records through fn,
// submits and host-waits to completion. One-time uploads run through this
// since no ring buffering covers them.
func RunSingleUse(backend gpu.Backend, descriptors *DescriptorSetCache, queue gpu.QueueType, fn func(*CommandBuffer) error) error {
	cb, err := NewCommandBuffer(backend, descriptors, queue)
	if err != nil {
		return err
	}
	defer cb.Free()

	if err := cb.Begin(gpu.UsageOneTimeSubmit); err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}

	fence, err := backend.CreateFence(false)
	if err != nil {
		return err
	}
	defer backend.DestroyFence(fence)

	if err := cb.Submit(nil, nil, fence); err != nil {
		return err
	}
	return backend.WaitFence(fence, 10*time.Second)
}
