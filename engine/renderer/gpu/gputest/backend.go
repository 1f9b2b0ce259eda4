// Package gputest provides an in-memory gpu.Backend with manually
// controllable fences and inspectable command logs. It backs the renderer's
// tests and headless runs; no GPU work is performed.
package gputest

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/mirage/engine/containers"
	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type objectKind uint8

const (
	kindShaderModule objectKind = iota
	kindSetLayout
	kindPipelineLayout
	kindPipeline
	kindDescriptorPool
	kindDescriptorSet
	kindRenderPass
	kindFramebuffer
	kindImage
	kindBuffer
	kindFence
	kindSemaphore
	kindCommandBuffer
)

type fenceState struct {
	mu       sync.Mutex
	signaled bool
	ch       chan struct{}
}

type poolState struct {
	maxSets   uint32
	allocated uint32
}

type commandState struct {
	recording bool
	ended     bool
	ops       []string
}

type bufferState struct {
	size uint64
	data []byte
}

type renderPassState struct {
	desc gpu.RenderPassDescriptor
}

// Submission is one recorded queue submission.
type Submission struct {
	CommandBuffer gpu.CommandBuffer
	Waits         []gpu.Semaphore
	Signals       []gpu.Semaphore
	Fence         gpu.Fence
}

// Backend is the test double. AutoSignal (default on) signals submission
// fences immediately, modeling an infinitely fast GPU; turn it off to drive
// completion by hand with CompleteNext or SignalFence.
type Backend struct {
	mu   sync.Mutex
	next uint64

	kinds      map[uint64]objectKind
	fences     map[gpu.Fence]*fenceState
	pools      map[gpu.DescriptorPool]*poolState
	commands   map[gpu.CommandBuffer]*commandState
	buffers    map[gpu.Buffer]*bufferState
	passes     map[gpu.RenderPass]*renderPassState
	setWrites  map[gpu.DescriptorSet]map[uint32]gpu.Resource
	setOwner   map[gpu.DescriptorSet]gpu.DescriptorPool
	pending    *containers.RingQueue[Submission]
	submitted  []Submission
	shutdown   bool
	AutoSignal bool

	// PipelineCompiles counts CreatePipeline calls.
	PipelineCompiles int
	// FailNextPipeline, when set, is returned by the next CreatePipeline.
	FailNextPipeline error
}

var _ gpu.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		kinds:      make(map[uint64]objectKind),
		fences:     make(map[gpu.Fence]*fenceState),
		pools:      make(map[gpu.DescriptorPool]*poolState),
		commands:   make(map[gpu.CommandBuffer]*commandState),
		buffers:    make(map[gpu.Buffer]*bufferState),
		passes:     make(map[gpu.RenderPass]*renderPassState),
		setWrites:  make(map[gpu.DescriptorSet]map[uint32]gpu.Resource),
		setOwner:   make(map[gpu.DescriptorSet]gpu.DescriptorPool),
		pending:    containers.NewRingQueue[Submission](256),
		AutoSignal: true,
	}
}

func (b *Backend) alloc(kind objectKind) uint64 {
	b.next++
	b.kinds[b.next] = kind
	return b.next
}

func (b *Backend) release(handle uint64, kind objectKind) {
	if got, ok := b.kinds[handle]; ok && got == kind {
		delete(b.kinds, handle)
	}
}

func (b *Backend) Initialize(appName string, width, height uint32) error {
	return nil
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return core.ConfigurationError("backend shut down twice")
	}
	b.shutdown = true
	b.kinds = make(map[uint64]objectKind)
	return nil
}

// LiveObjects reports how many arena entries are still alive.
func (b *Backend) LiveObjects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.kinds)
}

func (b *Backend) CreateShaderModule(stage gpu.ShaderStage, code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 {
		return 0, core.ConfigurationError("empty shader module for stage %d", stage)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpu.ShaderModule(b.alloc(kindShaderModule)), nil
}

func (b *Backend) DestroyShaderModule(m gpu.ShaderModule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(m), kindShaderModule)
}

func (b *Backend) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpu.DescriptorSetLayout(b.alloc(kindSetLayout)), nil
}

func (b *Backend) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(l), kindSetLayout)
}

func (b *Backend) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpu.PipelineLayout(b.alloc(kindPipelineLayout)), nil
}

func (b *Backend) DestroyPipelineLayout(l gpu.PipelineLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(l), kindPipelineLayout)
}

func (b *Backend) CreatePipeline(desc gpu.PipelineDescriptor) (gpu.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.FailNextPipeline; err != nil {
		b.FailNextPipeline = nil
		return 0, err
	}
	if len(desc.Stages) == 0 {
		return 0, core.ConfigurationError("pipeline has no shader stages")
	}
	pass, ok := b.passes[desc.RenderPass]
	if !ok {
		return 0, core.ConfigurationError("pipeline references unknown render pass")
	}
	if int(desc.SubPass) >= len(pass.desc.SubPasses) {
		return 0, core.ConfigurationError("pipeline references sub-pass %d of a %d sub-pass render pass",
			desc.SubPass, len(pass.desc.SubPasses))
	}

	b.PipelineCompiles++
	return gpu.Pipeline(b.alloc(kindPipeline)), nil
}

func (b *Backend) DestroyPipeline(p gpu.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(p), kindPipeline)
}

func (b *Backend) CreateDescriptorPool(typeCounts map[gpu.DescriptorType]uint32, maxSets uint32) (gpu.DescriptorPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := gpu.DescriptorPool(b.alloc(kindDescriptorPool))
	b.pools[handle] = &poolState{maxSets: maxSets}
	return handle, nil
}

func (b *Backend) DestroyDescriptorPool(p gpu.DescriptorPool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pools, p)
	b.release(uint64(p), kindDescriptorPool)
}

func (b *Backend) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.pools[pool]
	if !ok {
		return 0, core.ConfigurationError("allocation from unknown descriptor pool")
	}
	if state.allocated >= state.maxSets {
		return 0, core.ExhaustionError("descriptor pool is out of sets (%d allocated)", state.allocated)
	}
	state.allocated++

	set := gpu.DescriptorSet(b.alloc(kindDescriptorSet))
	b.setOwner[set] = pool
	return set, nil
}

func (b *Backend) FreeDescriptorSet(pool gpu.DescriptorPool, set gpu.DescriptorSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.setOwner[set] != pool {
		return core.ConfigurationError("descriptor set freed to a pool that did not allocate it")
	}
	if state, ok := b.pools[pool]; ok {
		state.allocated--
	}
	delete(b.setOwner, set)
	delete(b.setWrites, set)
	b.release(uint64(set), kindDescriptorSet)
	return nil
}

func (b *Backend) WriteDescriptor(set gpu.DescriptorSet, binding uint32, res gpu.Resource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.setOwner[set]; !ok {
		return core.ConfigurationError("write to unknown descriptor set")
	}
	writes, ok := b.setWrites[set]
	if !ok {
		writes = make(map[uint32]gpu.Resource)
		b.setWrites[set] = writes
	}
	writes[binding] = res
	return nil
}

// DescriptorWrites returns the resources written into one set.
func (b *Backend) DescriptorWrites(set gpu.DescriptorSet) map[uint32]gpu.Resource {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint32]gpu.Resource, len(b.setWrites[set]))
	for k, v := range b.setWrites[set] {
		out[k] = v
	}
	return out
}

func (b *Backend) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	if len(desc.Attachments) == 0 {
		return 0, core.ConfigurationError("render pass with no attachments")
	}
	if len(desc.SubPasses) == 0 {
		return 0, core.ConfigurationError("render pass with no sub-passes")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	handle := gpu.RenderPass(b.alloc(kindRenderPass))
	b.passes[handle] = &renderPassState{desc: desc}
	return handle, nil
}

func (b *Backend) DestroyRenderPass(rp gpu.RenderPass) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.passes, rp)
	b.release(uint64(rp), kindRenderPass)
}

func (b *Backend) CreateFramebuffer(desc gpu.FramebufferDescriptor) (gpu.Framebuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.passes[desc.RenderPass]; !ok {
		return 0, core.ConfigurationError("framebuffer references unknown render pass")
	}
	return gpu.Framebuffer(b.alloc(kindFramebuffer)), nil
}

func (b *Backend) DestroyFramebuffer(fb gpu.Framebuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(fb), kindFramebuffer)
}

func (b *Backend) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpu.Image(b.alloc(kindImage)), nil
}

func (b *Backend) DestroyImage(img gpu.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(img), kindImage)
}

func (b *Backend) CreateBuffer(size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := gpu.Buffer(b.alloc(kindBuffer))
	b.buffers[handle] = &bufferState{size: size, data: make([]byte, size)}
	return handle, nil
}

func (b *Backend) DestroyBuffer(buf gpu.Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, buf)
	b.release(uint64(buf), kindBuffer)
}

func (b *Backend) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.buffers[buf]
	if !ok {
		return core.ConfigurationError("write to unknown buffer")
	}
	if offset+uint64(len(data)) > state.size {
		return core.ConfigurationError("buffer write of %d bytes at %d exceeds size %d", len(data), offset, state.size)
	}
	copy(state.data[offset:], data)
	return nil
}

func (b *Backend) CreateFence(signaled bool) (gpu.Fence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := gpu.Fence(b.alloc(kindFence))
	state := &fenceState{signaled: signaled, ch: make(chan struct{})}
	if signaled {
		close(state.ch)
	}
	b.fences[handle] = state
	return handle, nil
}

func (b *Backend) DestroyFence(f gpu.Fence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fences, f)
	b.release(uint64(f), kindFence)
}

func (b *Backend) WaitFence(f gpu.Fence, timeout time.Duration) error {
	b.mu.Lock()
	state, ok := b.fences[f]
	b.mu.Unlock()
	if !ok {
		return core.ConfigurationError("wait on unknown fence")
	}

	state.mu.Lock()
	ch := state.ch
	state.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return core.TimeoutError("fence did not signal within %s", timeout)
	}
}

func (b *Backend) ResetFence(f gpu.Fence) error {
	b.mu.Lock()
	state, ok := b.fences[f]
	b.mu.Unlock()
	if !ok {
		return core.ConfigurationError("reset of unknown fence")
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.signaled {
		state.signaled = false
		state.ch = make(chan struct{})
	}
	return nil
}

// SignalFence marks a fence signaled, releasing any waiter.
func (b *Backend) SignalFence(f gpu.Fence) {
	b.mu.Lock()
	state, ok := b.fences[f]
	b.mu.Unlock()
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.signaled {
		state.signaled = true
		close(state.ch)
	}
}

// FenceSignaled reports a fence's current state without waiting.
func (b *Backend) FenceSignaled(f gpu.Fence) bool {
	b.mu.Lock()
	state, ok := b.fences[f]
	b.mu.Unlock()
	if !ok {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.signaled
}

func (b *Backend) CreateSemaphore() (gpu.Semaphore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpu.Semaphore(b.alloc(kindSemaphore)), nil
}

func (b *Backend) DestroySemaphore(s gpu.Semaphore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint64(s), kindSemaphore)
}

func (b *Backend) QueueWaitIdle(queue gpu.QueueType) error {
	b.drain()
	return nil
}

func (b *Backend) DeviceWaitIdle() error {
	b.drain()
	return nil
}

// drain signals every pending submission's fence, as if the GPU caught up.
func (b *Backend) drain() {
	b.mu.Lock()
	var fences []gpu.Fence
	for !b.pending.IsEmpty() {
		sub, _ := b.pending.Dequeue()
		if sub.Fence != 0 {
			fences = append(fences, sub.Fence)
		}
	}
	b.mu.Unlock()

	for _, f := range fences {
		b.SignalFence(f)
	}
}

func (b *Backend) CreateCommandBuffer(queue gpu.QueueType, primary bool) (gpu.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := gpu.CommandBuffer(b.alloc(kindCommandBuffer))
	b.commands[handle] = &commandState{}
	return handle, nil
}

func (b *Backend) FreeCommandBuffer(cb gpu.CommandBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.commands, cb)
	b.release(uint64(cb), kindCommandBuffer)
}

func (b *Backend) BeginCommandBuffer(cb gpu.CommandBuffer, usage gpu.CommandBufferUsage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.commands[cb]
	if !ok {
		return core.ConfigurationError("begin on unknown command buffer")
	}
	if state.recording {
		return core.ConfigurationError("command buffer begun twice")
	}
	state.recording = true
	state.ended = false
	return nil
}

func (b *Backend) EndCommandBuffer(cb gpu.CommandBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.commands[cb]
	if !ok || !state.recording {
		return core.ConfigurationError("end on a command buffer that is not recording")
	}
	state.recording = false
	state.ended = true
	return nil
}

func (b *Backend) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.commands[cb]
	if !ok {
		return core.ConfigurationError("reset on unknown command buffer")
	}
	state.recording = false
	state.ended = false
	state.ops = nil
	return nil
}

func (b *Backend) Submit(cb gpu.CommandBuffer, waits, signals []gpu.Semaphore, fence gpu.Fence) error {
	b.mu.Lock()
	state, ok := b.commands[cb]
	if !ok || !state.ended {
		b.mu.Unlock()
		return core.ConfigurationError("submit of a command buffer that was not ended")
	}

	sub := Submission{CommandBuffer: cb, Waits: waits, Signals: signals, Fence: fence}
	b.submitted = append(b.submitted, sub)
	auto := b.AutoSignal
	if !auto {
		if err := b.pending.Enqueue(sub); err != nil {
			b.mu.Unlock()
			return core.ExhaustionError("submission queue full")
		}
	}
	b.mu.Unlock()

	if auto && fence != 0 {
		b.SignalFence(fence)
	}
	return nil
}

// CompleteNext retires the oldest pending submission, signaling its fence.
// Only meaningful with AutoSignal off.
func (b *Backend) CompleteNext() bool {
	b.mu.Lock()
	sub, err := b.pending.Dequeue()
	b.mu.Unlock()
	if err != nil {
		return false
	}
	if sub.Fence != 0 {
		b.SignalFence(sub.Fence)
	}
	return true
}

// Submissions returns every submission seen so far, oldest first.
func (b *Backend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Submission, len(b.submitted))
	copy(out, b.submitted)
	return out
}

func (b *Backend) record(cb gpu.CommandBuffer, format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.commands[cb]; ok && state.recording {
		state.ops = append(state.ops, fmt.Sprintf(format, args...))
	}
}

// Ops returns the op log recorded into one command buffer.
func (b *Backend) Ops(cb gpu.CommandBuffer) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.commands[cb]
	if !ok {
		return nil
	}
	out := make([]string, len(state.ops))
	copy(out, state.ops)
	return out
}

// OpCount counts recorded ops whose name matches op exactly.
func (b *Backend) OpCount(cb gpu.CommandBuffer, op string) int {
	count := 0
	for _, recorded := range b.Ops(cb) {
		if len(recorded) >= len(op) && recorded[:len(op)] == op {
			count++
		}
	}
	return count
}

func (b *Backend) CmdBeginRenderPass(cb gpu.CommandBuffer, rp gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	b.record(cb, "beginRenderPass pass=%d fb=%d", rp, fb)
}

func (b *Backend) CmdNextSubPass(cb gpu.CommandBuffer) {
	b.record(cb, "nextSubPass")
}

func (b *Backend) CmdEndRenderPass(cb gpu.CommandBuffer) {
	b.record(cb, "endRenderPass")
}

func (b *Backend) CmdBindPipeline(cb gpu.CommandBuffer, p gpu.Pipeline) {
	b.record(cb, "bindPipeline pipeline=%d", p)
}

func (b *Backend) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) {
	if len(dynamicOffsets) > 0 {
		b.record(cb, "bindDescriptorSets first=%d count=%d dynamic=%v", firstSet, len(sets), dynamicOffsets)
		return
	}
	b.record(cb, "bindDescriptorSets first=%d count=%d", firstSet, len(sets))
}

func (b *Backend) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	b.record(cb, "bindVertexBuffers first=%d count=%d", firstBinding, len(buffers))
}

func (b *Backend) CmdBindIndexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	b.record(cb, "bindIndexBuffer buffer=%d", buffer)
}

func (b *Backend) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	b.record(cb, "setViewport %gx%g", viewport.Width, viewport.Height)
}

func (b *Backend) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	b.record(cb, "setScissor %dx%d", scissor.Extent.Width, scissor.Extent.Height)
}

func (b *Backend) CmdPushConstants(cb gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	b.record(cb, "pushConstants offset=%d size=%d", offset, len(data))
}

func (b *Backend) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	b.record(cb, "draw vertices=%d instances=%d", vertexCount, instanceCount)
}

func (b *Backend) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	b.record(cb, "drawIndexed indices=%d instances=%d", indexCount, instanceCount)
}

func (b *Backend) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size uint64) {
	b.record(cb, "copyBuffer src=%d dst=%d size=%d", src, dst, size)
}

func (b *Backend) CmdCopyImage(cb gpu.CommandBuffer, src, dst gpu.Image, extent gpu.Extent2D) {
	b.record(cb, "copyImage src=%d dst=%d", src, dst)
}

func (b *Backend) CmdBlitImage(cb gpu.CommandBuffer, src, dst gpu.Image, srcExtent, dstExtent gpu.Extent2D, filter gpu.Filter) {
	b.record(cb, "blitImage src=%d dst=%d", src, dst)
}

func (b *Backend) CmdResolveImage(cb gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout) {
	b.record(cb, "resolveImage src=%d dst=%d", src, dst)
}

func (b *Backend) CmdTransitionImageLayout(cb gpu.CommandBuffer, img gpu.Image, oldLayout, newLayout gpu.ImageLayout) {
	b.record(cb, "transitionImageLayout image=%d old=%d new=%d", img, oldLayout, newLayout)
}
