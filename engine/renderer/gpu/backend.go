package gpu

import "time"

// Backend is the narrow boundary toward the underlying explicit GPU API.
// The renderer consumes it for object creation, command recording and
// submission; it never reaches around it.
//
// All Create* calls return resource-exhaustion errors when the device is out
// of memory; recording calls are only valid between BeginCommandBuffer and
// EndCommandBuffer on the same handle.
type Backend interface {
	Initialize(appName string, width, height uint32) error
	// Shutdown destroys every object still alive in the backend's arena in
	// dependency order. Must be called exactly once, after DeviceWaitIdle.
	Shutdown() error

	// Pipelines.
	CreateShaderModule(stage ShaderStage, code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	// Descriptors.
	CreateDescriptorPool(typeCounts map[DescriptorType]uint32, maxSets uint32) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSet(pool DescriptorPool, set DescriptorSet) error
	WriteDescriptor(set DescriptorSet, binding uint32, res Resource) error

	// Render passes and attachments.
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreateImage(desc ImageDescriptor) (Image, error)
	DestroyImage(img Image)

	// Buffers.
	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	DestroyBuffer(b Buffer)
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	// Synchronization.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitFence blocks the host until the fence signals or the timeout
	// expires, in which case the error matches core.ErrTimeout.
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	QueueWaitIdle(queue QueueType) error
	DeviceWaitIdle() error

	// Command buffers.
	CreateCommandBuffer(queue QueueType, primary bool) (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, usage CommandBufferUsage) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error
	Submit(cb CommandBuffer, waits, signals []Semaphore, fence Fence) error

	// Recording.
	CmdBeginRenderPass(cb CommandBuffer, rp RenderPass, fb Framebuffer, area Rect2D, clears []ClearValue)
	CmdNextSubPass(cb CommandBuffer)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, firstSet uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, buffer Buffer, offset uint64, indexType IndexType)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)
	CmdCopyImage(cb CommandBuffer, src, dst Image, extent Extent2D)
	CmdBlitImage(cb CommandBuffer, src, dst Image, srcExtent, dstExtent Extent2D, filter Filter)
	CmdResolveImage(cb CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout)
	CmdTransitionImageLayout(cb CommandBuffer, img Image, oldLayout, newLayout ImageLayout)
}
