package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreateCommandBuffer(queue gpu.QueueType, primary bool) (gpu.CommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !primary {
		level = vk.CommandBufferLevelSecondary
	}

	pool := b.context.Device.commandPool(queue)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}

	cmdBufs := make([]vk.CommandBuffer, 1)
	err := b.locks.SafeCall(CommandBufferManagement, func() error {
		if res := vk.AllocateCommandBuffers(b.context.Device.LogicalDevice, &allocateInfo, cmdBufs); res != vk.Success {
			return vkError("vk.AllocateCommandBuffers", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.CommandBuffer(b.arena.allocate())
	b.arena.commandBuffers[handle] = commandBufferEntry{Handle: cmdBufs[0], Pool: pool, Queue: queue}
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) FreeCommandBuffer(cb gpu.CommandBuffer) {
	b.arena.mu.Lock()
	entry, ok := b.arena.commandBuffers[cb]
	delete(b.arena.commandBuffers, cb)
	b.arena.mu.Unlock()
	if ok {
		vk.FreeCommandBuffers(b.context.Device.LogicalDevice, entry.Pool, 1, []vk.CommandBuffer{entry.Handle})
	}
}

func (b *Backend) BeginCommandBuffer(cb gpu.CommandBuffer, usage gpu.CommandBufferUsage) error {
	entry, err := b.commandBuffer(cb)
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vulkanCommandBufferUsage(usage),
	}
	if res := vk.BeginCommandBuffer(entry.Handle, &beginInfo); res != vk.Success {
		return vkError("vk.BeginCommandBuffer", res)
	}
	return nil
}

func (b *Backend) EndCommandBuffer(cb gpu.CommandBuffer) error {
	entry, err := b.commandBuffer(cb)
	if err != nil {
		return err
	}
	if res := vk.EndCommandBuffer(entry.Handle); res != vk.Success {
		return vkError("vk.EndCommandBuffer", res)
	}
	return nil
}

func (b *Backend) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	entry, err := b.commandBuffer(cb)
	if err != nil {
		return err
	}
	if res := vk.ResetCommandBuffer(entry.Handle, 0); res != vk.Success {
		return vkError("vk.ResetCommandBuffer", res)
	}
	return nil
}

func (b *Backend) Submit(cb gpu.CommandBuffer, waits, signals []gpu.Semaphore, fence gpu.Fence) error {
	entry, err := b.commandBuffer(cb)
	if err != nil {
		return err
	}

	b.arena.mu.Lock()
	waitSemaphores := make([]vk.Semaphore, 0, len(waits))
	for _, s := range waits {
		semaphore, ok := b.arena.semaphores[s]
		if !ok {
			b.arena.mu.Unlock()
			return errUnknownHandle("semaphore", uint64(s))
		}
		waitSemaphores = append(waitSemaphores, semaphore)
	}
	signalSemaphores := make([]vk.Semaphore, 0, len(signals))
	for _, s := range signals {
		semaphore, ok := b.arena.semaphores[s]
		if !ok {
			b.arena.mu.Unlock()
			return errUnknownHandle("semaphore", uint64(s))
		}
		signalSemaphores = append(signalSemaphores, semaphore)
	}
	vkFence := vk.NullFence
	if fence != 0 {
		fenceEntry, ok := b.arena.fences[fence]
		if !ok {
			b.arena.mu.Unlock()
			return errUnknownHandle("fence", uint64(fence))
		}
		vkFence = fenceEntry.Handle
	}
	b.arena.mu.Unlock()

	// Every wait happens before the first color write of this submission.
	waitStages := make([]vk.PipelineStageFlags, len(waitSemaphores))
	for i := range waitStages {
		waitStages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{entry.Handle},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	return b.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueSubmit(b.context.Device.queue(entry.Queue), 1, []vk.SubmitInfo{submitInfo}, vkFence); res != vk.Success {
			return vkError("vk.QueueSubmit", res)
		}
		return nil
	})
}

func (b *Backend) commandBuffer(cb gpu.CommandBuffer) (commandBufferEntry, error) {
	b.arena.mu.Lock()
	entry, ok := b.arena.commandBuffers[cb]
	b.arena.mu.Unlock()
	if !ok {
		return commandBufferEntry{}, errUnknownHandle("command buffer", uint64(cb))
	}
	return entry, nil
}

// cmdHandle is the lookup for recording calls, which have no error return.
// An unknown handle is a programming error upstream; the call becomes a no-op.
func (b *Backend) cmdHandle(cb gpu.CommandBuffer) (vk.CommandBuffer, bool) {
	b.arena.mu.Lock()
	entry, ok := b.arena.commandBuffers[cb]
	b.arena.mu.Unlock()
	if !ok {
		return nil, false
	}
	return entry.Handle, true
}

func (b *Backend) CmdBeginRenderPass(cb gpu.CommandBuffer, rp gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	renderPass, passOK := b.arena.renderPasses[rp]
	framebuffer, fbOK := b.arena.framebuffers[fb]
	b.arena.mu.Unlock()
	if !passOK || !fbOK {
		return
	}

	clearValues := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.DepthStencil {
			clearValues[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i].SetColor([]float32{c.Color[0], c.Color[1], c.Color[2], c.Color[3]})
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      renderPass,
		Framebuffer:     framebuffer,
		RenderArea:      vulkanRect2D(area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(handle, &beginInfo, vk.SubpassContentsInline)
}

func (b *Backend) CmdNextSubPass(cb gpu.CommandBuffer) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdNextSubpass(handle, vk.SubpassContentsInline)
	}
}

func (b *Backend) CmdEndRenderPass(cb gpu.CommandBuffer) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdEndRenderPass(handle)
	}
}

func (b *Backend) CmdBindPipeline(cb gpu.CommandBuffer, p gpu.Pipeline) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	pipeline, pipeOK := b.arena.pipelines[p]
	b.arena.mu.Unlock()
	if pipeOK {
		vk.CmdBindPipeline(handle, vk.PipelineBindPointGraphics, pipeline)
	}
}

func (b *Backend) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	vkLayout, layoutOK := b.arena.pipelineLayouts[layout]
	vkSets := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		entry, setOK := b.arena.descriptorSets[s]
		if !setOK {
			b.arena.mu.Unlock()
			return
		}
		vkSets = append(vkSets, entry.Handle)
	}
	b.arena.mu.Unlock()
	if !layoutOK {
		return
	}
	vk.CmdBindDescriptorSets(handle, vk.PipelineBindPointGraphics, vkLayout,
		firstSet, uint32(len(vkSets)), vkSets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (b *Backend) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	vkBuffers := make([]vk.Buffer, 0, len(buffers))
	for _, buf := range buffers {
		entry, bufOK := b.arena.buffers[buf]
		if !bufOK {
			b.arena.mu.Unlock()
			return
		}
		vkBuffers = append(vkBuffers, entry.Handle)
	}
	b.arena.mu.Unlock()

	vkOffsets := make([]vk.DeviceSize, len(vkBuffers))
	for i := range vkOffsets {
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(handle, firstBinding, uint32(len(vkBuffers)), vkBuffers, vkOffsets)
}

func (b *Backend) CmdBindIndexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	entry, bufOK := b.arena.buffers[buffer]
	b.arena.mu.Unlock()
	if bufOK {
		vk.CmdBindIndexBuffer(handle, entry.Handle, vk.DeviceSize(offset), vulkanIndexType(indexType))
	}
}

func (b *Backend) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdSetViewport(handle, 0, 1, []vk.Viewport{vulkanViewport(viewport)})
	}
}

func (b *Backend) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdSetScissor(handle, 0, 1, []vk.Rect2D{vulkanRect2D(scissor)})
	}
}

func (b *Backend) CmdPushConstants(cb gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	handle, ok := b.cmdHandle(cb)
	if !ok || len(data) == 0 {
		return
	}
	b.arena.mu.Lock()
	vkLayout, layoutOK := b.arena.pipelineLayouts[layout]
	b.arena.mu.Unlock()
	if layoutOK {
		vk.CmdPushConstants(handle, vkLayout, vulkanShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
	}
}

func (b *Backend) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdDraw(handle, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (b *Backend) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if handle, ok := b.cmdHandle(cb); ok {
		vk.CmdDrawIndexed(handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (b *Backend) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size uint64) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	srcEntry, srcOK := b.arena.buffers[src]
	dstEntry, dstOK := b.arena.buffers[dst]
	b.arena.mu.Unlock()
	if srcOK && dstOK {
		vk.CmdCopyBuffer(handle, srcEntry.Handle, dstEntry.Handle, 1, []vk.BufferCopy{{
			Size: vk.DeviceSize(size),
		}})
	}
}

func (b *Backend) CmdCopyImage(cb gpu.CommandBuffer, src, dst gpu.Image, extent gpu.Extent2D) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	srcEntry, srcOK := b.arena.images[src]
	dstEntry, dstOK := b.arena.images[dst]
	b.arena.mu.Unlock()
	if !srcOK || !dstOK {
		return
	}

	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(srcEntry.Format),
			LayerCount: 1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(dstEntry.Format),
			LayerCount: 1,
		},
		Extent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vk.CmdCopyImage(handle,
		srcEntry.Handle, vk.ImageLayoutTransferSrcOptimal,
		dstEntry.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

func (b *Backend) CmdBlitImage(cb gpu.CommandBuffer, src, dst gpu.Image, srcExtent, dstExtent gpu.Extent2D, filter gpu.Filter) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	srcEntry, srcOK := b.arena.images[src]
	dstEntry, dstOK := b.arena.images[dst]
	b.arena.mu.Unlock()
	if !srcOK || !dstOK {
		return
	}

	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(srcEntry.Format),
			LayerCount: 1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(dstEntry.Format),
			LayerCount: 1,
		},
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(handle,
		srcEntry.Handle, vk.ImageLayoutTransferSrcOptimal,
		dstEntry.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, vulkanFilter(filter))
}

func (b *Backend) CmdResolveImage(cb gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	srcEntry, srcOK := b.arena.images[src]
	dstEntry, dstOK := b.arena.images[dst]
	b.arena.mu.Unlock()
	if !srcOK || !dstOK {
		return
	}

	resolve := vk.ImageResolve{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(srcEntry.Format),
			LayerCount: 1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vulkanAspect(dstEntry.Format),
			LayerCount: 1,
		},
		Extent: vk.Extent3D{Width: srcEntry.Width, Height: srcEntry.Height, Depth: 1},
	}
	vk.CmdResolveImage(handle,
		srcEntry.Handle, vulkanImageLayout(srcLayout),
		dstEntry.Handle, vulkanImageLayout(dstLayout),
		1, []vk.ImageResolve{resolve})
}

func (b *Backend) CmdTransitionImageLayout(cb gpu.CommandBuffer, img gpu.Image, oldLayout, newLayout gpu.ImageLayout) {
	handle, ok := b.cmdHandle(cb)
	if !ok {
		return
	}
	b.arena.mu.Lock()
	entry, imgOK := b.arena.images[img]
	b.arena.mu.Unlock()
	if !imgOK {
		return
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vulkanImageLayout(oldLayout),
		NewLayout:           vulkanImageLayout(newLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               entry.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vulkanAspect(entry.Format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	srcStage, srcAccess := layoutStageAccess(oldLayout, true)
	dstStage, dstAccess := layoutStageAccess(newLayout, false)
	barrier.SrcAccessMask = srcAccess
	barrier.DstAccessMask = dstAccess

	vk.CmdPipelineBarrier(handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// layoutStageAccess maps a layout to the pipeline stage and access mask that
// produced (src) or will consume (dst) the contents in that layout.
func layoutStageAccess(layout gpu.ImageLayout, src bool) (vk.PipelineStageFlags, vk.AccessFlags) {
	switch layout {
	case gpu.ImageLayoutColorAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	case gpu.ImageLayoutDepthStencilAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	case gpu.ImageLayoutShaderReadOnly:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.AccessFlags(vk.AccessShaderReadBit)
	case gpu.ImageLayoutTransferSrc:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferReadBit)
	case gpu.ImageLayoutTransferDst:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferWriteBit)
	default:
		if src {
			return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0
	}
}
