package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	if len(desc.Attachments) == 0 {
		return 0, core.ConfigurationError("render pass needs at least one attachment")
	}
	if len(desc.SubPasses) == 0 {
		return 0, core.ConfigurationError("render pass needs at least one sub-pass")
	}

	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, format := range desc.Attachments {
		attachment := vk.AttachmentDescription{
			Format:         vulkanFormat(format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
		}
		if format.IsDepth() {
			attachment.FinalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
		} else if desc.Presentable && i == lastColorIndex(desc.Attachments) {
			attachment.FinalLayout = vk.ImageLayoutTransferSrcOptimal
		} else {
			attachment.FinalLayout = vk.ImageLayoutShaderReadOnlyOptimal
		}
		attachments[i] = attachment
	}

	subpasses := make([]vk.SubpassDescription, len(desc.SubPasses))
	for i, sp := range desc.SubPasses {
		subpass := vk.SubpassDescription{
			PipelineBindPoint: vk.PipelineBindPointGraphics,
		}

		var colorRefs []vk.AttachmentReference
		var depthRef *vk.AttachmentReference
		for _, index := range sp.OutputAttachments {
			if int(index) >= len(desc.Attachments) {
				return 0, core.ConfigurationError("sub-pass %d writes attachment %d which does not exist", i, index)
			}
			if desc.Attachments[index].IsDepth() {
				depthRef = &vk.AttachmentReference{
					Attachment: index,
					Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
				}
				continue
			}
			colorRefs = append(colorRefs, vk.AttachmentReference{
				Attachment: index,
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
		}
		subpass.ColorAttachmentCount = uint32(len(colorRefs))
		subpass.PColorAttachments = colorRefs
		subpass.PDepthStencilAttachment = depthRef

		var inputRefs []vk.AttachmentReference
		for _, index := range sp.InputAttachments {
			if int(index) >= len(desc.Attachments) {
				return 0, core.ConfigurationError("sub-pass %d reads attachment %d which does not exist", i, index)
			}
			inputRefs = append(inputRefs, vk.AttachmentReference{
				Attachment: index,
				Layout:     vk.ImageLayoutShaderReadOnlyOptimal,
			})
		}
		subpass.InputAttachmentCount = uint32(len(inputRefs))
		subpass.PInputAttachments = inputRefs

		subpasses[i] = subpass
	}

	// One external dependency to order against prior work, plus one
	// dependency per declared sub-pass edge.
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}}
	for i, sp := range desc.SubPasses {
		for _, pre := range sp.PreSubPasses {
			if int(pre) >= len(desc.SubPasses) {
				return 0, core.ConfigurationError("sub-pass %d depends on sub-pass %d which does not exist", i, pre)
			}
			dependencies = append(dependencies, vk.SubpassDependency{
				SrcSubpass:    pre,
				DstSubpass:    uint32(i),
				SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
				SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
				DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
				DstAccessMask: vk.AccessFlags(vk.AccessInputAttachmentReadBit),
			})
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var renderPass vk.RenderPass
	err := b.locks.SafeCall(RenderpassManagement, func() error {
		if res := vk.CreateRenderPass(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &renderPass); res != vk.Success {
			return vkError("vk.CreateRenderPass", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.RenderPass(b.arena.allocate())
	b.arena.renderPasses[handle] = renderPass
	b.arena.mu.Unlock()
	return handle, nil
}

func lastColorIndex(attachments []gpu.Format) int {
	last := -1
	for i, f := range attachments {
		if !f.IsDepth() {
			last = i
		}
	}
	return last
}

func (b *Backend) DestroyRenderPass(rp gpu.RenderPass) {
	b.arena.mu.Lock()
	renderPass, ok := b.arena.renderPasses[rp]
	delete(b.arena.renderPasses, rp)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyRenderPass(b.context.Device.LogicalDevice, renderPass, b.context.Allocator)
	}
}

func (b *Backend) CreateFramebuffer(desc gpu.FramebufferDescriptor) (gpu.Framebuffer, error) {
	b.arena.mu.Lock()
	renderPass, passOK := b.arena.renderPasses[desc.RenderPass]
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, img := range desc.Attachments {
		entry, ok := b.arena.images[img]
		if !ok {
			b.arena.mu.Unlock()
			return 0, errUnknownHandle("image", uint64(img))
		}
		views[i] = entry.View
	}
	b.arena.mu.Unlock()
	if !passOK {
		return 0, errUnknownHandle("render pass", uint64(desc.RenderPass))
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	err := b.locks.SafeCall(RenderpassManagement, func() error {
		if res := vk.CreateFramebuffer(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &framebuffer); res != vk.Success {
			return vkError("vk.CreateFramebuffer", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.Framebuffer(b.arena.allocate())
	b.arena.framebuffers[handle] = framebuffer
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyFramebuffer(fb gpu.Framebuffer) {
	b.arena.mu.Lock()
	framebuffer, ok := b.arena.framebuffers[fb]
	delete(b.arena.framebuffers, fb)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyFramebuffer(b.context.Device.LogicalDevice, framebuffer, b.context.Allocator)
	}
}

func (b *Backend) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return 0, core.ConfigurationError("image extent must be non-zero")
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	if desc.Format.IsDepth() {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	} else {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit)
	}
	if desc.Sampled {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageInputAttachmentBit)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vulkanFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	device := b.context.Device.LogicalDevice

	var image vk.Image
	var memory vk.DeviceMemory
	var view vk.ImageView
	err := b.locks.SafeCall(ImageManagement, func() error {
		if res := vk.CreateImage(device, &imageCreateInfo, b.context.Allocator, &image); res != vk.Success {
			return vkError("vk.CreateImage", res)
		}

		var memReqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(device, image, &memReqs)
		memReqs.Deref()

		memoryIndex := b.context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if memoryIndex < 0 {
			vk.DestroyImage(device, image, b.context.Allocator)
			return core.ExhaustionError("no device-local memory type for image")
		}

		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  memReqs.Size,
			MemoryTypeIndex: uint32(memoryIndex),
		}
		if res := vk.AllocateMemory(device, &allocInfo, b.context.Allocator, &memory); res != vk.Success {
			vk.DestroyImage(device, image, b.context.Allocator)
			return core.ExhaustionError("vk.AllocateMemory (image): %s", VulkanResultString(res, false))
		}
		vk.BindImageMemory(device, image, memory, 0)

		viewCreateInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   vulkanFormat(desc.Format),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vulkanAspect(desc.Format),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if res := vk.CreateImageView(device, &viewCreateInfo, b.context.Allocator, &view); res != vk.Success {
			vk.DestroyImage(device, image, b.context.Allocator)
			vk.FreeMemory(device, memory, b.context.Allocator)
			return vkError("vk.CreateImageView", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.Image(b.arena.allocate())
	b.arena.images[handle] = imageEntry{
		Handle: image,
		Memory: memory,
		View:   view,
		Format: desc.Format,
		Width:  desc.Extent.Width,
		Height: desc.Extent.Height,
	}
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyImage(img gpu.Image) {
	b.arena.mu.Lock()
	entry, ok := b.arena.images[img]
	delete(b.arena.images, img)
	b.arena.mu.Unlock()
	if !ok {
		return
	}
	device := b.context.Device.LogicalDevice
	if entry.View != vk.NullImageView {
		vk.DestroyImageView(device, entry.View, b.context.Allocator)
	}
	vk.DestroyImage(device, entry.Handle, b.context.Allocator)
	vk.FreeMemory(device, entry.Memory, b.context.Allocator)
}
