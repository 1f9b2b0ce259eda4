package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, binding := range bindings {
		count := binding.Count
		if count == 0 {
			count = 1
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vulkanDescriptorType(binding.Type),
			DescriptorCount: count,
			StageFlags:      vulkanShaderStageFlags(binding.Stages),
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorSetLayout(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &layout); res != vk.Success {
			return vkError("vk.CreateDescriptorSetLayout", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.DescriptorSetLayout(b.arena.allocate())
	b.arena.setLayouts[handle] = layout
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	b.arena.mu.Lock()
	layout, ok := b.arena.setLayouts[l]
	delete(b.arena.setLayouts, l)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyDescriptorSetLayout(b.context.Device.LogicalDevice, layout, b.context.Allocator)
	}
}

func (b *Backend) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	b.arena.mu.Lock()
	vkLayouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		layout, ok := b.arena.setLayouts[l]
		if !ok {
			b.arena.mu.Unlock()
			return 0, errUnknownHandle("descriptor set layout", uint64(l))
		}
		vkLayouts[i] = layout
	}
	b.arena.mu.Unlock()

	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vulkanShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(vkLayouts)),
		PSetLayouts:            vkLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var layout vk.PipelineLayout
	err := b.locks.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &layout); res != vk.Success {
			return vkError("vk.CreatePipelineLayout", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.PipelineLayout(b.arena.allocate())
	b.arena.pipelineLayouts[handle] = layout
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyPipelineLayout(l gpu.PipelineLayout) {
	b.arena.mu.Lock()
	layout, ok := b.arena.pipelineLayouts[l]
	delete(b.arena.pipelineLayouts, l)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyPipelineLayout(b.context.Device.LogicalDevice, layout, b.context.Allocator)
	}
}

func (b *Backend) CreateDescriptorPool(typeCounts map[gpu.DescriptorType]uint32, maxSets uint32) (gpu.DescriptorPool, error) {
	if maxSets == 0 {
		return 0, core.ConfigurationError("descriptor pool must hold at least one set")
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(typeCounts))
	for descriptorType, count := range typeCounts {
		if count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vulkanDescriptorType(descriptorType),
			DescriptorCount: count,
		})
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorPool(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &pool); res != vk.Success {
			return vkError("vk.CreateDescriptorPool", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.DescriptorPool(b.arena.allocate())
	b.arena.descriptorPools[handle] = pool
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyDescriptorPool(p gpu.DescriptorPool) {
	b.arena.mu.Lock()
	pool, ok := b.arena.descriptorPools[p]
	delete(b.arena.descriptorPools, p)
	// Sets allocated from the pool die with it.
	for handle, entry := range b.arena.descriptorSets {
		if entry.Pool == p {
			delete(b.arena.descriptorSets, handle)
		}
	}
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyDescriptorPool(b.context.Device.LogicalDevice, pool, b.context.Allocator)
	}
}

func (b *Backend) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	b.arena.mu.Lock()
	vkPool, poolOK := b.arena.descriptorPools[pool]
	vkLayout, layoutOK := b.arena.setLayouts[layout]
	b.arena.mu.Unlock()
	if !poolOK {
		return 0, errUnknownHandle("descriptor pool", uint64(pool))
	}
	if !layoutOK {
		return 0, errUnknownHandle("descriptor set layout", uint64(layout))
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     vkPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{vkLayout},
	}

	sets := make([]vk.DescriptorSet, 1)
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		res := vk.AllocateDescriptorSets(b.context.Device.LogicalDevice, &allocateInfo, &sets[0])
		switch res {
		case vk.Success:
			return nil
		case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
			return core.ExhaustionError("descriptor pool exhausted: %s", VulkanResultString(res, false))
		default:
			return vkError("vk.AllocateDescriptorSets", res)
		}
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.DescriptorSet(b.arena.allocate())
	b.arena.descriptorSets[handle] = descriptorSetEntry{Handle: sets[0], Pool: pool}
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) FreeDescriptorSet(pool gpu.DescriptorPool, set gpu.DescriptorSet) error {
	b.arena.mu.Lock()
	vkPool, poolOK := b.arena.descriptorPools[pool]
	entry, setOK := b.arena.descriptorSets[set]
	delete(b.arena.descriptorSets, set)
	b.arena.mu.Unlock()
	if !poolOK {
		return errUnknownHandle("descriptor pool", uint64(pool))
	}
	if !setOK {
		return errUnknownHandle("descriptor set", uint64(set))
	}

	return b.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.FreeDescriptorSets(b.context.Device.LogicalDevice, vkPool, 1, &entry.Handle); res != vk.Success {
			return vkError("vk.FreeDescriptorSets", res)
		}
		return nil
	})
}

func (b *Backend) WriteDescriptor(set gpu.DescriptorSet, binding uint32, res gpu.Resource) error {
	b.arena.mu.Lock()
	entry, ok := b.arena.descriptorSets[set]
	if !ok {
		b.arena.mu.Unlock()
		return errUnknownHandle("descriptor set", uint64(set))
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          entry.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorCount: 1,
		DescriptorType:  vulkanDescriptorType(res.Type),
	}

	switch res.Type {
	case gpu.DescriptorUniformBuffer, gpu.DescriptorStorageBuffer,
		gpu.DescriptorUniformBufferDynamic, gpu.DescriptorStorageBufferDynamic:
		buffer, bufOK := b.arena.buffers[res.Buffer]
		if !bufOK {
			b.arena.mu.Unlock()
			return errUnknownHandle("buffer", uint64(res.Buffer))
		}
		bufferRange := res.BufferRange
		if bufferRange == 0 {
			bufferRange = buffer.Size - res.BufferOffset
		}
		write.PBufferInfo = []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: vk.DeviceSize(res.BufferOffset),
			Range:  vk.DeviceSize(bufferRange),
		}}
	default:
		image, imgOK := b.arena.images[res.Image]
		if !imgOK {
			b.arena.mu.Unlock()
			return errUnknownHandle("image", uint64(res.Image))
		}
		write.PImageInfo = []vk.DescriptorImageInfo{{
			ImageView:   image.View,
			ImageLayout: vulkanImageLayout(res.ImageLayout),
		}}
	}
	b.arena.mu.Unlock()

	return b.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(b.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}
