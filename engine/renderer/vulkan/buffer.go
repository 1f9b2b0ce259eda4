package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// Buffers are host-visible and coherent so the renderer can stream uniform
// and vertex data without a staging step. Device-local staging can come
// later if profiling asks for it.
func (b *Backend) CreateBuffer(size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	if size == 0 {
		return 0, core.ConfigurationError("buffer size must be non-zero")
	}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vulkanBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	device := b.context.Device.LogicalDevice

	var buffer vk.Buffer
	var memory vk.DeviceMemory
	err := b.locks.SafeCall(BufferManagement, func() error {
		if res := vk.CreateBuffer(device, &createInfo, b.context.Allocator, &buffer); res != vk.Success {
			return vkError("vk.CreateBuffer", res)
		}

		var memReqs vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(device, buffer, &memReqs)
		memReqs.Deref()

		properties := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
		memoryIndex := b.context.FindMemoryIndex(memReqs.MemoryTypeBits, properties)
		if memoryIndex < 0 {
			vk.DestroyBuffer(device, buffer, b.context.Allocator)
			return core.ExhaustionError("no host-visible memory type for buffer")
		}

		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  memReqs.Size,
			MemoryTypeIndex: uint32(memoryIndex),
		}
		if res := vk.AllocateMemory(device, &allocInfo, b.context.Allocator, &memory); res != vk.Success {
			vk.DestroyBuffer(device, buffer, b.context.Allocator)
			return core.ExhaustionError("vk.AllocateMemory (buffer): %s", VulkanResultString(res, false))
		}
		vk.BindBufferMemory(device, buffer, memory, 0)
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.Buffer(b.arena.allocate())
	b.arena.buffers[handle] = bufferEntry{Handle: buffer, Memory: memory, Size: size}
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyBuffer(buf gpu.Buffer) {
	b.arena.mu.Lock()
	entry, ok := b.arena.buffers[buf]
	delete(b.arena.buffers, buf)
	b.arena.mu.Unlock()
	if !ok {
		return
	}
	device := b.context.Device.LogicalDevice
	vk.DestroyBuffer(device, entry.Handle, b.context.Allocator)
	vk.FreeMemory(device, entry.Memory, b.context.Allocator)
}

func (b *Backend) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b.arena.mu.Lock()
	entry, ok := b.arena.buffers[buf]
	b.arena.mu.Unlock()
	if !ok {
		return errUnknownHandle("buffer", uint64(buf))
	}
	if offset+uint64(len(data)) > entry.Size {
		return core.ConfigurationError("write of %d bytes at offset %d overflows buffer of size %d", len(data), offset, entry.Size)
	}
	if len(data) == 0 {
		return nil
	}

	device := b.context.Device.LogicalDevice
	return b.locks.SafeCall(BufferManagement, func() error {
		var mapped unsafe.Pointer
		if res := vk.MapMemory(device, entry.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
			return vkError("vk.MapMemory", res)
		}
		vk.Memcopy(mapped, data)
		vk.UnmapMemory(device, entry.Memory)
		return nil
	})
}
