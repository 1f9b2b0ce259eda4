package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if res := vk.CreateFence(b.context.Device.LogicalDevice, &fenceCreateInfo, b.context.Allocator, &fence); res != vk.Success {
		return 0, vkError("vk.CreateFence", res)
	}

	b.arena.mu.Lock()
	handle := gpu.Fence(b.arena.allocate())
	b.arena.fences[handle] = fenceEntry{Handle: fence}
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyFence(f gpu.Fence) {
	b.arena.mu.Lock()
	entry, ok := b.arena.fences[f]
	delete(b.arena.fences, f)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyFence(b.context.Device.LogicalDevice, entry.Handle, b.context.Allocator)
	}
}

func (b *Backend) WaitFence(f gpu.Fence, timeout time.Duration) error {
	b.arena.mu.Lock()
	entry, ok := b.arena.fences[f]
	b.arena.mu.Unlock()
	if !ok {
		return errUnknownHandle("fence", uint64(f))
	}

	result := vk.WaitForFences(b.context.Device.LogicalDevice, 1, []vk.Fence{entry.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		return core.TimeoutError("fence wait timed out after %s", timeout)
	case vk.ErrorDeviceLost:
		core.LogError("fence wait: device lost")
		return core.ErrDeviceLost
	default:
		return vkError("vk.WaitForFences", result)
	}
}

func (b *Backend) ResetFence(f gpu.Fence) error {
	b.arena.mu.Lock()
	entry, ok := b.arena.fences[f]
	b.arena.mu.Unlock()
	if !ok {
		return errUnknownHandle("fence", uint64(f))
	}
	if res := vk.ResetFences(b.context.Device.LogicalDevice, 1, []vk.Fence{entry.Handle}); res != vk.Success {
		return vkError("vk.ResetFences", res)
	}
	return nil
}

func (b *Backend) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(b.context.Device.LogicalDevice, &semaphoreCreateInfo, b.context.Allocator, &semaphore); res != vk.Success {
		return 0, vkError("vk.CreateSemaphore", res)
	}

	b.arena.mu.Lock()
	handle := gpu.Semaphore(b.arena.allocate())
	b.arena.semaphores[handle] = semaphore
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroySemaphore(s gpu.Semaphore) {
	b.arena.mu.Lock()
	semaphore, ok := b.arena.semaphores[s]
	delete(b.arena.semaphores, s)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroySemaphore(b.context.Device.LogicalDevice, semaphore, b.context.Allocator)
	}
}
