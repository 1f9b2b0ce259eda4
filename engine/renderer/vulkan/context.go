package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Device    *VulkanDevice

	debugMessenger vk.DebugReportCallback
}

// FindMemoryIndex returns the index of a memory type matching typeFilter and
// carrying all the requested property flags, or -1 when none qualifies.
func (ctx *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < ctx.Device.Memory.MemoryTypeCount; i++ {
		ctx.Device.Memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && (ctx.Device.Memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("unable to find suitable memory type")
	return -1
}
