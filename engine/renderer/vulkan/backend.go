package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// Backend implements gpu.Backend on top of Vulkan. Rendering happens against
// offscreen attachments owned by the render passes; no swapchain is created,
// which keeps the backend usable on headless machines.
type Backend struct {
	context *VulkanContext
	arena   *arena
	locks   *VulkanLockPool

	validation bool
}

var _ gpu.Backend = (*Backend)(nil)

func New(validation bool) *Backend {
	return &Backend{
		context: &VulkanContext{
			Allocator: nil,
		},
		arena:      newArena(),
		locks:      NewVulkanLockPool(),
		validation: validation,
	}
}

func (b *Backend) Initialize(appName string, width, height uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("vulkan loader not available: GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Mirage Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if b.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	requiredLayers := []string{}
	if b.validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return vkError("vk.EnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return vkError("vk.EnumerateInstanceLayerProperties", res)
		}

		for _, required := range requiredLayers {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if required == vk.ToString(availableLayers[j].LayerName[:end+1]) {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", required)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &b.context.Instance); res != vk.Success {
		return vkError("vk.CreateInstance", res)
	}
	if err := vk.InitInstance(b.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan instance created.")

	if b.validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return vkError("vk.CreateDebugReportCallback", res)
		}
		b.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if err := DeviceCreate(b.context); err != nil {
		core.LogError("failed to create device")
		return err
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return nil
}

// Shutdown destroys every object still alive in the arena, in dependency
// order, then tears down the device and the instance.
func (b *Backend) Shutdown() error {
	if b.context.Device == nil || b.context.Device.LogicalDevice == nil {
		return nil
	}

	device := b.context.Device.LogicalDevice
	vk.DeviceWaitIdle(device)

	a := b.arena
	a.mu.Lock()
	defer a.mu.Unlock()

	for handle, entry := range a.commandBuffers {
		vk.FreeCommandBuffers(device, entry.Pool, 1, []vk.CommandBuffer{entry.Handle})
		delete(a.commandBuffers, handle)
	}
	for handle, p := range a.pipelines {
		vk.DestroyPipeline(device, p, b.context.Allocator)
		delete(a.pipelines, handle)
	}
	for handle, l := range a.pipelineLayouts {
		vk.DestroyPipelineLayout(device, l, b.context.Allocator)
		delete(a.pipelineLayouts, handle)
	}
	for handle, fb := range a.framebuffers {
		vk.DestroyFramebuffer(device, fb, b.context.Allocator)
		delete(a.framebuffers, handle)
	}
	for handle, rp := range a.renderPasses {
		vk.DestroyRenderPass(device, rp, b.context.Allocator)
		delete(a.renderPasses, handle)
	}
	// Sets go back with their pools.
	for handle := range a.descriptorSets {
		delete(a.descriptorSets, handle)
	}
	for handle, p := range a.descriptorPools {
		vk.DestroyDescriptorPool(device, p, b.context.Allocator)
		delete(a.descriptorPools, handle)
	}
	for handle, l := range a.setLayouts {
		vk.DestroyDescriptorSetLayout(device, l, b.context.Allocator)
		delete(a.setLayouts, handle)
	}
	for handle, m := range a.shaderModules {
		vk.DestroyShaderModule(device, m, b.context.Allocator)
		delete(a.shaderModules, handle)
	}
	for handle, img := range a.images {
		if img.View != vk.NullImageView {
			vk.DestroyImageView(device, img.View, b.context.Allocator)
		}
		vk.DestroyImage(device, img.Handle, b.context.Allocator)
		vk.FreeMemory(device, img.Memory, b.context.Allocator)
		delete(a.images, handle)
	}
	for handle, buf := range a.buffers {
		vk.DestroyBuffer(device, buf.Handle, b.context.Allocator)
		vk.FreeMemory(device, buf.Memory, b.context.Allocator)
		delete(a.buffers, handle)
	}
	for handle, f := range a.fences {
		vk.DestroyFence(device, f.Handle, b.context.Allocator)
		delete(a.fences, handle)
	}
	for handle, s := range a.semaphores {
		vk.DestroySemaphore(device, s, b.context.Allocator)
		delete(a.semaphores, handle)
	}

	DeviceDestroy(b.context)

	if b.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}

	if b.context.Instance != nil {
		core.LogInfo("Destroying Vulkan instance...")
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
	return nil
}

func (b *Backend) QueueWaitIdle(queue gpu.QueueType) error {
	return b.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueWaitIdle(b.context.Device.queue(queue)); res != vk.Success {
			return vkError("vk.QueueWaitIdle", res)
		}
		return nil
	})
}

func (b *Backend) DeviceWaitIdle() error {
	return b.locks.SafeCall(DeviceManagement, func() error {
		if res := vk.DeviceWaitIdle(b.context.Device.LogicalDevice); res != vk.Success {
			return vkError("vk.DeviceWaitIdle", res)
		}
		return nil
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint64, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
