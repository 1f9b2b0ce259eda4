package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	GraphicsQueueIndex uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool
	TransferCommandPool vk.CommandPool

	DepthFormat vk.Format
}

func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}

	device := context.Device

	core.LogInfo("Creating logical device...")

	sharedQueue := device.GraphicsQueueIndex == device.TransferQueueIndex
	queuePriority := []float32{1.0}
	queueCreateInfos := []vk.DeviceQueueCreateInfo{
		{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: device.GraphicsQueueIndex,
			QueueCount:       1,
			PQueuePriorities: queuePriority,
		},
	}
	if !sharedQueue {
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: device.TransferQueueIndex,
			QueueCount:       1,
			PQueuePriorities: queuePriority,
		})
	}

	extensions := []string{}
	// MoltenVK and other layered implementations advertise the portability
	// subset and require it to be enabled.
	if deviceHasExtension(device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var logicalDevice vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice); res != vk.Success {
		return vkError("vk.CreateDevice", res)
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &graphicsQueue)
	device.GraphicsQueue = graphicsQueue

	var transferQueue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.TransferQueueIndex, 0, &transferQueue)
	device.TransferQueue = transferQueue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var graphicsPool vk.CommandPool
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &graphicsPool); res != vk.Success {
		return vkError("vk.CreateCommandPool (graphics)", res)
	}
	device.GraphicsCommandPool = graphicsPool

	if sharedQueue {
		device.TransferCommandPool = device.GraphicsCommandPool
	} else {
		poolCreateInfo.QueueFamilyIndex = device.TransferQueueIndex
		var transferPool vk.CommandPool
		if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &transferPool); res != vk.Success {
			return vkError("vk.CreateCommandPool (transfer)", res)
		}
		device.TransferCommandPool = transferPool
	}
	core.LogInfo("Command pools created.")

	if err := DeviceDetectDepthFormat(device); err != nil {
		return err
	}

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}

	if device.TransferCommandPool != vk.NullCommandPool && device.TransferCommandPool != device.GraphicsCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.TransferCommandPool, context.Allocator)
	}
	if device.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
	}
	device.GraphicsCommandPool = vk.NullCommandPool
	device.TransferCommandPool = vk.NullCommandPool

	device.GraphicsQueue = nil
	device.TransferQueue = nil

	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	device.PhysicalDevice = nil
}

func selectPhysicalDevice(context *VulkanContext) error {
	var deviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &deviceCount, nil); res != vk.Success {
		return vkError("vk.EnumeratePhysicalDevices", res)
	}
	if deviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &deviceCount, physicalDevices); res != vk.Success {
		return vkError("vk.EnumeratePhysicalDevices", res)
	}

	for _, pd := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()

		graphicsIndex, transferIndex, ok := findQueueFamilies(pd)
		if !ok {
			continue
		}

		end := FindFirstZeroInByteArray(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", string(properties.DeviceName[:end]))
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}

		context.Device = &VulkanDevice{
			PhysicalDevice:     pd,
			Properties:         properties,
			Features:           features,
			Memory:             memory,
			GraphicsQueueIndex: graphicsIndex,
			TransferQueueIndex: transferIndex,
		}
		return nil
	}

	err := fmt.Errorf("no physical device with a graphics queue family was found")
	core.LogError(err.Error())
	return err
}

// findQueueFamilies returns the graphics family and the best transfer
// family. A dedicated transfer family is preferred when present, otherwise
// the graphics family serves both roles.
func findQueueFamilies(pd vk.PhysicalDevice) (graphics, transfer uint32, ok bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	foundGraphics := false
	foundDedicatedTransfer := false
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		if !foundGraphics && flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphics = uint32(i)
			foundGraphics = true
		}
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && flags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			transfer = uint32(i)
			foundDedicatedTransfer = true
		}
	}
	if !foundGraphics {
		return 0, 0, false
	}
	if !foundDedicatedTransfer {
		transfer = graphics
	}
	return graphics, transfer, true
}

func deviceHasExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return false
	}
	if count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if name == vk.ToString(available[i].ExtensionName[:end+1]) {
			return true
		}
	}
	return false
}

func DeviceDetectDepthFormat(device *VulkanDevice) error {
	// Preferred ordering, highest precision first.
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}

	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, format, &properties)
		properties.Deref()

		if (properties.LinearTilingFeatures&flags) == flags || (properties.OptimalTilingFeatures&flags) == flags {
			device.DepthFormat = format
			return nil
		}
	}

	err := fmt.Errorf("failed to find a supported depth format")
	core.LogError(err.Error())
	return err
}

func (d *VulkanDevice) queue(queue gpu.QueueType) vk.Queue {
	if queue == gpu.QueueTransfer {
		return d.TransferQueue
	}
	return d.GraphicsQueue
}

func (d *VulkanDevice) commandPool(queue gpu.QueueType) vk.CommandPool {
	if queue == gpu.QueueTransfer {
		return d.TransferCommandPool
	}
	return d.GraphicsCommandPool
}

func FindFirstZeroInByteArray(b []byte) int {
	for i, v := range b {
		if v == 0 {
			return i
		}
	}
	return len(b) - 1
}
