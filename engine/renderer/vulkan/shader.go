package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreateShaderModule(stage gpu.ShaderStage, code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, core.ConfigurationError("SPIR-V blob size %d is not a multiple of 4", len(code))
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}

	var module vk.ShaderModule
	err := b.locks.SafeCall(ShaderManagement, func() error {
		if res := vk.CreateShaderModule(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &module); res != vk.Success {
			return vkError("vk.CreateShaderModule", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.ShaderModule(b.arena.allocate())
	b.arena.shaderModules[handle] = module
	b.arena.mu.Unlock()
	return handle, nil
}

func (b *Backend) DestroyShaderModule(m gpu.ShaderModule) {
	b.arena.mu.Lock()
	module, ok := b.arena.shaderModules[m]
	delete(b.arena.shaderModules, m)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyShaderModule(b.context.Device.LogicalDevice, module, b.context.Allocator)
	}
}

// sliceUint32 reinterprets a byte slice as the uint32 words the shader
// module create info expects. The caller guarantees 4-byte alignment.
func sliceUint32(data []byte) []uint32 {
	const wordSize = 4
	words := make([]uint32, len(data)/wordSize)
	for i := range words {
		base := i * wordSize
		words[i] = uint32(data[base]) | uint32(data[base+1])<<8 | uint32(data[base+2])<<16 | uint32(data[base+3])<<24
	}
	return words
}
