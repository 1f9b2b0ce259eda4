package renderer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

// spirvStub stands in for compiled bytecode; the test backend only checks
// that modules are non-empty.
var spirvStub = []byte{0x03, 0x02, 0x23, 0x07}

func uniformReflection() *Reflection {
	return &Reflection{
		Bindings: []ReflectionBinding{{
			Name:    "globals",
			Set:     0,
			Binding: 0,
			Type:    gpu.DescriptorUniformBuffer,
			Count:   1,
			Stages:  gpu.StageVertex | gpu.StageFragment,
		}},
	}
}

func newTestProgram(t *testing.T, backend gpu.Backend, reflection *Reflection) *ShaderProgram {
	t.Helper()
	program, err := NewShaderProgram(backend, reflection, map[gpu.ShaderStage][]byte{
		gpu.StageVertex:   spirvStub,
		gpu.StageFragment: spirvStub,
	})
	require.NoError(t, err)
	t.Cleanup(program.Destroy)
	return program
}

func newTestCache(t *testing.T, backend gpu.Backend) *DescriptorSetCache {
	t.Helper()
	cache := NewDescriptorSetCache(backend, DefaultMaxSetsPerPool)
	t.Cleanup(cache.Destroy)
	return cache
}

// newColorPass builds a single color attachment pass and initializes it.
func newColorPass(t *testing.T, backend *gputest.Backend, descriptors *DescriptorSetCache) *RenderPass {
	t.Helper()
	pass, err := NewRenderPass(backend, descriptors, RenderPassConfig{
		Extent: gpu.Extent2D{Width: 64, Height: 64},
	})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)

	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, pass.Init())
	return pass
}
