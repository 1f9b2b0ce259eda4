package renderer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func TestReflectionActiveSets(t *testing.T) {
	r := &Reflection{
		Bindings: []ReflectionBinding{
			{Set: 2, Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1},
			{Set: 0, Binding: 1, Type: gpu.DescriptorUniformBuffer, Count: 1},
			{Set: 0, Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1},
			{Set: 2, Binding: 1, Type: gpu.DescriptorStorageImage, Count: 1},
		},
	}

	assert.Equal(t, []uint32{0, 2}, r.ActiveSets())

	bindings := r.SetBindings(0)
	require.Len(t, bindings, 2)
	assert.EqualValues(t, 0, bindings[0].Binding, "bindings come back sorted by slot")
	assert.EqualValues(t, 1, bindings[1].Binding)
	assert.Empty(t, r.SetBindings(1))
}

func TestReflectionSetHash(t *testing.T) {
	a := &Reflection{
		Bindings: []ReflectionBinding{
			{Set: 0, Binding: 1, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
			{Set: 0, Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.StageVertex},
		},
	}
	// The same layout declared in a different order and with different names.
	b := &Reflection{
		Bindings: []ReflectionBinding{
			{Name: "globals", Set: 0, Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.StageVertex},
			{Name: "albedo", Set: 0, Binding: 1, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
		},
	}
	assert.Equal(t, a.SetHash(0), b.SetHash(0), "declaration order and names do not affect layout identity")

	c := &Reflection{
		Bindings: []ReflectionBinding{
			{Set: 0, Binding: 0, Type: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.StageVertex},
			{Set: 0, Binding: 1, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
		},
	}
	assert.NotEqual(t, a.SetHash(0), c.SetHash(0), "a changed binding type is a different layout")
}

func TestReflectionTypeCounts(t *testing.T) {
	r := &Reflection{
		Bindings: []ReflectionBinding{
			{Set: 0, Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1},
			{Set: 0, Binding: 1, Type: gpu.DescriptorCombinedImageSampler, Count: 4},
			{Set: 0, Binding: 2, Type: gpu.DescriptorCombinedImageSampler, Count: 1},
			{Set: 1, Binding: 0, Type: gpu.DescriptorStorageImage, Count: 1},
		},
	}

	counts := r.TypeCounts(0)
	assert.EqualValues(t, 1, counts[gpu.DescriptorUniformBuffer])
	assert.EqualValues(t, 5, counts[gpu.DescriptorCombinedImageSampler])
	assert.NotContains(t, counts, gpu.DescriptorStorageImage, "set 1 resources do not leak into set 0")
}

func TestShaderProgramCreation(t *testing.T) {
	backend := gputest.New()

	_, err := NewShaderProgram(backend, uniformReflection(), nil)
	assert.Error(t, err, "a program needs at least one stage")

	_, err = NewShaderProgram(backend, uniformReflection(), map[gpu.ShaderStage][]byte{
		gpu.StageVertex: nil,
	})
	assert.Error(t, err, "empty bytecode is rejected")

	program := newTestProgram(t, backend, uniformReflection())
	assert.NotZero(t, program.PipelineLayout())

	layout, ok := program.SetLayout(0)
	assert.True(t, ok)
	assert.NotZero(t, layout)
	_, ok = program.SetLayout(1)
	assert.False(t, ok)

	modules := program.StageModules()
	require.Len(t, modules, 2)
	assert.Equal(t, gpu.StageVertex, modules[0].Stage, "stage modules come back in stage order")
	assert.Equal(t, gpu.StageFragment, modules[1].Stage)
}

func TestShaderProgramDestroyReleasesObjects(t *testing.T) {
	backend := gputest.New()

	program, err := NewShaderProgram(backend, uniformReflection(), map[gpu.ShaderStage][]byte{
		gpu.StageVertex:   spirvStub,
		gpu.StageFragment: spirvStub,
	})
	require.NoError(t, err)

	// Two modules, one set layout, one pipeline layout.
	assert.Equal(t, 4, backend.LiveObjects())
	program.Destroy()
	assert.Equal(t, 0, backend.LiveObjects())
}

func TestShaderProgramFromFiles(t *testing.T) {
	backend := gputest.New()
	dir := t.TempDir()

	vert := filepath.Join(dir, "scene.vert.spv")
	frag := filepath.Join(dir, "scene.frag.spv")
	require.NoError(t, os.WriteFile(vert, spirvStub, 0o644))
	require.NoError(t, os.WriteFile(frag, spirvStub, 0o644))

	program, err := NewShaderProgramFromFiles(backend, uniformReflection(), map[gpu.ShaderStage]string{
		gpu.StageVertex:   vert,
		gpu.StageFragment: frag,
	}, false)
	require.NoError(t, err)
	t.Cleanup(program.Destroy)
	require.Len(t, program.StageModules(), 2)

	_, err = NewShaderProgramFromFiles(backend, uniformReflection(), map[gpu.ShaderStage]string{
		gpu.StageVertex: filepath.Join(dir, "missing.spv"),
	}, false)
	assert.Error(t, err)
}

func TestShaderProgramReload(t *testing.T) {
	backend := gputest.New()
	dir := t.TempDir()

	vert := filepath.Join(dir, "scene.vert.spv")
	frag := filepath.Join(dir, "scene.frag.spv")
	require.NoError(t, os.WriteFile(vert, spirvStub, 0o644))
	require.NoError(t, os.WriteFile(frag, spirvStub, 0o644))

	program, err := NewShaderProgramFromFiles(backend, uniformReflection(), map[gpu.ShaderStage]string{
		gpu.StageVertex:   vert,
		gpu.StageFragment: frag,
	}, false)
	require.NoError(t, err)
	t.Cleanup(program.Destroy)

	before := program.StageModules()
	require.NoError(t, os.WriteFile(vert, []byte{0x07, 0x23, 0x02, 0x03}, 0o644))
	program.reloadFile(vert)

	after := program.StageModules()
	assert.NotEqual(t, before[0].Module, after[0].Module, "the vertex module is swapped on reload")
	assert.Equal(t, before[1].Module, after[1].Module, "the untouched fragment module stays live")

	// A reload that cannot read its source keeps the previous module.
	require.NoError(t, os.Remove(vert))
	program.reloadFile(vert)
	assert.Equal(t, after[0].Module, program.StageModules()[0].Module)
}
