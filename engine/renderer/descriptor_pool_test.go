package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func newTestPool(t *testing.T, backend *gputest.Backend, maxSets uint32) *DescriptorPool {
	t.Helper()
	layout, err := backend.CreateDescriptorSetLayout([]gpu.LayoutBinding{{
		Binding: 0,
		Type:    gpu.DescriptorUniformBuffer,
		Count:   1,
		Stages:  gpu.StageVertex,
	}})
	require.NoError(t, err)
	t.Cleanup(func() { backend.DestroyDescriptorSetLayout(layout) })

	pool := NewDescriptorPool(backend, layout, map[gpu.DescriptorType]uint32{
		gpu.DescriptorUniformBuffer: 1,
	}, maxSets)
	t.Cleanup(pool.Destroy)
	return pool
}

func TestDescriptorPoolGrowsAtCapacity(t *testing.T) {
	backend := gputest.New()
	pool := newTestPool(t, backend, 0)

	refs := make([]*DescriptorSetRef, 0, DefaultMaxSetsPerPool+1)
	for i := uint32(0); i < DefaultMaxSetsPerPool; i++ {
		ref, err := pool.Allocate()
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	assert.Equal(t, 1, pool.PoolCount(), "the first backing pool holds exactly the cap")

	ref, err := pool.Allocate()
	require.NoError(t, err)
	refs = append(refs, ref)
	assert.Equal(t, 2, pool.PoolCount(), "allocation past the cap appends a backing pool")

	for _, r := range refs {
		r.Release()
	}
	assert.Equal(t, 2, pool.PoolCount(), "backing pools are append-only, releases never shrink them")
}

func TestDescriptorPoolRecyclesReleasedSets(t *testing.T) {
	backend := gputest.New()
	pool := newTestPool(t, backend, 8)

	ref, err := pool.Allocate()
	require.NoError(t, err)
	set := ref.Set()
	ref.Release()

	again, err := pool.Allocate()
	require.NoError(t, err)
	defer again.Release()

	assert.Equal(t, set, again.Set(), "a released set is handed out before fresh allocations")
	assert.Equal(t, 1, pool.PoolCount())
}

func TestDescriptorSetRefCounting(t *testing.T) {
	backend := gputest.New()
	pool := newTestPool(t, backend, 8)

	ref, err := pool.Allocate()
	require.NoError(t, err)
	set := ref.Set()

	ref.Retain()
	ref.Release()

	// One reference remains, so the set must not be recycled yet.
	other, err := pool.Allocate()
	require.NoError(t, err)
	defer other.Release()
	assert.NotEqual(t, set, other.Set())

	ref.Release()
	recycled, err := pool.Allocate()
	require.NoError(t, err)
	defer recycled.Release()
	assert.Equal(t, set, recycled.Set(), "last release returns the set to its pool")
}

func TestDescriptorSetRefWrites(t *testing.T) {
	backend := gputest.New()
	pool := newTestPool(t, backend, 8)

	buffer, err := backend.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(buffer)
	image, err := backend.CreateImage(gpu.ImageDescriptor{
		Format:  gpu.FormatR8G8B8A8Unorm,
		Extent:  gpu.Extent2D{Width: 16, Height: 16},
		Sampled: true,
	})
	require.NoError(t, err)
	defer backend.DestroyImage(image)

	ref, err := pool.Allocate()
	require.NoError(t, err)
	defer ref.Release()

	require.NoError(t, ref.BindUniformBuffer(0, buffer, 0, 256))
	require.NoError(t, ref.BindCombinedImageSampler(1, image))

	writes := backend.DescriptorWrites(ref.Set())
	require.Len(t, writes, 2)
	assert.Equal(t, gpu.DescriptorUniformBuffer, writes[0].Type)
	assert.Equal(t, buffer, writes[0].Buffer)
	assert.EqualValues(t, 256, writes[0].BufferRange)
	assert.Equal(t, gpu.DescriptorCombinedImageSampler, writes[1].Type)
	assert.Equal(t, image, writes[1].Image)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, writes[1].ImageLayout)
}

func TestDescriptorSetCacheSharesPoolsByLayout(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	// Two programs with identical set layouts land in one pool.
	first := newTestProgram(t, backend, uniformReflection())
	second := newTestProgram(t, backend, uniformReflection())

	refA, err := cache.Allocate(first, 0)
	require.NoError(t, err)
	defer refA.Release()
	refB, err := cache.Allocate(second, 0)
	require.NoError(t, err)
	defer refB.Release()

	assert.Equal(t, 1, cache.PoolCount(), "equal layouts share a descriptor pool")

	sampled := newTestProgram(t, backend, &Reflection{
		Bindings: []ReflectionBinding{{
			Name:    "source",
			Set:     0,
			Binding: 0,
			Type:    gpu.DescriptorCombinedImageSampler,
			Count:   1,
			Stages:  gpu.StageFragment,
		}},
	})
	refC, err := cache.Allocate(sampled, 0)
	require.NoError(t, err)
	defer refC.Release()

	assert.Equal(t, 2, cache.PoolCount(), "a different layout gets its own pool")
}

func TestDescriptorSetCacheUnknownSet(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	program := newTestProgram(t, backend, uniformReflection())

	_, err := cache.Allocate(program, 3)
	assert.Error(t, err, "the program declares no descriptor set 3")
}
