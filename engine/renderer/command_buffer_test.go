package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func newRecordingBuffer(t *testing.T, backend *gputest.Backend, cache *DescriptorSetCache) *CommandBuffer {
	t.Helper()
	cb, err := NewCommandBuffer(backend, cache, gpu.QueueGraphics)
	require.NoError(t, err)
	t.Cleanup(cb.Free)
	require.NoError(t, cb.Begin(gpu.UsageOneTimeSubmit))
	return cb
}

func TestCommandBufferLifecycle(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	cb, err := NewCommandBuffer(backend, cache, gpu.QueueGraphics)
	require.NoError(t, err)
	t.Cleanup(cb.Free)
	assert.Equal(t, CommandBufferStateReady, cb.State())

	assert.ErrorIs(t, cb.End(), core.ErrConfiguration, "End before Begin")

	require.NoError(t, cb.Begin(gpu.UsageOneTimeSubmit))
	assert.Equal(t, CommandBufferStateRecording, cb.State())
	assert.ErrorIs(t, cb.Begin(gpu.UsageOneTimeSubmit), core.ErrConfiguration, "double Begin")

	require.NoError(t, cb.End())
	assert.Equal(t, CommandBufferStateRecordingEnded, cb.State())

	require.NoError(t, cb.Submit(nil, nil, 0))
	assert.Equal(t, CommandBufferStateSubmitted, cb.State())

	require.NoError(t, cb.Reset())
	assert.Equal(t, CommandBufferStateReady, cb.State())
}

func TestCommandBufferNoDrawNoResolve(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))
	require.NoError(t, cb.EndRenderPass())
	require.NoError(t, cb.End())
	require.NoError(t, cb.Submit(nil, nil, 0))

	// An empty pass touches neither the pipeline cache nor the descriptor
	// allocator.
	assert.Equal(t, 0, backend.PipelineCompiles)
	assert.Equal(t, 0, backend.OpCount(cb.Handle(), "draw"))
	assert.Equal(t, 0, backend.OpCount(cb.Handle(), "bindPipeline"))
	assert.Equal(t, 0, backend.OpCount(cb.Handle(), "bindDescriptorSets"))
}

func TestCommandBufferDrawFlush(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	buffer, err := backend.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(buffer)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))

	cb.GraphicsState().Program = program
	cb.BindUniformBuffer(0, 0, buffer, 0, 256)
	require.NoError(t, cb.Draw(3, 1, 0, 0))

	assert.Equal(t, 1, backend.PipelineCompiles)
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "bindPipeline"))
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "bindDescriptorSets"))
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "draw"))

	// The flush wrote the bound buffer into the freshly allocated set.
	ref := cb.boundSets[0]
	require.NotNil(t, ref)
	writes := backend.DescriptorWrites(ref.Set())
	require.Contains(t, writes, uint32(0))
	assert.Equal(t, buffer, writes[0].Buffer)

	// A second draw with unchanged state rebinds nothing.
	require.NoError(t, cb.Draw(3, 1, 0, 0))
	assert.Equal(t, 1, backend.PipelineCompiles)
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "bindPipeline"))
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "bindDescriptorSets"))
	assert.Equal(t, 2, backend.OpCount(cb.Handle(), "draw"))
}

func TestCommandBufferStateChangeBetweenDraws(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))
	cb.GraphicsState().Program = program

	require.NoError(t, cb.Draw(3, 1, 0, 0))
	cb.GraphicsState().Wireframe = true
	require.NoError(t, cb.Draw(3, 1, 0, 0))

	assert.Equal(t, 2, backend.PipelineCompiles, "a changed state is a new pipeline key")
	assert.Equal(t, 2, backend.OpCount(cb.Handle(), "bindPipeline"))

	// Flipping back resolves the first pipeline from cache and rebinds it.
	cb.GraphicsState().Wireframe = false
	require.NoError(t, cb.Draw(3, 1, 0, 0))
	assert.Equal(t, 2, backend.PipelineCompiles)
	assert.Equal(t, 3, backend.OpCount(cb.Handle(), "bindPipeline"))
}

func TestCommandBufferBindingChangeBetweenDraws(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	first, err := backend.CreateBuffer(64, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(first)
	second, err := backend.CreateBuffer(64, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(second)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))
	cb.GraphicsState().Program = program

	cb.BindUniformBuffer(0, 0, first, 0, 64)
	require.NoError(t, cb.Draw(3, 1, 0, 0))

	// Re-binding the same resource leaves the set clean.
	cb.BindUniformBuffer(0, 0, first, 0, 64)
	require.NoError(t, cb.Draw(3, 1, 0, 0))
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "bindDescriptorSets"))

	cb.BindUniformBuffer(0, 0, second, 0, 64)
	require.NoError(t, cb.Draw(3, 1, 0, 0))
	assert.Equal(t, 2, backend.OpCount(cb.Handle(), "bindDescriptorSets"))
	assert.Equal(t, second, backend.DescriptorWrites(cb.boundSets[0].Set())[0].Buffer)
}

func TestCommandBufferDynamicOffsetsFromFlags(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	buffer, err := backend.CreateBuffer(1024, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(buffer)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))

	cb.GraphicsState().Program = program
	cb.GraphicsState().SetDynamicBuffer(0, 0)
	cb.BindUniformBuffer(0, 0, buffer, 256, 256)
	require.NoError(t, cb.Draw(3, 1, 0, 0))

	// A flagged slot is written into the descriptor at base zero and the
	// bound offset travels as a dynamic offset on the bind.
	writes := backend.DescriptorWrites(cb.boundSets[0].Set())
	require.Contains(t, writes, uint32(0))
	assert.Equal(t, buffer, writes[0].Buffer)
	assert.Zero(t, writes[0].BufferOffset)
	assert.Contains(t, backend.Ops(cb.Handle()), "bindDescriptorSets first=0 count=1 dynamic=[256]")

	// Advancing the offset rebinds the set with the new dynamic offset.
	cb.BindUniformBuffer(0, 0, buffer, 512, 256)
	require.NoError(t, cb.Draw(3, 1, 0, 0))
	assert.Contains(t, backend.Ops(cb.Handle()), "bindDescriptorSets first=0 count=1 dynamic=[512]")
}

func TestCommandBufferDrawOutsidePass(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	cb := newRecordingBuffer(t, backend, cache)
	assert.ErrorIs(t, cb.Draw(3, 1, 0, 0), core.ErrConfiguration)
	assert.ErrorIs(t, cb.DrawIndexed(3, 1, 0, 0, 0), core.ErrConfiguration)
}

func TestCommandBufferSubPassAdvance(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	pass, err := NewRenderPass(backend, cache, RenderPassConfig{
		Extent: gpu.Extent2D{Width: 32, Height: 32},
	})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	pass.SetSubPasses([]SubPass{
		{OutputAttachments: []uint32{0}},
		{PreSubPasses: []uint32{0}, InputAttachments: []uint32{0}, OutputAttachments: []uint32{0}},
	})

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))
	require.NoError(t, cb.NextSubPass())
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "nextSubPass"))
	assert.ErrorIs(t, cb.NextSubPass(), core.ErrConfiguration, "the pass has only two sub-passes")
	require.NoError(t, cb.EndRenderPass())
}

func TestCommandBufferResetReleasesSets(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	buffer, err := backend.CreateBuffer(64, gpu.BufferUsageUniform)
	require.NoError(t, err)
	defer backend.DestroyBuffer(buffer)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.BeginRenderPass(pass))
	cb.GraphicsState().Program = program
	cb.BindUniformBuffer(0, 0, buffer, 0, 64)
	require.NoError(t, cb.Draw(3, 1, 0, 0))

	set := cb.boundSets[0].Set()
	require.NoError(t, cb.EndRenderPass())
	require.NoError(t, cb.End())
	require.NoError(t, cb.Reset())

	// The released set is recycled for the next allocation of this layout.
	ref, err := cache.Allocate(program, 0)
	require.NoError(t, err)
	defer ref.Release()
	assert.Equal(t, set, ref.Set())
}

func TestCommandBufferTransferOps(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	src, err := backend.CreateBuffer(64, gpu.BufferUsageTransferSrc)
	require.NoError(t, err)
	defer backend.DestroyBuffer(src)
	dst, err := backend.CreateBuffer(64, gpu.BufferUsageTransferDst)
	require.NoError(t, err)
	defer backend.DestroyBuffer(dst)

	cb := newRecordingBuffer(t, backend, cache)
	require.NoError(t, cb.CopyBuffer(src, dst, 64))
	assert.Equal(t, 1, backend.OpCount(cb.Handle(), "copyBuffer"))

	require.NoError(t, cb.End())
	assert.ErrorIs(t, cb.CopyBuffer(src, dst, 64), core.ErrConfiguration, "recording has ended")
}

func TestRunSingleUse(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	src, err := backend.CreateBuffer(128, gpu.BufferUsageTransferSrc)
	require.NoError(t, err)
	defer backend.DestroyBuffer(src)
	dst, err := backend.CreateBuffer(128, gpu.BufferUsageTransferDst)
	require.NoError(t, err)
	defer backend.DestroyBuffer(dst)

	err = RunSingleUse(backend, cache, gpu.QueueTransfer, func(cb *CommandBuffer) error {
		return cb.CopyBuffer(src, dst, 128)
	})
	require.NoError(t, err)

	subs := backend.Submissions()
	require.Len(t, subs, 1)
	assert.NotZero(t, subs[0].Fence, "single-use submissions are host-waited through a fence")
}
