package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func TestRenderPassLazyRebuild(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	pass, err := NewRenderPass(backend, cache, RenderPassConfig{})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)

	// Several configuration calls batch into a single build.
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	pass.AddAttachment(gpu.FormatD32Sfloat)
	pass.SetExtent(gpu.Extent2D{Width: 800, Height: 600})

	require.NoError(t, pass.Init())
	assert.Equal(t, 1, pass.Rebuilds())
	assert.NotZero(t, pass.Handle())
	assert.NotZero(t, pass.Framebuffer())
	assert.True(t, pass.HasDepthAttachment())

	require.NoError(t, pass.Init())
	assert.Equal(t, 1, pass.Rebuilds(), "Init on a clean pass is a no-op")

	pass.SetExtent(gpu.Extent2D{Width: 800, Height: 600})
	require.NoError(t, pass.Init())
	assert.Equal(t, 1, pass.Rebuilds(), "setting the same extent does not dirty the pass")

	handle := pass.Handle()
	pass.SetExtent(gpu.Extent2D{Width: 1024, Height: 768})
	require.NoError(t, pass.Init())
	assert.Equal(t, 2, pass.Rebuilds())
	assert.NotEqual(t, handle, pass.Handle(), "a rebuild replaces the native pass object")
}

func TestRenderPassInitValidation(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	empty, err := NewRenderPass(backend, cache, RenderPassConfig{})
	require.NoError(t, err)
	t.Cleanup(empty.Destroy)
	assert.ErrorIs(t, empty.Init(), core.ErrConfiguration, "a pass needs at least one attachment")

	bad, err := NewRenderPass(backend, cache, RenderPassConfig{})
	require.NoError(t, err)
	t.Cleanup(bad.Destroy)
	bad.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	bad.SetSubPasses([]SubPass{{OutputAttachments: []uint32{7}}})
	assert.ErrorIs(t, bad.Init(), core.ErrConfiguration, "sub-pass references an unknown attachment")

	cyclicDep, err := NewRenderPass(backend, cache, RenderPassConfig{})
	require.NoError(t, err)
	t.Cleanup(cyclicDep.Destroy)
	cyclicDep.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	cyclicDep.SetSubPasses([]SubPass{{OutputAttachments: []uint32{0}, PreSubPasses: []uint32{9}}})
	assert.ErrorIs(t, cyclicDep.Init(), core.ErrConfiguration, "sub-pass depends on an unknown sub-pass")
}

func TestRenderPassDefaultSubPass(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	pass, err := NewRenderPass(backend, cache, RenderPassConfig{})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	pass.AddAttachment(gpu.FormatD32Sfloat)

	assert.Equal(t, 1, pass.SubPassCount(), "an undeclared graph defaults to one sub-pass")
	require.NoError(t, pass.Init())
}

func TestRenderPassAttachmentImages(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)

	assert.NotZero(t, pass.AttachmentImage(0))
	assert.Zero(t, pass.AttachmentImage(1))
	assert.Zero(t, pass.AttachmentImage(-1))
}

func TestRenderPassExecutionOrdering(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	scene := newColorPass(t, backend, cache)
	post := newColorPass(t, backend, cache)

	scene.ExecuteBefore(post)

	waits := post.WaitSemaphores()
	require.Len(t, waits, 1)
	assert.Equal(t, scene.Ring().Current().Semaphore, waits[0])
	assert.Empty(t, scene.WaitSemaphores())

	other := newColorPass(t, backend, cache)
	other.ExecuteAfter(post)
	waits = other.WaitSemaphores()
	require.Len(t, waits, 1)
	assert.Equal(t, post.Ring().Current().Semaphore, waits[0])
}

func TestRenderPassFrameSubmission(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	scene := newColorPass(t, backend, cache)
	post := newColorPass(t, backend, cache)
	scene.ExecuteBefore(post)

	sceneSlot, err := scene.AcquireFrame()
	require.NoError(t, err)
	assert.Equal(t, SlotRecording, sceneSlot.State())
	assert.Equal(t, 1, backend.OpCount(sceneSlot.Commands.Handle(), "beginRenderPass"))
	require.NoError(t, scene.SubmitFrame(sceneSlot))

	postSlot, err := post.AcquireFrame()
	require.NoError(t, err)
	require.NoError(t, post.SubmitFrame(postSlot))

	subs := backend.Submissions()
	require.Len(t, subs, 2)
	assert.Contains(t, subs[1].Waits, sceneSlot.Semaphore,
		"the dependent pass waits on the predecessor's slot semaphore")
	assert.Contains(t, subs[1].Signals, postSlot.Semaphore)
}

func TestRenderPassClearValues(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)

	pass, err := NewRenderPass(backend, cache, RenderPassConfig{
		ClearColor: [4]float32{0, 0, 0.2, 1},
		DepthClear: 1,
	})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	pass.AddAttachment(gpu.FormatD32Sfloat)
	require.NoError(t, pass.Init())

	clears := pass.clearValues()
	require.Len(t, clears, 2)
	assert.False(t, clears[0].DepthStencil)
	assert.Equal(t, [4]float32{0, 0, 0.2, 1}, clears[0].Color)
	assert.True(t, clears[1].DepthStencil)
	assert.EqualValues(t, 1, clears[1].Depth)
}
