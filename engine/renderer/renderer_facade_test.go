package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func TestRendererOwnsObjects(t *testing.T) {
	backend := gputest.New()
	r := New(backend, Options{})
	require.NoError(t, r.Initialize("test", 320, 200))

	program, err := r.NewShaderProgram(uniformReflection(), map[gpu.ShaderStage][]byte{
		gpu.StageVertex:   spirvStub,
		gpu.StageFragment: spirvStub,
	})
	require.NoError(t, err)

	pass, err := r.NewRenderPass(RenderPassConfig{Extent: gpu.Extent2D{Width: 320, Height: 200}})
	require.NoError(t, err)
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, pass.Init())

	slot, err := pass.AcquireFrame()
	require.NoError(t, err)
	slot.Commands.GraphicsState().Program = program
	require.NoError(t, slot.Commands.Draw(3, 1, 0, 0))
	require.NoError(t, pass.SubmitFrame(slot))

	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0, backend.LiveObjects(), "shutdown releases every owned GPU object")
}

func TestRendererOptionDefaults(t *testing.T) {
	backend := gputest.New()
	r := New(backend, Options{})
	require.NoError(t, r.Initialize("test", 64, 64))
	t.Cleanup(func() { r.Shutdown() })

	pass, err := r.NewRenderPass(RenderPassConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, pass.Ring().Depth(), "ring depth defaults from the renderer options")

	deep, err := r.NewRenderPass(RenderPassConfig{RingDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, deep.Ring().Depth())
}

func TestRendererRunSingleUse(t *testing.T) {
	backend := gputest.New()
	r := New(backend, Options{FenceTimeout: time.Second})
	require.NoError(t, r.Initialize("test", 64, 64))
	t.Cleanup(func() { r.Shutdown() })

	src, err := backend.CreateBuffer(32, gpu.BufferUsageTransferSrc)
	require.NoError(t, err)
	dst, err := backend.CreateBuffer(32, gpu.BufferUsageTransferDst)
	require.NoError(t, err)

	require.NoError(t, r.RunSingleUse(func(cb *CommandBuffer) error {
		return cb.CopyBuffer(src, dst, 32)
	}))
	require.Len(t, backend.Submissions(), 1)

	backend.DestroyBuffer(src)
	backend.DestroyBuffer(dst)
}
