package renderer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu/gputest"
)

func TestPipelineCacheResolveOnce(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program

	first, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)
	second, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.PipelineCompiles, "equal keys must compile once")
	assert.Equal(t, 1, pass.Pipelines().Len())
}

func TestPipelineCacheEqualStatesShare(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program

	// A field-wise equal copy is the same cache key even though it is a
	// different Go value.
	first, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)
	second, err := pass.Pipelines().Resolve(pass, state.Clone(), 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.PipelineCompiles)
}

func TestPipelineCacheConcurrentResolve(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program

	const workers = 8
	pipelines := make([]gpu.Pipeline, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := pass.Pipelines().Resolve(pass, state.Clone(), 0)
			assert.NoError(t, err)
			pipelines[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range pipelines[1:] {
		assert.Equal(t, pipelines[0], p)
	}
	assert.Equal(t, 1, backend.PipelineCompiles, "racing resolves of one key must compile once")
}

func TestPipelineCacheSubPassIdentity(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	program := newTestProgram(t, backend, uniformReflection())

	pass, err := NewRenderPass(backend, cache, RenderPassConfig{
		Extent: gpu.Extent2D{Width: 64, Height: 64},
	})
	require.NoError(t, err)
	t.Cleanup(pass.Destroy)
	pass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	pass.SetSubPasses([]SubPass{
		{OutputAttachments: []uint32{0}},
		{PreSubPasses: []uint32{0}, InputAttachments: []uint32{0}, OutputAttachments: []uint32{0}},
	})
	require.NoError(t, pass.Init())

	state := NewGraphicsState()
	state.Program = program

	first, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)
	second, err := pass.Pipelines().Resolve(pass, state, 1)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "same state in a different sub-pass is a different pipeline")
	assert.Equal(t, 2, backend.PipelineCompiles)
	assert.Equal(t, 2, pass.Pipelines().Len())
}

func TestPipelineCachePassIdentity(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	passA := newColorPass(t, backend, cache)
	passB := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program

	// Each pass scopes its own cache; identical states against different
	// passes compile independently.
	_, err := passA.Pipelines().Resolve(passA, state, 0)
	require.NoError(t, err)
	_, err = passB.Pipelines().Resolve(passB, state, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.PipelineCompiles)
}

func TestPipelineCacheRejectsInvalidKeys(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	_, err := pass.Pipelines().Resolve(pass, NewGraphicsState(), 0)
	assert.ErrorIs(t, err, core.ErrConfiguration, "state without a program")

	state := NewGraphicsState()
	state.Program = program
	_, err = pass.Pipelines().Resolve(pass, state, 5)
	assert.ErrorIs(t, err, core.ErrConfiguration, "sub-pass out of range")

	mismatch := NewGraphicsState()
	mismatch.Program = program
	mismatch.BlendAttachments = append(mismatch.BlendAttachments, mismatch.BlendAttachments[0])
	_, err = pass.Pipelines().Resolve(pass, mismatch, 0)
	assert.ErrorIs(t, err, core.ErrConfiguration, "blend attachment count must match color outputs")

	assert.Equal(t, 0, backend.PipelineCompiles)
	assert.Equal(t, 0, pass.Pipelines().Len())
}

func TestPipelineCacheCompileFailureNotCached(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program

	compileErr := errors.New("shader stage rejected by driver")
	backend.FailNextPipeline = compileErr

	_, err := pass.Pipelines().Resolve(pass, state, 0)
	assert.ErrorIs(t, err, compileErr)
	assert.Equal(t, 0, pass.Pipelines().Len(), "failed compiles must not poison the cache")

	p, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)
	assert.NotZero(t, p)
	assert.Equal(t, 1, backend.PipelineCompiles)
}

func TestPipelineCacheRecompilesAfterReload(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
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

	state := NewGraphicsState()
	state.Program = program

	stale, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)

	// Swapping the bytecode on disk bumps the program generation, so the
	// same state must miss the cache and compile against the new modules.
	require.NoError(t, os.WriteFile(vert, []byte{0x07, 0x23, 0x02, 0x03}, 0o644))
	program.reloadFile(vert)

	fresh, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)

	assert.NotEqual(t, stale, fresh, "resolving after a reload must not return the old pipeline")
	assert.Equal(t, 2, backend.PipelineCompiles)
	assert.Equal(t, 2, pass.Pipelines().Len())
}

func TestPipelineCacheDestroy(t *testing.T) {
	backend := gputest.New()
	cache := newTestCache(t, backend)
	pass := newColorPass(t, backend, cache)
	program := newTestProgram(t, backend, uniformReflection())

	state := NewGraphicsState()
	state.Program = program
	_, err := pass.Pipelines().Resolve(pass, state, 0)
	require.NoError(t, err)

	pass.Pipelines().Destroy()
	assert.Equal(t, 0, pass.Pipelines().Len())
}
