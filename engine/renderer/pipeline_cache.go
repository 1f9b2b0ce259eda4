package renderer

import (
	"sync"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type pipelineKey struct {
	stateHash uint64
	subPass   uint32
	passID    core.Identifier
}

// PipelineCache maps a GraphicsState plus target sub-pass to a compiled
// pipeline. At most one pipeline object exists per distinct key for the
// lifetime of the owning render pass; entries are created lazily and never
// evicted. Lookup and compile run under one lock, so concurrent resolves of
// the same key compile exactly once.
type PipelineCache struct {
	backend gpu.Backend

	mu      sync.Mutex
	entries map[pipelineKey]gpu.Pipeline
}

func NewPipelineCache(backend gpu.Backend) *PipelineCache {
	return &PipelineCache{
		backend: backend,
		entries: make(map[pipelineKey]gpu.Pipeline),
	}
}

// Resolve returns the cached pipeline for (state, subPass) against the given
// render pass, compiling it on first use. Compilation failure is fatal for
// the caller and leaves the cache consistent for subsequent valid keys.
func (pc *PipelineCache) Resolve(pass *RenderPass, state *GraphicsState, subPass uint32) (gpu.Pipeline, error) {
	if state.Program == nil {
		return 0, core.ConfigurationError("graphics state has no shader program")
	}
	if int(subPass) >= pass.SubPassCount() {
		return 0, core.ConfigurationError("sub-pass %d out of range, render pass has %d", subPass, pass.SubPassCount())
	}

	key := pipelineKey{
		stateHash: state.Hash(),
		subPass:   subPass,
		passID:    pass.ID(),
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if p, ok := pc.entries[key]; ok {
		return p, nil
	}

	desc, err := pass.pipelineDescriptor(state, subPass)
	if err != nil {
		return 0, err
	}

	p, err := pc.backend.CreatePipeline(desc)
	if err != nil {
		return 0, err
	}
	pc.entries[key] = p

	core.LogDebug("pipeline compiled for pass %s sub-pass %d (cache size %d)", pass.ID(), subPass, len(pc.entries))
	return p, nil
}

// Len reports the number of cached pipelines.
func (pc *PipelineCache) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.entries)
}

// Destroy releases every compiled pipeline. Called when the owning render
// pass is destroyed.
func (pc *PipelineCache) Destroy() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for key, p := range pc.entries {
		pc.backend.DestroyPipeline(p)
		delete(pc.entries, key)
	}
}
