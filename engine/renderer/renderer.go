package renderer

import (
	"time"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// Options tune the renderer independently of any configuration file.
type Options struct {
	// RingDepth is the default frame ring depth for new render passes.
	RingDepth int
	// MaxSetsPerPool caps descriptor set allocations per backing pool.
	MaxSetsPerPool uint32
	// FenceTimeout bounds host waits on frame fences.
	FenceTimeout time.Duration
}

func (o *Options) defaults() {
	if o.RingDepth == 0 {
		o.RingDepth = 2
	}
	if o.MaxSetsPerPool == 0 {
		o.MaxSetsPerPool = DefaultMaxSetsPerPool
	}
	if o.FenceTimeout == 0 {
		o.FenceTimeout = time.Second
	}
}

// Renderer is the front end over one GPU backend. It owns the shared
// DescriptorSetCache and every render pass and shader program created
// through it, and tears them down in reverse dependency order.
//
// Initialize and Shutdown must each be called exactly once.
type Renderer struct {
	backend     gpu.Backend
	options     Options
	descriptors *DescriptorSetCache

	passes   []*RenderPass
	programs []*ShaderProgram
}

func New(backend gpu.Backend, options Options) *Renderer {
	options.defaults()
	return &Renderer{
		backend:     backend,
		options:     options,
		descriptors: NewDescriptorSetCache(backend, options.MaxSetsPerPool),
	}
}

// Backend exposes the underlying GPU boundary for uploads and raw object
// creation.
func (r *Renderer) Backend() gpu.Backend {
	return r.backend
}

// Descriptors is the shared descriptor set cache.
func (r *Renderer) Descriptors() *DescriptorSetCache {
	return r.descriptors
}

// Initialize brings up the backend. Single-call contract.
func (r *Renderer) Initialize(appName string, width, height uint32) error {
	if err := r.backend.Initialize(appName, width, height); err != nil {
		return err
	}
	core.LogInfo("renderer initialized (%dx%d)", width, height)
	return nil
}

// NewRenderPass creates a render pass owned by the renderer, filling ring
// depth and fence timeout from the renderer options when left zero.
func (r *Renderer) NewRenderPass(config RenderPassConfig) (*RenderPass, error) {
	if config.RingDepth == 0 {
		config.RingDepth = r.options.RingDepth
	}
	if config.FenceTimeout == 0 {
		config.FenceTimeout = r.options.FenceTimeout
	}
	pass, err := NewRenderPass(r.backend, r.descriptors, config)
	if err != nil {
		return nil, err
	}
	r.passes = append(r.passes, pass)
	return pass, nil
}

// NewShaderProgram creates a program from pre-compiled bytecode.
func (r *Renderer) NewShaderProgram(reflection *Reflection, stages map[gpu.ShaderStage][]byte) (*ShaderProgram, error) {
	p, err := NewShaderProgram(r.backend, reflection, stages)
	if err != nil {
		return nil, err
	}
	r.programs = append(r.programs, p)
	return p, nil
}

// NewShaderProgramFromFiles creates a program from bytecode files,
// optionally hot-reloading on changes.
func (r *Renderer) NewShaderProgramFromFiles(reflection *Reflection, files map[gpu.ShaderStage]string, watch bool) (*ShaderProgram, error) {
	p, err := NewShaderProgramFromFiles(r.backend, reflection, files, watch)
	if err != nil {
		return nil, err
	}
	r.programs = append(r.programs, p)
	return p, nil
}

// RunSingleUse records and runs a one-time command buffer to completion on
// the graphics queue, outside of any frame ring.
func (r *Renderer) RunSingleUse(fn func(*CommandBuffer) error) error {
	return RunSingleUse(r.backend, r.descriptors, gpu.QueueGraphics, fn)
}

// Shutdown drains the device and destroys every owned object, then the
// backend arena. Single-call contract.
func (r *Renderer) Shutdown() error {
	if err := r.backend.DeviceWaitIdle(); err != nil {
		core.LogWarn("device drain at shutdown: %s", err)
	}

	for i := len(r.passes) - 1; i >= 0; i-- {
		r.passes[i].Destroy()
	}
	r.passes = nil

	for i := len(r.programs) - 1; i >= 0; i-- {
		r.programs[i].Destroy()
	}
	r.programs = nil

	r.descriptors.Destroy()

	if err := r.backend.Shutdown(); err != nil {
		return err
	}
	core.LogInfo("renderer shut down")
	return nil
}
