package renderer

import (
	"encoding/binary"
	"hash/fnv"
	"os"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// ReflectionBinding is one shader-visible resource slot as reported by the
// external shader compiler.
type ReflectionBinding struct {
	Name    string
	Set     uint32
	Binding uint32
	Type    gpu.DescriptorType
	Count   uint32
	Stages  gpu.ShaderStage
}

// Reflection is the binding-model metadata of a shader program: which sets
// and bindings it uses and what lives in them. The renderer consumes it as
// opaque input data to size descriptor pools and build pipeline layouts; it
// never computes it.
type Reflection struct {
	Bindings      []ReflectionBinding
	PushConstants []gpu.PushConstantRange
}

// ActiveSets returns the sorted list of descriptor set indices in use.
func (r *Reflection) ActiveSets() []uint32 {
	var sets []uint32
	for _, b := range r.Bindings {
		if !slices.Contains(sets, b.Set) {
			sets = append(sets, b.Set)
		}
	}
	slices.Sort(sets)
	return sets
}

// SetBindings returns the layout bindings of one descriptor set, sorted by
// binding slot.
func (r *Reflection) SetBindings(set uint32) []gpu.LayoutBinding {
	var out []gpu.LayoutBinding
	for _, b := range r.Bindings {
		if b.Set == set {
			out = append(out, gpu.LayoutBinding{
				Binding: b.Binding,
				Type:    b.Type,
				Count:   b.Count,
				Stages:  b.Stages,
			})
		}
	}
	slices.SortFunc(out, func(a, b gpu.LayoutBinding) int {
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

// SetHash digests one set's layout so equal layouts share a descriptor pool.
func (r *Reflection) SetHash(set uint32) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 4)
	w32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf, v)
		h.Write(buf)
	}
	for _, b := range r.SetBindings(set) {
		w32(b.Binding)
		w32(uint32(b.Type))
		w32(b.Count)
		w32(uint32(b.Stages))
	}
	return h.Sum64()
}

// TypeCounts returns the resource-type histogram of one set, used to size
// the backing descriptor pool.
func (r *Reflection) TypeCounts(set uint32) map[gpu.DescriptorType]uint32 {
	counts := make(map[gpu.DescriptorType]uint32)
	for _, b := range r.SetBindings(set) {
		counts[b.Type] += b.Count
	}
	return counts
}

// ShaderProgram owns the compiled shader modules of one program together
// with its reflection, descriptor set layouts and pipeline layout. Programs
// built from files can hot-reload their bytecode: a failed reload is logged
// and the previous modules stay live.
type ShaderProgram struct {
	id         core.Identifier
	backend    gpu.Backend
	reflection *Reflection

	mu         sync.Mutex
	modules    map[gpu.ShaderStage]gpu.ShaderModule
	files      map[gpu.ShaderStage]string
	generation uint64

	setLayouts     map[uint32]gpu.DescriptorSetLayout
	pipelineLayout gpu.PipelineLayout

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewShaderProgram builds a program from pre-compiled stage bytecode.
func NewShaderProgram(backend gpu.Backend, reflection *Reflection, stages map[gpu.ShaderStage][]byte) (*ShaderProgram, error) {
	if len(stages) == 0 {
		return nil, core.ConfigurationError("shader program requires at least one stage")
	}

	p := &ShaderProgram{
		id:         core.NewIdentifier(),
		backend:    backend,
		reflection: reflection,
		modules:    make(map[gpu.ShaderStage]gpu.ShaderModule),
		setLayouts: make(map[uint32]gpu.DescriptorSetLayout),
	}

	for stage, code := range stages {
		m, err := backend.CreateShaderModule(stage, code)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.modules[stage] = m
	}

	for _, set := range reflection.ActiveSets() {
		layout, err := backend.CreateDescriptorSetLayout(reflection.SetBindings(set))
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.setLayouts[set] = layout
	}

	layout, err := backend.CreatePipelineLayout(p.orderedSetLayouts(), reflection.PushConstants)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	p.pipelineLayout = layout

	return p, nil
}

// NewShaderProgramFromFiles builds a program from bytecode files and, when
// watch is true, re-creates stage modules whenever a file changes on disk.
func NewShaderProgramFromFiles(backend gpu.Backend, reflection *Reflection, files map[gpu.ShaderStage]string, watch bool) (*ShaderProgram, error) {
	stages := make(map[gpu.ShaderStage][]byte, len(files))
	for stage, path := range files {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, core.ConfigurationError("reading shader %s: %s", path, err)
		}
		stages[stage] = code
	}

	p, err := NewShaderProgram(backend, reflection, stages)
	if err != nil {
		return nil, err
	}
	p.files = files

	if watch {
		if err := p.startWatcher(); err != nil {
			// Hot reload is a developer convenience; run without it.
			core.LogWarn("shader watcher unavailable: %s", err)
		}
	}
	return p, nil
}

func (p *ShaderProgram) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range p.files {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return err
		}
	}
	p.watcher = watcher
	p.done = make(chan struct{})
	go p.watch()
	return nil
}

func (p *ShaderProgram) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.reloadFile(event.Name)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("shader watcher: %s", err)
		}
	}
}

// reloadFile swaps in a freshly compiled module for the stage whose source
// matches path. Any failure keeps the previous module in place.
func (p *ShaderProgram) reloadFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for stage, file := range p.files {
		if file != path {
			continue
		}
		code, err := os.ReadFile(path)
		if err != nil {
			core.LogWarn("shader reload of %s failed, keeping previous module: %s", path, err)
			return
		}
		m, err := p.backend.CreateShaderModule(stage, code)
		if err != nil {
			core.LogWarn("shader reload of %s failed, keeping previous module: %s", path, err)
			return
		}
		p.backend.DestroyShaderModule(p.modules[stage])
		p.modules[stage] = m
		p.generation++
		core.LogInfo("shader %s reloaded (generation %d)", path, p.generation)
		return
	}
}

// ID is the program's stable identity; it participates in pipeline cache
// keys through GraphicsState hashing.
func (p *ShaderProgram) ID() core.Identifier {
	return p.id
}

// Generation counts successful module reloads. It participates in pipeline
// cache keys so states referencing reloaded bytecode recompile instead of
// resolving pipelines built from the old modules.
func (p *ShaderProgram) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *ShaderProgram) Reflection() *Reflection {
	return p.reflection
}

// StageModules snapshots the current stage modules for pipeline creation.
func (p *ShaderProgram) StageModules() []gpu.ShaderStageModule {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]gpu.ShaderStageModule, 0, len(p.modules))
	for stage, m := range p.modules {
		out = append(out, gpu.ShaderStageModule{Stage: stage, Module: m})
	}
	slices.SortFunc(out, func(a, b gpu.ShaderStageModule) int {
		return int(a.Stage) - int(b.Stage)
	})
	return out
}

// SetLayout returns the descriptor set layout for one set index.
func (p *ShaderProgram) SetLayout(set uint32) (gpu.DescriptorSetLayout, bool) {
	l, ok := p.setLayouts[set]
	return l, ok
}

func (p *ShaderProgram) PipelineLayout() gpu.PipelineLayout {
	return p.pipelineLayout
}

func (p *ShaderProgram) orderedSetLayouts() []gpu.DescriptorSetLayout {
	sets := p.reflection.ActiveSets()
	out := make([]gpu.DescriptorSetLayout, 0, len(sets))
	for _, set := range sets {
		out = append(out, p.setLayouts[set])
	}
	return out
}

// Destroy releases the watcher and every GPU object the program owns.
func (p *ShaderProgram) Destroy() {
	if p.watcher != nil {
		close(p.done)
		p.watcher.Close()
		p.watcher = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipelineLayout != 0 {
		p.backend.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = 0
	}
	for set, layout := range p.setLayouts {
		p.backend.DestroyDescriptorSetLayout(layout)
		delete(p.setLayouts, set)
	}
	for stage, m := range p.modules {
		p.backend.DestroyShaderModule(m)
		delete(p.modules, stage)
	}
}
