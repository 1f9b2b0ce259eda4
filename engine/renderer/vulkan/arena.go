package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type bufferEntry struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
}

type imageEntry struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format gpu.Format
	Width  uint32
	Height uint32
}

type commandBufferEntry struct {
	Handle vk.CommandBuffer
	Pool   vk.CommandPool
	Queue  gpu.QueueType
}

type fenceEntry struct {
	Handle vk.Fence
}

type descriptorSetEntry struct {
	Handle vk.DescriptorSet
	Pool   gpu.DescriptorPool
}

// arena owns the mapping from the opaque handles handed out to the renderer
// to the native Vulkan objects. Handles are never reused; zero is never
// issued.
type arena struct {
	mu   sync.Mutex
	next uint64

	shaderModules   map[gpu.ShaderModule]vk.ShaderModule
	setLayouts      map[gpu.DescriptorSetLayout]vk.DescriptorSetLayout
	pipelineLayouts map[gpu.PipelineLayout]vk.PipelineLayout
	pipelines       map[gpu.Pipeline]vk.Pipeline
	descriptorPools map[gpu.DescriptorPool]vk.DescriptorPool
	descriptorSets  map[gpu.DescriptorSet]descriptorSetEntry
	renderPasses    map[gpu.RenderPass]vk.RenderPass
	framebuffers    map[gpu.Framebuffer]vk.Framebuffer
	buffers         map[gpu.Buffer]bufferEntry
	images          map[gpu.Image]imageEntry
	fences          map[gpu.Fence]fenceEntry
	semaphores      map[gpu.Semaphore]vk.Semaphore
	commandBuffers  map[gpu.CommandBuffer]commandBufferEntry
}

func newArena() *arena {
	return &arena{
		shaderModules:   make(map[gpu.ShaderModule]vk.ShaderModule),
		setLayouts:      make(map[gpu.DescriptorSetLayout]vk.DescriptorSetLayout),
		pipelineLayouts: make(map[gpu.PipelineLayout]vk.PipelineLayout),
		pipelines:       make(map[gpu.Pipeline]vk.Pipeline),
		descriptorPools: make(map[gpu.DescriptorPool]vk.DescriptorPool),
		descriptorSets:  make(map[gpu.DescriptorSet]descriptorSetEntry),
		renderPasses:    make(map[gpu.RenderPass]vk.RenderPass),
		framebuffers:    make(map[gpu.Framebuffer]vk.Framebuffer),
		buffers:         make(map[gpu.Buffer]bufferEntry),
		images:          make(map[gpu.Image]imageEntry),
		fences:          make(map[gpu.Fence]fenceEntry),
		semaphores:      make(map[gpu.Semaphore]vk.Semaphore),
		commandBuffers:  make(map[gpu.CommandBuffer]commandBufferEntry),
	}
}

func (a *arena) allocate() uint64 {
	a.next++
	return a.next
}

func errUnknownHandle(kind string, handle uint64) error {
	return fmt.Errorf("unknown %s handle %d", kind, handle)
}

// Mutex pool keyed by resource group. Vulkan requires external
// synchronization on most objects; the renderer may record from several
// goroutines, so every native call that mutates shared state goes through
// SafeCall.
type LockGroup string

const (
	ResourceManagement        LockGroup = "resource_management"
	CommandBufferManagement   LockGroup = "command_buffer_management"
	RenderpassManagement      LockGroup = "renderpass_management"
	BufferManagement          LockGroup = "buffer_management"
	ImageManagement           LockGroup = "image_management"
	DeviceManagement          LockGroup = "device_management"
	QueueManagement           LockGroup = "queue_management"
	PipelineManagement        LockGroup = "pipeline_management"
	DescriptorManagement      LockGroup = "descriptor_management"
	ShaderManagement          LockGroup = "shader_management"
	SynchronizationManagement LockGroup = "synchronization_management"
)

type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) setLock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	vs.locks[group].Lock()

	return vs.locks[group]
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.setLock(group)
	defer l.Unlock()

	return fn()
}
