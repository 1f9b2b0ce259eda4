package gpu

// Handles are opaque indices into a per-device arena owned by the backend.
// The zero value is never a valid handle.
type (
	Pipeline            uint64
	PipelineLayout      uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	Fence               uint64
	Semaphore           uint64
	CommandBuffer       uint64
	RenderPass          uint64
	Framebuffer         uint64
	Buffer              uint64
	Image               uint64
	ShaderModule        uint64
)

type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

type Format uint16

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
	FormatD32Sfloat
	FormatD24UnormS8Uint
)

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

type VertexInputRate uint8

const (
	InputRateVertex VertexInputRate = iota
	InputRateInstance
)

type VertexBinding struct {
	Binding   uint32
	Stride    uint32
	InputRate VertexInputRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type Offset2D struct {
	X, Y int32
}

type Extent2D struct {
	Width, Height uint32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type BlendFactor uint8

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcColor
	BlendFactorOneMinusSrcColor
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
)

type BlendOp uint8

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpReverseSubtract
	BlendOpMin
	BlendOpMax
)

type ColorComponentFlags uint8

const (
	ColorComponentR ColorComponentFlags = 1 << iota
	ColorComponentG
	ColorComponentB
	ColorComponentA

	ColorComponentAll = ColorComponentR | ColorComponentG | ColorComponentB | ColorComponentA
)

type BlendAttachment struct {
	BlendEnable    bool
	SrcColorFactor BlendFactor
	DstColorFactor BlendFactor
	ColorOp        BlendOp
	SrcAlphaFactor BlendFactor
	DstAlphaFactor BlendFactor
	AlphaOp        BlendOp
	WriteMask      ColorComponentFlags
}

type CompareOp uint8

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

type DepthStencilState struct {
	DepthTest   bool
	DepthWrite  bool
	DepthOp     CompareOp
	StencilTest bool
}

type CullMode uint8

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
	CullModeFrontAndBack
)

type ShaderStage uint8

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
	StageGeometry
	StageTessellationControl
	StageTessellationEvaluation

	StageAllGraphics = StageVertex | StageFragment | StageGeometry |
		StageTessellationControl | StageTessellationEvaluation
)

type DescriptorType uint8

const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorUniformBufferDynamic
	DescriptorStorageBufferDynamic
	DescriptorInputAttachment
)

// LayoutBinding describes one slot of a descriptor set layout. Produced by
// shader reflection, consumed opaquely by the renderer.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type ImageLayout uint8

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

type IndexType uint8

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type BufferUsage uint16

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type CommandBufferUsage uint8

const (
	UsageOneTimeSubmit CommandBufferUsage = 1 << iota
	UsageRenderPassContinue
	UsageSimultaneous
)

// Resource is the payload of a descriptor write: exactly one of the buffer
// or image halves is meaningful, selected by Type.
type Resource struct {
	Type DescriptorType

	Buffer       Buffer
	BufferOffset uint64
	BufferRange  uint64

	Image       Image
	ImageLayout ImageLayout
}

type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type ShaderStageModule struct {
	Stage  ShaderStage
	Module ShaderModule
}

// PipelineDescriptor carries everything the backend needs to compile one
// graphics pipeline against a render pass and sub-pass.
type PipelineDescriptor struct {
	Stages           []ShaderStageModule
	Layout           PipelineLayout
	RenderPass       RenderPass
	SubPass          uint32
	Topology         Topology
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Viewports        []Viewport
	Scissors         []Rect2D
	BlendAttachments []BlendAttachment
	DepthStencil     DepthStencilState
	CullMode         CullMode
	Wireframe        bool
}

// SubPassDescription names one phase of a render pass by the attachment
// indices it reads and writes and the sub-passes it depends on.
type SubPassDescription struct {
	PreSubPasses      []uint32
	InputAttachments  []uint32
	OutputAttachments []uint32
}

type RenderPassDescriptor struct {
	Attachments []Format
	SubPasses   []SubPassDescription
	// Presentable marks the last color attachment as a swapchain target.
	Presentable bool
}

type FramebufferDescriptor struct {
	RenderPass  RenderPass
	Attachments []Image
	Extent      Extent2D
}

type ImageDescriptor struct {
	Format Format
	Extent Extent2D
	// Sampled marks the image as shader-readable in later passes.
	Sampled bool
}
