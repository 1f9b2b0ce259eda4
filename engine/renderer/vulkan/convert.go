package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func vulkanFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb
	case gpu.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case gpu.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case gpu.FormatR32G32Sfloat:
		return vk.FormatR32g32Sfloat
	case gpu.FormatR32G32B32Sfloat:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatR32G32B32A32Sfloat:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case gpu.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	default:
		return vk.FormatUndefined
	}
}

func vulkanTopology(t gpu.Topology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.TopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gpu.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func vulkanInputRate(r gpu.VertexInputRate) vk.VertexInputRate {
	if r == gpu.InputRateInstance {
		return vk.VertexInputRateInstance
	}
	return vk.VertexInputRateVertex
}

func vulkanBlendFactor(f gpu.BlendFactor) vk.BlendFactor {
	switch f {
	case gpu.BlendFactorOne:
		return vk.BlendFactorOne
	case gpu.BlendFactorSrcColor:
		return vk.BlendFactorSrcColor
	case gpu.BlendFactorOneMinusSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case gpu.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case gpu.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case gpu.BlendFactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case gpu.BlendFactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	default:
		return vk.BlendFactorZero
	}
}

func vulkanBlendOp(o gpu.BlendOp) vk.BlendOp {
	switch o {
	case gpu.BlendOpSubtract:
		return vk.BlendOpSubtract
	case gpu.BlendOpReverseSubtract:
		return vk.BlendOpReverseSubtract
	case gpu.BlendOpMin:
		return vk.BlendOpMin
	case gpu.BlendOpMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func vulkanColorComponents(m gpu.ColorComponentFlags) vk.ColorComponentFlags {
	var flags vk.ColorComponentFlags
	if m&gpu.ColorComponentR != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentRBit)
	}
	if m&gpu.ColorComponentG != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentGBit)
	}
	if m&gpu.ColorComponentB != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentBBit)
	}
	if m&gpu.ColorComponentA != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentABit)
	}
	return flags
}

func vulkanCompareOp(o gpu.CompareOp) vk.CompareOp {
	switch o {
	case gpu.CompareOpLess:
		return vk.CompareOpLess
	case gpu.CompareOpEqual:
		return vk.CompareOpEqual
	case gpu.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareOpGreater:
		return vk.CompareOpGreater
	case gpu.CompareOpNotEqual:
		return vk.CompareOpNotEqual
	case gpu.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case gpu.CompareOpAlways:
		return vk.CompareOpAlways
	default:
		return vk.CompareOpNever
	}
}

func vulkanCullMode(m gpu.CullMode) vk.CullModeFlags {
	switch m {
	case gpu.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	case gpu.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	default:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
}

func vulkanShaderStage(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case gpu.StageFragment:
		return vk.ShaderStageFragmentBit
	case gpu.StageCompute:
		return vk.ShaderStageComputeBit
	case gpu.StageGeometry:
		return vk.ShaderStageGeometryBit
	case gpu.StageTessellationControl:
		return vk.ShaderStageTessellationControlBit
	case gpu.StageTessellationEvaluation:
		return vk.ShaderStageTessellationEvaluationBit
	default:
		return vk.ShaderStageVertexBit
	}
}

func vulkanShaderStageFlags(s gpu.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&gpu.StageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gpu.StageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&gpu.StageCompute != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	if s&gpu.StageGeometry != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageGeometryBit)
	}
	if s&gpu.StageTessellationControl != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageTessellationControlBit)
	}
	if s&gpu.StageTessellationEvaluation != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageTessellationEvaluationBit)
	}
	return flags
}

func vulkanDescriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case gpu.DescriptorStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic
	case gpu.DescriptorInputAttachment:
		return vk.DescriptorTypeInputAttachment
	default:
		return vk.DescriptorTypeUniformBuffer
	}
}

func vulkanImageLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

func vulkanFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vulkanIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexTypeUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func vulkanBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags
	if u&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gpu.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&gpu.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return flags
}

func vulkanCommandBufferUsage(u gpu.CommandBufferUsage) vk.CommandBufferUsageFlags {
	var flags vk.CommandBufferUsageFlags
	if u&gpu.UsageOneTimeSubmit != 0 {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if u&gpu.UsageRenderPassContinue != 0 {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if u&gpu.UsageSimultaneous != 0 {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	return flags
}

func vulkanAspect(f gpu.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		if f == gpu.FormatD24UnormS8Uint {
			aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		return aspect
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func vulkanViewport(v gpu.Viewport) vk.Viewport {
	return vk.Viewport{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
}

func vulkanRect2D(r gpu.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}
