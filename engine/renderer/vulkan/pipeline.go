package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

func (b *Backend) CreatePipeline(desc gpu.PipelineDescriptor) (gpu.Pipeline, error) {
	b.arena.mu.Lock()
	layout, layoutOK := b.arena.pipelineLayouts[desc.Layout]
	renderPass, passOK := b.arena.renderPasses[desc.RenderPass]
	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, stage := range desc.Stages {
		module, ok := b.arena.shaderModules[stage.Module]
		if !ok {
			b.arena.mu.Unlock()
			return 0, errUnknownHandle("shader module", uint64(stage.Module))
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkanShaderStage(stage.Stage),
			Module: module,
			PName:  VulkanSafeString("main"),
		}
	}
	b.arena.mu.Unlock()

	if !layoutOK {
		return 0, errUnknownHandle("pipeline layout", uint64(desc.Layout))
	}
	if !passOK {
		return 0, errUnknownHandle("render pass", uint64(desc.RenderPass))
	}
	if len(stages) == 0 {
		return 0, core.ConfigurationError("pipeline needs at least one shader stage")
	}

	// Viewport state
	viewports := make([]vk.Viewport, 0, len(desc.Viewports))
	for _, v := range desc.Viewports {
		viewports = append(viewports, vulkanViewport(v))
	}
	scissors := make([]vk.Rect2D, 0, len(desc.Scissors))
	for _, s := range desc.Scissors {
		scissors = append(scissors, vulkanRect2D(s))
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: uint32(len(viewports)),
		PViewports:    viewports,
		ScissorCount:  uint32(len(scissors)),
		PScissors:     scissors,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkanCullMode(desc.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if desc.Wireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthStencil.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vulkanCompareOp(desc.DepthStencil.DepthOp)
		depthStencil.DepthBoundsTestEnable = vk.False
	}
	if desc.DepthStencil.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}
	if desc.DepthStencil.StencilTest {
		depthStencil.StencilTestEnable = vk.True
	}

	// Color blending, one state per color output of the sub-pass.
	blendStates := make([]vk.PipelineColorBlendAttachmentState, len(desc.BlendAttachments))
	for i, att := range desc.BlendAttachments {
		blendStates[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.False,
			SrcColorBlendFactor: vulkanBlendFactor(att.SrcColorFactor),
			DstColorBlendFactor: vulkanBlendFactor(att.DstColorFactor),
			ColorBlendOp:        vulkanBlendOp(att.ColorOp),
			SrcAlphaBlendFactor: vulkanBlendFactor(att.SrcAlphaFactor),
			DstAlphaBlendFactor: vulkanBlendFactor(att.DstAlphaFactor),
			AlphaBlendOp:        vulkanBlendOp(att.AlphaOp),
			ColorWriteMask:      vulkanColorComponents(att.WriteMask),
		}
		if att.BlendEnable {
			blendStates[i].BlendEnable = vk.True
		}
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendStates)),
		PAttachments:    blendStates,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, binding := range desc.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   binding.Binding,
			Stride:    binding.Stride,
			InputRate: vulkanInputRate(binding.InputRate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, attr := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: attr.Location,
			Binding:  attr.Binding,
			Format:   vulkanFormat(attr.Format),
			Offset:   attr.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vulkanTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             desc.SubPass,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := b.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(
			b.context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			b.context.Allocator,
			pipelines,
		)
		if !VulkanResultIsSuccess(res) {
			return vkError("vk.CreateGraphicsPipelines", res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.arena.mu.Lock()
	handle := gpu.Pipeline(b.arena.allocate())
	b.arena.pipelines[handle] = pipelines[0]
	b.arena.mu.Unlock()

	core.LogDebug("graphics pipeline %d created", handle)
	return handle, nil
}

func (b *Backend) DestroyPipeline(p gpu.Pipeline) {
	b.arena.mu.Lock()
	pipeline, ok := b.arena.pipelines[p]
	delete(b.arena.pipelines, p)
	b.arena.mu.Unlock()
	if ok {
		vk.DestroyPipeline(b.context.Device.LogicalDevice, pipeline, b.context.Allocator)
	}
}
