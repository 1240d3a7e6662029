package vulkan

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	vk "github.com/vulkan-go/vulkan"
)

const vertexSlots = 16

// pipelineKey identifies a pipeline by the context state baked into it.
// Viewport and scissor are dynamic.
type pipelineKey struct {
	vs       *VertexShader
	ps       *PixelShader
	layout   *InputLayout
	topology vk.PrimitiveTopology
	pass     vk.RenderPass
	strides  [vertexSlots]uint32
}

// PipelineBuilder collects the fixed function state of a graphics pipeline.
type PipelineBuilder struct {
	shaderStages         []vk.PipelineShaderStageCreateInfo
	bindings             []vk.VertexInputBindingDescription
	attributes           []vk.VertexInputAttributeDescription
	inputAssembly        vk.PipelineInputAssemblyStateCreateInfo
	rasterizer           vk.PipelineRasterizationStateCreateInfo
	colorBlendAttachment vk.PipelineColorBlendAttachmentState
	multisampling        vk.PipelineMultisampleStateCreateInfo
}

// NewPipelineBuilder starts a pipeline running vs and ps with the default
// rasterizer state: solid fill, back faces culled, clockwise front faces.
func NewPipelineBuilder(vs *VertexShader, ps *PixelShader, topology vk.PrimitiveTopology) *PipelineBuilder {
	pb := &PipelineBuilder{}
	pb.shaderStages = []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vs.handle,
			PName:  safeString(vs.code.Entry),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: ps.handle,
			PName:  safeString(ps.code.Entry),
		},
	}
	pb.inputAssembly = vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topology,
		PrimitiveRestartEnable: vk.False,
	}
	pb.rasterizer = vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}
	pb.multisampling = vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}
	pb.colorBlendAttachment = vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	return pb
}

// VertexInput describes the vertex fetch of layout for the inputs the vertex
// shader declares. Each used slot becomes a binding numbered like the slot.
func (pb *PipelineBuilder) VertexInput(layout *InputLayout, inputs shader.Signature, strides [vertexSlots]uint32) {
	bound := map[uint32]bool{}
	for _, sig := range inputs {
		i, ok := shader.Match(layout.elements, sig)
		if !ok {
			continue
		}
		el := layout.elements[i]
		pb.attributes = append(pb.attributes, vk.VertexInputAttributeDescription{
			Location: sig.Index,
			Binding:  el.InputSlot,
			Format:   vkFormat(el.Format),
			Offset:   layout.offsets[i],
		})
		if bound[el.InputSlot] {
			continue
		}
		bound[el.InputSlot] = true
		pb.bindings = append(pb.bindings, vk.VertexInputBindingDescription{
			Binding:   el.InputSlot,
			Stride:    strides[el.InputSlot],
			InputRate: vkInputRate(el.InputSlotClass),
		})
	}
}

// Build creates the pipeline for subpass 0 of pass.
func (pb *PipelineBuilder) Build(device vk.Device, pass vk.RenderPass, layout vk.PipelineLayout) (vk.Pipeline, error) {
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(pb.bindings)),
		PVertexBindingDescriptions:      pb.bindings,
		VertexAttributeDescriptionCount: uint32(len(pb.attributes)),
		PVertexAttributeDescriptions:    pb.attributes,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	blendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{pb.colorBlendAttachment},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(pb.shaderStages)),
		PStages:             pb.shaderStages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &pb.inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &pb.rasterizer,
		PMultisampleState:   &pb.multisampling,
		PColorBlendState:    &blendState,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          pass,
		Subpass:             0,
	}
	pipelines := []vk.Pipeline{vk.NullPipeline}
	ret := vk.CreateGraphicsPipelines(device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return vk.NullPipeline, NewError(ret)
	}
	return pipelines[0], nil
}

func (d *Device) pipeline(key pipelineKey) (vk.Pipeline, driver.Status) {
	if p, ok := d.pipelines[key]; ok {
		return p, driver.StatusOK
	}
	pb := NewPipelineBuilder(key.vs, key.ps, key.topology)
	pb.VertexInput(key.layout, key.vs.code.Inputs, key.strides)
	p, err := pb.Build(d.handle, key.pass, d.pipelineLayout)
	if err != nil {
		d.log.WithError(err).Error("create graphics pipeline")
		return p, driver.ErrFail
	}
	d.pipelines[key] = p
	return p, driver.StatusOK
}

// evict destroys the cached pipelines built from owner, a shader or input
// layout being freed.
func (d *Device) evict(owner any) {
	for key, p := range d.pipelines {
		if any(key.vs) == owner || any(key.ps) == owner || any(key.layout) == owner {
			vk.DestroyPipeline(d.handle, p, nil)
			delete(d.pipelines, key)
		}
	}
}
