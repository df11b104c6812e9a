package vkm

import (
	"sort"

	vk "github.com/goki/vulkan"
)

// DescriptorSetLayoutBuilder accumulates bindings for one set layout.
type DescriptorSetLayoutBuilder struct {
	bindings []vk.DescriptorSetLayoutBinding
	err      error
}

func BeginDescriptorSetLayout() *DescriptorSetLayoutBuilder {
	return &DescriptorSetLayoutBuilder{}
}

func (b *DescriptorSetLayoutBuilder) AddBinding(slot uint32, typ vk.DescriptorType, stages vk.ShaderStageFlags, count uint32) *DescriptorSetLayoutBuilder {
	for _, have := range b.bindings {
		if have.Binding == slot && b.err == nil {
			b.err = violation(ErrDuplicateBinding, "slot %d", slot)
		}
	}
	if count == 0 {
		count = 1
	}
	b.bindings = append(b.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         slot,
		DescriptorType:  typ,
		DescriptorCount: count,
		StageFlags:      stages,
	})
	return b
}

// Bindings returns the declared bindings ordered by slot.
func (b *DescriptorSetLayoutBuilder) Bindings() []vk.DescriptorSetLayoutBinding {
	out := append([]vk.DescriptorSetLayoutBinding(nil), b.bindings...)
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

func (b *DescriptorSetLayoutBuilder) Validate() error { return b.err }

// PushRange is a push-constant block visible to a set of stages.
type PushRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

// PipelineLayoutBuilder accumulates set layouts and push-constant ranges.
type PipelineLayoutBuilder struct {
	sets   []Handle
	ranges []PushRange
}

func BeginPipelineLayout() *PipelineLayoutBuilder {
	return &PipelineLayoutBuilder{}
}

// AddSetLayout appends a set layout; its position is the set number.
func (b *PipelineLayoutBuilder) AddSetLayout(h Handle) *PipelineLayoutBuilder {
	b.sets = append(b.sets, h)
	return b
}

func (b *PipelineLayoutBuilder) AddPushConstantRange(stages vk.ShaderStageFlags, offset, size uint32) *PipelineLayoutBuilder {
	b.ranges = append(b.ranges, PushRange{Stages: stages, Offset: offset, Size: size})
	return b
}

// Validate rejects unaligned ranges and ranges that overlap for a shared
// stage.
func (b *PipelineLayoutBuilder) Validate() error {
	for i, r := range b.ranges {
		if r.Size == 0 || r.Offset%4 != 0 || r.Size%4 != 0 {
			return violation(ErrInvalidPipeline, "push range %d [%d,+%d) not 4-byte aligned", i, r.Offset, r.Size)
		}
		for j := 0; j < i; j++ {
			o := b.ranges[j]
			if o.Stages&r.Stages == 0 {
				continue
			}
			if r.Offset < o.Offset+o.Size && o.Offset < r.Offset+r.Size {
				return violation(ErrInvalidPipeline, "push ranges %d and %d overlap", j, i)
			}
		}
	}
	for i, h := range b.sets {
		if h.Kind() != KindDescriptorSetLayout {
			return violation(ErrStaleHandle, "set %d: %s is not a set layout", i, h)
		}
	}
	return nil
}

// BlendMode selects a fixed color-blend configuration per attachment.
type BlendMode int

const (
	BlendOpaque BlendMode = iota
	BlendAdditive
	BlendAlpha
)

func blendState(m BlendMode) vk.PipelineColorBlendAttachmentState {
	cb := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch m {
	case BlendAdditive:
		cb.BlendEnable = vk.True
		cb.SrcColorBlendFactor = vk.BlendFactorOne
		cb.DstColorBlendFactor = vk.BlendFactorOne
		cb.ColorBlendOp = vk.BlendOpAdd
		cb.SrcAlphaBlendFactor = vk.BlendFactorOne
		cb.DstAlphaBlendFactor = vk.BlendFactorOne
		cb.AlphaBlendOp = vk.BlendOpAdd
	case BlendAlpha:
		cb.BlendEnable = vk.True
		cb.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		cb.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		cb.ColorBlendOp = vk.BlendOpAdd
		cb.SrcAlphaBlendFactor = vk.BlendFactorOne
		cb.DstAlphaBlendFactor = vk.BlendFactorZero
		cb.AlphaBlendOp = vk.BlendOpAdd
	}
	return cb
}

// ShaderStage pairs a stage with a loaded shader module handle.
type ShaderStage struct {
	Stage  vk.ShaderStageFlagBits
	Module Handle
}

// DepthState is the depth portion of the fixed-function state.
type DepthState struct {
	Test    bool
	Write   bool
	Compare vk.CompareOp
}

// DepthBias enables constant and slope scaled depth bias, used by shadow
// casters to fight acne.
type DepthBias struct {
	Constant float32
	Slope    float32
	Clamp    float32
}

// GraphicsPipelineBuilder accumulates a graphics pipeline. The zero value
// is not useful; BeginGraphicsPipeline installs the defaults: triangle
// list, dynamic viewport and scissor, back-face culling with CCW front
// faces, depth test and write with LESS_OR_EQUAL and one opaque color
// attachment.
type GraphicsPipelineBuilder struct {
	Layout     Handle
	RenderPass Handle
	Subpass    uint32

	Stages     []ShaderStage
	Bindings   []vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
	Topology   vk.PrimitiveTopology
	CullMode   vk.CullModeFlagBits
	FrontFace  vk.FrontFace
	Depth      DepthState
	Bias       *DepthBias
	Blend      []BlendMode
	Samples    vk.SampleCountFlagBits
	Dynamic    []vk.DynamicState
}

func BeginGraphicsPipeline(layout, renderPass Handle, subpass uint32) *GraphicsPipelineBuilder {
	return &GraphicsPipelineBuilder{
		Layout:     layout,
		RenderPass: renderPass,
		Subpass:    subpass,
		Topology:   vk.PrimitiveTopologyTriangleList,
		CullMode:   vk.CullModeBackBit,
		FrontFace:  vk.FrontFaceCounterClockwise,
		Depth:      DepthState{Test: true, Write: true, Compare: vk.CompareOpLessOrEqual},
		Blend:      []BlendMode{BlendOpaque},
		Samples:    vk.SampleCount1Bit,
		Dynamic:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
	}
}

func (b *GraphicsPipelineBuilder) AddStage(stage vk.ShaderStageFlagBits, module Handle) *GraphicsPipelineBuilder {
	b.Stages = append(b.Stages, ShaderStage{Stage: stage, Module: module})
	return b
}

func (b *GraphicsPipelineBuilder) AddVertexBinding(binding, stride uint32) *GraphicsPipelineBuilder {
	b.Bindings = append(b.Bindings, vk.VertexInputBindingDescription{
		Binding:   binding,
		Stride:    stride,
		InputRate: vk.VertexInputRateVertex,
	})
	return b
}

func (b *GraphicsPipelineBuilder) AddVertexAttribute(location, binding uint32, format vk.Format, offset uint32) *GraphicsPipelineBuilder {
	b.Attributes = append(b.Attributes, vk.VertexInputAttributeDescription{
		Location: location,
		Binding:  binding,
		Format:   format,
		Offset:   offset,
	})
	return b
}

// SetColorAttachments sets the number of color attachments, each opaque.
func (b *GraphicsPipelineBuilder) SetColorAttachments(n int) *GraphicsPipelineBuilder {
	b.Blend = make([]BlendMode, n)
	return b
}

func (b *GraphicsPipelineBuilder) SetBlend(attachment int, m BlendMode) *GraphicsPipelineBuilder {
	if attachment < len(b.Blend) {
		b.Blend[attachment] = m
	}
	return b
}

func (b *GraphicsPipelineBuilder) SetCullMode(m vk.CullModeFlagBits) *GraphicsPipelineBuilder {
	b.CullMode = m
	return b
}

func (b *GraphicsPipelineBuilder) SetDepth(test, write bool, cmp vk.CompareOp) *GraphicsPipelineBuilder {
	b.Depth = DepthState{Test: test, Write: write, Compare: cmp}
	return b
}

func (b *GraphicsPipelineBuilder) SetDepthBias(constant, slope float32) *GraphicsPipelineBuilder {
	b.Bias = &DepthBias{Constant: constant, Slope: slope}
	return b
}

// Validate checks the parts of the description the driver would only
// reject at creation time.
func (b *GraphicsPipelineBuilder) Validate() error {
	if b.Layout.Kind() != KindPipelineLayout {
		return violation(ErrInvalidPipeline, "layout %s is not a pipeline layout", b.Layout)
	}
	if b.RenderPass.Kind() != KindRenderPass {
		return violation(ErrInvalidPipeline, "render pass %s is not a render pass", b.RenderPass)
	}
	hasVertex := false
	seen := map[vk.ShaderStageFlagBits]bool{}
	for _, s := range b.Stages {
		if s.Stage == vk.ShaderStageComputeBit {
			return violation(ErrInvalidPipeline, "compute stage in graphics pipeline")
		}
		if seen[s.Stage] {
			return violation(ErrInvalidPipeline, "stage %#x given twice", uint32(s.Stage))
		}
		seen[s.Stage] = true
		if s.Stage == vk.ShaderStageVertexBit {
			hasVertex = true
		}
	}
	if !hasVertex {
		return violation(ErrInvalidPipeline, "graphics pipeline without a vertex stage")
	}
	bound := map[uint32]bool{}
	for _, vb := range b.Bindings {
		bound[vb.Binding] = true
	}
	for _, a := range b.Attributes {
		if !bound[a.Binding] {
			return violation(ErrInvalidPipeline, "attribute %d uses undeclared binding %d", a.Location, a.Binding)
		}
	}
	return nil
}

// checkTarget matches the pipeline's blend attachments and sample count
// against the subpass it renders into.
func (b *GraphicsPipelineBuilder) checkTarget(pass *renderPassEntry) error {
	if int(b.Subpass) >= pass.subpasses || int(b.Subpass) >= len(pass.targets) {
		return violation(ErrInvalidSubpassIndex, "subpass %d of %d", b.Subpass, pass.subpasses)
	}
	t := pass.targets[b.Subpass]
	if len(b.Blend) != t.colors {
		return violation(ErrInvalidPipeline, "%d blend attachments for subpass %d with %d color attachments",
			len(b.Blend), b.Subpass, t.colors)
	}
	if t.samples != 0 && b.Samples != t.samples {
		return violation(ErrInvalidPipeline, "%d samples for subpass %d rendering at %d",
			uint32(b.Samples), b.Subpass, uint32(t.samples))
	}
	return nil
}

func boolean(v bool) vk.Bool32 {
	if v {
		return vk.True
	}
	return vk.False
}

func (b *GraphicsPipelineBuilder) createInfo(stages []vk.PipelineShaderStageCreateInfo,
	layout vk.PipelineLayout, pass vk.RenderPass) vk.GraphicsPipelineCreateInfo {
	raster := &vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(b.CullMode),
		FrontFace:   b.FrontFace,
		LineWidth:   1,
	}
	if b.Bias != nil {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = b.Bias.Constant
		raster.DepthBiasSlopeFactor = b.Bias.Slope
		raster.DepthBiasClamp = b.Bias.Clamp
	}
	blends := make([]vk.PipelineColorBlendAttachmentState, len(b.Blend))
	for i, m := range b.Blend {
		blends[i] = blendState(m)
	}
	return vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(b.Bindings)),
			PVertexBindingDescriptions:      b.Bindings,
			VertexAttributeDescriptionCount: uint32(len(b.Attributes)),
			PVertexAttributeDescriptions:    b.Attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: b.Topology,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: raster,
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: b.Samples,
			MinSampleShading:     1,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  boolean(b.Depth.Test),
			DepthWriteEnable: boolean(b.Depth.Write),
			DepthCompareOp:   b.Depth.Compare,
			Front:            vk.StencilOpState{FailOp: vk.StencilOpKeep, PassOp: vk.StencilOpKeep, CompareOp: vk.CompareOpAlways},
			Back:             vk.StencilOpState{FailOp: vk.StencilOpKeep, PassOp: vk.StencilOpKeep, CompareOp: vk.CompareOpAlways},
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(b.Dynamic)),
			PDynamicStates:    b.Dynamic,
		},
		Layout:     layout,
		RenderPass: pass,
		Subpass:    b.Subpass,
	}
}

// ComputePipelineBuilder describes a compute pipeline: one shader and a
// layout.
type ComputePipelineBuilder struct {
	Layout Handle
	Shader Handle
}

func BeginComputePipeline(layout, shader Handle) *ComputePipelineBuilder {
	return &ComputePipelineBuilder{Layout: layout, Shader: shader}
}

func (b *ComputePipelineBuilder) Validate() error {
	if b.Layout.Kind() != KindPipelineLayout {
		return violation(ErrInvalidPipeline, "layout %s is not a pipeline layout", b.Layout)
	}
	if b.Shader.Kind() != KindShaderModule {
		return violation(ErrInvalidPipeline, "shader %s is not a shader module", b.Shader)
	}
	return nil
}
