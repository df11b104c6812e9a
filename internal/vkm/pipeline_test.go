package vkm

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLayout = makeHandle(KindPipelineLayout, 1, 0)
	testPass   = makeHandle(KindRenderPass, 1, 0)
	testVert   = makeHandle(KindShaderModule, 1, 0)
	testFrag   = makeHandle(KindShaderModule, 1, 1)
)

func TestDescriptorSetLayoutBuilder(t *testing.T) {
	b := BeginDescriptorSetLayout().
		AddBinding(2, vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 0).
		AddBinding(0, vk.DescriptorTypeUniformBufferDynamic, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 1)
	require.NoError(t, b.Validate())
	got := b.Bindings()
	require.Len(t, got, 2)
	assert.Equal(t, uint32(0), got[0].Binding)
	assert.Equal(t, uint32(2), got[1].Binding)
	assert.Equal(t, uint32(1), got[1].DescriptorCount, "count defaults to one")

	b.AddBinding(0, vk.DescriptorTypeSampler, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 1)
	assert.True(t, errors.Is(b.Validate(), ErrDuplicateBinding))
}

func TestPipelineLayoutPushRanges(t *testing.T) {
	vert := vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	frag := vk.ShaderStageFlags(vk.ShaderStageFragmentBit)

	ok := BeginPipelineLayout().
		AddSetLayout(makeHandle(KindDescriptorSetLayout, 1, 0)).
		AddPushConstantRange(vert, 0, 64).
		AddPushConstantRange(frag, 0, 16)
	assert.NoError(t, ok.Validate(), "disjoint stages may share offsets")

	overlap := BeginPipelineLayout().
		AddPushConstantRange(vert|frag, 0, 64).
		AddPushConstantRange(frag, 60, 8)
	assert.True(t, errors.Is(overlap.Validate(), ErrInvalidPipeline))

	unaligned := BeginPipelineLayout().AddPushConstantRange(vert, 2, 8)
	assert.True(t, errors.Is(unaligned.Validate(), ErrInvalidPipeline))

	wrongSet := BeginPipelineLayout().AddSetLayout(makeHandle(KindBuffer, 1, 0))
	assert.True(t, errors.Is(wrongSet.Validate(), ErrStaleHandle))
}

func TestGraphicsPipelineDefaults(t *testing.T) {
	b := BeginGraphicsPipeline(testLayout, testPass, 0).
		AddStage(vk.ShaderStageVertexBit, testVert).
		AddStage(vk.ShaderStageFragmentBit, testFrag)
	require.NoError(t, b.Validate())

	info := b.createInfo(nil, nil, nil)
	assert.Equal(t, vk.PrimitiveTopologyTriangleList, info.PInputAssemblyState.Topology)
	assert.Equal(t, vk.CullModeFlags(vk.CullModeBackBit), info.PRasterizationState.CullMode)
	assert.Equal(t, vk.FrontFaceCounterClockwise, info.PRasterizationState.FrontFace)
	assert.Equal(t, vk.Bool32(vk.True), info.PDepthStencilState.DepthTestEnable)
	assert.Equal(t, vk.Bool32(vk.True), info.PDepthStencilState.DepthWriteEnable)
	assert.Equal(t, vk.CompareOpLessOrEqual, info.PDepthStencilState.DepthCompareOp)
	assert.Equal(t, uint32(1), info.PColorBlendState.AttachmentCount)
	assert.Equal(t, vk.Bool32(vk.False), info.PColorBlendState.PAttachments[0].BlendEnable)
	assert.Equal(t, []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}, info.PDynamicState.PDynamicStates)
	assert.Equal(t, vk.Bool32(vk.False), info.PRasterizationState.DepthBiasEnable)
}

func TestGraphicsPipelineStateOverrides(t *testing.T) {
	b := BeginGraphicsPipeline(testLayout, testPass, 1).
		AddStage(vk.ShaderStageVertexBit, testVert).
		SetColorAttachments(0).
		SetCullMode(vk.CullModeFrontBit).
		SetDepthBias(1.25, 1.75)
	b.SetColorAttachments(2).SetBlend(1, BlendAdditive)
	require.NoError(t, b.Validate())

	info := b.createInfo(nil, nil, nil)
	assert.Equal(t, uint32(1), info.Subpass)
	assert.Equal(t, vk.Bool32(vk.True), info.PRasterizationState.DepthBiasEnable)
	assert.Equal(t, float32(1.75), info.PRasterizationState.DepthBiasSlopeFactor)
	require.Len(t, info.PColorBlendState.PAttachments, 2)
	assert.Equal(t, vk.Bool32(vk.False), info.PColorBlendState.PAttachments[0].BlendEnable)
	assert.Equal(t, vk.BlendFactorOne, info.PColorBlendState.PAttachments[1].DstColorBlendFactor)
}

func TestGraphicsPipelineValidate(t *testing.T) {
	noVertex := BeginGraphicsPipeline(testLayout, testPass, 0).AddStage(vk.ShaderStageFragmentBit, testFrag)
	assert.True(t, errors.Is(noVertex.Validate(), ErrInvalidPipeline))

	twice := BeginGraphicsPipeline(testLayout, testPass, 0).
		AddStage(vk.ShaderStageVertexBit, testVert).
		AddStage(vk.ShaderStageVertexBit, testVert)
	assert.True(t, errors.Is(twice.Validate(), ErrInvalidPipeline))

	compute := BeginGraphicsPipeline(testLayout, testPass, 0).
		AddStage(vk.ShaderStageVertexBit, testVert).
		AddStage(vk.ShaderStageComputeBit, testFrag)
	assert.True(t, errors.Is(compute.Validate(), ErrInvalidPipeline))

	unbound := BeginGraphicsPipeline(testLayout, testPass, 0).
		AddStage(vk.ShaderStageVertexBit, testVert).
		AddVertexAttribute(0, 1, vk.FormatR32g32b32Sfloat, 0)
	assert.True(t, errors.Is(unbound.Validate(), ErrInvalidPipeline))

	swapped := BeginGraphicsPipeline(testPass, testLayout, 0).AddStage(vk.ShaderStageVertexBit, testVert)
	assert.True(t, errors.Is(swapped.Validate(), ErrInvalidPipeline))
}

func TestComputePipelineValidate(t *testing.T) {
	assert.NoError(t, BeginComputePipeline(testLayout, testVert).Validate())
	assert.Error(t, BeginComputePipeline(testLayout, testPass).Validate())
}

func gbufferEntry(t *testing.T) *renderPassEntry {
	b := BeginRenderPass()
	sp := b.BeginSubpass()
	for i := 0; i < 3; i++ {
		sp.AddColor(b.AddAttachment(colorAttachment()), vk.ImageLayoutColorAttachmentOptimal)
	}
	_, err := sp.End()
	require.NoError(t, err)

	d := b.AddAttachment(AttachmentDesc{Format: vk.FormatD32Sfloat, Samples: vk.SampleCount4Bit})
	depthOnly := b.BeginSubpass()
	require.NoError(t, depthOnly.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal))
	_, err = depthOnly.End()
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	return &renderPassEntry{attachments: b.AttachmentCount(), subpasses: b.SubpassCount(), targets: b.targets()}
}

func TestRenderPassTargets(t *testing.T) {
	e := gbufferEntry(t)
	assert.Equal(t, []subpassTarget{
		{colors: 3, samples: vk.SampleCount1Bit},
		{colors: 0, samples: vk.SampleCount4Bit},
	}, e.targets)
}

func TestGraphicsPipelineMatchesSubpass(t *testing.T) {
	e := gbufferEntry(t)
	pipeline := func(subpass uint32) *GraphicsPipelineBuilder {
		return BeginGraphicsPipeline(testLayout, testPass, subpass).AddStage(vk.ShaderStageVertexBit, testVert)
	}

	assert.NoError(t, pipeline(0).SetColorAttachments(3).checkTarget(e))
	assert.True(t, errors.Is(pipeline(0).SetColorAttachments(7).checkTarget(e), ErrInvalidPipeline))
	assert.True(t, errors.Is(pipeline(0).checkTarget(e), ErrInvalidPipeline), "default single attachment")

	depth := pipeline(1).SetColorAttachments(0)
	assert.True(t, errors.Is(depth.checkTarget(e), ErrInvalidPipeline), "sample count differs")
	depth.Samples = vk.SampleCount4Bit
	assert.NoError(t, depth.checkTarget(e))

	assert.True(t, errors.Is(pipeline(2).SetColorAttachments(0).checkTarget(e), ErrInvalidSubpassIndex))
}

func TestGraphicsInputsUsesSharedLock(t *testing.T) {
	m := newManager(nil, nil)
	layout := m.pipelineLayouts.insert(&pipelineLayoutEntry{})
	pass := m.renderPasses.insert(gbufferEntry(t))
	vert := m.shaders.insert(nil)

	b := BeginGraphicsPipeline(layout, pass, 0).AddStage(vk.ShaderStageVertexBit, vert).SetColorAttachments(3)

	// A reader already holding the lock must not block the lookups.
	m.mu.RLock()
	_, _, stages, _, err := m.graphicsInputs(b)
	m.mu.RUnlock()
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, vk.ShaderStageVertexBit, stages[0].Stage)

	_, _, _, _, err = m.graphicsInputs(b.SetColorAttachments(7))
	assert.True(t, errors.Is(err, ErrInvalidPipeline))
	require.True(t, m.mu.TryLock(), "lock released after a rejected pipeline")
	m.mu.Unlock()
}
