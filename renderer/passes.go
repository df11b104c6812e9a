package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/core"
	"deferred-engine/internal/vkm"
)

// Attachment formats. Depth comes from the device.
const (
	formatNormalAlbedo = vk.FormatR32g32b32a32Uint
	formatPosition     = vk.FormatR32g32b32a32Sfloat
	formatMaterial     = vk.FormatR8g8b8a8Unorm
	formatHDR          = vk.FormatR16g16b16a16Sfloat
	formatShadow       = vk.FormatD32Sfloat
	formatBRDFLUT      = vk.FormatR16g16Sfloat
	formatSpecular     = vk.FormatR16g16b16a16Sfloat
	formatEnvironment  = vk.FormatR8g8b8a8Srgb
	formatAlbedo       = vk.FormatR8g8b8a8Srgb
	formatLinearTex    = vk.FormatR8g8b8a8Unorm
)

func stages(bits ...vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var f vk.PipelineStageFlags
	for _, b := range bits {
		f |= vk.PipelineStageFlags(b)
	}
	return f
}

func accesses(bits ...vk.AccessFlagBits) vk.AccessFlags {
	var f vk.AccessFlags
	for _, b := range bits {
		f |= vk.AccessFlags(b)
	}
	return f
}

func shaderStages(bits ...vk.ShaderStageFlagBits) vk.ShaderStageFlags {
	var f vk.ShaderStageFlags
	for _, b := range bits {
		f |= vk.ShaderStageFlags(b)
	}
	return f
}

// layoutStep names a layout change the renderer records with a barrier.
// Every barrier the renderer issues goes through transition.
type layoutStep int

const (
	stepMipSrcFromRead layoutStep = iota
	stepMipSrcFromDst
	stepMipDstFromRead
	stepMipSrcToRead
	stepMipDstToRead
	stepShadowToRead
	stepLUTToStorage
	stepLUTToRead
	stepSpecularToRead
	numLayoutSteps
)

var layoutSteps = [numLayoutSteps][2]vk.ImageLayout{
	stepMipSrcFromRead: {vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal},
	stepMipSrcFromDst:  {vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal},
	stepMipDstFromRead: {vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferDstOptimal},
	stepMipSrcToRead:   {vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal},
	stepMipDstToRead:   {vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal},
	stepShadowToRead:   {vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal},
	stepLUTToStorage:   {vk.ImageLayoutUndefined, vk.ImageLayoutGeneral},
	stepLUTToRead:      {vk.ImageLayoutGeneral, vk.ImageLayoutShaderReadOnlyOptimal},
	stepSpecularToRead: {vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal},
}

func transition(rec *vkm.Recorder, img vkm.Handle, step layoutStep, sub vkm.Subresource) {
	l := layoutSteps[step]
	rec.TransitionImageLayout(img, l[0], l[1], sub)
}

// All per-frame passes run on the graphics queue. Each render pass orders
// itself after every earlier attachment write or shader read on the queue
// and makes its own writes visible to later fragment shaders.
var (
	earlierWork = stages(vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageFragmentShaderBit,
		vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit)
	earlierAccess = accesses(vk.AccessColorAttachmentWriteBit, vk.AccessDepthStencilAttachmentWriteBit)
	colorStage    = stages(vk.PipelineStageColorAttachmentOutputBit)
	colorWrite    = accesses(vk.AccessColorAttachmentWriteBit)
	depthStages   = stages(vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit)
	depthWrite    = accesses(vk.AccessDepthStencilAttachmentReadBit, vk.AccessDepthStencilAttachmentWriteBit)
	fragmentRead  = stages(vk.PipelineStageFragmentShaderBit)
	shaderRead    = accesses(vk.AccessShaderReadBit)
)

func externalIn(dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) vkm.Dependency {
	return vkm.Dependency{
		Src: vkm.External, Dst: 0,
		SrcStage: earlierWork, DstStage: dstStage,
		SrcAccess: earlierAccess, DstAccess: dstAccess,
		ByRegion: true,
	}
}

func externalOut(src uint32, srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags) vkm.Dependency {
	return vkm.Dependency{
		Src: src, Dst: vkm.External,
		SrcStage: srcStage, DstStage: fragmentRead,
		SrcAccess: srcAccess, DstAccess: shaderRead,
		ByRegion: true,
	}
}

// colorPass builds a single-subpass render pass with one color attachment.
func colorPass(m *vkm.Manager, format vk.Format, load vk.AttachmentLoadOp, initial, final vk.ImageLayout) (vkm.Handle, error) {
	b := vkm.BeginRenderPass()
	att := b.AddAttachment(vkm.AttachmentDesc{
		Format:         format,
		LoadOp:         load,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    final,
	})
	if _, err := b.BeginSubpass().AddColor(att, vk.ImageLayoutColorAttachmentOptimal).End(); err != nil {
		return 0, err
	}
	b.AddDependency(externalIn(colorStage, colorWrite))
	b.AddDependency(externalOut(0, colorStage, colorWrite))
	return m.EndRenderPass(b)
}

// geometryPass writes the three G-buffers and depth.
func geometryPass(m *vkm.Manager, depth vk.Format) (vkm.Handle, error) {
	b := vkm.BeginRenderPass()
	sp := b.BeginSubpass()
	for _, f := range []vk.Format{formatNormalAlbedo, formatPosition, formatMaterial} {
		i := b.AddAttachment(vkm.AttachmentDesc{
			Format:         f,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
		})
		sp.AddColor(i, vk.ImageLayoutColorAttachmentOptimal)
	}
	d := b.AddAttachment(vkm.AttachmentDesc{
		Format:         depth,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	})
	if err := sp.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal); err != nil {
		return 0, err
	}
	if _, err := sp.End(); err != nil {
		return 0, err
	}
	b.AddDependency(externalIn(colorStage|depthStages, colorWrite|depthWrite))
	b.AddDependency(externalOut(0, colorStage, colorWrite))
	return m.EndRenderPass(b)
}

// shadowPass has one depth attachment and one subpass per cascade.
func shadowPass(m *vkm.Manager, cascades int) (vkm.Handle, error) {
	b := vkm.BeginRenderPass()
	for i := 0; i < cascades; i++ {
		a := b.AddAttachment(vkm.AttachmentDesc{
			Format:         formatShadow,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		sp := b.BeginSubpass()
		if err := sp.AddDepth(a, vk.ImageLayoutDepthStencilAttachmentOptimal); err != nil {
			return 0, err
		}
		if _, err := sp.End(); err != nil {
			return 0, err
		}
	}
	// Subpasses touch disjoint layers; only the boundaries need ordering.
	b.AddDependency(externalIn(depthStages, depthWrite))
	for i := 1; i < cascades; i++ {
		b.AddDependency(vkm.Dependency{
			Src: vkm.External, Dst: uint32(i),
			SrcStage: earlierWork, DstStage: depthStages,
			SrcAccess: earlierAccess, DstAccess: depthWrite,
			ByRegion: true,
		})
	}
	for i := 0; i < cascades; i++ {
		b.AddDependency(externalOut(uint32(i), depthStages, accesses(vk.AccessDepthStencilAttachmentWriteBit)))
	}
	return m.EndRenderPass(b)
}

// setLayouts are the descriptor set layouts shared by the pipelines. The
// bindings match the shader sources.
type setLayouts struct {
	frame    vkm.Handle // scene uniforms + dynamic per-cascade region
	material vkm.Handle
	lighting vkm.Handle
	single   vkm.Handle // one sampled image
	storage  vkm.Handle // one storage image
}

func createSetLayouts(m *vkm.Manager) (setLayouts, error) {
	var l setLayouts
	var err error
	frag := shaderStages(vk.ShaderStageFragmentBit)
	if l.frame, err = m.EndDescriptorSetLayout(vkm.BeginDescriptorSetLayout().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, shaderStages(vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit), 1).
		AddBinding(1, vk.DescriptorTypeUniformBufferDynamic, shaderStages(vk.ShaderStageVertexBit), 1)); err != nil {
		return l, errors.Wrap(err, "frame set layout")
	}
	mat := vkm.BeginDescriptorSetLayout()
	for i := uint32(0); i < 4; i++ {
		mat.AddBinding(i, vk.DescriptorTypeCombinedImageSampler, frag, 1)
	}
	if l.material, err = m.EndDescriptorSetLayout(mat); err != nil {
		return l, errors.Wrap(err, "material set layout")
	}
	lit := vkm.BeginDescriptorSetLayout()
	for i := uint32(0); i < lightingBindings; i++ {
		lit.AddBinding(i, vk.DescriptorTypeCombinedImageSampler, frag, 1)
	}
	if l.lighting, err = m.EndDescriptorSetLayout(lit); err != nil {
		return l, errors.Wrap(err, "lighting set layout")
	}
	if l.single, err = m.EndDescriptorSetLayout(vkm.BeginDescriptorSetLayout().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, frag, 1)); err != nil {
		return l, errors.Wrap(err, "sampled set layout")
	}
	if l.storage, err = m.EndDescriptorSetLayout(vkm.BeginDescriptorSetLayout().
		AddBinding(0, vk.DescriptorTypeStorageImage, shaderStages(vk.ShaderStageComputeBit), 1)); err != nil {
		return l, errors.Wrap(err, "storage set layout")
	}
	return l, nil
}

// Lighting set bindings.
const (
	bindNormalAlbedo uint32 = iota
	bindPosition
	bindMaterial
	bindShadowMap
	bindBRDFLUT
	bindSpecular
	bindEnvironment
	lightingBindings
)

type pipelineLayouts struct {
	geometry, shadow, lighting, bloom, final, prefilter, brdf vkm.Handle
}

var (
	objectPushSize    = uint32(128)
	bloomPushSize     = uint32(20)
	finalPushSize     = uint32(8)
	prefilterPushSize = uint32(12)
)

func createPipelineLayouts(m *vkm.Manager, s setLayouts) (pipelineLayouts, error) {
	var p pipelineLayouts
	vert := shaderStages(vk.ShaderStageVertexBit)
	frag := shaderStages(vk.ShaderStageFragmentBit)
	layouts := []struct {
		dst *vkm.Handle
		b   *vkm.PipelineLayoutBuilder
	}{
		{&p.geometry, vkm.BeginPipelineLayout().AddSetLayout(s.frame).AddSetLayout(s.material).AddPushConstantRange(vert, 0, objectPushSize)},
		{&p.shadow, vkm.BeginPipelineLayout().AddSetLayout(s.frame).AddPushConstantRange(vert, 0, objectPushSize)},
		{&p.lighting, vkm.BeginPipelineLayout().AddSetLayout(s.frame).AddSetLayout(s.lighting)},
		{&p.bloom, vkm.BeginPipelineLayout().AddSetLayout(s.single).AddPushConstantRange(frag, 0, bloomPushSize)},
		{&p.final, vkm.BeginPipelineLayout().AddSetLayout(s.single).AddPushConstantRange(frag, 0, finalPushSize)},
		{&p.prefilter, vkm.BeginPipelineLayout().AddSetLayout(s.single).AddPushConstantRange(frag, 0, prefilterPushSize)},
		{&p.brdf, vkm.BeginPipelineLayout().AddSetLayout(s.storage)},
	}
	for _, l := range layouts {
		h, err := m.EndPipelineLayout(l.b)
		if err != nil {
			return p, err
		}
		*l.dst = h
	}
	return p, nil
}

// shaderSet holds the loaded modules of one renderer.
type shaderSet map[string]vkm.Handle

func loadShaders(m *vkm.Manager, dir string) (shaderSet, error) {
	out := shaderSet{}
	for name := range ShaderSources() {
		h, err := m.LoadShaderModule(ShaderPath(dir, name))
		if err != nil {
			for _, loaded := range out {
				_ = m.DestroyShaderModule(loaded)
			}
			return nil, errors.Wrapf(err, "shader %s", name)
		}
		out[name] = h
	}
	return out, nil
}

func (s shaderSet) destroy(m *vkm.Manager) {
	for name, h := range s {
		_ = m.DestroyShaderModule(h)
		delete(s, name)
	}
}

func meshPipeline(layout, pass vkm.Handle, subpass uint32) *vkm.GraphicsPipelineBuilder {
	return vkm.BeginGraphicsPipeline(layout, pass, subpass).
		AddVertexBinding(0, core.VertexStride).
		AddVertexAttribute(0, 0, vk.FormatR32g32b32Sfloat, core.OffsetPosition).
		AddVertexAttribute(1, 0, vk.FormatR32g32b32Sfloat, core.OffsetNormal).
		AddVertexAttribute(2, 0, vk.FormatR32g32Sfloat, core.OffsetUV)
}

func fullscreenPipeline(layout, pass vkm.Handle, shaders shaderSet, frag string) *vkm.GraphicsPipelineBuilder {
	return vkm.BeginGraphicsPipeline(layout, pass, 0).
		AddStage(vk.ShaderStageVertexBit, shaders[shaderFullscreen]).
		AddStage(vk.ShaderStageFragmentBit, shaders[frag]).
		SetCullMode(vk.CullModeNone).
		SetDepth(false, false, vk.CompareOpAlways)
}

// Shadow caster depth bias.
const (
	shadowBiasConstant = 1.25
	shadowBiasSlope    = 1.75
)
