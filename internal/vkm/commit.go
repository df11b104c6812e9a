package vkm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// CreatePipelineCache seeds the driver pipeline cache used by every
// subsequent pipeline creation. Empty initial data starts a cold cache.
func (m *Manager) CreatePipelineCache(initial []byte) error {
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if len(initial) > 0 {
		info.InitialDataSize = uint64(len(initial))
		info.PInitialData = unsafe.Pointer(&initial[0])
	}
	var cache vk.PipelineCache
	ret := vk.CreatePipelineCache(m.dev.Device, &info, nil, &cache)
	if err := vulkan.Check(ret, "vkCreatePipelineCache"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		vk.DestroyPipelineCache(m.dev.Device, m.cache, nil)
	}
	m.cache = cache
	return nil
}

// PipelineCacheData returns the driver's serialized pipeline cache, or nil
// when no cache was created.
func (m *Manager) PipelineCacheData() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cache == nil {
		return nil, nil
	}
	var size uint64
	ret := vk.GetPipelineCacheData(m.dev.Device, m.cache, &size, nil)
	if err := vulkan.Check(ret, "vkGetPipelineCacheData"); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	ret = vk.GetPipelineCacheData(m.dev.Device, m.cache, &size, unsafe.Pointer(&data[0]))
	if err := vulkan.Check(ret, "vkGetPipelineCacheData"); err != nil {
		return nil, err
	}
	return data[:size], nil
}

// EndRenderPass validates the builder and creates the render pass.
func (m *Manager) EndRenderPass(b *RenderPassBuilder) (Handle, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	info := b.createInfo()
	var pass vk.RenderPass
	ret := vk.CreateRenderPass(m.dev.Device, &info, nil, &pass)
	if err := vulkan.Check(ret, "vkCreateRenderPass"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderPasses.insert(&renderPassEntry{
		handle:      pass,
		attachments: b.AttachmentCount(),
		subpasses:   b.SubpassCount(),
		targets:     b.targets(),
	}), nil
}

func (m *Manager) DestroyRenderPass(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.renderPasses.remove(h)
	if err != nil {
		return err
	}
	vk.DestroyRenderPass(m.dev.Device, e.handle, nil)
	return nil
}

func (m *Manager) EndPipelineLayout(b *PipelineLayoutBuilder) (Handle, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sets := make([]vk.DescriptorSetLayout, len(b.sets))
	for i, h := range b.sets {
		e, err := m.setLayouts.get(h)
		if err != nil {
			return 0, errors.Wrapf(err, "set %d", i)
		}
		sets[i] = e.handle
	}
	ranges := make([]vk.PushConstantRange, len(b.ranges))
	for i, r := range b.ranges {
		ranges[i] = vk.PushConstantRange{StageFlags: r.Stages, Offset: r.Offset, Size: r.Size}
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(m.dev.Device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            sets,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout)
	if err := vulkan.Check(ret, "vkCreatePipelineLayout"); err != nil {
		return 0, err
	}
	return m.pipelineLayouts.insert(&pipelineLayoutEntry{
		handle: layout,
		ranges: append([]PushRange(nil), b.ranges...),
	}), nil
}

// EndGraphicsPipeline validates the builder against its layout and render
// pass and creates the pipeline through the manager's pipeline cache. The
// manager lock covers only the handle lookups and the final insert.
func (m *Manager) EndGraphicsPipeline(b *GraphicsPipelineBuilder) (Handle, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	layout, pass, stages, cache, err := m.graphicsInputs(b)
	if err != nil {
		return 0, err
	}
	info := b.createInfo(stages, layout, pass)
	out := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(m.dev.Device, cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, out)
	if err := vulkan.Check(ret, "vkCreateGraphicsPipelines"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipelines.insert(&pipelineEntry{
		handle: out[0],
		bind:   vk.PipelineBindPointGraphics,
		layout: b.Layout,
	}), nil
}

func (m *Manager) graphicsInputs(b *GraphicsPipelineBuilder) (vk.PipelineLayout, vk.RenderPass,
	[]vk.PipelineShaderStageCreateInfo, vk.PipelineCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	layout, err := m.pipelineLayouts.get(b.Layout)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pass, err := m.renderPasses.get(b.RenderPass)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := b.checkTarget(pass); err != nil {
		return nil, nil, nil, nil, err
	}
	stages := make([]vk.PipelineShaderStageCreateInfo, len(b.Stages))
	for i, s := range b.Stages {
		mod, err := m.shaders.get(s.Module)
		if err != nil {
			return nil, nil, nil, nil, errors.Wrapf(err, "stage %d", i)
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  s.Stage,
			Module: mod,
			PName:  "main\x00",
		}
	}
	return layout.handle, pass.handle, stages, m.cache, nil
}

func (m *Manager) EndComputePipeline(b *ComputePipelineBuilder) (Handle, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	layout, err := m.pipelineLayouts.get(b.Layout)
	var mod vk.ShaderModule
	if err == nil {
		mod, err = m.shaders.get(b.Shader)
	}
	cache := m.cache
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	out := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(m.dev.Device, cache, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Layout: layout.handle,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: mod,
			PName:  "main\x00",
		},
	}}, nil, out)
	if err := vulkan.Check(ret, "vkCreateComputePipelines"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipelines.insert(&pipelineEntry{
		handle: out[0],
		bind:   vk.PipelineBindPointCompute,
		layout: b.Layout,
	}), nil
}

func (m *Manager) DestroyPipeline(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.pipelines.remove(h)
	if err != nil {
		return err
	}
	vk.DestroyPipeline(m.dev.Device, e.handle, nil)
	return nil
}
