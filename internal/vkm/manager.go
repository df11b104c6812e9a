// Package vkm is the engine's single point of contact with the Vulkan API
// above device creation. Every GPU object it creates is referenced by a
// generational Handle; all handle tables sit behind one RWMutex.
package vkm

import (
	"log/slog"
	"sync"

	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

type imageEntry struct {
	img   *vulkan.Image
	views []Handle
}

type viewEntry struct {
	view     vk.ImageView
	image    Handle
	desc     vulkan.ViewDesc
	format   vk.Format
	width    uint32
	height   uint32
	external bool
}

type poolEntry struct {
	pool *vulkan.DescriptorPool
	cap  *PoolCapacity
}

type setLayoutEntry struct {
	handle   vk.DescriptorSetLayout
	bindings []vk.DescriptorSetLayoutBinding
}

type setEntry struct {
	set    vk.DescriptorSet
	layout Handle
	pool   Handle
}

type pipelineLayoutEntry struct {
	handle vk.PipelineLayout
	ranges []PushRange
}

type pipelineEntry struct {
	handle vk.Pipeline
	bind   vk.PipelineBindPoint
	layout Handle
}

type renderPassEntry struct {
	handle      vk.RenderPass
	attachments int
	subpasses   int
	targets     []subpassTarget
}

// subpassTarget is what a pipeline built against a subpass must match.
// Zero samples means the subpass has no attachments.
type subpassTarget struct {
	colors  int
	samples vk.SampleCountFlagBits
}

type commandEntry struct {
	cmd    vk.CommandBuffer
	kind   vulkan.QueueKind
	family uint32
}

// Manager owns GPU objects by handle.
type Manager struct {
	mu  sync.RWMutex
	dev *vulkan.Device
	log *slog.Logger

	// xfer serializes one-shot upload and readback submissions.
	xfer  sync.Mutex
	pools map[uint32]*vulkan.CommandPool
	cache vk.PipelineCache

	images          *table[*imageEntry]
	views           *table[*viewEntry]
	samplers        *table[*vulkan.Sampler]
	buffers         *table[*vulkan.Buffer]
	descPools       *table[*poolEntry]
	setLayouts      *table[*setLayoutEntry]
	sets            *table[*setEntry]
	pipelineLayouts *table[*pipelineLayoutEntry]
	pipelines       *table[*pipelineEntry]
	renderPasses    *table[*renderPassEntry]
	framebuffers    *table[*vulkan.Framebuffer]
	commands        *table[*commandEntry]
	semaphores      *table[vk.Semaphore]
	fences          *table[vk.Fence]
	shaders         *table[vk.ShaderModule]
}

// New creates a manager with one command pool per distinct queue family.
func New(dev *vulkan.Device, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := newManager(dev, log)
	for _, family := range dev.Families.Unique() {
		pool, err := vulkan.CreateCommandPool(dev, family)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.pools[family] = pool
	}
	return m, nil
}

func newManager(dev *vulkan.Device, log *slog.Logger) *Manager {
	return &Manager{
		dev:             dev,
		log:             log,
		pools:           map[uint32]*vulkan.CommandPool{},
		images:          newTable[*imageEntry](KindImage),
		views:           newTable[*viewEntry](KindImageView),
		samplers:        newTable[*vulkan.Sampler](KindSampler),
		buffers:         newTable[*vulkan.Buffer](KindBuffer),
		descPools:       newTable[*poolEntry](KindDescriptorPool),
		setLayouts:      newTable[*setLayoutEntry](KindDescriptorSetLayout),
		sets:            newTable[*setEntry](KindDescriptorSet),
		pipelineLayouts: newTable[*pipelineLayoutEntry](KindPipelineLayout),
		pipelines:       newTable[*pipelineEntry](KindPipeline),
		renderPasses:    newTable[*renderPassEntry](KindRenderPass),
		framebuffers:    newTable[*vulkan.Framebuffer](KindFramebuffer),
		commands:        newTable[*commandEntry](KindCommandBuffer),
		semaphores:      newTable[vk.Semaphore](KindSemaphore),
		fences:          newTable[vk.Fence](KindFence),
		shaders:         newTable[vk.ShaderModule](KindShaderModule),
	}
}

func (m *Manager) Device() *vulkan.Device { return m.dev }
func (m *Manager) Logger() *slog.Logger { return m.log }

// MinUniformAlignment is the device's dynamic uniform offset alignment.
func (m *Manager) MinUniformAlignment() uint64 { return m.dev.MinUniformAlignment() }

// WaitIdle blocks until the device has finished all submitted work.
func (m *Manager) WaitIdle() error { return m.dev.WaitIdle() }

// Close destroys every live object, dependents before their owners. The
// device must be idle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dev.Device

	for _, h := range m.pipelines.handles() {
		e, _ := m.pipelines.remove(h)
		vk.DestroyPipeline(d, e.handle, nil)
	}
	for _, h := range m.pipelineLayouts.handles() {
		e, _ := m.pipelineLayouts.remove(h)
		vk.DestroyPipelineLayout(d, e.handle, nil)
	}
	for _, h := range m.shaders.handles() {
		s, _ := m.shaders.remove(h)
		vk.DestroyShaderModule(d, s, nil)
	}
	for _, h := range m.framebuffers.handles() {
		fb, _ := m.framebuffers.remove(h)
		fb.Destroy(m.dev)
	}
	for _, h := range m.renderPasses.handles() {
		e, _ := m.renderPasses.remove(h)
		vk.DestroyRenderPass(d, e.handle, nil)
	}
	for _, h := range m.sets.handles() {
		m.sets.remove(h)
	}
	for _, h := range m.descPools.handles() {
		e, _ := m.descPools.remove(h)
		e.pool.Destroy(m.dev)
	}
	for _, h := range m.setLayouts.handles() {
		e, _ := m.setLayouts.remove(h)
		vk.DestroyDescriptorSetLayout(d, e.handle, nil)
	}
	for _, h := range m.samplers.handles() {
		s, _ := m.samplers.remove(h)
		s.Destroy(m.dev)
	}
	for _, h := range m.views.handles() {
		v, _ := m.views.remove(h)
		if !v.external {
			vk.DestroyImageView(d, v.view, nil)
		}
	}
	for _, h := range m.images.handles() {
		e, _ := m.images.remove(h)
		e.img.Destroy(m.dev)
	}
	for _, h := range m.buffers.handles() {
		b, _ := m.buffers.remove(h)
		b.Destroy(m.dev)
	}
	for _, h := range m.semaphores.handles() {
		s, _ := m.semaphores.remove(h)
		vk.DestroySemaphore(d, s, nil)
	}
	for _, h := range m.fences.handles() {
		f, _ := m.fences.remove(h)
		vk.DestroyFence(d, f, nil)
	}
	for _, h := range m.commands.handles() {
		m.commands.remove(h)
	}
	if m.cache != nil {
		vk.DestroyPipelineCache(d, m.cache, nil)
		m.cache = nil
	}
	for family, pool := range m.pools {
		pool.Destroy(m.dev)
		delete(m.pools, family)
	}
	m.log.Debug("resource manager closed")
}

// Stats reports the number of live objects per kind.
func (m *Manager) Stats() map[Kind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[Kind]int{
		KindImage:               m.images.len(),
		KindImageView:           m.views.len(),
		KindSampler:             m.samplers.len(),
		KindBuffer:              m.buffers.len(),
		KindDescriptorPool:      m.descPools.len(),
		KindDescriptorSetLayout: m.setLayouts.len(),
		KindDescriptorSet:       m.sets.len(),
		KindPipelineLayout:      m.pipelineLayouts.len(),
		KindPipeline:            m.pipelines.len(),
		KindRenderPass:          m.renderPasses.len(),
		KindFramebuffer:         m.framebuffers.len(),
		KindCommandBuffer:       m.commands.len(),
		KindSemaphore:           m.semaphores.len(),
		KindFence:               m.fences.len(),
		KindShaderModule:        m.shaders.len(),
	}
}
