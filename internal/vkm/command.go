package vkm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// Subresource selects mips and layers of an image. Zero counts cover the
// rest of the image.
type Subresource struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

func (s Subresource) vkRange(img *vulkan.Image) vk.ImageSubresourceRange {
	mips, layers := s.MipCount, s.LayerCount
	if mips == 0 {
		mips = img.Desc.MipLevels - s.BaseMip
	}
	if layers == 0 {
		layers = img.Desc.Layers - s.BaseLayer
	}
	return vk.ImageSubresourceRange{
		AspectMask:     vulkan.AspectFor(img.Desc.Format),
		BaseMipLevel:   s.BaseMip,
		LevelCount:     mips,
		BaseArrayLayer: s.BaseLayer,
		LayerCount:     layers,
	}
}

// whole reports whether s covers every mip and layer of img.
func (s Subresource) whole(img *vulkan.Image) bool {
	r := s.vkRange(img)
	return r.BaseMipLevel == 0 && r.LevelCount == img.Desc.MipLevels &&
		r.BaseArrayLayer == 0 && r.LayerCount == img.Desc.Layers
}

// trackLayout records to as the image layout when sub covers the whole
// image. Partial transitions leave the tracked layout alone.
func trackLayout(img *vulkan.Image, sub Subresource, to vk.ImageLayout) {
	if sub.whole(img) {
		img.Layout = to
	}
}

func imageBarrier(cmd vk.CommandBuffer, img *vulkan.Image, from, to vk.ImageLayout, b Barrier, sub Subresource) {
	vk.CmdPipelineBarrier(cmd, b.SrcStage, b.DstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       b.SrcAccess,
		DstAccessMask:       b.DstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange:    sub.vkRange(img),
	}})
}

// oneShot records fn on the graphics queue and waits for it to finish.
func (m *Manager) oneShot(fn func(cmd vk.CommandBuffer) error) error {
	m.xfer.Lock()
	defer m.xfer.Unlock()
	queue, family := m.dev.Queue(vulkan.QueueGraphics)
	pool, ok := m.pools[family]
	if !ok {
		return errors.AssertionFailedf("no command pool for family %d", family)
	}
	return vulkan.ExecuteSingleTimeCommands(m.dev, pool, queue, fn)
}

// AllocateCommandBuffer allocates a primary command buffer from the pool
// of the family serving kind.
func (m *Manager) AllocateCommandBuffer(kind vulkan.QueueKind) (Handle, error) {
	_, family := m.dev.Queue(kind)
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[family]
	if !ok {
		return 0, errors.AssertionFailedf("no command pool for %s family %d", kind, family)
	}
	cmd, err := pool.Allocate(m.dev)
	if err != nil {
		return 0, err
	}
	return m.commands.insert(&commandEntry{cmd: cmd, kind: kind, family: family}), nil
}

func (m *Manager) FreeCommandBuffer(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.commands.remove(h)
	if err != nil {
		return err
	}
	if pool, ok := m.pools[e.family]; ok {
		pool.Free(m.dev, e.cmd)
	}
	return nil
}

func (m *Manager) ResetCommandBuffer(h Handle) error {
	m.mu.RLock()
	e, err := m.commands.get(h)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return vulkan.Check(vk.ResetCommandBuffer(e.cmd, 0), "vkResetCommandBuffer")
}

// BeginCommandBuffer starts recording h. A command buffer must only be
// recorded from one goroutine at a time.
func (m *Manager) BeginCommandBuffer(h Handle, oneShot bool) (*Recorder, error) {
	m.mu.RLock()
	e, err := m.commands.get(h)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneShot {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := vulkan.Check(vk.BeginCommandBuffer(e.cmd, &info), "vkBeginCommandBuffer"); err != nil {
		return nil, err
	}
	return &Recorder{m: m, h: h, cmd: e.cmd}, nil
}

// Recorder records commands into one command buffer. The first failed
// lookup sticks: later calls are skipped and End reports it.
type Recorder struct {
	m   *Manager
	h   Handle
	cmd vk.CommandBuffer
	err error

	layout vk.PipelineLayout
	bind   vk.PipelineBindPoint
}

func (r *Recorder) Err() error { return r.err }

func (r *Recorder) fail(err error) bool {
	if err != nil && r.err == nil {
		r.err = errors.Wrapf(err, "recording %s", r.h)
	}
	return r.err != nil
}

// End finishes recording.
func (r *Recorder) End() error {
	if r.err != nil {
		vk.EndCommandBuffer(r.cmd)
		return r.err
	}
	return vulkan.Check(vk.EndCommandBuffer(r.cmd), "vkEndCommandBuffer")
}

func (r *Recorder) BeginRenderPass(pass, framebuffer Handle, extent vk.Extent2D, clears []vk.ClearValue) {
	if r.err != nil {
		return
	}
	r.m.mu.RLock()
	rp, err := r.m.renderPasses.get(pass)
	var fb *vulkan.Framebuffer
	if err == nil {
		fb, err = r.m.framebuffers.get(framebuffer)
	}
	r.m.mu.RUnlock()
	if r.fail(err) {
		return
	}
	vk.CmdBeginRenderPass(r.cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
}

func (r *Recorder) NextSubpass() {
	if r.err == nil {
		vk.CmdNextSubpass(r.cmd, vk.SubpassContentsInline)
	}
}

func (r *Recorder) EndRenderPass() {
	if r.err == nil {
		vk.CmdEndRenderPass(r.cmd)
	}
}

// BindPipeline binds p and remembers its layout for descriptor and push
// constant calls that follow.
func (r *Recorder) BindPipeline(p Handle) {
	if r.err != nil {
		return
	}
	r.m.mu.RLock()
	e, err := r.m.pipelines.get(p)
	var layout *pipelineLayoutEntry
	if err == nil {
		layout, err = r.m.pipelineLayouts.get(e.layout)
	}
	r.m.mu.RUnlock()
	if r.fail(err) {
		return
	}
	r.layout = layout.handle
	r.bind = e.bind
	vk.CmdBindPipeline(r.cmd, e.bind, e.handle)
}

func (r *Recorder) BindDescriptorSets(first uint32, sets []Handle, dynamicOffsets []uint32) {
	if r.err != nil {
		return
	}
	if r.layout == nil {
		r.fail(errors.AssertionFailedf("descriptor sets bound before a pipeline"))
		return
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	r.m.mu.RLock()
	for i, h := range sets {
		e, err := r.m.sets.get(h)
		if err != nil {
			r.m.mu.RUnlock()
			r.fail(err)
			return
		}
		vkSets[i] = e.set
	}
	r.m.mu.RUnlock()
	vk.CmdBindDescriptorSets(r.cmd, r.bind, r.layout, first, uint32(len(vkSets)), vkSets,
		uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (r *Recorder) BindVertexBuffer(buf Handle, offset uint64) {
	if r.err != nil {
		return
	}
	b, err := r.m.buffer(buf)
	if r.fail(err) {
		return
	}
	vk.CmdBindVertexBuffers(r.cmd, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *Recorder) BindIndexBuffer(buf Handle, offset uint64, typ vk.IndexType) {
	if r.err != nil {
		return
	}
	b, err := r.m.buffer(buf)
	if r.fail(err) {
		return
	}
	vk.CmdBindIndexBuffer(r.cmd, b.Handle, vk.DeviceSize(offset), typ)
}

func (r *Recorder) Draw(vertices, instances, firstVertex, firstInstance uint32) {
	if r.err == nil {
		vk.CmdDraw(r.cmd, vertices, instances, firstVertex, firstInstance)
	}
}

func (r *Recorder) DrawIndexed(indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if r.err == nil {
		vk.CmdDrawIndexed(r.cmd, indices, instances, firstIndex, vertexOffset, firstInstance)
	}
}

func (r *Recorder) Dispatch(x, y, z uint32) {
	if r.err == nil {
		vk.CmdDispatch(r.cmd, x, y, z)
	}
}

func (r *Recorder) PushConstants(stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if r.err != nil || len(data) == 0 {
		return
	}
	if r.layout == nil {
		r.fail(errors.AssertionFailedf("push constants before a pipeline"))
		return
	}
	vk.CmdPushConstants(r.cmd, r.layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// SetViewport sets a full-target viewport with depth range [0,1].
func (r *Recorder) SetViewport(width, height float32) {
	if r.err == nil {
		vk.CmdSetViewport(r.cmd, 0, 1, []vk.Viewport{{
			Width: width, Height: height, MinDepth: 0, MaxDepth: 1,
		}})
	}
}

func (r *Recorder) SetScissor(width, height uint32) {
	if r.err == nil {
		vk.CmdSetScissor(r.cmd, 0, 1, []vk.Rect2D{{
			Extent: vk.Extent2D{Width: width, Height: height},
		}})
	}
}

// TransitionImageLayout records a barrier moving sub from one layout to
// another. The tracked image layout follows only whole-image transitions;
// callers moving single mips or layers restore a uniform layout before
// relying on it.
func (r *Recorder) TransitionImageLayout(img Handle, from, to vk.ImageLayout, sub Subresource) {
	if r.err != nil {
		return
	}
	b, err := LookupTransition(from, to)
	if r.fail(err) {
		return
	}
	r.m.mu.Lock()
	e, err := r.m.images.get(img)
	if err == nil {
		trackLayout(e.img, sub, to)
	}
	r.m.mu.Unlock()
	if r.fail(err) {
		return
	}
	imageBarrier(r.cmd, e.img, from, to, b, sub)
}

// CopyImage copies one mip/layer of src (TransferSrc) into dst (TransferDst).
func (r *Recorder) CopyImage(src, dst Handle, srcSub, dstSub Subresource, width, height uint32) {
	if r.err != nil {
		return
	}
	r.m.mu.RLock()
	s, err := r.m.images.get(src)
	var d *imageEntry
	if err == nil {
		d, err = r.m.images.get(dst)
	}
	r.m.mu.RUnlock()
	if r.fail(err) {
		return
	}
	vk.CmdCopyImage(r.cmd, s.img.Handle, vk.ImageLayoutTransferSrcOptimal, d.img.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{{
			SrcSubresource: layers(s.img, srcSub),
			DstSubresource: layers(d.img, dstSub),
			Extent:         vk.Extent3D{Width: width, Height: height, Depth: 1},
		}})
}

// BlitMip downsamples mip srcMip into dstMip of the same image for the
// given layer with a linear filter. srcMip must be in TransferSrc and
// dstMip in TransferDst.
func (r *Recorder) BlitMip(img Handle, layer, srcMip, dstMip uint32) {
	if r.err != nil {
		return
	}
	r.m.mu.RLock()
	e, err := r.m.images.get(img)
	r.m.mu.RUnlock()
	if r.fail(err) {
		return
	}
	w, h := int32(e.img.Desc.Width), int32(e.img.Desc.Height)
	size := func(mip uint32) [2]vk.Offset3D {
		return [2]vk.Offset3D{{}, {X: max(w>>mip, 1), Y: max(h>>mip, 1), Z: 1}}
	}
	vk.CmdBlitImage(r.cmd, e.img.Handle, vk.ImageLayoutTransferSrcOptimal, e.img.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: layers(e.img, Subresource{BaseMip: srcMip, BaseLayer: layer, LayerCount: 1}),
			SrcOffsets:     size(srcMip),
			DstSubresource: layers(e.img, Subresource{BaseMip: dstMip, BaseLayer: layer, LayerCount: 1}),
			DstOffsets:     size(dstMip),
		}}, vk.FilterLinear)
}

func layers(img *vulkan.Image, s Subresource) vk.ImageSubresourceLayers {
	n := s.LayerCount
	if n == 0 {
		n = 1
	}
	return vk.ImageSubresourceLayers{
		AspectMask:     vulkan.AspectFor(img.Desc.Format),
		MipLevel:       s.BaseMip,
		BaseArrayLayer: s.BaseLayer,
		LayerCount:     n,
	}
}
