package vkm

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

var hostCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// HostCoherent is the memory property pair required for mapping.
func HostCoherent() vk.MemoryPropertyFlags { return hostCoherent }

// DeviceLocal is the memory property for GPU-only resources.
func DeviceLocal() vk.MemoryPropertyFlags {
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func (m *Manager) CreateBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (Handle, error) {
	b, err := vulkan.CreateBuffer(m.dev, size, usage, props)
	if err != nil {
		return 0, errors.Wrapf(err, "create %d byte buffer", size)
	}
	m.mu.Lock()
	h := m.buffers.insert(b)
	m.mu.Unlock()
	m.log.Debug("buffer created", "handle", h, "size", size, "host_visible", b.HostVisible())
	return h, nil
}

func (m *Manager) buffer(h Handle) (*vulkan.Buffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buffers.get(h)
}

func (m *Manager) BufferSize(h Handle) (uint64, error) {
	b, err := m.buffer(h)
	if err != nil {
		return 0, err
	}
	return b.Size, nil
}

// MapBuffer maps a host-visible buffer persistently and returns its bytes.
func (m *Manager) MapBuffer(h Handle) ([]byte, error) {
	b, err := m.buffer(h)
	if err != nil {
		return nil, err
	}
	if !b.HostVisible() {
		return nil, violation(ErrNotHostVisible, "map %s", h)
	}
	if _, err := b.Map(m.dev); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (m *Manager) UnmapBuffer(h Handle) error {
	b, err := m.buffer(h)
	if err != nil {
		return err
	}
	b.Unmap(m.dev)
	return nil
}

// WriteBuffer copies data into a host-visible buffer at offset.
func (m *Manager) WriteBuffer(h Handle, offset uint64, data []byte) error {
	b, err := m.buffer(h)
	if err != nil {
		return err
	}
	if !b.HostVisible() {
		return violation(ErrNotHostVisible, "write %s", h)
	}
	if offset+uint64(len(data)) > b.Size {
		return violation(ErrMapOutOfRange, "write [%d,%d) into %s of %d bytes", offset, offset+uint64(len(data)), h, b.Size)
	}
	return b.CopyFrom(m.dev, offset, data)
}

func (m *Manager) DestroyBuffer(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.buffers.remove(h)
	if err != nil {
		return err
	}
	b.Destroy(m.dev)
	return nil
}

func (m *Manager) staging(data []byte, size uint64) (*vulkan.Buffer, error) {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	st, err := vulkan.CreateBuffer(m.dev, size, usage, hostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	if data != nil {
		if err := st.CopyFrom(m.dev, 0, data); err != nil {
			st.Destroy(m.dev)
			return nil, err
		}
	}
	return st, nil
}

// TransferHostDataToBuffer uploads data into a device-local buffer through
// a transient staging buffer and blocks until the copy completes.
func (m *Manager) TransferHostDataToBuffer(dst Handle, offset uint64, data []byte) error {
	b, err := m.buffer(dst)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.Size {
		return violation(ErrMapOutOfRange, "upload [%d,%d) into %s of %d bytes", offset, offset+uint64(len(data)), dst, b.Size)
	}
	if len(data) == 0 {
		return nil
	}
	st, err := m.staging(data, uint64(len(data)))
	if err != nil {
		return err
	}
	defer st.Destroy(m.dev)

	return m.oneShot(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, st.Handle, b.Handle, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: vk.DeviceSize(offset),
			Size:      vk.DeviceSize(len(data)),
		}})
		return nil
	})
}

// ImageRegion is one tightly packed block of pixel data: Offset bytes into
// the host data, covering one mip level of LayerCount layers from Layer.
type ImageRegion struct {
	Offset        uint64
	Mip           uint32
	Layer         uint32
	LayerCount    uint32
	Width, Height uint32
}

func (r ImageRegion) copy(aspect vk.ImageAspectFlags) vk.BufferImageCopy {
	n := r.LayerCount
	if n == 0 {
		n = 1
	}
	return vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(r.Offset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       r.Mip,
			BaseArrayLayer: r.Layer,
			LayerCount:     n,
		},
		ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: 1},
	}
}

// FullImage is the single region covering mip 0 of every layer.
func FullImage(desc vulkan.ImageDesc) []ImageRegion {
	return []ImageRegion{{LayerCount: desc.Layers, Width: desc.Width, Height: desc.Height}}
}

// TransferHostDataToImage uploads the regions of data into the image,
// leaving every subresource in final. It blocks until done.
func (m *Manager) TransferHostDataToImage(dst Handle, data []byte, regions []ImageRegion, final vk.ImageLayout) error {
	m.mu.RLock()
	e, err := m.images.get(dst)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	img := e.img
	if len(regions) == 0 {
		regions = FullImage(img.Desc)
	}
	toDst, err := LookupTransition(img.Layout, vk.ImageLayoutTransferDstOptimal)
	if err != nil {
		return err
	}
	toFinal, err := LookupTransition(vk.ImageLayoutTransferDstOptimal, final)
	if err != nil {
		return err
	}

	st, err := m.staging(data, uint64(len(data)))
	if err != nil {
		return err
	}
	defer st.Destroy(m.dev)

	aspect := vulkan.AspectFor(img.Desc.Format)
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = r.copy(aspect)
	}
	all := Subresource{}
	err = m.oneShot(func(cmd vk.CommandBuffer) error {
		imageBarrier(cmd, img, img.Layout, vk.ImageLayoutTransferDstOptimal, toDst, all)
		vk.CmdCopyBufferToImage(cmd, st.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)
		imageBarrier(cmd, img, vk.ImageLayoutTransferDstOptimal, final, toFinal, all)
		return nil
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	img.Layout = final
	m.mu.Unlock()
	return nil
}

// ReadImageToHost copies the regions of an image back into host memory.
// size is the total byte count the regions occupy. The image is returned
// to its previous layout.
func (m *Manager) ReadImageToHost(src Handle, regions []ImageRegion, size uint64) ([]byte, error) {
	m.mu.RLock()
	e, err := m.images.get(src)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	img := e.img
	prev := img.Layout
	toSrc, err := LookupTransition(prev, vk.ImageLayoutTransferSrcOptimal)
	if err != nil {
		return nil, err
	}
	back, err := LookupTransition(vk.ImageLayoutTransferSrcOptimal, prev)
	if err != nil {
		return nil, err
	}

	st, err := m.staging(nil, size)
	if err != nil {
		return nil, err
	}
	defer st.Destroy(m.dev)

	aspect := vulkan.AspectFor(img.Desc.Format)
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = r.copy(aspect)
	}
	err = m.oneShot(func(cmd vk.CommandBuffer) error {
		imageBarrier(cmd, img, prev, vk.ImageLayoutTransferSrcOptimal, toSrc, Subresource{})
		vk.CmdCopyImageToBuffer(cmd, img.Handle, vk.ImageLayoutTransferSrcOptimal, st.Handle, uint32(len(copies)), copies)
		imageBarrier(cmd, img, vk.ImageLayoutTransferSrcOptimal, prev, back, Subresource{})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := st.Map(m.dev); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, st.Bytes())
	st.Unmap(m.dev)
	return out, nil
}
