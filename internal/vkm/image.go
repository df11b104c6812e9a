package vkm

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// ImageInfo is the creation request shared by 2D and cube images.
type ImageInfo struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	MemProps      vk.MemoryPropertyFlags
	MipLevels     uint32
	Layers        uint32
	Samples       vk.SampleCountFlagBits
	// Concurrent images may be used from any queue family.
	Concurrent bool
}

// ImageState is a snapshot of an image's description and tracked layout.
type ImageState struct {
	Desc   vulkan.ImageDesc
	Layout vk.ImageLayout
}

func (m *Manager) createImage(desc vulkan.ImageDesc) (Handle, error) {
	if desc.Props == 0 {
		desc.Props = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	img, err := vulkan.CreateImage(m.dev, desc)
	if err != nil {
		return 0, errors.Wrapf(err, "create %dx%d image", desc.Width, desc.Height)
	}
	m.mu.Lock()
	h := m.images.insert(&imageEntry{img: img})
	m.mu.Unlock()
	m.log.Debug("image created", "handle", h, "width", desc.Width, "height", desc.Height,
		"format", desc.Format, "mips", img.Desc.MipLevels, "layers", img.Desc.Layers)
	return h, nil
}

func (m *Manager) CreateImage2D(info ImageInfo) (Handle, error) {
	return m.createImage(vulkan.ImageDesc{
		Width: info.Width, Height: info.Height, Format: info.Format, Usage: info.Usage,
		Props: info.MemProps, MipLevels: info.MipLevels, Layers: info.Layers, Samples: info.Samples,
		Concurrent: info.Concurrent,
	})
}

// CreateImageCube creates a cube-compatible image; Layers defaults to 6
// and must be a multiple of 6.
func (m *Manager) CreateImageCube(info ImageInfo) (Handle, error) {
	if info.Layers == 0 {
		info.Layers = 6
	}
	return m.createImage(vulkan.ImageDesc{
		Width: info.Width, Height: info.Height, Format: info.Format, Usage: info.Usage,
		Props: info.MemProps, MipLevels: info.MipLevels, Layers: info.Layers, Samples: info.Samples,
		Cube: true, Concurrent: info.Concurrent,
	})
}

func (m *Manager) Image(h Handle) (ImageState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.images.get(h)
	if err != nil {
		return ImageState{}, err
	}
	return ImageState{Desc: e.img.Desc, Layout: e.img.Layout}, nil
}

// SetImageLayout records the layout an image is left in by work the
// manager did not issue itself, such as a render pass final layout.
func (m *Manager) SetImageLayout(h Handle, layout vk.ImageLayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.images.get(h)
	if err != nil {
		return err
	}
	e.img.Layout = layout
	return nil
}

// DestroyImage destroys an image together with its views.
func (m *Manager) DestroyImage(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.images.remove(h)
	if err != nil {
		return err
	}
	for _, vh := range e.views {
		if v, err := m.views.remove(vh); err == nil {
			vk.DestroyImageView(m.dev.Device, v.view, nil)
		}
	}
	e.img.Destroy(m.dev)
	return nil
}

// ViewInfo selects the subresources of a view. Zero counts mean the rest
// of the image from the base.
type ViewInfo struct {
	Type       vk.ImageViewType
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

func (m *Manager) CreateImageView(img Handle, info ViewInfo) (Handle, error) {
	m.mu.RLock()
	e, err := m.images.get(img)
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	desc := e.img.Desc
	if info.BaseMip >= desc.MipLevels || info.BaseLayer >= desc.Layers {
		return 0, violation(ErrInvalidAttachmentIndex, "view base mip %d layer %d outside %s", info.BaseMip, info.BaseLayer, img)
	}
	if info.MipCount == 0 {
		info.MipCount = desc.MipLevels - info.BaseMip
	}
	if info.LayerCount == 0 {
		info.LayerCount = desc.Layers - info.BaseLayer
	}
	if info.BaseMip+info.MipCount > desc.MipLevels || info.BaseLayer+info.LayerCount > desc.Layers {
		return 0, violation(ErrInvalidAttachmentIndex, "view mips [%d,+%d) layers [%d,+%d) outside %s",
			info.BaseMip, info.MipCount, info.BaseLayer, info.LayerCount, img)
	}
	vd := vulkan.ViewDesc{
		Type:       info.Type,
		Aspect:     vulkan.AspectFor(desc.Format),
		BaseMip:    info.BaseMip,
		MipCount:   info.MipCount,
		BaseLayer:  info.BaseLayer,
		LayerCount: info.LayerCount,
	}
	if vulkan.IsDepthFormat(desc.Format) {
		// Sampled depth views expose the depth aspect only.
		vd.Aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	view, err := e.img.CreateView(m.dev, vd)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// The image may have been destroyed meanwhile.
	if _, err := m.images.get(img); err != nil {
		vk.DestroyImageView(m.dev.Device, view, nil)
		return 0, err
	}
	h := m.views.insert(&viewEntry{
		view:   view,
		image:  img,
		desc:   vd,
		format: desc.Format,
		width:  desc.Width >> info.BaseMip,
		height: desc.Height >> info.BaseMip,
	})
	e.views = append(e.views, h)
	return h, nil
}

// RegisterExternalView wraps a view the manager does not own, such as a
// swap chain image view, so it can be used as a framebuffer attachment.
func (m *Manager) RegisterExternalView(view vk.ImageView, format vk.Format, width, height uint32) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views.insert(&viewEntry{
		view:     view,
		format:   format,
		width:    width,
		height:   height,
		desc:     vulkan.ViewDesc{Type: vk.ImageViewType2d, MipCount: 1, LayerCount: 1},
		external: true,
	})
}

// ReleaseView forgets a view. Owned views are destroyed; external ones are
// only unregistered.
func (m *Manager) ReleaseView(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.views.remove(h)
	if err != nil {
		return err
	}
	if v.external {
		return nil
	}
	vk.DestroyImageView(m.dev.Device, v.view, nil)
	if e, err := m.images.get(v.image); err == nil {
		for i, vh := range e.views {
			if vh == h {
				e.views = append(e.views[:i], e.views[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (m *Manager) CreateSampler(desc vulkan.SamplerDesc) (Handle, error) {
	s, err := vulkan.CreateSampler(m.dev, desc)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samplers.insert(s), nil
}

// CreateFramebuffer binds views to a render pass. Every attachment must be
// a single mip of a 2D-compatible layer range.
func (m *Manager) CreateFramebuffer(pass Handle, attachments []Handle, width, height, layers uint32) (Handle, error) {
	m.mu.RLock()
	rp, err := m.renderPasses.get(pass)
	if err != nil {
		m.mu.RUnlock()
		return 0, err
	}
	if len(attachments) != rp.attachments {
		m.mu.RUnlock()
		return 0, violation(ErrInvalidAttachmentIndex, "framebuffer has %d views for %d attachments",
			len(attachments), rp.attachments)
	}
	views := make([]vk.ImageView, len(attachments))
	for i, h := range attachments {
		v, err := m.views.get(h)
		if err != nil {
			m.mu.RUnlock()
			return 0, err
		}
		if err := checkAttachmentView(v.desc); err != nil {
			m.mu.RUnlock()
			return 0, errors.Wrapf(err, "attachment %d", i)
		}
		views[i] = v.view
	}
	m.mu.RUnlock()

	if layers == 0 {
		layers = 1
	}
	fb, err := vulkan.CreateFramebuffer(m.dev, rp.handle, views, width, height, layers)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framebuffers.insert(fb), nil
}

func checkAttachmentView(d vulkan.ViewDesc) error {
	if d.MipCount != 1 {
		return violation(ErrInvalidAttachmentIndex, "attachment view spans %d mips", d.MipCount)
	}
	switch d.Type {
	case vk.ImageViewType2d, vk.ImageViewType2dArray:
		return nil
	}
	return violation(ErrInvalidAttachmentIndex, "attachment view type %d is not 2D", d.Type)
}

func (m *Manager) DestroyFramebuffer(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, err := m.framebuffers.remove(h)
	if err != nil {
		return err
	}
	fb.Destroy(m.dev)
	return nil
}
