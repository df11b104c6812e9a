package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/internal/vkm"
	"deferred-engine/vulkan"
)

// attachment is an image with its full 2D view.
type attachment struct {
	image vkm.Handle
	view  vkm.Handle
}

var sampledAttachment = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)

func newAttachment(m *vkm.Manager, w, h uint32, format vk.Format, usage vk.ImageUsageFlags) (attachment, error) {
	img, err := m.CreateImage2D(vkm.ImageInfo{Width: w, Height: h, Format: format, Usage: usage})
	if err != nil {
		return attachment{}, err
	}
	view, err := m.CreateImageView(img, vkm.ViewInfo{Type: vk.ImageViewType2d})
	if err != nil {
		_ = m.DestroyImage(img)
		return attachment{}, err
	}
	return attachment{image: img, view: view}, nil
}

func (a *attachment) destroy(m *vkm.Manager) {
	if !a.image.IsNil() {
		_ = m.DestroyImage(a.image)
	}
	*a = attachment{}
}

// targets holds everything sized by the swap chain: the G-buffers, the HDR
// and bloom targets and the framebuffers over them.
type targets struct {
	extent      vk.Extent2D
	bloomExtent vk.Extent2D

	gbuffer [3]attachment
	depth   attachment
	hdr     attachment
	bloom   [2]attachment

	geometryFB vkm.Handle
	lightingFB vkm.Handle
	mergeFB    vkm.Handle
	bloomFB    [2]vkm.Handle

	// One per swap chain image.
	swapViews []vkm.Handle
	finalFB   []vkm.Handle
	overlayFB []vkm.Handle
}

// passes lists the render passes the frame targets are built against.
type passes struct {
	geometry, shadow, lighting, bloom, merge, final, overlay, prefilter vkm.Handle
}

func buildTargets(m *vkm.Manager, rp passes, sc *vulkan.SwapChain, depthFormat vk.Format) (*targets, error) {
	t := &targets{extent: sc.Extent}
	w, h := sc.Extent.Width, sc.Extent.Height
	t.bloomExtent = vk.Extent2D{Width: max(w/2, 1), Height: max(h/2, 1)}
	if err := t.build(m, rp, sc, depthFormat); err != nil {
		t.destroy(m)
		return nil, err
	}
	return t, nil
}

func (t *targets) build(m *vkm.Manager, rp passes, sc *vulkan.SwapChain, depthFormat vk.Format) error {
	w, h := t.extent.Width, t.extent.Height
	var err error
	for i, f := range []vk.Format{formatNormalAlbedo, formatPosition, formatMaterial} {
		if t.gbuffer[i], err = newAttachment(m, w, h, f, sampledAttachment); err != nil {
			return errors.Wrapf(err, "gbuffer %d", i)
		}
	}
	if t.depth, err = newAttachment(m, w, h, depthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)); err != nil {
		return errors.Wrap(err, "depth")
	}
	if t.hdr, err = newAttachment(m, w, h, formatHDR, sampledAttachment); err != nil {
		return errors.Wrap(err, "hdr")
	}
	for i := range t.bloom {
		if t.bloom[i], err = newAttachment(m, t.bloomExtent.Width, t.bloomExtent.Height, formatHDR, sampledAttachment); err != nil {
			return errors.Wrapf(err, "bloom %d", i)
		}
	}

	if t.geometryFB, err = m.CreateFramebuffer(rp.geometry,
		[]vkm.Handle{t.gbuffer[0].view, t.gbuffer[1].view, t.gbuffer[2].view, t.depth.view}, w, h, 1); err != nil {
		return errors.Wrap(err, "geometry framebuffer")
	}
	if t.lightingFB, err = m.CreateFramebuffer(rp.lighting, []vkm.Handle{t.hdr.view}, w, h, 1); err != nil {
		return errors.Wrap(err, "lighting framebuffer")
	}
	if t.mergeFB, err = m.CreateFramebuffer(rp.merge, []vkm.Handle{t.hdr.view}, w, h, 1); err != nil {
		return errors.Wrap(err, "merge framebuffer")
	}
	for i := range t.bloomFB {
		if t.bloomFB[i], err = m.CreateFramebuffer(rp.bloom, []vkm.Handle{t.bloom[i].view},
			t.bloomExtent.Width, t.bloomExtent.Height, 1); err != nil {
			return errors.Wrapf(err, "bloom framebuffer %d", i)
		}
	}

	for _, v := range sc.ImageViews {
		t.swapViews = append(t.swapViews, m.RegisterExternalView(v, sc.Format, w, h))
	}
	for i, v := range t.swapViews {
		fb, err := m.CreateFramebuffer(rp.final, []vkm.Handle{v}, w, h, 1)
		if err != nil {
			return errors.Wrapf(err, "final framebuffer %d", i)
		}
		t.finalFB = append(t.finalFB, fb)
		if rp.overlay.IsNil() {
			continue
		}
		fb, err = m.CreateFramebuffer(rp.overlay, []vkm.Handle{v}, w, h, 1)
		if err != nil {
			return errors.Wrapf(err, "overlay framebuffer %d", i)
		}
		t.overlayFB = append(t.overlayFB, fb)
	}
	return nil
}

func (t *targets) destroy(m *vkm.Manager) {
	fbs := append([]vkm.Handle{t.geometryFB, t.lightingFB, t.mergeFB, t.bloomFB[0], t.bloomFB[1]}, t.finalFB...)
	for _, fb := range append(fbs, t.overlayFB...) {
		if !fb.IsNil() {
			_ = m.DestroyFramebuffer(fb)
		}
	}
	for _, v := range t.swapViews {
		_ = m.ReleaseView(v)
	}
	for i := range t.gbuffer {
		t.gbuffer[i].destroy(m)
	}
	t.depth.destroy(m)
	t.hdr.destroy(m)
	for i := range t.bloom {
		t.bloom[i].destroy(m)
	}
	t.finalFB, t.overlayFB, t.swapViews = nil, nil, nil
}

// shadowMap is the cascade depth array. It does not depend on the window.
type shadowMap struct {
	image  vkm.Handle
	array  vkm.Handle   // sampled view over every cascade
	layers []vkm.Handle // one attachment view per cascade
	fb     vkm.Handle
}

func newShadowMap(m *vkm.Manager, pass vkm.Handle, resolution uint32, cascades int) (*shadowMap, error) {
	img, err := m.CreateImage2D(vkm.ImageInfo{
		Width: resolution, Height: resolution, Format: formatShadow,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit),
		Layers: uint32(cascades),
	})
	if err != nil {
		return nil, errors.Wrap(err, "shadow map")
	}
	s := &shadowMap{image: img}
	if s.array, err = m.CreateImageView(img, vkm.ViewInfo{Type: vk.ImageViewType2dArray}); err != nil {
		s.destroy(m)
		return nil, err
	}
	for i := 0; i < cascades; i++ {
		v, err := m.CreateImageView(img, vkm.ViewInfo{Type: vk.ImageViewType2d, BaseLayer: uint32(i), LayerCount: 1})
		if err != nil {
			s.destroy(m)
			return nil, err
		}
		s.layers = append(s.layers, v)
	}
	if s.fb, err = m.CreateFramebuffer(pass, s.layers, resolution, resolution, 1); err != nil {
		s.destroy(m)
		return nil, errors.Wrap(err, "shadow framebuffer")
	}
	return s, nil
}

func (s *shadowMap) destroy(m *vkm.Manager) {
	if !s.fb.IsNil() {
		_ = m.DestroyFramebuffer(s.fb)
	}
	if !s.image.IsNil() {
		_ = m.DestroyImage(s.image)
	}
	*s = shadowMap{}
}
