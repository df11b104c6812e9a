package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// SwapChain owns the presentable images of a surface and their views.
type SwapChain struct {
	Handle      vk.Swapchain
	Images      []vk.Image
	ImageViews  []vk.ImageView
	Format      vk.Format
	ColorSpace  vk.ColorSpace
	PresentMode vk.PresentMode
	Extent      vk.Extent2D

	surface vk.Surface
	config  SwapChainConfig
}

type SwapChainConfig struct {
	Width  uint32
	Height uint32
	VSync  bool
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with a non-linear sRGB color
// space and otherwise takes the first reported format.
func ChooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// ChoosePresentMode returns FIFO when vsync is requested. Without vsync it
// picks MAILBOX, then IMMEDIATE, then falls back to FIFO, which is always
// available.
func ChoosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// ChooseExtent uses the surface's current extent unless the platform leaves
// it to the application, in which case the window size is clamped to the
// supported range.
func ChooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum. A maximum of
// zero means unbounded.
func ChooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func CreateSwapChain(d *Device, surface vk.Surface, config SwapChainConfig) (*SwapChain, error) {
	sc := &SwapChain{surface: surface, config: config}
	if err := sc.build(d, vk.NullSwapchain); err != nil {
		return nil, err
	}
	return sc, nil
}

// Recreate rebuilds the swap chain for a new window size, handing the old
// chain to the driver so in-flight presents can retire.
func (sc *SwapChain) Recreate(d *Device, width, height uint32) error {
	old := sc.Handle
	sc.destroyViews(d)
	sc.config.Width, sc.config.Height = width, height
	err := sc.build(d, old)
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(d.Device, old, nil)
	}
	return err
}

func (sc *SwapChain) build(d *Device, old vk.Swapchain) error {
	gpu := d.PhysicalDevice

	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, sc.surface, &caps)
	if err := Check(ret, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var n uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, sc.surface, &n, nil)
	if n == 0 {
		return errors.Wrap(ErrUnsupportedFormat, "surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, n)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, sc.surface, &n, formats)
	for i := range formats {
		formats[i].Deref()
	}

	vk.GetPhysicalDeviceSurfacePresentModes(gpu, sc.surface, &n, nil)
	modes := make([]vk.PresentMode, n)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, sc.surface, &n, modes)

	format := ChooseSurfaceFormat(formats)
	sc.Format = format.Format
	sc.ColorSpace = format.ColorSpace
	sc.PresentMode = ChoosePresentMode(modes, sc.config.VSync)
	sc.Extent = ChooseExtent(caps, sc.config.Width, sc.config.Height)

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    ChooseImageCount(caps),
		ImageFormat:      sc.Format,
		ImageColorSpace:  sc.ColorSpace,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      sc.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if d.Families.Graphics != d.Families.Present {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.Families.Graphics, d.Families.Present}
	}

	var handle vk.Swapchain
	if err := Check(vk.CreateSwapchain(d.Device, &info, nil, &handle), "vkCreateSwapchainKHR"); err != nil {
		return err
	}
	sc.Handle = handle

	ret = vk.GetSwapchainImages(d.Device, handle, &n, nil)
	if err := Check(ret, "vkGetSwapchainImages"); err != nil {
		return err
	}
	sc.Images = make([]vk.Image, n)
	ret = vk.GetSwapchainImages(d.Device, handle, &n, sc.Images)
	if err := Check(ret, "vkGetSwapchainImages"); err != nil {
		return err
	}

	sc.ImageViews = make([]vk.ImageView, len(sc.Images))
	for i, img := range sc.Images {
		wrapped := Image{Handle: img, Desc: ImageDesc{Format: sc.Format}}
		view, err := wrapped.CreateView(d, ViewDesc{
			Type:       vk.ImageViewType2d,
			Aspect:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipCount:   1,
			LayerCount: 1,
		})
		if err != nil {
			return err
		}
		sc.ImageViews[i] = view
	}
	d.log.Debug("swap chain ready",
		"images", len(sc.Images), "width", sc.Extent.Width, "height", sc.Extent.Height,
		"present_mode", sc.PresentMode)
	return nil
}

// AcquireNextImage returns ErrSwapChainOutOfDate when the chain must be
// recreated before rendering can continue.
func (sc *SwapChain) AcquireNextImage(d *Device, signal vk.Semaphore) (uint32, error) {
	var idx uint32
	ret := vk.AcquireNextImage(d.Device, sc.Handle, vk.MaxUint64, signal, vk.NullFence, &idx)
	switch ret {
	case vk.Success, vk.Suboptimal:
		return idx, nil
	case vk.ErrorOutOfDate:
		return 0, errors.Wrap(ErrSwapChainOutOfDate, "acquire")
	}
	return 0, Check(ret, "vkAcquireNextImageKHR")
}

// Present queues image idx once wait is signaled. Suboptimal presents are
// reported as out of date so the caller recreates the chain.
func (sc *SwapChain) Present(d *Device, idx uint32, wait vk.Semaphore) error {
	ret := vk.QueuePresent(d.Present, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{idx},
	})
	switch ret {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return errors.Wrap(ErrSwapChainOutOfDate, "present")
	}
	return Check(ret, "vkQueuePresentKHR")
}

func (sc *SwapChain) destroyViews(d *Device) {
	for _, v := range sc.ImageViews {
		vk.DestroyImageView(d.Device, v, nil)
	}
	sc.ImageViews = nil
	sc.Images = nil
}

func (sc *SwapChain) Destroy(d *Device) {
	sc.destroyViews(d)
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.Device, sc.Handle, nil)
		sc.Handle = vk.NullSwapchain
	}
}
