package vulkan

import (
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// FindMemoryType picks the tightest-fitting memory type: among the types
// allowed by typeBits whose flags include props, the one with the fewest
// additional property bits.
func FindMemoryType(types []vk.MemoryPropertyFlags, typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	best := -1
	bestExtra := 33
	for i, flags := range types {
		if typeBits&(1<<uint(i)) == 0 || flags&props != props {
			continue
		}
		extra := bits.OnesCount32(uint32(flags &^ props))
		if extra < bestExtra {
			best, bestExtra = i, extra
		}
	}
	if best < 0 {
		return 0, errors.Wrapf(ErrOutOfMemory, "no memory type for bits %#x with properties %#x", typeBits, uint32(props))
	}
	return uint32(best), nil
}

func hostVisible(props vk.MemoryPropertyFlags) bool {
	want := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	return props&want == want
}

type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	Props  vk.MemoryPropertyFlags
	mapped unsafe.Pointer
}

func CreateBuffer(d *Device, size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*Buffer, error) {
	b := &Buffer{Size: size, Usage: usage, Props: props}
	ret := vk.CreateBuffer(d.Device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.Handle)
	if err := Check(ret, "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Device, b.Handle, &req)
	req.Deref()
	mem, err := allocate(d, req, props)
	if err != nil {
		b.Destroy(d)
		return nil, err
	}
	b.Memory = mem
	if err := Check(vk.BindBufferMemory(d.Device, b.Handle, b.Memory, 0), "vkBindBufferMemory"); err != nil {
		b.Destroy(d)
		return nil, err
	}
	return b, nil
}

func allocate(d *Device, req vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	typeIndex, err := d.FindMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(d.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem)
	if err := Check(ret, "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

// HostVisible reports whether the buffer may be mapped.
func (b *Buffer) HostVisible() bool {
	return hostVisible(b.Props)
}

// Map maps the whole buffer and keeps it mapped until Unmap.
func (b *Buffer) Map(d *Device) (unsafe.Pointer, error) {
	if !b.HostVisible() {
		return nil, ErrNotHostVisible
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := Check(vk.MapMemory(d.Device, b.Memory, 0, vk.DeviceSize(b.Size), 0, &ptr), "vkMapMemory"); err != nil {
		return nil, err
	}
	b.mapped = ptr
	return ptr, nil
}

func (b *Buffer) Unmap(d *Device) {
	if b.mapped != nil {
		vk.UnmapMemory(d.Device, b.Memory)
		b.mapped = nil
	}
}

// CopyFrom writes data at offset through the mapping.
func (b *Buffer) CopyFrom(d *Device, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return errors.Wrapf(ErrMapOutOfRange, "write [%d,%d) into buffer of %d bytes", offset, offset+uint64(len(data)), b.Size)
	}
	wasMapped := b.mapped != nil
	ptr, err := b.Map(d)
	if err != nil {
		return err
	}
	vk.Memcopy(unsafe.Add(ptr, offset), data)
	if !wasMapped {
		b.Unmap(d)
	}
	return nil
}

// Bytes returns the mapped memory as a slice, or nil if unmapped.
func (b *Buffer) Bytes() []byte {
	if b.mapped == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.mapped), b.Size)
}

func (b *Buffer) Destroy(d *Device) {
	b.Unmap(d)
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(d.Device, b.Handle, nil)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.Device, b.Memory, nil)
		b.Memory = vk.NullDeviceMemory
	}
}

// ImageDesc is the creation request for an Image.
type ImageDesc struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	Props         vk.MemoryPropertyFlags
	MipLevels     uint32
	Layers        uint32
	Samples       vk.SampleCountFlagBits
	Cube          bool
	// Concurrent shares the image between every queue family the device
	// uses, so work on the compute family needs no ownership transfer.
	Concurrent bool
}

type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Desc   ImageDesc
	Layout vk.ImageLayout
}

func CreateImage(d *Device, desc ImageDesc) (*Image, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	if desc.Samples == 0 {
		desc.Samples = vk.SampleCount1Bit
	}
	var flags vk.ImageCreateFlags
	if desc.Cube {
		if desc.Layers%6 != 0 {
			return nil, errors.Newf("cube image needs a multiple of 6 layers, got %d", desc.Layers)
		}
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	var formatProps vk.ImageFormatProperties
	ret := vk.GetPhysicalDeviceImageFormatProperties(d.PhysicalDevice, desc.Format, vk.ImageType2d,
		vk.ImageTilingOptimal, desc.Usage, flags, &formatProps)
	if ret == vk.ErrorFormatNotSupported {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %d with usage %#x", desc.Format, uint32(desc.Usage))
	}

	sharing := vk.SharingModeExclusive
	var families []uint32
	if desc.Concurrent {
		if families = d.Families.Unique(); len(families) > 1 {
			sharing = vk.SharingModeConcurrent
		} else {
			families = nil
		}
	}

	img := &Image{Desc: desc, Layout: vk.ImageLayoutUndefined}
	ret = vk.CreateImage(d.Device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:             desc.MipLevels,
		ArrayLayers:           desc.Layers,
		Samples:               desc.Samples,
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 desc.Usage,
		SharingMode:           sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}, nil, &img.Handle)
	if err := Check(ret, "vkCreateImage"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.Device, img.Handle, &req)
	req.Deref()
	mem, err := allocate(d, req, desc.Props)
	if err != nil {
		img.Destroy(d)
		return nil, err
	}
	img.Memory = mem
	if err := Check(vk.BindImageMemory(d.Device, img.Handle, img.Memory, 0), "vkBindImageMemory"); err != nil {
		img.Destroy(d)
		return nil, err
	}
	return img, nil
}

// ViewDesc selects the subresource range of an image view.
type ViewDesc struct {
	Type       vk.ImageViewType
	Aspect     vk.ImageAspectFlags
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

func (img *Image) CreateView(d *Device, v ViewDesc) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(d.Device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: v.Type,
		Format:   img.Desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     v.Aspect,
			BaseMipLevel:   v.BaseMip,
			LevelCount:     v.MipCount,
			BaseArrayLayer: v.BaseLayer,
			LayerCount:     v.LayerCount,
		},
	}, nil, &view)
	if err := Check(ret, "vkCreateImageView"); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (img *Image) Destroy(d *Device) {
	if img.Handle != vk.NullImage {
		vk.DestroyImage(d.Device, img.Handle, nil)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.Device, img.Memory, nil)
		img.Memory = vk.NullDeviceMemory
	}
}

// IsDepthFormat reports whether f carries a depth component.
func IsDepthFormat(f vk.Format) bool {
	switch f {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD16UnormS8Uint,
		vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	}
	return false
}

func hasStencil(f vk.Format) bool {
	return f == vk.FormatD32SfloatS8Uint || f == vk.FormatD24UnormS8Uint || f == vk.FormatD16UnormS8Uint
}

// AspectFor returns the image aspect implied by a format.
func AspectFor(f vk.Format) vk.ImageAspectFlags {
	if !IsDepthFormat(f) {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if hasStencil(f) {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
}

// FindDepthFormat returns the first candidate usable as an optimal-tiling
// depth attachment.
func FindDepthFormat(d *Device) (vk.Format, error) {
	candidates := []vk.Format{vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint}
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return f, nil
		}
	}
	return vk.FormatUndefined, errors.Wrap(ErrUnsupportedFormat, "no depth format")
}
