package vulkan

import (
	vk "github.com/goki/vulkan"
)

// SamplerDesc is the creation request for a Sampler.
type SamplerDesc struct {
	Filter      vk.Filter
	MipmapMode  vk.SamplerMipmapMode
	AddressMode vk.SamplerAddressMode
	MaxLod      float32
	Anisotropy  float32
	// Compare enables depth comparison sampling for shadow maps.
	Compare bool
	Border  vk.BorderColor
}

type Sampler struct {
	Handle vk.Sampler
	Desc   SamplerDesc
}

func CreateSampler(d *Device, desc SamplerDesc) (*Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		MipmapMode:   desc.MipmapMode,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,
		MaxLod:       desc.MaxLod,
		BorderColor:  desc.Border,
		CompareOp:    vk.CompareOpAlways,
	}
	if desc.Anisotropy > 1 {
		maxAniso := d.Limits.MaxSamplerAnisotropy
		if desc.Anisotropy < maxAniso {
			maxAniso = desc.Anisotropy
		}
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = maxAniso
	}
	if desc.Compare {
		info.CompareEnable = vk.True
		info.CompareOp = vk.CompareOpLessOrEqual
	}

	s := &Sampler{Desc: desc}
	if err := Check(vk.CreateSampler(d.Device, &info, nil, &s.Handle), "vkCreateSampler"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sampler) Destroy(d *Device) {
	if s.Handle != vk.NullSampler {
		vk.DestroySampler(d.Device, s.Handle, nil)
		s.Handle = vk.NullSampler
	}
}

type DescriptorPool struct {
	Handle vk.DescriptorPool
}

func CreateDescriptorPool(d *Device, sizes []vk.DescriptorPoolSize, maxSets uint32) (*DescriptorPool, error) {
	p := &DescriptorPool{}
	ret := vk.CreateDescriptorPool(d.Device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &p.Handle)
	if err := Check(ret, "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *DescriptorPool) Allocate(d *Device, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(d.Device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	if err := Check(ret, "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *DescriptorPool) Destroy(d *Device) {
	if p.Handle != nil {
		vk.DestroyDescriptorPool(d.Device, p.Handle, nil)
		p.Handle = nil
	}
}

type Framebuffer struct {
	Handle        vk.Framebuffer
	Width, Height uint32
	Layers        uint32
}

func CreateFramebuffer(d *Device, pass vk.RenderPass, views []vk.ImageView, width, height, layers uint32) (*Framebuffer, error) {
	fb := &Framebuffer{Width: width, Height: height, Layers: layers}
	ret := vk.CreateFramebuffer(d.Device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          layers,
	}, nil, &fb.Handle)
	if err := Check(ret, "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *Framebuffer) Destroy(d *Device) {
	if fb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(d.Device, fb.Handle, nil)
		fb.Handle = vk.NullFramebuffer
	}
}
