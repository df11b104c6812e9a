package vkm

import (
	vk "github.com/goki/vulkan"
)

// External is the pseudo-subpass outside the render pass.
const External = vk.SubpassExternal

// AttachmentDesc describes one render pass attachment.
type AttachmentDesc struct {
	Format         vk.Format
	Samples        vk.SampleCountFlagBits
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  vk.ImageLayout
	FinalLayout    vk.ImageLayout
}

// Dependency orders two subpasses, or a subpass and External.
type Dependency struct {
	Src, Dst             uint32
	SrcStage, DstStage   vk.PipelineStageFlags
	SrcAccess, DstAccess vk.AccessFlags
	ByRegion             bool
}

type subpassDesc struct {
	color    []vk.AttachmentReference
	input    []vk.AttachmentReference
	resolve  []vk.AttachmentReference
	depth    *vk.AttachmentReference
	preserve []uint32
}

// RenderPassBuilder accumulates a render pass description. It is a plain
// value: create one per render pass with BeginRenderPass and commit it
// with Manager.EndRenderPass.
type RenderPassBuilder struct {
	attachments []AttachmentDesc
	subpasses   []subpassDesc
	deps        []Dependency
	open        int
	err         error
}

func BeginRenderPass() *RenderPassBuilder {
	return &RenderPassBuilder{}
}

// AddAttachment appends an attachment and returns its index.
func (b *RenderPassBuilder) AddAttachment(a AttachmentDesc) uint32 {
	if a.Samples == 0 {
		a.Samples = vk.SampleCount1Bit
	}
	b.attachments = append(b.attachments, a)
	return uint32(len(b.attachments) - 1)
}

// AttachmentCount reports the attachments declared so far.
func (b *RenderPassBuilder) AttachmentCount() int { return len(b.attachments) }

// SubpassCount reports the sealed subpasses.
func (b *RenderPassBuilder) SubpassCount() int { return len(b.subpasses) }

// BeginSubpass opens a nested subpass description. Subpasses are numbered
// in the order their End is called.
func (b *RenderPassBuilder) BeginSubpass() *SubpassBuilder {
	b.open++
	return &SubpassBuilder{rp: b}
}

func (b *RenderPassBuilder) AddDependency(d Dependency) {
	b.deps = append(b.deps, d)
}

// Validate checks the accumulated description.
func (b *RenderPassBuilder) Validate() error {
	if b.err != nil {
		return b.err
	}
	if b.open != 0 {
		return violation(ErrInvalidSubpassIndex, "%d subpass descriptions still open", b.open)
	}
	if len(b.subpasses) == 0 {
		return violation(ErrInvalidSubpassIndex, "render pass has no subpasses")
	}
	for i, sp := range b.subpasses {
		if err := b.checkRefs(i, sp); err != nil {
			return err
		}
	}
	n := uint32(len(b.subpasses))
	for i, d := range b.deps {
		if d.Src == External && d.Dst == External {
			return violation(ErrInvalidSubpassIndex, "dependency %d: both ends external", i)
		}
		if (d.Src != External && d.Src >= n) || (d.Dst != External && d.Dst >= n) {
			return violation(ErrInvalidSubpassIndex, "dependency %d: %d -> %d with %d subpasses", i, d.Src, d.Dst, n)
		}
		if d.Src != External && d.Dst != External && d.Src > d.Dst {
			return violation(ErrInvalidSubpassIndex, "dependency %d: %d -> %d runs backwards", i, d.Src, d.Dst)
		}
	}
	return nil
}

func (b *RenderPassBuilder) checkRefs(index int, sp subpassDesc) error {
	n := uint32(len(b.attachments))
	check := func(kind string, a uint32) error {
		if a != vk.AttachmentUnused && a >= n {
			return violation(ErrInvalidAttachmentIndex, "subpass %d %s attachment %d of %d", index, kind, a, n)
		}
		return nil
	}
	for _, r := range sp.color {
		if err := check("color", r.Attachment); err != nil {
			return err
		}
	}
	for _, r := range sp.input {
		if err := check("input", r.Attachment); err != nil {
			return err
		}
	}
	for _, r := range sp.resolve {
		if err := check("resolve", r.Attachment); err != nil {
			return err
		}
	}
	for _, a := range sp.preserve {
		if err := check("preserve", a); err != nil {
			return err
		}
	}
	if sp.depth != nil {
		return check("depth", sp.depth.Attachment)
	}
	return nil
}

// targets reports the color count and sample count of each sealed subpass.
func (b *RenderPassBuilder) targets() []subpassTarget {
	out := make([]subpassTarget, len(b.subpasses))
	for i, sp := range b.subpasses {
		out[i].colors = len(sp.color)
		refs := append([]vk.AttachmentReference(nil), sp.color...)
		if sp.depth != nil {
			refs = append(refs, *sp.depth)
		}
		for _, r := range refs {
			if r.Attachment != vk.AttachmentUnused {
				out[i].samples = b.attachments[r.Attachment].Samples
				break
			}
		}
	}
	return out
}

func (b *RenderPassBuilder) createInfo() vk.RenderPassCreateInfo {
	atts := make([]vk.AttachmentDescription, len(b.attachments))
	for i, a := range b.attachments {
		atts[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        a.Samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}
	subs := make([]vk.SubpassDescription, len(b.subpasses))
	for i, sp := range b.subpasses {
		subs[i] = vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			InputAttachmentCount:    uint32(len(sp.input)),
			PInputAttachments:       sp.input,
			ColorAttachmentCount:    uint32(len(sp.color)),
			PColorAttachments:       sp.color,
			PResolveAttachments:     sp.resolve,
			PDepthStencilAttachment: sp.depth,
			PreserveAttachmentCount: uint32(len(sp.preserve)),
			PPreserveAttachments:    sp.preserve,
		}
	}
	deps := make([]vk.SubpassDependency, len(b.deps))
	for i, d := range b.deps {
		deps[i] = vk.SubpassDependency{
			SrcSubpass:    d.Src,
			DstSubpass:    d.Dst,
			SrcStageMask:  d.SrcStage,
			DstStageMask:  d.DstStage,
			SrcAccessMask: d.SrcAccess,
			DstAccessMask: d.DstAccess,
		}
		if d.ByRegion {
			deps[i].DependencyFlags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
	}
	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    uint32(len(subs)),
		PSubpasses:      subs,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
}

// SubpassBuilder describes one subpass inside a RenderPassBuilder.
type SubpassBuilder struct {
	rp     *RenderPassBuilder
	desc   subpassDesc
	sealed bool
	err    error
}

// fail records err on the subpass and, if it is the first, on the render pass.
func (s *SubpassBuilder) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	if s.rp.err == nil {
		s.rp.err = err
	}
	return err
}

func (s *SubpassBuilder) AddColor(attachment uint32, layout vk.ImageLayout) *SubpassBuilder {
	s.desc.color = append(s.desc.color, vk.AttachmentReference{Attachment: attachment, Layout: layout})
	return s
}

func (s *SubpassBuilder) AddInput(attachment uint32, layout vk.ImageLayout) *SubpassBuilder {
	s.desc.input = append(s.desc.input, vk.AttachmentReference{Attachment: attachment, Layout: layout})
	return s
}

func (s *SubpassBuilder) AddResolve(attachment uint32, layout vk.ImageLayout) *SubpassBuilder {
	s.desc.resolve = append(s.desc.resolve, vk.AttachmentReference{Attachment: attachment, Layout: layout})
	return s
}

func (s *SubpassBuilder) AddPreserve(attachment uint32) *SubpassBuilder {
	s.desc.preserve = append(s.desc.preserve, attachment)
	return s
}

// AddDepth sets the subpass depth attachment. A subpass has at most one;
// a second is an error that also sticks to the subpass and render pass.
func (s *SubpassBuilder) AddDepth(attachment uint32, layout vk.ImageLayout) error {
	if s.desc.depth != nil {
		return s.fail(violation(ErrTooManyDepthAttachments, "depth attachment %d after %d", attachment, s.desc.depth.Attachment))
	}
	s.desc.depth = &vk.AttachmentReference{Attachment: attachment, Layout: layout}
	return nil
}

// End seals the subpass into its render pass and returns its index.
func (s *SubpassBuilder) End() (uint32, error) {
	if s.sealed {
		return 0, violation(ErrInvalidSubpassIndex, "subpass ended twice")
	}
	s.sealed = true
	s.rp.open--
	if s.err != nil {
		return 0, s.err
	}
	if len(s.desc.resolve) > 0 && len(s.desc.resolve) != len(s.desc.color) {
		return 0, s.fail(violation(ErrResolveAttachmentMismatch, "%d resolve attachments for %d color attachments",
			len(s.desc.resolve), len(s.desc.color)))
	}
	idx := len(s.rp.subpasses)
	if err := s.rp.checkRefs(idx, s.desc); err != nil {
		return 0, s.fail(err)
	}
	s.rp.subpasses = append(s.rp.subpasses, s.desc)
	return uint32(idx), nil
}
