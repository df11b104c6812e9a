package vkm

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorAttachment() AttachmentDesc {
	return AttachmentDesc{
		Format:      vk.FormatR16g16b16a16Sfloat,
		LoadOp:      vk.AttachmentLoadOpClear,
		StoreOp:     vk.AttachmentStoreOpStore,
		FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

func TestRenderPassBuilderGBuffer(t *testing.T) {
	b := BeginRenderPass()
	albedo := b.AddAttachment(colorAttachment())
	normal := b.AddAttachment(colorAttachment())
	depth := b.AddAttachment(AttachmentDesc{
		Format:      vk.FormatD32Sfloat,
		LoadOp:      vk.AttachmentLoadOpClear,
		StoreOp:     vk.AttachmentStoreOpStore,
		FinalLayout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
	})
	assert.Equal(t, uint32(2), depth)

	sp := b.BeginSubpass().
		AddColor(albedo, vk.ImageLayoutColorAttachmentOptimal).
		AddColor(normal, vk.ImageLayoutColorAttachmentOptimal)
	require.NoError(t, sp.AddDepth(depth, vk.ImageLayoutDepthStencilAttachmentOptimal))
	idx, err := sp.End()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	b.AddDependency(Dependency{Src: External, Dst: 0})
	b.AddDependency(Dependency{Src: 0, Dst: External})
	require.NoError(t, b.Validate())

	info := b.createInfo()
	assert.Equal(t, uint32(3), info.AttachmentCount)
	assert.Equal(t, uint32(1), info.SubpassCount)
	assert.Equal(t, uint32(2), info.PSubpasses[0].ColorAttachmentCount)
	require.NotNil(t, info.PSubpasses[0].PDepthStencilAttachment)
	assert.Equal(t, depth, info.PSubpasses[0].PDepthStencilAttachment.Attachment)
	assert.Equal(t, vk.SampleCount1Bit, info.PAttachments[0].Samples)
	assert.Equal(t, uint32(2), info.DependencyCount)
}

func TestSubpassSecondDepthRejected(t *testing.T) {
	b := BeginRenderPass()
	d := b.AddAttachment(AttachmentDesc{Format: vk.FormatD32Sfloat})
	sp := b.BeginSubpass()
	require.NoError(t, sp.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal))
	err := sp.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal)
	assert.True(t, errors.Is(err, ErrTooManyDepthAttachments))
}

func TestSubpassSecondDepthSticks(t *testing.T) {
	b := BeginRenderPass()
	d := b.AddAttachment(AttachmentDesc{Format: vk.FormatD32Sfloat})
	sp := b.BeginSubpass()
	require.NoError(t, sp.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal))
	_ = sp.AddDepth(d, vk.ImageLayoutDepthStencilAttachmentOptimal)

	_, err := sp.End()
	assert.True(t, errors.Is(err, ErrTooManyDepthAttachments))
	assert.True(t, errors.Is(b.Validate(), ErrTooManyDepthAttachments))
	assert.Zero(t, b.SubpassCount())
}

func TestSubpassResolveMismatch(t *testing.T) {
	b := BeginRenderPass()
	c0 := b.AddAttachment(colorAttachment())
	c1 := b.AddAttachment(colorAttachment())
	r := b.AddAttachment(colorAttachment())
	_, err := b.BeginSubpass().
		AddColor(c0, vk.ImageLayoutColorAttachmentOptimal).
		AddColor(c1, vk.ImageLayoutColorAttachmentOptimal).
		AddResolve(r, vk.ImageLayoutColorAttachmentOptimal).
		End()
	assert.True(t, errors.Is(err, ErrResolveAttachmentMismatch))
	assert.True(t, errors.Is(b.Validate(), ErrResolveAttachmentMismatch), "error sticks to the render pass")
}

func TestSubpassInvalidAttachment(t *testing.T) {
	b := BeginRenderPass()
	b.AddAttachment(colorAttachment())
	_, err := b.BeginSubpass().AddColor(3, vk.ImageLayoutColorAttachmentOptimal).End()
	assert.True(t, errors.Is(err, ErrInvalidAttachmentIndex))

	b = BeginRenderPass()
	b.AddAttachment(colorAttachment())
	_, err = b.BeginSubpass().AddColor(vk.AttachmentUnused, vk.ImageLayoutUndefined).End()
	assert.NoError(t, err, "unused references are allowed")
}

func TestRenderPassDependencyIndices(t *testing.T) {
	build := func(d Dependency) error {
		b := BeginRenderPass()
		c := b.AddAttachment(colorAttachment())
		for i := 0; i < 2; i++ {
			_, err := b.BeginSubpass().AddColor(c, vk.ImageLayoutColorAttachmentOptimal).End()
			require.NoError(t, err)
		}
		b.AddDependency(d)
		return b.Validate()
	}
	assert.NoError(t, build(Dependency{Src: 0, Dst: 1}))
	assert.True(t, errors.Is(build(Dependency{Src: 0, Dst: 2}), ErrInvalidSubpassIndex))
	assert.True(t, errors.Is(build(Dependency{Src: 1, Dst: 0}), ErrInvalidSubpassIndex))
	assert.True(t, errors.Is(build(Dependency{Src: External, Dst: External}), ErrInvalidSubpassIndex))
}

func TestRenderPassOpenSubpass(t *testing.T) {
	b := BeginRenderPass()
	c := b.AddAttachment(colorAttachment())
	b.BeginSubpass().AddColor(c, vk.ImageLayoutColorAttachmentOptimal)
	assert.True(t, errors.Is(b.Validate(), ErrInvalidSubpassIndex))

	assert.True(t, errors.Is(BeginRenderPass().Validate(), ErrInvalidSubpassIndex), "no subpasses")
}

func TestSubpassEndTwice(t *testing.T) {
	b := BeginRenderPass()
	c := b.AddAttachment(colorAttachment())
	sp := b.BeginSubpass().AddColor(c, vk.ImageLayoutColorAttachmentOptimal)
	_, err := sp.End()
	require.NoError(t, err)
	_, err = sp.End()
	assert.True(t, errors.Is(err, ErrInvalidSubpassIndex))
	assert.Equal(t, 1, b.SubpassCount())
}
