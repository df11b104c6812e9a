package vkm

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"deferred-engine/vulkan"
)

func mippedCube() *vulkan.Image {
	return &vulkan.Image{
		Desc:   vulkan.ImageDesc{Width: 64, Height: 64, Format: vk.FormatR16g16b16a16Sfloat, MipLevels: 7, Layers: 6},
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

func TestSubresourceWhole(t *testing.T) {
	img := mippedCube()
	assert.True(t, Subresource{}.whole(img))
	assert.True(t, Subresource{MipCount: 7, LayerCount: 6}.whole(img))
	assert.False(t, Subresource{BaseMip: 1}.whole(img))
	assert.False(t, Subresource{MipCount: 1}.whole(img))
	assert.False(t, Subresource{BaseLayer: 2, LayerCount: 1}.whole(img))
}

func TestTrackLayoutIgnoresPartialTransitions(t *testing.T) {
	img := mippedCube()
	trackLayout(img, Subresource{BaseMip: 0, MipCount: 1}, vk.ImageLayoutTransferSrcOptimal)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, img.Layout)

	trackLayout(img, Subresource{BaseLayer: 3, LayerCount: 1}, vk.ImageLayoutTransferDstOptimal)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, img.Layout)

	trackLayout(img, Subresource{}, vk.ImageLayoutColorAttachmentOptimal)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, img.Layout)
}
