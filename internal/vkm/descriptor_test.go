package vkm

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materialBindings() []vk.DescriptorSetLayoutBinding {
	return BeginDescriptorSetLayout().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 1).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 1).
		AddBinding(2, vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 1).
		Bindings()
}

func TestPoolSizes(t *testing.T) {
	sizes := PoolSizes(4, materialBindings())
	assert.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 4},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 8},
	}, sizes)
}

func TestPoolCapacityReserve(t *testing.T) {
	c := NewPoolCapacity(PoolSizes(2, materialBindings()), 2)
	require.NoError(t, c.Reserve(materialBindings()))
	require.NoError(t, c.Reserve(materialBindings()))
	assert.Zero(t, c.Sets())

	err := c.Reserve(materialBindings())
	assert.True(t, errors.Is(err, ErrDescriptorPoolExhausted))
}

func TestPoolCapacityDescriptorExhaustion(t *testing.T) {
	c := NewPoolCapacity([]vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1},
	}, 10)
	err := c.Reserve(materialBindings())
	assert.True(t, errors.Is(err, ErrDescriptorPoolExhausted))
	assert.Equal(t, uint32(10), c.Sets(), "failed reservation takes nothing")
}

func TestIsImageDescriptor(t *testing.T) {
	assert.True(t, isImageDescriptor(vk.DescriptorTypeCombinedImageSampler))
	assert.True(t, isImageDescriptor(vk.DescriptorTypeStorageImage))
	assert.False(t, isImageDescriptor(vk.DescriptorTypeUniformBufferDynamic))
}
