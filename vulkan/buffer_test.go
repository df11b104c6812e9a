package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFlags(bits ...vk.MemoryPropertyFlagBits) vk.MemoryPropertyFlags {
	var f vk.MemoryPropertyFlags
	for _, b := range bits {
		f |= vk.MemoryPropertyFlags(b)
	}
	return f
}

func TestFindMemoryType(t *testing.T) {
	types := []vk.MemoryPropertyFlags{
		memFlags(vk.MemoryPropertyDeviceLocalBit),
		memFlags(vk.MemoryPropertyDeviceLocalBit, vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit),
		memFlags(vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit),
		memFlags(vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit, vk.MemoryPropertyHostCachedBit),
	}
	hostVis := memFlags(vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit)

	idx, err := FindMemoryType(types, 0xf, hostVis)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx, "tightest host-visible type")

	idx, err = FindMemoryType(types, 0xf, memFlags(vk.MemoryPropertyDeviceLocalBit))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	idx, err = FindMemoryType(types, 0b1010, hostVis)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx, "type bits restrict the choice")

	_, err = FindMemoryType(types, 0b0001, hostVis)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
}

func TestHostVisible(t *testing.T) {
	assert.True(t, hostVisible(memFlags(vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit)))
	assert.False(t, hostVisible(memFlags(vk.MemoryPropertyHostVisibleBit)))
	assert.False(t, hostVisible(memFlags(vk.MemoryPropertyDeviceLocalBit)))
}

func TestBufferMapRequiresHostVisible(t *testing.T) {
	b := &Buffer{Size: 64, Props: memFlags(vk.MemoryPropertyDeviceLocalBit)}
	_, err := b.Map(nil)
	assert.True(t, errors.Is(err, ErrNotHostVisible))
}

func TestDepthFormats(t *testing.T) {
	assert.True(t, IsDepthFormat(vk.FormatD32Sfloat))
	assert.True(t, IsDepthFormat(vk.FormatD24UnormS8Uint))
	assert.False(t, IsDepthFormat(vk.FormatR8g8b8a8Unorm))

	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), AspectFor(vk.FormatD32Sfloat))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), AspectFor(vk.FormatD24UnormS8Uint))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), AspectFor(vk.FormatR16g16b16a16Sfloat))
}
