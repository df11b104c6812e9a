package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flags(bits ...vk.QueueFlagBits) vk.QueueFlags {
	var f vk.QueueFlags
	for _, b := range bits {
		f |= vk.QueueFlags(b)
	}
	return f
}

// Typical discrete GPU: a universal family, an async compute family, a
// transfer-only family and a video family that cannot present.
func discreteFamilies() []QueueFamily {
	return []QueueFamily{
		{Index: 0, Flags: flags(vk.QueueGraphicsBit, vk.QueueComputeBit, vk.QueueTransferBit), Count: 16, Present: true},
		{Index: 1, Flags: flags(vk.QueueComputeBit, vk.QueueTransferBit), Count: 8, Present: true},
		{Index: 2, Flags: flags(vk.QueueTransferBit), Count: 2},
		{Index: 3, Flags: flags(vk.QueueSparseBindingBit), Count: 1},
	}
}

func TestSelectQueueFamiliesDiscrete(t *testing.T) {
	sel, err := SelectQueueFamilies(discreteFamilies())
	require.NoError(t, err)
	assert.Equal(t, QueueFamilies{Graphics: 0, Compute: 1, Transfer: 2, Present: 0}, sel)
	assert.Equal(t, []uint32{0, 1, 2}, sel.Unique())
}

// A family's queue count must never be mistaken for its capability bits.
// Family 1 has a count whose value equals QueueGraphicsBit but no graphics
// capability.
func TestSelectQueueFamiliesUsesFlagsNotCount(t *testing.T) {
	families := []QueueFamily{
		{Index: 0, Flags: flags(vk.QueueComputeBit), Count: uint32(vk.QueueGraphicsBit)},
		{Index: 1, Flags: flags(vk.QueueGraphicsBit, vk.QueueComputeBit), Count: 2, Present: true},
		{Index: 2, Flags: flags(vk.QueueTransferBit), Count: uint32(vk.QueueGraphicsBit | vk.QueueComputeBit)},
	}
	sel, err := SelectQueueFamilies(families)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), sel.Graphics)
	assert.Equal(t, uint32(0), sel.Compute)
	assert.Equal(t, uint32(2), sel.Transfer)
}

func TestSelectQueueFamiliesSingleFamily(t *testing.T) {
	sel, err := SelectQueueFamilies([]QueueFamily{
		{Index: 0, Flags: flags(vk.QueueGraphicsBit, vk.QueueComputeBit, vk.QueueTransferBit), Count: 1, Present: true},
	})
	require.NoError(t, err)
	assert.Equal(t, QueueFamilies{}, sel)
	assert.Equal(t, []uint32{0}, sel.Unique())
}

func TestSelectQueueFamiliesPrefersPresentCapableGraphics(t *testing.T) {
	sel, err := SelectQueueFamilies([]QueueFamily{
		{Index: 0, Flags: flags(vk.QueueGraphicsBit), Count: 1},
		{Index: 1, Flags: flags(vk.QueueGraphicsBit), Count: 1, Present: true},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), sel.Graphics)
	assert.Equal(t, uint32(1), sel.Present)
}

func TestSelectQueueFamiliesSeparatePresent(t *testing.T) {
	sel, err := SelectQueueFamilies([]QueueFamily{
		{Index: 0, Flags: flags(vk.QueueGraphicsBit, vk.QueueComputeBit), Count: 1},
		{Index: 1, Flags: flags(vk.QueueTransferBit), Count: 1, Present: true},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), sel.Graphics)
	assert.Equal(t, uint32(1), sel.Present)
	assert.Equal(t, uint32(1), sel.Transfer)
}

func TestSelectQueueFamiliesErrors(t *testing.T) {
	_, err := SelectQueueFamilies([]QueueFamily{{Index: 0, Flags: flags(vk.QueueComputeBit), Count: 1, Present: true}})
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))

	_, err = SelectQueueFamilies([]QueueFamily{{Index: 0, Flags: flags(vk.QueueGraphicsBit), Count: 1}})
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))

	_, err = SelectQueueFamilies([]QueueFamily{{Index: 0, Flags: flags(vk.QueueGraphicsBit), Count: 0, Present: true}})
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
}

func TestRateDevice(t *testing.T) {
	discrete := DeviceCandidate{
		Discrete: true, MaxImage2D: 16384, HasSwapchain: true,
		SamplerAnisotropy: true, StorageImageExtendedFormats: true,
		Families: discreteFamilies(),
	}
	integrated := discrete
	integrated.Discrete = false
	assert.Greater(t, RateDevice(discrete), RateDevice(integrated))

	noSwapchain := discrete
	noSwapchain.HasSwapchain = false
	assert.Zero(t, RateDevice(noSwapchain))

	noAniso := discrete
	noAniso.SamplerAnisotropy = false
	assert.Zero(t, RateDevice(noAniso))

	noStorageFormats := discrete
	noStorageFormats.StorageImageExtendedFormats = false
	assert.Zero(t, RateDevice(noStorageFormats))

	noPresent := discrete
	noPresent.Families = []QueueFamily{{Index: 0, Flags: flags(vk.QueueGraphicsBit), Count: 1}}
	assert.Zero(t, RateDevice(noPresent))
}

func TestRateDeviceUsesReportedFeatures(t *testing.T) {
	base := DeviceCandidate{MaxImage2D: 8192, HasSwapchain: true, Families: discreteFamilies()}

	none := base.withFeatures(vk.PhysicalDeviceFeatures{})
	assert.False(t, none.SamplerAnisotropy)
	assert.Zero(t, RateDevice(none))

	noAniso := base.withFeatures(vk.PhysicalDeviceFeatures{ShaderStorageImageExtendedFormats: vk.True})
	assert.Zero(t, RateDevice(noAniso))

	full := base.withFeatures(vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:                 vk.True,
		ShaderStorageImageExtendedFormats: vk.True,
	})
	assert.True(t, full.SamplerAnisotropy)
	assert.True(t, full.StorageImageExtendedFormats)
	assert.Equal(t, uint32(8192), RateDevice(full))
}

func TestQueueKindString(t *testing.T) {
	assert.Equal(t, "graphics", QueueGraphics.String())
	assert.Equal(t, "transfer", QueueTransfer.String())
}
