package vkm

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTableSize(t *testing.T) {
	assert.Len(t, transitions, 17)
}

// Every transition the renderer records at runtime must be known.
func TestIssuedTransitionsAreKnown(t *testing.T) {
	issued := []layoutPair{
		{layoutUndefined, layoutTransferDst},
		{layoutTransferDst, layoutShaderRead},
		{layoutTransferDst, layoutTransferSrc},
		{layoutTransferSrc, layoutShaderRead},
		{layoutShaderRead, layoutTransferSrc},
		{layoutUndefined, layoutGeneral},
		{layoutGeneral, layoutShaderRead},
		{layoutShaderRead, layoutGeneral},
		{layoutColor, layoutShaderRead},
		{layoutDepth, layoutShaderRead},
		{layoutUndefined, layoutPresent},
	}
	for _, p := range issued {
		_, err := LookupTransition(p.from, p.to)
		assert.NoError(t, err, "%d -> %d", p.from, p.to)
	}
}

func TestUploadTransitionMasks(t *testing.T) {
	b, err := LookupTransition(vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Equal(t, vk.AccessFlags(0), b.SrcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), b.DstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), b.SrcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), b.DstStage)
}

func TestEveryBarrierWaitsOnSomething(t *testing.T) {
	for p, b := range transitions {
		assert.NotZero(t, b.SrcStage, "%d -> %d", p.from, p.to)
		assert.NotZero(t, b.DstStage, "%d -> %d", p.from, p.to)
	}
}

func TestUnsupportedTransition(t *testing.T) {
	_, err := LookupTransition(vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferDstOptimal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedLayoutTransition))
	assert.True(t, errors.HasAssertionFailure(err))
}
