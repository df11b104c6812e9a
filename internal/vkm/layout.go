package vkm

import (
	vk "github.com/goki/vulkan"
)

// Barrier holds the access and stage masks for one layout transition.
type Barrier struct {
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	SrcStage  vk.PipelineStageFlags
	DstStage  vk.PipelineStageFlags
}

type layoutPair struct {
	from, to vk.ImageLayout
}

const (
	layoutUndefined   = vk.ImageLayoutUndefined
	layoutGeneral     = vk.ImageLayoutGeneral
	layoutTransferSrc = vk.ImageLayoutTransferSrcOptimal
	layoutTransferDst = vk.ImageLayoutTransferDstOptimal
	layoutShaderRead  = vk.ImageLayoutShaderReadOnlyOptimal
	layoutColor       = vk.ImageLayoutColorAttachmentOptimal
	layoutDepth       = vk.ImageLayoutDepthStencilAttachmentOptimal
	layoutPresent     = vk.ImageLayoutPresentSrc
)

func access(bits ...vk.AccessFlagBits) vk.AccessFlags {
	var f vk.AccessFlags
	for _, b := range bits {
		f |= vk.AccessFlags(b)
	}
	return f
}

func stage(bits ...vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var f vk.PipelineStageFlags
	for _, b := range bits {
		f |= vk.PipelineStageFlags(b)
	}
	return f
}

var transitions = map[layoutPair]Barrier{
	{layoutUndefined, layoutTransferDst}: {
		DstAccess: access(vk.AccessTransferWriteBit),
		SrcStage:  stage(vk.PipelineStageTopOfPipeBit),
		DstStage:  stage(vk.PipelineStageTransferBit),
	},
	{layoutUndefined, layoutColor}: {
		DstAccess: access(vk.AccessColorAttachmentWriteBit),
		SrcStage:  stage(vk.PipelineStageTopOfPipeBit),
		DstStage:  stage(vk.PipelineStageColorAttachmentOutputBit),
	},
	{layoutUndefined, layoutDepth}: {
		DstAccess: access(vk.AccessDepthStencilAttachmentReadBit, vk.AccessDepthStencilAttachmentWriteBit),
		SrcStage:  stage(vk.PipelineStageTopOfPipeBit),
		DstStage:  stage(vk.PipelineStageEarlyFragmentTestsBit),
	},
	{layoutUndefined, layoutShaderRead}: {
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageTopOfPipeBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit),
	},
	{layoutUndefined, layoutGeneral}: {
		DstAccess: access(vk.AccessShaderReadBit, vk.AccessShaderWriteBit),
		SrcStage:  stage(vk.PipelineStageTopOfPipeBit),
		DstStage:  stage(vk.PipelineStageComputeShaderBit),
	},
	{layoutUndefined, layoutPresent}: {
		SrcStage: stage(vk.PipelineStageTopOfPipeBit),
		DstStage: stage(vk.PipelineStageBottomOfPipeBit),
	},
	{layoutTransferDst, layoutShaderRead}: {
		SrcAccess: access(vk.AccessTransferWriteBit),
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageTransferBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit, vk.PipelineStageComputeShaderBit),
	},
	{layoutTransferDst, layoutTransferSrc}: {
		SrcAccess: access(vk.AccessTransferWriteBit),
		DstAccess: access(vk.AccessTransferReadBit),
		SrcStage:  stage(vk.PipelineStageTransferBit),
		DstStage:  stage(vk.PipelineStageTransferBit),
	},
	{layoutTransferSrc, layoutShaderRead}: {
		SrcAccess: access(vk.AccessTransferReadBit),
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageTransferBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit),
	},
	{layoutShaderRead, layoutTransferSrc}: {
		SrcAccess: access(vk.AccessShaderReadBit),
		DstAccess: access(vk.AccessTransferReadBit),
		SrcStage:  stage(vk.PipelineStageFragmentShaderBit),
		DstStage:  stage(vk.PipelineStageTransferBit),
	},
	{layoutShaderRead, layoutTransferDst}: {
		SrcAccess: access(vk.AccessShaderReadBit),
		DstAccess: access(vk.AccessTransferWriteBit),
		SrcStage:  stage(vk.PipelineStageFragmentShaderBit),
		DstStage:  stage(vk.PipelineStageTransferBit),
	},
	{layoutShaderRead, layoutGeneral}: {
		SrcAccess: access(vk.AccessShaderReadBit),
		DstAccess: access(vk.AccessShaderWriteBit),
		SrcStage:  stage(vk.PipelineStageFragmentShaderBit),
		DstStage:  stage(vk.PipelineStageComputeShaderBit),
	},
	{layoutGeneral, layoutShaderRead}: {
		SrcAccess: access(vk.AccessShaderWriteBit),
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageComputeShaderBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit),
	},
	{layoutColor, layoutShaderRead}: {
		SrcAccess: access(vk.AccessColorAttachmentWriteBit),
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageColorAttachmentOutputBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit),
	},
	{layoutColor, layoutTransferSrc}: {
		SrcAccess: access(vk.AccessColorAttachmentWriteBit),
		DstAccess: access(vk.AccessTransferReadBit),
		SrcStage:  stage(vk.PipelineStageColorAttachmentOutputBit),
		DstStage:  stage(vk.PipelineStageTransferBit),
	},
	{layoutColor, layoutPresent}: {
		SrcAccess: access(vk.AccessColorAttachmentWriteBit),
		SrcStage:  stage(vk.PipelineStageColorAttachmentOutputBit),
		DstStage:  stage(vk.PipelineStageBottomOfPipeBit),
	},
	{layoutDepth, layoutShaderRead}: {
		SrcAccess: access(vk.AccessDepthStencilAttachmentWriteBit),
		DstAccess: access(vk.AccessShaderReadBit),
		SrcStage:  stage(vk.PipelineStageLateFragmentTestsBit),
		DstStage:  stage(vk.PipelineStageFragmentShaderBit),
	},
}

// LookupTransition returns the barrier masks for moving an image from one
// layout to another. Only the transitions the engine issues are known.
func LookupTransition(from, to vk.ImageLayout) (Barrier, error) {
	b, ok := transitions[layoutPair{from, to}]
	if !ok {
		return Barrier{}, violation(ErrUnsupportedLayoutTransition, "layout %d -> %d", from, to)
	}
	return b, nil
}
