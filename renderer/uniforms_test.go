package renderer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformLayout(t *testing.T) {
	assert.Equal(t, uint64(528), sceneUniformSize)
	assert.Equal(t, uint64(64), cascadeUniformSize)
	assert.Zero(t, sceneUniformSize%16)
	assert.Zero(t, cascadeUniformSize%16)
}

func TestPushSizesMatchLayouts(t *testing.T) {
	assert.EqualValues(t, objectPushSize, binary.Size(ObjectPush{}))
	assert.EqualValues(t, bloomPushSize, binary.Size(BloomPush{}))
	assert.EqualValues(t, finalPushSize, binary.Size(FinalPush{}))
	assert.EqualValues(t, prefilterPushSize, binary.Size(PrefilterPush{}))
	assert.EqualValues(t, panelPushSize, binary.Size(PanelPush{}))
}

func TestPushBytesLittleEndian(t *testing.T) {
	b := pushBytes(FinalPush{Exposure: 1.5, Gamma: 1})
	assert.Len(t, b, 8)
	assert.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(b))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[4:]))
}
