package vulkan

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirvHeader(magic uint32) []byte {
	words := []uint32{magic, 0x00010500, 0, 16, 0}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestDecodeSPIRV(t *testing.T) {
	words, err := DecodeSPIRV(spirvHeader(spirvMagic))
	require.NoError(t, err)
	assert.Len(t, words, 5)
	assert.Equal(t, uint32(spirvMagic), words[0])
	assert.Equal(t, uint32(16), words[3])

	_, err = DecodeSPIRV(spirvHeader(0xdeadbeef))
	assert.ErrorContains(t, err, "magic")

	_, err = DecodeSPIRV(append(spirvHeader(spirvMagic), 0))
	assert.ErrorContains(t, err, "size")

	_, err = DecodeSPIRV(nil)
	assert.Error(t, err)
}
