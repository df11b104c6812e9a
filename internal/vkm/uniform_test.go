package vkm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformBlobAlignment(t *testing.T) {
	u, err := NewUniformBlob(4096, 256)
	require.NoError(t, err)

	type span struct{ off, size uint64 }
	var spans []span
	for _, size := range []uint64{64, 16, 200, 256, 4, 80} {
		off, buf, err := u.Alloc(size)
		require.NoError(t, err)
		assert.Zero(t, off%256, "offset %d", off)
		assert.Len(t, buf, int(size))
		spans = append(spans, span{off, size})
	}
	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i].off, spans[i-1].off+spans[i-1].size, "allocations overlap")
	}
}

func TestUniformBlobCapacity(t *testing.T) {
	u, err := NewUniformBlob(512, 256)
	require.NoError(t, err)
	_, _, err = u.Alloc(300)
	require.NoError(t, err)
	_, _, err = u.Alloc(1)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	_, _, err = u.Alloc(0)
	assert.Error(t, err)

	u.Reset()
	assert.Zero(t, u.Used())
	off, _, err := u.Alloc(512)
	require.NoError(t, err)
	assert.Zero(t, off)
}

func TestUniformBlobHugeRequests(t *testing.T) {
	u, err := NewUniformBlob(300, 256)
	require.NoError(t, err)
	_, _, err = u.Alloc(16)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, _, err = u.Alloc(math.MaxUint64 - 100)
	})
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.Equal(t, uint64(16), u.Used())

	// The aligned offset lands past the end of an unaligned capacity.
	_, _, err = u.Alloc(200)
	require.NoError(t, err)
	_, _, err = u.Alloc(1)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	assert.NotPanics(t, func() {
		err = u.Put(math.MaxUint64-2, uint32(1))
	})
	assert.True(t, errors.Is(err, ErrMapOutOfRange))
}

func TestUniformBlobRejectsBadAlignment(t *testing.T) {
	_, err := NewUniformBlob(1024, 48)
	assert.Error(t, err)
	_, err = NewUniformBlob(1024, 0)
	assert.Error(t, err)
}

func TestUniformBlobPut(t *testing.T) {
	u, err := NewUniformBlob(1024, 64)
	require.NoError(t, err)
	_, _, err = u.Alloc(8)
	require.NoError(t, err)
	off, buf, err := u.Alloc(12)
	require.NoError(t, err)

	require.NoError(t, u.Put(off, [3]float32{1, 2, 3}))
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])))
	assert.Equal(t, u.Bytes()[off:off+12], buf)

	err = u.Put(off, [4]float32{})
	assert.True(t, errors.Is(err, ErrMapOutOfRange))
}
