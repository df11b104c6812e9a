package vkm

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// UniformBlob is a host arena holding many uniform structs back to back.
// Allocation is monotonic; offsets handed out stay valid until Reset and
// double as dynamic offsets into the device buffer the blob is copied to.
type UniformBlob struct {
	data      []byte
	used      uint64
	alignment uint64
}

// NewUniformBlob creates a blob whose offsets are multiples of alignment,
// normally the device's minUniformBufferOffsetAlignment.
func NewUniformBlob(capacity, alignment uint64) (*UniformBlob, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, errors.Newf("uniform alignment %d is not a power of two", alignment)
	}
	return &UniformBlob{data: make([]byte, capacity), alignment: alignment}, nil
}

func (u *UniformBlob) align(n uint64) uint64 {
	return (n + u.alignment - 1) &^ (u.alignment - 1)
}

// Alloc reserves size bytes and returns their offset and backing slice.
func (u *UniformBlob) Alloc(size uint64) (uint64, []byte, error) {
	off := u.align(u.used)
	capacity := uint64(len(u.data))
	if size == 0 || off > capacity || size > capacity-off {
		return 0, nil, errors.Wrapf(ErrOutOfMemory, "uniform blob: %d bytes at %d exceeds capacity %d", size, off, len(u.data))
	}
	u.used = off + size
	return off, u.data[off : off+size : off+size], nil
}

// Put writes v, a fixed-size value, little-endian at offset.
func (u *UniformBlob) Put(offset uint64, v interface{}) error {
	n := binary.Size(v)
	if n < 0 {
		return errors.Newf("uniform value %T has no fixed size", v)
	}
	if offset > u.used || uint64(n) > u.used-offset {
		return errors.Wrapf(ErrMapOutOfRange, "uniform write [%d,%d) past allocated %d", offset, offset+uint64(n), u.used)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return errors.Wrapf(err, "encode %T", v)
	}
	copy(u.data[offset:], buf.Bytes())
	return nil
}

// Bytes returns the allocated prefix of the blob.
func (u *UniformBlob) Bytes() []byte { return u.data[:u.used] }

func (u *UniformBlob) Used() uint64 { return u.used }
func (u *UniformBlob) Capacity() uint64 { return uint64(len(u.data)) }
func (u *UniformBlob) Alignment() uint64 { return u.alignment }

// Reset releases every allocation at once.
func (u *UniformBlob) Reset() { u.used = 0 }
