package core

import (
	"unsafe"

	"deferred-engine/math"
)

// Vertex is the interleaved layout of every mesh vertex buffer.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec2
}

const (
	VertexStride   = uint32(unsafe.Sizeof(Vertex{}))
	OffsetPosition = uint32(unsafe.Offsetof(Vertex{}.Position))
	OffsetNormal   = uint32(unsafe.Offsetof(Vertex{}.Normal))
	OffsetUV       = uint32(unsafe.Offsetof(Vertex{}.UV))
)

type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes returns the vertex array as raw bytes for upload.
func (m *MeshData) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), len(m.Vertices)*int(VertexStride))
}

func (m *MeshData) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), len(m.Indices)*4)
}

// Bounds returns the axis-aligned box around every vertex position.
func (m *MeshData) Bounds() (lo, hi math.Vec3) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		lo = lo.Min(v.Position)
		hi = hi.Max(v.Position)
	}
	return lo, hi
}
