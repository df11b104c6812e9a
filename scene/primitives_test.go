package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/core"
)

// assertOutwardWinding checks that each non-degenerate triangle's
// counter-clockwise normal agrees with its vertex normals.
func assertOutwardWinding(t *testing.T, m *core.MeshData) {
	t.Helper()
	require.Zero(t, len(m.Indices)%3)
	for i := 0; i < len(m.Indices); i += 3 {
		a := m.Vertices[m.Indices[i]]
		b := m.Vertices[m.Indices[i+1]]
		c := m.Vertices[m.Indices[i+2]]
		face := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if !assert.Positive(t, face.LengthSqr(), "triangle %d is degenerate", i/3) {
			continue
		}
		avg := a.Normal.Add(b.Normal).Add(c.Normal)
		assert.Positive(t, face.Dot(avg), "triangle %d faces inward", i/3)
	}
}

func TestCubeWinding(t *testing.T) {
	m := CreateCube(2)
	assert.Len(t, m.Vertices, 24)
	assert.Len(t, m.Indices, 36)
	assertOutwardWinding(t, m)

	lo, hi := m.Bounds()
	assert.InDelta(t, -1, lo.X, 1e-6)
	assert.InDelta(t, 1, hi.Z, 1e-6)
}

func TestPlaneWinding(t *testing.T) {
	m := CreatePlane(4, 2, 3)
	assert.Len(t, m.Vertices, 16)
	assert.Len(t, m.Indices, 3*3*6)
	assertOutwardWinding(t, m)
}

func TestSphereWindingSkipsPoles(t *testing.T) {
	m := CreateSphere(1, 8, 4)
	assert.Len(t, m.Indices, 8*(2*4-2)*3)
	assertOutwardWinding(t, m)
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Position.Length(), 1e-5)
	}
}

func TestBuiltinMesh(t *testing.T) {
	for _, name := range []string{"builtin:cube", "builtin:plane", "sphere"} {
		m, err := BuiltinMesh(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, m.Indices, name)
	}
	_, err := BuiltinMesh("builtin:teapot")
	assert.Error(t, err)
}
