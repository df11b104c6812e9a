package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/math"
)

func TestAABBUnionAndCorners(t *testing.T) {
	a := AABB{Min: math.NewVec3(0, 0, 0), Max: math.NewVec3(1, 1, 1)}
	b := AABB{Min: math.NewVec3(-1, 0.5, 0), Max: math.NewVec3(0.5, 3, 0.5)}
	u := a.Union(b)
	assert.Equal(t, math.NewVec3(-1, 0, 0), u.Min)
	assert.Equal(t, math.NewVec3(1, 3, 1), u.Max)

	c := a.Corners()
	assert.Equal(t, a.Min, c[0])
	assert.Equal(t, a.Max, c[7])
	assert.Equal(t, a, BoundsOf(c[:]))
}

func TestFrustumCulling(t *testing.T) {
	cam, err := NewCamera(60, 1, 0.1, 50, 1)
	require.NoError(t, err)
	f := FrustumFromViewProj(cam.ViewProjection())

	ahead := AABB{Min: math.NewVec3(-1, -1, -11), Max: math.NewVec3(1, 1, -9)}
	behind := AABB{Min: math.NewVec3(-1, -1, 9), Max: math.NewVec3(1, 1, 11)}
	beyond := AABB{Min: math.NewVec3(-1, -1, -80), Max: math.NewVec3(1, 1, -60)}
	side := AABB{Min: math.NewVec3(40, -1, -11), Max: math.NewVec3(42, 1, -9)}

	assert.True(t, ahead.IntersectsFrustum(&f))
	assert.False(t, behind.IntersectsFrustum(&f))
	assert.False(t, beyond.IntersectsFrustum(&f))
	assert.False(t, side.IntersectsFrustum(&f))
}
