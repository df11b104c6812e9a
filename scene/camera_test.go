package scene

import (
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/core"
	"deferred-engine/math"
)

func vecNear(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-4)
	assert.InDelta(t, want.Y, got.Y, 1e-4)
	assert.InDelta(t, want.Z, got.Z, 1e-4)
}

func TestNewCameraRejectsBadInput(t *testing.T) {
	_, err := NewCamera(60, 1, 1, 30, 0)
	assert.Error(t, err)
	_, err = NewCamera(60, 1, 1, 30, MaxCascades+1)
	assert.Error(t, err)
	_, err = NewCamera(60, 1, 30, 1, 3)
	assert.Error(t, err)
}

func TestCameraBasis(t *testing.T) {
	c, err := NewCamera(60, 1, 0.1, 100, 1)
	require.NoError(t, err)
	vecNear(t, math.NewVec3(0, 0, -1), c.Forward())
	vecNear(t, math.NewVec3(1, 0, 0), c.Right())
	vecNear(t, math.NewVec3(0, 1, 0), c.Up())

	c.Rotate(math32.Pi/2, 0)
	vecNear(t, math.NewVec3(1, 0, 0), c.Forward())

	c.Rotate(0, 10)
	assert.InDelta(t, maxPitch, c.Pitch, 1e-6, "pitch clamps short of the pole")
}

func TestSplitDepths(t *testing.T) {
	c, err := NewCamera(60, 16.0/9, 1, 30, 3)
	require.NoError(t, err)
	splits := c.SplitDepths(0.5)
	require.Len(t, splits, 3)
	assert.InDelta(t, 6.887, splits[0], 1e-3)
	assert.InDelta(t, 14.994, splits[1], 1e-3)
	assert.Equal(t, float32(30), splits[2])
}

func TestSplitDepthsMonotonic(t *testing.T) {
	for _, tc := range []struct{ near, far float32 }{{0.1, 100}, {1, 30}, {0.5, 5000}, {2, 2.5}} {
		for n := 1; n <= MaxCascades; n++ {
			for _, lambda := range []float32{0, 0.25, 0.5, 0.75, 1} {
				c, err := NewCamera(60, 1, tc.near, tc.far, n)
				require.NoError(t, err)
				splits := c.SplitDepths(lambda)
				prev := tc.near
				for i, d := range splits {
					assert.Greater(t, d, prev, "near=%g far=%g n=%d lambda=%g split %d", tc.near, tc.far, n, lambda, i)
					assert.LessOrEqual(t, d, tc.far)
					prev = d
				}
			}
		}
	}
}

func TestCornersWorldSpace(t *testing.T) {
	for n := 1; n <= MaxCascades; n++ {
		c, err := NewCamera(60, 1.5, 1, 30, n)
		require.NoError(t, err)
		corners := c.CornersWorldSpace()
		require.Len(t, corners, 4*n+4)
		for i := 0; i+1 < n; i++ {
			a, b := CascadeCorners(corners, i), CascadeCorners(corners, i+1)
			assert.Equal(t, a[4:], b[:4], "cascade %d shares its far plane", i)
		}
	}
}

func TestCornersAtNearPlane(t *testing.T) {
	c, err := NewCamera(90, 2, 1, 10, 1)
	require.NoError(t, err)
	corners := c.CornersWorldSpace()
	// tan(45°) = 1 so the near plane is 4x2 at z=-1.
	vecNear(t, math.NewVec3(-2, -1, -1), corners[0])
	vecNear(t, math.NewVec3(2, 1, -1), corners[2])
	vecNear(t, math.NewVec3(20, 10, -10), corners[6])
}

func TestCameraApply(t *testing.T) {
	c, err := NewCamera(60, 1, 0.1, 100, 2)
	require.NoError(t, err)
	var in core.InputState
	in.Keys[core.KeyForward] = true
	in.Keys[core.KeyRight] = true
	in.Delta = 500 * time.Millisecond
	c.Apply(in, Controls{Speed: 2, Sensitivity: 0.01})
	vecNear(t, math.NewVec3(1, 0, -1), c.Position)

	fov := c.FOV
	c.Apply(core.InputState{Scroll: 5}, DefaultControls())
	assert.Less(t, c.FOV, fov)

	c.Apply(core.InputState{Drag: math.NewVec2(100, 0)}, Controls{Sensitivity: 0.01})
	assert.InDelta(t, 1, c.Yaw, 1e-6)
}
