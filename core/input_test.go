package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deferred-engine/math"
)

func TestInputTrackerDrag(t *testing.T) {
	var tr inputTracker
	none := func(Key) bool { return false }

	s := tr.snapshot(none, true, 100, 100)
	assert.Equal(t, math.Vec2{}, s.Drag, "first pressed frame has no delta")

	s = tr.snapshot(none, true, 110, 95)
	assert.Equal(t, math.NewVec2(10, -5), s.Drag)

	s = tr.snapshot(none, false, 200, 200)
	assert.Equal(t, math.Vec2{}, s.Drag)
	s = tr.snapshot(none, true, 210, 200)
	assert.Equal(t, math.Vec2{}, s.Drag, "drag restarts after release")
}

func TestInputTrackerScrollResets(t *testing.T) {
	tr := inputTracker{scroll: 2.5}
	s := tr.snapshot(func(Key) bool { return false }, false, 0, 0)
	assert.Equal(t, float32(2.5), s.Scroll)
	s = tr.snapshot(func(Key) bool { return false }, false, 0, 0)
	assert.Zero(t, s.Scroll)
}

func TestInputStateKeys(t *testing.T) {
	var tr inputTracker
	s := tr.snapshot(func(k Key) bool { return k == KeyForward || k == KeyEscape }, false, 0, 0)
	assert.True(t, s.Pressed(KeyForward))
	assert.True(t, s.Pressed(KeyEscape))
	assert.False(t, s.Pressed(KeyBack))
	assert.False(t, s.Pressed(Key(99)))
}

func TestMeshBounds(t *testing.T) {
	m := MeshData{Vertices: []Vertex{
		{Position: math.NewVec3(1, -2, 3)},
		{Position: math.NewVec3(-1, 4, 0)},
	}}
	lo, hi := m.Bounds()
	assert.Equal(t, math.NewVec3(-1, -2, 0), lo)
	assert.Equal(t, math.NewVec3(1, 4, 3), hi)
	assert.Len(t, m.VertexBytes(), 2*int(VertexStride))
	assert.Equal(t, uint32(32), VertexStride)
}
