package renderer

import (
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameGraphSamplesOldestFirst(t *testing.T) {
	g := NewFrameGraph("", 3, 16*time.Millisecond)
	for i := 1; i <= 4; i++ {
		g.Add(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 3 * time.Millisecond, 4 * time.Millisecond}, g.Samples())
}

func TestFrameGraphPanelRects(t *testing.T) {
	budget := 10 * time.Millisecond
	g := NewFrameGraph("", 4, budget)
	g.Add(budget)
	g.Add(4 * budget)

	rects := g.panelRects(vk.Extent2D{Width: 800, Height: 600})
	require.Len(t, rects, 3, "background plus one bar per recorded sample")
	bg := rects[0]
	assert.InDelta(t, -1+2*8.0/800, bg.Rect[0], 1e-6)
	assert.InDelta(t, -1+2*8.0/600, bg.Rect[1], 1e-6)

	half, full := rects[1], rects[2]
	assert.InDelta(t, graphHeight/2, (half.Rect[3]-half.Rect[1])*300, 1e-3)
	assert.InDelta(t, graphHeight, (full.Rect[3]-full.Rect[1])*300, 1e-3, "clamped")
	assert.Greater(t, full.Color[0], half.Color[0], "over budget is red")
	for _, r := range rects {
		assert.Less(t, r.Rect[0], r.Rect[2])
		assert.Less(t, r.Rect[1], r.Rect[3])
	}
}

func TestFrameGraphRecordBeforeInit(t *testing.T) {
	g := NewFrameGraph("", 1, time.Millisecond)
	assert.Error(t, g.Record(nil, vk.Extent2D{}))
}
