package renderer

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/internal/vkm"
)

// Overlay draws on top of the tone-mapped image inside its own render pass
// and command buffer. Init is called again whenever the pass or extent
// changes.
type Overlay interface {
	Init(m *vkm.Manager, pass vkm.Handle, extent vk.Extent2D) error
	Record(rec *vkm.Recorder, extent vk.Extent2D) error
	Destroy()
}

// PanelPush is the push block of the overlay shaders: a rect in NDC and an
// RGBA color.
type PanelPush struct {
	Rect  [4]float32
	Color [4]float32
}

const panelPushSize = 32

// FrameGraph is an Overlay plotting recent frame times as bars in the top
// left corner. A bar reaching the panel top took twice the budget.
type FrameGraph struct {
	shaderDir string
	budget    time.Duration

	mu      sync.Mutex
	samples []time.Duration
	next    int

	m        *vkm.Manager
	layout   vkm.Handle
	pipeline vkm.Handle
	vert     vkm.Handle
	frag     vkm.Handle
}

// Graph panel size in pixels.
const (
	graphWidth  = 240
	graphHeight = 64
	graphMargin = 8
)

// NewFrameGraph keeps the last n frame times. budget is the frame time
// drawn at half height.
func NewFrameGraph(shaderDir string, n int, budget time.Duration) *FrameGraph {
	if n < 1 {
		n = 1
	}
	return &FrameGraph{shaderDir: shaderDir, budget: budget, samples: make([]time.Duration, n)}
}

// Add records one frame time. It may be called from any goroutine.
func (g *FrameGraph) Add(d time.Duration) {
	g.mu.Lock()
	g.samples[g.next] = d
	g.next = (g.next + 1) % len(g.samples)
	g.mu.Unlock()
}

// Samples returns the recorded frame times, oldest first.
func (g *FrameGraph) Samples() []time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]time.Duration, 0, len(g.samples))
	out = append(out, g.samples[g.next:]...)
	return append(out, g.samples[:g.next]...)
}

func (g *FrameGraph) Init(m *vkm.Manager, pass vkm.Handle, extent vk.Extent2D) error {
	g.m = m
	if g.vert.IsNil() {
		var err error
		if g.vert, err = m.LoadShaderModule(ShaderPath(g.shaderDir, shaderOverlayVert)); err != nil {
			return errors.Wrap(err, "overlay")
		}
		if g.frag, err = m.LoadShaderModule(ShaderPath(g.shaderDir, shaderOverlayFrag)); err != nil {
			return errors.Wrap(err, "overlay")
		}
		stages := shaderStages(vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit)
		if g.layout, err = m.EndPipelineLayout(vkm.BeginPipelineLayout().AddPushConstantRange(stages, 0, panelPushSize)); err != nil {
			return errors.Wrap(err, "overlay layout")
		}
	}
	if !g.pipeline.IsNil() {
		_ = m.DestroyPipeline(g.pipeline)
		g.pipeline = 0
	}
	p, err := m.EndGraphicsPipeline(vkm.BeginGraphicsPipeline(g.layout, pass, 0).
		AddStage(vk.ShaderStageVertexBit, g.vert).
		AddStage(vk.ShaderStageFragmentBit, g.frag).
		SetCullMode(vk.CullModeNone).
		SetDepth(false, false, vk.CompareOpAlways).
		SetBlend(0, vkm.BlendAlpha))
	if err != nil {
		return errors.Wrap(err, "overlay pipeline")
	}
	g.pipeline = p
	return nil
}

// panelRects lays the background and one bar per sample out in NDC for a
// target of the given extent.
func (g *FrameGraph) panelRects(extent vk.Extent2D) []PanelPush {
	samples := g.Samples()
	w, h := float32(extent.Width), float32(extent.Height)
	ndc := func(x, y float32) (float32, float32) { return 2*x/w - 1, 2*y/h - 1 }

	x0, y0 := ndc(graphMargin, graphMargin)
	x1, y1 := ndc(graphMargin+graphWidth, graphMargin+graphHeight)
	out := []PanelPush{{Rect: [4]float32{x0, y0, x1, y1}, Color: [4]float32{0, 0, 0, 0.5}}}

	barW := float32(graphWidth) / float32(len(samples))
	for i, s := range samples {
		if s <= 0 {
			continue
		}
		frac := float32(s) / float32(2*g.budget)
		color := [4]float32{0.2, 0.9, 0.3, 0.9}
		if s > g.budget {
			color = [4]float32{0.95, 0.3, 0.2, 0.9}
		}
		if frac > 1 {
			frac = 1
		}
		left := graphMargin + float32(i)*barW
		bx0, by1 := ndc(left, graphMargin+graphHeight)
		bx1, by0 := ndc(left+barW*0.8, graphMargin+graphHeight-frac*graphHeight)
		out = append(out, PanelPush{Rect: [4]float32{bx0, by0, bx1, by1}, Color: color})
	}
	return out
}

func (g *FrameGraph) Record(rec *vkm.Recorder, extent vk.Extent2D) error {
	if g.pipeline.IsNil() {
		return errors.AssertionFailedf("frame graph recorded before Init")
	}
	rec.BindPipeline(g.pipeline)
	rec.SetViewport(float32(extent.Width), float32(extent.Height))
	rec.SetScissor(extent.Width, extent.Height)
	stages := shaderStages(vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit)
	for _, p := range g.panelRects(extent) {
		rec.PushConstants(stages, 0, pushBytes(p))
		rec.Draw(6, 1, 0, 0)
	}
	return rec.Err()
}

func (g *FrameGraph) Destroy() {
	if g.m == nil {
		return
	}
	if !g.pipeline.IsNil() {
		_ = g.m.DestroyPipeline(g.pipeline)
	}
	if !g.vert.IsNil() {
		_ = g.m.DestroyShaderModule(g.vert)
	}
	if !g.frag.IsNil() {
		_ = g.m.DestroyShaderModule(g.frag)
	}
	g.pipeline, g.vert, g.frag = 0, 0, 0
}
