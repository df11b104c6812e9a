package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"deferred-engine/vulkan"
)

// ErrCyclicPassGraph reports a pass graph whose read/write edges loop.
var ErrCyclicPassGraph = errors.New("pass graph has a cycle")

// Schedule says how often a pass runs.
type Schedule int

const (
	// OneTime passes run once before the first frame.
	OneTime Schedule = iota
	// PerFrame passes run every frame.
	PerFrame
)

func (s Schedule) String() string {
	if s == OneTime {
		return "one-time"
	}
	return "per-frame"
}

// Submission groups per-frame passes that share one queue submission. The
// groups run in declaration order, each waiting on the previous one.
type Submission string

const (
	SubmitScene   Submission = "scene"
	SubmitPost    Submission = "post"
	SubmitFinal   Submission = "final"
	SubmitOverlay Submission = "overlay"
)

// Pass is one node of the graph. Reads and Writes name resources.
type Pass struct {
	Name     string
	Queue    vulkan.QueueKind
	Schedule Schedule
	Submit   Submission
	Reads    []string
	Writes   []string
}

// Resource is an image the passes exchange. External resources are
// produced outside the graph, by asset upload or the swap chain.
type Resource struct {
	Name     string
	External bool
}

// PassGraph describes the frame as data. The orchestrator builds its
// passes from the graph and submits them in Order.
type PassGraph struct {
	Resources []Resource
	Passes    []Pass
}

// Resource names used by the default graph.
const (
	ResEnvironment = "environment"
	ResSpecular    = "specular_irradiance"
	ResBRDFLUT     = "brdf_lut"
	ResGBuffer     = "gbuffer"
	ResDepth       = "depth"
	ResShadowMap   = "shadow_map"
	ResHDR         = "hdr"
	ResBloom       = "bloom"
	ResSwapchain   = "swapchain"
)

// Pass names used by the default graph.
const (
	PassPrefilter = "environment_prefilter"
	PassBRDFLUT   = "brdf_lut"
	PassGeometry  = "geometry"
	PassShadow    = "shadow"
	PassLighting  = "lighting"
	PassBloom     = "bloom"
	PassFinal     = "final_output"
	PassOverlay   = "overlay"
)

// DefaultPassGraph is the deferred pipeline: environment prefilter and BRDF
// bake once, then geometry, shadow, lighting, bloom and final output every
// frame. cascades is recorded in the shadow pass name for logging.
func DefaultPassGraph(cascades int) *PassGraph {
	return &PassGraph{
		Resources: []Resource{
			{Name: ResEnvironment, External: true},
			{Name: ResSwapchain, External: true},
			{Name: ResSpecular},
			{Name: ResBRDFLUT},
			{Name: ResGBuffer},
			{Name: ResDepth},
			{Name: ResShadowMap},
			{Name: ResHDR},
			{Name: ResBloom},
		},
		Passes: []Pass{
			{Name: PassPrefilter, Queue: vulkan.QueueGraphics, Schedule: OneTime,
				Reads: []string{ResEnvironment}, Writes: []string{ResSpecular}},
			{Name: PassBRDFLUT, Queue: vulkan.QueueCompute, Schedule: OneTime,
				Writes: []string{ResBRDFLUT}},
			{Name: PassGeometry, Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitScene,
				Writes: []string{ResGBuffer, ResDepth}},
			{Name: fmt.Sprintf("%s[%d]", PassShadow, cascades), Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitScene,
				Writes: []string{ResShadowMap}},
			{Name: PassLighting, Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitScene,
				Reads:  []string{ResGBuffer, ResShadowMap, ResBRDFLUT, ResSpecular, ResEnvironment},
				Writes: []string{ResHDR}},
			{Name: PassBloom, Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitPost,
				Reads: []string{ResHDR}, Writes: []string{ResBloom, ResHDR}},
			{Name: PassFinal, Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitFinal,
				Reads: []string{ResHDR, ResBloom}, Writes: []string{ResSwapchain}},
			{Name: PassOverlay, Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: SubmitOverlay,
				Reads: []string{ResSwapchain}, Writes: []string{ResSwapchain}},
		},
	}
}

// Validate checks names, schedules and acyclicity.
func (g *PassGraph) Validate() error {
	_, err := g.Order()
	return err
}

// Order returns the passes topologically sorted along writer-to-reader
// edges. Ties keep declaration order, so one-time passes declared first
// come first.
func (g *PassGraph) Order() ([]Pass, error) {
	resources := make(map[string]Resource, len(g.Resources))
	for _, r := range g.Resources {
		if _, dup := resources[r.Name]; dup {
			return nil, errors.Newf("resource %q declared twice", r.Name)
		}
		resources[r.Name] = r
	}

	names := make(map[string]bool, len(g.Passes))
	writers := map[string][]int{}
	for i, p := range g.Passes {
		if p.Name == "" {
			return nil, errors.Newf("pass %d has no name", i)
		}
		if names[p.Name] {
			return nil, errors.Newf("pass %q declared twice", p.Name)
		}
		names[p.Name] = true
		if p.Schedule == PerFrame && p.Submit == "" {
			return nil, errors.Newf("per-frame pass %q has no submission group", p.Name)
		}
		for _, w := range p.Writes {
			r, ok := resources[w]
			if !ok {
				return nil, errors.Newf("pass %q writes unknown resource %q", p.Name, w)
			}
			if r.External && p.Schedule == OneTime {
				return nil, errors.Newf("one-time pass %q writes external resource %q", p.Name, w)
			}
			writers[w] = append(writers[w], i)
		}
	}

	succ := make([][]int, len(g.Passes))
	indegree := make([]int, len(g.Passes))
	for i, p := range g.Passes {
		for _, rd := range p.Reads {
			r, ok := resources[rd]
			if !ok {
				return nil, errors.Newf("pass %q reads unknown resource %q", p.Name, rd)
			}
			if len(writers[rd]) == 0 && !r.External {
				return nil, errors.Newf("pass %q reads %q which no pass writes", p.Name, rd)
			}
			for _, w := range writers[rd] {
				if w == i {
					continue
				}
				if p.Schedule == OneTime && g.Passes[w].Schedule == PerFrame {
					return nil, errors.Newf("one-time pass %q reads per-frame output %q of %q", p.Name, rd, g.Passes[w].Name)
				}
				succ[w] = append(succ[w], i)
				indegree[i]++
			}
		}
	}

	// Kahn's algorithm, always taking the earliest declared ready pass.
	done := make([]bool, len(g.Passes))
	order := make([]Pass, 0, len(g.Passes))
	for len(order) < len(g.Passes) {
		next := -1
		for i := range g.Passes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, p := range g.Passes {
				if !done[i] {
					stuck = append(stuck, p.Name)
				}
			}
			return nil, errors.Wrapf(ErrCyclicPassGraph, "passes %v", stuck)
		}
		done[next] = true
		order = append(order, g.Passes[next])
		for _, s := range succ[next] {
			indegree[s]--
		}
	}
	return order, nil
}

// Submissions returns the per-frame submission groups in execution order
// with their passes.
func (g *PassGraph) Submissions() ([]Submission, map[Submission][]Pass, error) {
	order, err := g.Order()
	if err != nil {
		return nil, nil, err
	}
	var groups []Submission
	passes := map[Submission][]Pass{}
	for _, p := range order {
		if p.Schedule != PerFrame {
			continue
		}
		if _, seen := passes[p.Submit]; !seen {
			groups = append(groups, p.Submit)
		} else if groups[len(groups)-1] != p.Submit {
			return nil, nil, errors.Newf("submission %q is interleaved with %q at pass %q",
				p.Submit, groups[len(groups)-1], p.Name)
		}
		passes[p.Submit] = append(passes[p.Submit], p)
	}
	return groups, passes, nil
}

// SubmissionQueues returns the queue each submission group is submitted
// on, in group order. Every pass of a group must name the same queue.
func (g *PassGraph) SubmissionQueues() ([]vulkan.QueueKind, error) {
	groups, passes, err := g.Submissions()
	if err != nil {
		return nil, err
	}
	queues := make([]vulkan.QueueKind, len(groups))
	for i, sub := range groups {
		ps := passes[sub]
		queues[i] = ps[0].Queue
		for _, p := range ps[1:] {
			if p.Queue != queues[i] {
				return nil, errors.Newf("submission %q mixes %s pass %q with %s pass %q",
					sub, queues[i], ps[0].Name, p.Queue, p.Name)
			}
		}
	}
	return queues, nil
}

// OneTimePasses returns the precomputation passes in order.
func (g *PassGraph) OneTimePasses() ([]Pass, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	var out []Pass
	for _, p := range order {
		if p.Schedule == OneTime {
			out = append(out, p)
		}
	}
	return out, nil
}
