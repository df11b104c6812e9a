// Package renderer is the deferred frame orchestrator. A declarative pass
// graph fixes the order of the geometry, shadow, lighting, bloom and
// output passes; Deferred builds the Vulkan objects those passes need
// through the resource manager and drives them once per frame.
package renderer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/config"
	"deferred-engine/core"
	"deferred-engine/internal/vkm"
	"deferred-engine/scene"
	"deferred-engine/vulkan"
)

var ErrNotPrepared = errors.New("renderer used before Prepare")

const (
	frameTimeout = 5 * time.Second
	bakeTimeout  = 2 * time.Minute
	pollInterval = 100 * time.Millisecond
)

// Window reports the drawable size in pixels. Zero means minimized.
type Window interface {
	FramebufferSize() (uint32, uint32)
}

// Options are the collaborators of a Deferred renderer. Manager, Surface,
// Window, Assets and Camera are required.
type Options struct {
	Manager *vkm.Manager
	Surface vk.Surface
	Window  Window
	Config  config.Config
	Assets  *scene.Assets
	Camera  *scene.Camera
	// Overlay is optional.
	Overlay Overlay
	// Graph defaults to DefaultPassGraph.
	Graph  *PassGraph
	Logger *slog.Logger
}

type samplers struct {
	gbuffer  vkm.Handle // nearest, clamped; integer targets cannot be filtered
	linear   vkm.Handle
	material vkm.Handle
	cube     vkm.Handle
	shadow   vkm.Handle
}

type pipelines struct {
	geometry  [2]vkm.Handle // by scene.MaterialType
	shadow    []vkm.Handle  // one per cascade subpass
	lighting  vkm.Handle
	bloom     vkm.Handle
	merge     vkm.Handle
	final     vkm.Handle
	prefilter vkm.Handle
	brdf      vkm.Handle
}

// Deferred renders a static scene with a deferred pipeline: G-buffer,
// cascaded shadows, image based lighting, bloom and tone mapping.
type Deferred struct {
	m       *vkm.Manager
	dev     *vulkan.Device
	log     *slog.Logger
	cfg     config.Config
	window  Window
	surface vk.Surface
	camera  *scene.Camera
	assets  *scene.Assets
	overlay Overlay

	graph       *PassGraph
	groups      []Submission
	groupPasses map[Submission][]Pass
	queues      []vulkan.QueueKind // per group
	// skip marks groups that record no commands; they still wait and signal.
	skip []bool

	cache      artifactCache
	bakedFresh map[string]bool
	prepared   bool
	closed     bool

	swap        *vulkan.SwapChain
	depthFormat vk.Format
	sets        setLayouts
	layouts     pipelineLayouts
	passes      passes
	pipelines   pipelines
	shaders     shaderSet
	samplers    samplers
	pool        vkm.Handle

	targets   *targets
	shadow    *shadowMap
	geometry  *sceneGeometry
	textures  []texture
	materials []materialSet
	env       texture
	lut       texture
	specular  texture

	lightingSet vkm.Handle
	bloomSets   [3]vkm.Handle // sources: HDR, bloom A, bloom B
	finalSet    vkm.Handle

	frames         []*frame
	current        int
	renderFinished []vkm.Handle
	resized        bool
	controls       scene.Controls
}

// passRule is how Deferred can run a pass kind: its schedule and the
// queues able to execute its commands.
type passRule struct {
	schedule Schedule
	queues   []vulkan.QueueKind
}

var (
	graphicsOnly = []vulkan.QueueKind{vulkan.QueueGraphics}
	dispatch     = []vulkan.QueueKind{vulkan.QueueCompute, vulkan.QueueGraphics}
)

// knownPasses are the pass kinds Deferred can record.
var knownPasses = map[string]passRule{
	PassPrefilter: {OneTime, graphicsOnly},
	PassBRDFLUT:   {OneTime, dispatch},
	PassGeometry:  {PerFrame, graphicsOnly},
	PassShadow:    {PerFrame, graphicsOnly},
	PassLighting:  {PerFrame, graphicsOnly},
	PassBloom:     {PerFrame, graphicsOnly},
	PassFinal:     {PerFrame, graphicsOnly},
	PassOverlay:   {PerFrame, graphicsOnly},
}

// checkPass reports whether Deferred can run p as declared.
func checkPass(p Pass) error {
	rule, ok := knownPasses[passKind(p.Name)]
	if !ok || rule.schedule != p.Schedule {
		return errors.Newf("renderer: cannot run %s pass %q", p.Schedule, p.Name)
	}
	for _, q := range rule.queues {
		if q == p.Queue {
			return nil
		}
	}
	return errors.Newf("renderer: pass %q cannot run on the %s queue", p.Name, p.Queue)
}

func checkOptions(o Options) error {
	switch {
	case o.Manager == nil:
		return errors.New("renderer: no resource manager")
	case o.Window == nil:
		return errors.New("renderer: no window")
	case o.Assets == nil || o.Assets.Environment == nil:
		return errors.New("renderer: scene has no environment")
	case o.Camera == nil:
		return errors.New("renderer: no camera")
	case o.Camera.SegmentCount() != o.Config.Shadow.Cascades:
		return errors.Newf("renderer: camera has %d cascades, config %d", o.Camera.SegmentCount(), o.Config.Shadow.Cascades)
	}
	for _, ma := range o.Assets.Meshes {
		if ma.Material < 0 || ma.Material >= len(o.Assets.Materials) {
			return errors.Newf("renderer: mesh %s uses material %d of %d", ma.Name, ma.Material, len(o.Assets.Materials))
		}
	}
	return o.Config.Validate()
}

// New builds every object the pass graph needs. The one-time passes run in
// Prepare.
func New(o Options) (*Deferred, error) {
	if err := checkOptions(o); err != nil {
		return nil, err
	}
	log := o.Logger
	if log == nil {
		log = o.Manager.Logger()
	}
	graph := o.Graph
	if graph == nil {
		graph = DefaultPassGraph(o.Config.Shadow.Cascades)
	}
	groups, groupPasses, err := graph.Submissions()
	if err != nil {
		return nil, err
	}
	queues, err := graph.SubmissionQueues()
	if err != nil {
		return nil, err
	}
	for _, p := range graph.Passes {
		if err := checkPass(p); err != nil {
			return nil, err
		}
	}

	r := &Deferred{
		m:           o.Manager,
		dev:         o.Manager.Device(),
		log:         log,
		cfg:         o.Config,
		window:      o.Window,
		surface:     o.Surface,
		camera:      o.Camera,
		assets:      o.Assets,
		overlay:     o.Overlay,
		graph:       graph,
		groups:      groups,
		groupPasses: groupPasses,
		queues:      queues,
		cache:       artifactCache{dir: o.Config.CacheDir, log: log},
		bakedFresh:  map[string]bool{},
		controls:    scene.DefaultControls(),
	}
	r.camera.Lambda = o.Config.Shadow.Lambda
	for _, g := range groups {
		empty := true
		for _, p := range groupPasses[g] {
			if passKind(p.Name) != PassOverlay || r.overlay != nil {
				empty = false
			}
		}
		r.skip = append(r.skip, empty)
	}
	if err := r.build(); err != nil {
		r.Close()
		return nil, err
	}
	r.log.Info("deferred renderer ready",
		"extent", r.swap.Extent, "cascades", r.cfg.Shadow.Cascades,
		"meshes", len(r.geometry.draws), "materials", len(r.materials), "frames_in_flight", len(r.frames))
	return r, nil
}

func (r *Deferred) build() error {
	m := r.m
	if err := m.CreatePipelineCache(r.cache.loadRaw(cachePipelineCache)); err != nil {
		r.log.Warn("pipeline cache rejected, starting cold", "err", err)
		if err := m.CreatePipelineCache(nil); err != nil {
			return err
		}
	}

	w, h := r.window.FramebufferSize()
	sc, err := vulkan.CreateSwapChain(r.dev, r.surface, vulkan.SwapChainConfig{Width: w, Height: h, VSync: r.cfg.Window.VSync})
	if err != nil {
		return err
	}
	r.swap = sc
	if r.depthFormat, err = vulkan.FindDepthFormat(r.dev); err != nil {
		return err
	}

	if r.sets, err = createSetLayouts(m); err != nil {
		return err
	}
	if r.layouts, err = createPipelineLayouts(m, r.sets); err != nil {
		return err
	}
	if r.shaders, err = loadShaders(m, r.cfg.ShaderDir); err != nil {
		return err
	}
	if err := r.createPasses(); err != nil {
		return err
	}
	if err := r.createPipelines(); err != nil {
		return err
	}
	if err := r.createSamplers(); err != nil {
		return err
	}
	if err := r.createPool(); err != nil {
		return err
	}

	if r.shadow, err = newShadowMap(m, r.passes.shadow, r.cfg.Shadow.Resolution, r.cfg.Shadow.Cascades); err != nil {
		return err
	}
	if r.geometry, err = uploadGeometry(m, r.assets); err != nil {
		return err
	}
	if r.env, err = r.uploadCube(r.assets.Environment, formatEnvironment); err != nil {
		return err
	}
	if err := r.uploadMaterials(r.assets.Materials); err != nil {
		return err
	}
	if err := r.createBRDFLUT(); err != nil {
		return err
	}
	if err := r.createSpecular(); err != nil {
		return err
	}

	if r.targets, err = buildTargets(m, r.passes, r.swap, r.depthFormat); err != nil {
		return err
	}
	if err := r.allocateStaticSets(); err != nil {
		return err
	}
	if err := r.writeTargetSets(); err != nil {
		return err
	}
	for i := 0; i < r.cfg.FramesInFlight; i++ {
		f, err := r.newFrame()
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		r.frames = append(r.frames, f)
	}
	if err := r.ensureRenderFinished(); err != nil {
		return err
	}
	r.camera.SetAspect(r.swap.Extent.Width, r.swap.Extent.Height)
	if r.overlay != nil {
		if err := r.overlay.Init(m, r.passes.overlay, r.swap.Extent); err != nil {
			return errors.Wrap(err, "overlay")
		}
	}
	return nil
}

func (r *Deferred) createPasses() error {
	m := r.m
	var err error
	if r.passes.geometry, err = geometryPass(m, r.depthFormat); err != nil {
		return errors.Wrap(err, "geometry pass")
	}
	if r.passes.shadow, err = shadowPass(m, r.cfg.Shadow.Cascades); err != nil {
		return errors.Wrap(err, "shadow pass")
	}
	undefined, sr := vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal
	dontCare := vk.AttachmentLoadOpDontCare
	if r.passes.lighting, err = colorPass(m, formatHDR, dontCare, undefined, sr); err != nil {
		return errors.Wrap(err, "lighting pass")
	}
	if r.passes.bloom, err = colorPass(m, formatHDR, dontCare, undefined, sr); err != nil {
		return errors.Wrap(err, "bloom pass")
	}
	if r.passes.merge, err = colorPass(m, formatHDR, vk.AttachmentLoadOpLoad, sr, sr); err != nil {
		return errors.Wrap(err, "bloom merge pass")
	}
	if r.passes.prefilter, err = colorPass(m, formatSpecular, dontCare, undefined, vk.ImageLayoutColorAttachmentOptimal); err != nil {
		return errors.Wrap(err, "prefilter pass")
	}
	return r.createOutputPasses()
}

// createOutputPasses builds the passes that target the swap chain format.
func (r *Deferred) createOutputPasses() error {
	m := r.m
	final := vk.ImageLayoutPresentSrc
	if r.overlay != nil {
		final = vk.ImageLayoutColorAttachmentOptimal
	}
	var err error
	if r.passes.final, err = colorPass(m, r.swap.Format, vk.AttachmentLoadOpDontCare, vk.ImageLayoutUndefined, final); err != nil {
		return errors.Wrap(err, "final pass")
	}
	if r.overlay != nil {
		if r.passes.overlay, err = colorPass(m, r.swap.Format, vk.AttachmentLoadOpLoad,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc); err != nil {
			return errors.Wrap(err, "overlay pass")
		}
	}
	return nil
}

func (r *Deferred) createPipelines() error {
	m, sh, l, p := r.m, r.shaders, r.layouts, r.passes
	vert, frag := vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit
	var err error

	for typ, fs := range map[scene.MaterialType]string{scene.MaterialOpaque: shaderGeometryFrag, scene.MaterialMasked: shaderMaskedFrag} {
		b := meshPipeline(l.geometry, p.geometry, 0).
			AddStage(vert, sh[shaderGeometryVert]).
			AddStage(frag, sh[fs]).
			SetColorAttachments(3)
		if typ == scene.MaterialMasked {
			b.SetCullMode(vk.CullModeNone)
		}
		if r.pipelines.geometry[typ], err = m.EndGraphicsPipeline(b); err != nil {
			return errors.Wrapf(err, "%v geometry pipeline", typ)
		}
	}
	for i := 0; i < r.cfg.Shadow.Cascades; i++ {
		pipe, err := m.EndGraphicsPipeline(meshPipeline(l.shadow, p.shadow, uint32(i)).
			AddStage(vert, sh[shaderShadowVert]).
			SetColorAttachments(0).
			SetCullMode(vk.CullModeNone).
			SetDepthBias(shadowBiasConstant, shadowBiasSlope))
		if err != nil {
			return errors.Wrapf(err, "shadow pipeline %d", i)
		}
		r.pipelines.shadow = append(r.pipelines.shadow, pipe)
	}
	if r.pipelines.lighting, err = m.EndGraphicsPipeline(fullscreenPipeline(l.lighting, p.lighting, sh, shaderLightingFrag)); err != nil {
		return errors.Wrap(err, "lighting pipeline")
	}
	if r.pipelines.bloom, err = m.EndGraphicsPipeline(fullscreenPipeline(l.bloom, p.bloom, sh, shaderBloomFrag)); err != nil {
		return errors.Wrap(err, "bloom pipeline")
	}
	if r.pipelines.merge, err = m.EndGraphicsPipeline(fullscreenPipeline(l.bloom, p.merge, sh, shaderBloomFrag).
		SetBlend(0, vkm.BlendAdditive)); err != nil {
		return errors.Wrap(err, "bloom merge pipeline")
	}
	if r.pipelines.prefilter, err = m.EndGraphicsPipeline(fullscreenPipeline(l.prefilter, p.prefilter, sh, shaderPrefilterFrag)); err != nil {
		return errors.Wrap(err, "prefilter pipeline")
	}
	if r.pipelines.brdf, err = m.EndComputePipeline(vkm.BeginComputePipeline(l.brdf, sh[shaderBRDFComp])); err != nil {
		return errors.Wrap(err, "brdf pipeline")
	}
	return r.createFinalPipeline()
}

func (r *Deferred) createFinalPipeline() error {
	var err error
	r.pipelines.final, err = r.m.EndGraphicsPipeline(fullscreenPipeline(r.layouts.final, r.passes.final, r.shaders, shaderFinalFrag))
	return errors.Wrap(err, "final pipeline")
}

func (r *Deferred) createSamplers() error {
	clamp := vk.SamplerAddressModeClampToEdge
	specs := []struct {
		dst  *vkm.Handle
		desc vulkan.SamplerDesc
	}{
		{&r.samplers.gbuffer, vulkan.SamplerDesc{Filter: vk.FilterNearest, MipmapMode: vk.SamplerMipmapModeNearest, AddressMode: clamp}},
		{&r.samplers.linear, vulkan.SamplerDesc{Filter: vk.FilterLinear, MipmapMode: vk.SamplerMipmapModeLinear, AddressMode: clamp}},
		{&r.samplers.material, vulkan.SamplerDesc{Filter: vk.FilterLinear, MipmapMode: vk.SamplerMipmapModeLinear,
			AddressMode: vk.SamplerAddressModeRepeat, MaxLod: 16, Anisotropy: 16}},
		{&r.samplers.cube, vulkan.SamplerDesc{Filter: vk.FilterLinear, MipmapMode: vk.SamplerMipmapModeLinear, AddressMode: clamp, MaxLod: 16}},
		{&r.samplers.shadow, vulkan.SamplerDesc{Filter: vk.FilterLinear, MipmapMode: vk.SamplerMipmapModeNearest,
			AddressMode: vk.SamplerAddressModeClampToBorder, Border: vk.BorderColorFloatOpaqueWhite, Compare: true}},
	}
	for _, s := range specs {
		h, err := r.m.CreateSampler(s.desc)
		if err != nil {
			return errors.Wrap(err, "sampler")
		}
		*s.dst = h
	}
	return nil
}

// createPool sizes one descriptor pool for every set the renderer
// allocates: per-frame sets, one per material and the static sets.
func (r *Deferred) createPool() error {
	counts := []struct {
		layout vkm.Handle
		n      uint32
	}{
		{r.sets.frame, uint32(r.cfg.FramesInFlight)},
		{r.sets.material, uint32(len(r.assets.Materials))},
		{r.sets.lighting, 1},
		{r.sets.single, uint32(len(r.bloomSets)) + 2}, // bloom sources, final, prefilter
		{r.sets.storage, 1},
	}
	var sizes []vk.DescriptorPoolSize
	var maxSets uint32
	for _, c := range counts {
		if c.n == 0 {
			continue
		}
		bindings, err := r.m.SetLayoutBindings(c.layout)
		if err != nil {
			return err
		}
		sizes = append(sizes, vkm.PoolSizes(c.n, bindings)...)
		maxSets += c.n
	}
	pool, err := r.m.CreateDescriptorPool(sizes, maxSets)
	if err != nil {
		return errors.Wrap(err, "descriptor pool")
	}
	r.pool = pool
	return nil
}

func (r *Deferred) allocateStaticSets() error {
	var err error
	if r.lightingSet, err = r.m.AllocateDescriptorSet(r.pool, r.sets.lighting); err != nil {
		return err
	}
	for i := range r.bloomSets {
		if r.bloomSets[i], err = r.m.AllocateDescriptorSet(r.pool, r.sets.single); err != nil {
			return err
		}
	}
	r.finalSet, err = r.m.AllocateDescriptorSet(r.pool, r.sets.single)
	return err
}

func sampled(binding uint32, view, sampler vkm.Handle) vkm.DescriptorWrite {
	return vkm.DescriptorWrite{
		Binding: binding, Type: vk.DescriptorTypeCombinedImageSampler,
		View: view, Sampler: sampler, Layout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

// writeTargetSets points the static sets at the current targets. The
// device must be idle.
func (r *Deferred) writeTargetSets() error {
	t, s := r.targets, r.samplers
	if err := r.m.UpdateDescriptorSet(r.lightingSet, []vkm.DescriptorWrite{
		sampled(bindNormalAlbedo, t.gbuffer[0].view, s.gbuffer),
		sampled(bindPosition, t.gbuffer[1].view, s.gbuffer),
		sampled(bindMaterial, t.gbuffer[2].view, s.gbuffer),
		sampled(bindShadowMap, r.shadow.array, s.shadow),
		sampled(bindBRDFLUT, r.lut.view, s.linear),
		sampled(bindSpecular, r.specular.view, s.cube),
		sampled(bindEnvironment, r.env.view, s.cube),
	}); err != nil {
		return errors.Wrap(err, "lighting set")
	}
	sources := []vkm.Handle{t.hdr.view, t.bloom[0].view, t.bloom[1].view}
	for i, set := range r.bloomSets {
		if err := r.m.UpdateDescriptorSet(set, []vkm.DescriptorWrite{sampled(0, sources[i], s.linear)}); err != nil {
			return errors.Wrap(err, "bloom set")
		}
	}
	return errors.Wrap(r.m.UpdateDescriptorSet(r.finalSet, []vkm.DescriptorWrite{sampled(0, t.hdr.view, s.linear)}), "final set")
}

// ensureRenderFinished keeps one render-finished semaphore per swap image.
func (r *Deferred) ensureRenderFinished() error {
	for len(r.renderFinished) < len(r.swap.Images) {
		s, err := r.m.CreateSemaphore()
		if err != nil {
			return err
		}
		r.renderFinished = append(r.renderFinished, s)
	}
	return nil
}

// immediate records fn into a transient command buffer for kind and waits
// for the queue to drain.
func (r *Deferred) immediate(kind vulkan.QueueKind, fn func(rec *vkm.Recorder) error) error {
	cmd, err := r.m.AllocateCommandBuffer(kind)
	if err != nil {
		return err
	}
	defer r.m.FreeCommandBuffer(cmd)
	if err := r.recordOnce(cmd, fn); err != nil {
		return err
	}
	return r.m.BeginQueueSubmit(kind).NewSubmit([]vkm.Handle{cmd}, nil, nil, nil).End(0, true)
}

// submitAsync records fn and submits it with a fresh fence without
// waiting.
func (r *Deferred) submitAsync(kind vulkan.QueueKind, fn func(rec *vkm.Recorder) error) (*bake, error) {
	cmd, err := r.m.AllocateCommandBuffer(kind)
	if err != nil {
		return nil, err
	}
	if err := r.recordOnce(cmd, fn); err != nil {
		_ = r.m.FreeCommandBuffer(cmd)
		return nil, err
	}
	fence, err := r.m.CreateFence(false)
	if err != nil {
		_ = r.m.FreeCommandBuffer(cmd)
		return nil, err
	}
	if err := r.m.BeginQueueSubmit(kind).NewSubmit([]vkm.Handle{cmd}, nil, nil, nil).End(fence, false); err != nil {
		_ = r.m.FreeCommandBuffer(cmd)
		return nil, err
	}
	return &bake{cmd: cmd, fence: fence}, nil
}

func (r *Deferred) recordOnce(cmd vkm.Handle, fn func(rec *vkm.Recorder) error) error {
	rec, err := r.m.BeginCommandBuffer(cmd, true)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		_ = rec.End()
		return err
	}
	return rec.End()
}

// waitFences waits for fences in short slices so ctx can cancel a long
// wait. The device keeps running the work after a cancel.
func (r *Deferred) waitFences(ctx context.Context, fences []vkm.Handle, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := r.m.WaitFences(fences, pollInterval)
		if !errors.Is(err, vulkan.ErrFenceTimeout) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(vulkan.ErrFenceTimeout, "after %v", timeout)
		}
	}
}

// Prepare runs the one-time passes of the graph, restoring their outputs
// from the cache when it holds a matching artifact. Independent bakes run
// concurrently on their own queues.
func (r *Deferred) Prepare(ctx context.Context) error {
	if r.prepared {
		return nil
	}
	start := time.Now()
	oneTime, err := r.graph.OneTimePasses()
	if err != nil {
		return err
	}
	var bakes []*bake
	for _, p := range oneTime {
		if err := ctx.Err(); err != nil {
			return err
		}
		var b *bake
		var err error
		switch passKind(p.Name) {
		case PassPrefilter:
			b, err = r.startPrefilter(p.Queue)
		case PassBRDFLUT:
			b, err = r.startBRDF(p.Queue)
		}
		if err != nil {
			r.finishBakes(bakes)
			return errors.Wrapf(err, "pass %s", p.Name)
		}
		if b != nil {
			bakes = append(bakes, b)
		}
	}
	if len(bakes) > 0 {
		fences := make([]vkm.Handle, len(bakes))
		for i, b := range bakes {
			fences[i] = b.fence
		}
		if err := r.waitFences(ctx, fences, bakeTimeout); err != nil {
			if ctx.Err() != nil {
				_ = r.m.WaitIdle()
			}
			r.finishBakes(bakes)
			return errors.Wrap(err, "one-time passes")
		}
		err := r.immediate(vulkan.QueueGraphics, func(rec *vkm.Recorder) error {
			for _, b := range bakes {
				if b.finish != nil {
					b.finish(rec)
				}
			}
			return nil
		})
		r.finishBakes(bakes)
		if err != nil {
			return err
		}
		names := make([]string, len(bakes))
		for i, b := range bakes {
			names[i] = b.name
		}
		r.log.Info("one-time passes baked", "passes", names, "elapsed", time.Since(start))
	}
	r.prepared = true
	return nil
}

// finishBakes frees the bakes' temporaries. Their work must be complete.
func (r *Deferred) finishBakes(bakes []*bake) {
	for _, b := range bakes {
		_ = r.m.FreeCommandBuffer(b.cmd)
		if b.release != nil {
			b.release()
		}
	}
}

// minimized reports a zero-sized drawable; nothing can be presented.
func (r *Deferred) minimized() bool {
	w, h := r.window.FramebufferSize()
	return w == 0 || h == 0
}

// Frame applies one input snapshot to the camera and renders and presents
// one frame. It returns nil without rendering while the window is
// minimized.
func (r *Deferred) Frame(ctx context.Context, in core.InputState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.prepared {
		return ErrNotPrepared
	}
	r.camera.Apply(in, r.controls)
	if in.Resized || r.resized {
		if err := r.Resize(); err != nil {
			return err
		}
	}
	if r.resized || r.minimized() {
		return nil
	}

	f := r.frames[r.current]
	if err := r.m.WaitFences([]vkm.Handle{f.inFlight}, frameTimeout); err != nil {
		return err
	}
	available, err := r.m.Semaphore(f.imageAvailable)
	if err != nil {
		return err
	}
	image, err := r.swap.AcquireNextImage(r.dev, available)
	if errors.Is(err, vulkan.ErrSwapChainOutOfDate) {
		return r.Resize()
	}
	if err != nil {
		return err
	}

	if err := r.writeUniforms(f); err != nil {
		return err
	}
	if err := r.record(f, image); err != nil {
		return err
	}
	if err := r.m.ResetFences([]vkm.Handle{f.inFlight}); err != nil {
		return err
	}
	if err := r.submit(f, image); err != nil {
		return err
	}

	finished, err := r.m.Semaphore(r.renderFinished[image])
	if err != nil {
		return err
	}
	r.current = (r.current + 1) % len(r.frames)
	if err := r.swap.Present(r.dev, image, finished); err != nil {
		if errors.Is(err, vulkan.ErrSwapChainOutOfDate) {
			return r.Resize()
		}
		return err
	}
	return nil
}

// queueRun is a stretch of consecutive submission groups on one queue.
type queueRun struct {
	queue      vulkan.QueueKind
	start, end int
}

func queueRuns(queues []vulkan.QueueKind) []queueRun {
	var runs []queueRun
	for i, q := range queues {
		if n := len(runs); n > 0 && runs[n-1].queue == q {
			runs[n-1].end = i + 1
			continue
		}
		runs = append(runs, queueRun{queue: q, start: i, end: i + 1})
	}
	return runs
}

// submit chains the submission groups, each on its pass graph queue: each
// waits for the previous one, the first for the acquired image, and the
// last signals the image's render-finished semaphore. The in-flight fence
// goes with the last batch.
func (r *Deferred) submit(f *frame, image uint32) error {
	wait := f.imageAvailable
	waitStage := stages(vk.PipelineStageColorAttachmentOutputBit)
	runs := queueRuns(r.queues)
	for n, run := range runs {
		batch := r.m.BeginQueueSubmit(run.queue)
		for i := run.start; i < run.end; i++ {
			signal := r.renderFinished[image]
			if i < len(f.done) {
				signal = f.done[i]
			}
			var cmds []vkm.Handle
			if !r.skip[i] {
				cmds = []vkm.Handle{f.cmds[i]}
			}
			batch.NewSubmit(cmds, []vkm.Handle{wait}, []vk.PipelineStageFlags{waitStage}, []vkm.Handle{signal})
			wait = signal
			waitStage = stages(vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageFragmentShaderBit)
		}
		var fence vkm.Handle
		if n == len(runs)-1 {
			fence = f.inFlight
		}
		if err := batch.End(fence, false); err != nil {
			return err
		}
	}
	return nil
}

// Resize recreates the swap chain and everything sized by it. While the
// window is minimized it only marks the renderer for a later resize.
func (r *Deferred) Resize() error {
	w, h := r.window.FramebufferSize()
	if w == 0 || h == 0 {
		r.resized = true
		return nil
	}
	if err := r.m.WaitIdle(); err != nil {
		return err
	}
	format := r.swap.Format
	r.targets.destroy(r.m)
	r.targets = nil
	if err := r.swap.Recreate(r.dev, w, h); err != nil {
		return errors.Wrap(err, "recreate swap chain")
	}
	if r.swap.Format != format {
		r.log.Info("swap chain format changed", "from", format, "to", r.swap.Format)
		_ = r.m.DestroyPipeline(r.pipelines.final)
		_ = r.m.DestroyRenderPass(r.passes.final)
		if !r.passes.overlay.IsNil() {
			_ = r.m.DestroyRenderPass(r.passes.overlay)
		}
		if err := r.createOutputPasses(); err != nil {
			return err
		}
		if err := r.createFinalPipeline(); err != nil {
			return err
		}
	}
	t, err := buildTargets(r.m, r.passes, r.swap, r.depthFormat)
	if err != nil {
		return err
	}
	r.targets = t
	if err := r.writeTargetSets(); err != nil {
		return err
	}
	if err := r.ensureRenderFinished(); err != nil {
		return err
	}
	r.camera.SetAspect(r.swap.Extent.Width, r.swap.Extent.Height)
	if r.overlay != nil {
		if err := r.overlay.Init(r.m, r.passes.overlay, r.swap.Extent); err != nil {
			return errors.Wrap(err, "overlay")
		}
	}
	r.resized = false
	r.log.Info("swap chain resized", "width", r.swap.Extent.Width, "height", r.swap.Extent.Height)
	return nil
}

// Extent is the current render resolution.
func (r *Deferred) Extent() vk.Extent2D { return r.swap.Extent }

// Close waits for the device, stores freshly baked artifacts and the
// pipeline cache, and destroys the renderer's objects. Objects without an
// explicit destroy call are released by the manager's Close.
func (r *Deferred) Close() {
	if r.closed {
		return
	}
	r.closed = true
	m := r.m
	if err := m.WaitIdle(); err != nil {
		r.log.Warn("wait idle before close", "err", err)
	}
	if r.prepared {
		r.persistBakes()
	}
	r.persistPipelineCache()

	if r.overlay != nil {
		r.overlay.Destroy()
	}
	if r.targets != nil {
		r.targets.destroy(m)
	}
	if r.shadow != nil {
		r.shadow.destroy(m)
	}
	if r.geometry != nil {
		r.geometry.destroy(m)
	}
	for _, t := range append(r.textures, r.env, r.lut, r.specular) {
		if !t.image.IsNil() {
			_ = m.DestroyImage(t.image)
		}
	}
	for _, f := range r.frames {
		if !f.uniforms.IsNil() {
			_ = m.UnmapBuffer(f.uniforms)
			_ = m.DestroyBuffer(f.uniforms)
		}
		for _, cmd := range f.cmds {
			_ = m.FreeCommandBuffer(cmd)
		}
	}
	p := r.pipelines
	for _, h := range append([]vkm.Handle{p.geometry[0], p.geometry[1], p.lighting, p.bloom, p.merge, p.final, p.prefilter, p.brdf}, p.shadow...) {
		if !h.IsNil() {
			_ = m.DestroyPipeline(h)
		}
	}
	rp := r.passes
	for _, h := range []vkm.Handle{rp.geometry, rp.shadow, rp.lighting, rp.bloom, rp.merge, rp.final, rp.overlay, rp.prefilter} {
		if !h.IsNil() {
			_ = m.DestroyRenderPass(h)
		}
	}
	r.shaders.destroy(m)
	if r.swap != nil {
		r.swap.Destroy(r.dev)
	}
	r.log.Debug("deferred renderer closed", "live", m.Stats())
}
