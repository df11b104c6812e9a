package renderer

import (
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/internal/vkm"
	"deferred-engine/math"
	"deferred-engine/scene"
)

// frame is the state owned by one frame in flight.
type frame struct {
	// One command buffer per submission group, in submission order.
	cmds []vkm.Handle
	// done[i] is signaled by group i; the last group signals the swap
	// image's render-finished semaphore instead.
	done           []vkm.Handle
	imageAvailable vkm.Handle
	inFlight       vkm.Handle

	uniforms vkm.Handle
	mapped   []byte
	blob     *vkm.UniformBlob
	set      vkm.Handle

	sceneOffset    uint64
	cascadeOffsets []uint32
}

func (r *Deferred) newFrame() (*frame, error) {
	f := &frame{}
	var err error
	for _, q := range r.queues {
		cmd, err := r.m.AllocateCommandBuffer(q)
		if err != nil {
			return nil, err
		}
		f.cmds = append(f.cmds, cmd)
	}
	for i := 0; i < len(r.groups)-1; i++ {
		s, err := r.m.CreateSemaphore()
		if err != nil {
			return nil, err
		}
		f.done = append(f.done, s)
	}
	if f.imageAvailable, err = r.m.CreateSemaphore(); err != nil {
		return nil, err
	}
	if f.inFlight, err = r.m.CreateFence(true); err != nil {
		return nil, err
	}

	align := r.m.MinUniformAlignment()
	round := func(n uint64) uint64 { return (n + align - 1) &^ (align - 1) }
	capacity := round(sceneUniformSize) + uint64(r.cfg.Shadow.Cascades)*round(cascadeUniformSize)
	if f.blob, err = vkm.NewUniformBlob(capacity, align); err != nil {
		return nil, err
	}
	if f.uniforms, err = r.m.CreateBuffer(capacity,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), vkm.HostCoherent()); err != nil {
		return nil, errors.Wrap(err, "frame uniforms")
	}
	if f.mapped, err = r.m.MapBuffer(f.uniforms); err != nil {
		return nil, err
	}
	if err := f.layoutUniforms(r.cfg.Shadow.Cascades); err != nil {
		return nil, err
	}

	if f.set, err = r.m.AllocateDescriptorSet(r.pool, r.sets.frame); err != nil {
		return nil, err
	}
	err = r.m.UpdateDescriptorSet(f.set, []vkm.DescriptorWrite{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Buffer: f.uniforms, Offset: f.sceneOffset, Range: sceneUniformSize},
		{Binding: 1, Type: vk.DescriptorTypeUniformBufferDynamic, Buffer: f.uniforms, Range: cascadeUniformSize},
	})
	return f, err
}

// layoutUniforms places the scene block and the cascade regions in the
// blob. The offsets are the same every frame.
func (f *frame) layoutUniforms(cascades int) error {
	f.blob.Reset()
	off, _, err := f.blob.Alloc(sceneUniformSize)
	if err != nil {
		return err
	}
	f.sceneOffset = off
	f.cascadeOffsets = f.cascadeOffsets[:0]
	for i := 0; i < cascades; i++ {
		off, _, err := f.blob.Alloc(cascadeUniformSize)
		if err != nil {
			return err
		}
		f.cascadeOffsets = append(f.cascadeOffsets, uint32(off))
	}
	return nil
}

// cascadeMatrices fits the shadow cascades to the current camera.
func (r *Deferred) cascadeMatrices() ([]float32, []math.Mat4, error) {
	cam := r.camera
	splits := cam.SplitDepths(cam.Lambda)
	cascades, err := r.assets.Light.ComputeCascadeScalesAndOffsets(cam.CornersWorldSpace(), r.assets.Bounds, scene.CascadeParams{
		Resolution: r.cfg.Shadow.Resolution,
		KernelSize: r.cfg.Shadow.KernelSize,
		Splits:     splits,
	})
	if err != nil {
		return nil, nil, err
	}
	view := r.assets.Light.View()
	mats := make([]math.Mat4, len(cascades))
	for i, c := range cascades {
		mats[i] = c.Matrix(view)
	}
	return splits, mats, nil
}

// writeUniforms fills the frame's uniform buffer for the current camera.
func (r *Deferred) writeUniforms(f *frame) error {
	splits, mats, err := r.cascadeMatrices()
	if err != nil {
		return errors.Wrap(err, "shadow cascades")
	}
	cam := r.camera
	light := r.assets.Light
	vp := cam.ViewProjection()
	u := SceneUniforms{
		ViewProj:    vp,
		View:        cam.View(),
		InvViewProj: vp.Inverse(),
		CameraPos:   vec4(cam.Position, 1),
		LightDir:    vec4(light.Direction.Normalize(), light.Intensity),
		LightColor:  vec4(light.Color, 1),
		Params: [4]float32{
			float32(len(mats)),
			float32(r.cfg.Shadow.KernelSize),
			float32(r.specular.mips),
			0,
		},
	}
	for i := range mats {
		u.Splits[i] = splits[i]
		u.Cascade[i] = mats[i]
	}
	if err := f.blob.Put(f.sceneOffset, u); err != nil {
		return err
	}
	for i, off := range f.cascadeOffsets {
		if err := f.blob.Put(uint64(off), CascadeUniforms{LightViewProj: mats[i]}); err != nil {
			return err
		}
	}
	copy(f.mapped, f.blob.Bytes())
	return nil
}

// passKind strips an instance suffix such as "[3]" from a pass name.
func passKind(name string) string {
	kind, _, _ := strings.Cut(name, "[")
	return kind
}

// record fills the command buffer of every submission group.
func (r *Deferred) record(f *frame, image uint32) error {
	for i, g := range r.groups {
		if err := r.m.ResetCommandBuffer(f.cmds[i]); err != nil {
			return err
		}
		rec, err := r.m.BeginCommandBuffer(f.cmds[i], true)
		if err != nil {
			return err
		}
		for _, p := range r.groupPasses[g] {
			if err := r.recordPass(rec, p, f, image); err != nil {
				_ = rec.End()
				return errors.Wrapf(err, "pass %s", p.Name)
			}
		}
		if err := rec.End(); err != nil {
			return errors.Wrapf(err, "%s commands", g)
		}
	}
	return nil
}

func (r *Deferred) recordPass(rec *vkm.Recorder, p Pass, f *frame, image uint32) error {
	switch passKind(p.Name) {
	case PassGeometry:
		r.recordGeometry(rec, f)
	case PassShadow:
		r.recordShadow(rec, f)
	case PassLighting:
		r.recordLighting(rec, f)
	case PassBloom:
		r.recordBloom(rec)
	case PassFinal:
		r.recordFinal(rec, image)
	case PassOverlay:
		if r.overlay == nil {
			return nil
		}
		rec.BeginRenderPass(r.passes.overlay, r.targets.overlayFB[image], r.targets.extent, nil)
		err := r.overlay.Record(rec, r.targets.extent)
		rec.EndRenderPass()
		return err
	default:
		return errors.Newf("no recorder for pass %q", p.Name)
	}
	return rec.Err()
}

func (r *Deferred) viewport(rec *vkm.Recorder, e vk.Extent2D) {
	rec.SetViewport(float32(e.Width), float32(e.Height))
	rec.SetScissor(e.Width, e.Height)
}

func (r *Deferred) drawScene(rec *vkm.Recorder, perDraw func(d draw)) {
	g := r.geometry
	if len(g.draws) == 0 {
		return
	}
	rec.BindVertexBuffer(g.vertices, 0)
	rec.BindIndexBuffer(g.indices, 0, vk.IndexTypeUint32)
	push := pushBytes(ObjectPush{Model: math.Mat4Identity(), Normal: math.Mat4Identity()})
	vert := shaderStages(vk.ShaderStageVertexBit)
	for _, d := range g.draws {
		perDraw(d)
		rec.PushConstants(vert, 0, push)
		rec.DrawIndexed(d.indexCount, 1, d.firstIndex, d.vertexOffset, 0)
	}
}

func (r *Deferred) recordGeometry(rec *vkm.Recorder, f *frame) {
	t := r.targets
	clears := []vk.ClearValue{
		vk.NewClearValue([]float32{0, 0, 0, 0}),
		vk.NewClearValue([]float32{0, 0, 0, 0}),
		vk.NewClearValue([]float32{0, 0, 0, 0}),
		vk.NewClearDepthStencil(1, 0),
	}
	rec.BeginRenderPass(r.passes.geometry, t.geometryFB, t.extent, clears)
	bound := scene.MaterialType(255)
	r.drawScene(rec, func(d draw) {
		mat := r.materials[d.material]
		if mat.typ != bound {
			rec.BindPipeline(r.pipelines.geometry[mat.typ])
			r.viewport(rec, t.extent)
			bound = mat.typ
		}
		rec.BindDescriptorSets(0, []vkm.Handle{f.set, mat.set}, f.cascadeOffsets[:1])
	})
	rec.EndRenderPass()
}

func (r *Deferred) recordShadow(rec *vkm.Recorder, f *frame) {
	res := r.cfg.Shadow.Resolution
	extent := vk.Extent2D{Width: res, Height: res}
	clears := make([]vk.ClearValue, len(r.pipelines.shadow))
	for i := range clears {
		clears[i] = vk.NewClearDepthStencil(1, 0)
	}
	rec.BeginRenderPass(r.passes.shadow, r.shadow.fb, extent, clears)
	for i, pipe := range r.pipelines.shadow {
		if i > 0 {
			rec.NextSubpass()
		}
		rec.BindPipeline(pipe)
		r.viewport(rec, extent)
		rec.BindDescriptorSets(0, []vkm.Handle{f.set}, f.cascadeOffsets[i:i+1])
		r.drawScene(rec, func(draw) {})
	}
	rec.EndRenderPass()
	transition(rec, r.shadow.image, stepShadowToRead, vkm.Subresource{})
}

func (r *Deferred) recordLighting(rec *vkm.Recorder, f *frame) {
	t := r.targets
	rec.BeginRenderPass(r.passes.lighting, t.lightingFB, t.extent, nil)
	rec.BindPipeline(r.pipelines.lighting)
	r.viewport(rec, t.extent)
	rec.BindDescriptorSets(0, []vkm.Handle{f.set, r.lightingSet}, f.cascadeOffsets[:1])
	rec.Draw(3, 1, 0, 0)
	rec.EndRenderPass()
}

// recordBloom extracts bright texels at half resolution, blurs them with
// separable passes and adds the result back onto the HDR target.
func (r *Deferred) recordBloom(rec *vkm.Recorder) {
	t := r.targets
	cfg := r.cfg.Bloom
	frag := shaderStages(vk.ShaderStageFragmentBit)
	be := t.bloomExtent
	texel := func(e vk.Extent2D) (float32, float32) { return 1 / float32(e.Width), 1 / float32(e.Height) }

	step := func(fb vkm.Handle, src vkm.Handle, mode uint32, srcExtent vk.Extent2D) {
		rec.BeginRenderPass(r.passes.bloom, fb, be, nil)
		rec.BindPipeline(r.pipelines.bloom)
		r.viewport(rec, be)
		rec.BindDescriptorSets(0, []vkm.Handle{src}, nil)
		tx, ty := texel(srcExtent)
		rec.PushConstants(frag, 0, pushBytes(BloomPush{
			TexelX: tx, TexelY: ty, Mode: mode, Threshold: cfg.Threshold, Intensity: cfg.Intensity,
		}))
		rec.Draw(3, 1, 0, 0)
		rec.EndRenderPass()
	}
	step(t.bloomFB[0], r.bloomSets[0], bloomBright, t.extent)
	for i := 0; i < cfg.BlurPasses; i++ {
		step(t.bloomFB[1], r.bloomSets[1], bloomHorizontal, be)
		step(t.bloomFB[0], r.bloomSets[2], bloomVertical, be)
	}

	rec.BeginRenderPass(r.passes.merge, t.mergeFB, t.extent, nil)
	rec.BindPipeline(r.pipelines.merge)
	r.viewport(rec, t.extent)
	rec.BindDescriptorSets(0, []vkm.Handle{r.bloomSets[1]}, nil)
	tx, ty := texel(be)
	rec.PushConstants(frag, 0, pushBytes(BloomPush{
		TexelX: tx, TexelY: ty, Mode: bloomMerge, Threshold: cfg.Threshold, Intensity: cfg.Intensity,
	}))
	rec.Draw(3, 1, 0, 0)
	rec.EndRenderPass()
}

func (r *Deferred) recordFinal(rec *vkm.Recorder, image uint32) {
	t := r.targets
	rec.BeginRenderPass(r.passes.final, t.finalFB[image], t.extent, nil)
	rec.BindPipeline(r.pipelines.final)
	r.viewport(rec, t.extent)
	rec.BindDescriptorSets(0, []vkm.Handle{r.finalSet}, nil)
	var gamma uint32
	if !isSRGB(r.swap.Format) {
		gamma = 1
	}
	rec.PushConstants(shaderStages(vk.ShaderStageFragmentBit), 0, pushBytes(FinalPush{Exposure: r.cfg.Exposure, Gamma: gamma}))
	rec.Draw(3, 1, 0, 0)
	rec.EndRenderPass()
}

func isSRGB(f vk.Format) bool {
	switch f {
	case vk.FormatB8g8r8a8Srgb, vk.FormatR8g8b8a8Srgb:
		return true
	}
	return false
}
