package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/internal/vkm"
	"deferred-engine/vulkan"
)

// Texel sizes of the baked formats.
const (
	brdfTexelBytes     = 4 // R16G16_SFLOAT
	specularTexelBytes = 8 // R16G16B16A16_SFLOAT
)

// bake is a one-time pass in flight on some queue. finish, when set, is
// recorded on the graphics queue once every bake's fence has signaled.
type bake struct {
	name   string
	cmd    vkm.Handle
	fence  vkm.Handle
	finish func(rec *vkm.Recorder)
	// release frees temporary objects after the bake completed.
	release func()
}

func (r *Deferred) brdfHeader() ArtifactHeader {
	s := r.cfg.IBL.BRDFLUTSize
	return ArtifactHeader{Format: uint32(formatBRDFLUT), Width: s, Height: s, Mips: 1, Layers: 1}
}

func (r *Deferred) specularHeader() ArtifactHeader {
	s := r.cfg.IBL.PrefilterSize
	return ArtifactHeader{Format: uint32(formatSpecular), Width: s, Height: s, Mips: r.cfg.IBL.PrefilterMips, Layers: 6}
}

// mipRegions lists tightly packed regions for every mip of an image and
// returns the total byte size.
func mipRegions(h ArtifactHeader, texel uint64) ([]vkm.ImageRegion, uint64) {
	var regions []vkm.ImageRegion
	var off uint64
	for mip := uint32(0); mip < h.Mips; mip++ {
		w, ht := max(h.Width>>mip, 1), max(h.Height>>mip, 1)
		regions = append(regions, vkm.ImageRegion{Offset: off, Mip: mip, LayerCount: h.Layers, Width: w, Height: ht})
		off += uint64(w) * uint64(ht) * uint64(h.Layers) * texel
	}
	return regions, off
}

// createBRDFLUT allocates the LUT image. It is shared between the compute
// queue that bakes it and the graphics queue that samples it.
func (r *Deferred) createBRDFLUT() error {
	s := r.cfg.IBL.BRDFLUTSize
	img, err := r.m.CreateImage2D(vkm.ImageInfo{
		Width: s, Height: s, Format: formatBRDFLUT,
		Usage: vk.ImageUsageFlags(vk.ImageUsageStorageBit | vk.ImageUsageSampledBit |
			vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
		Concurrent: true,
	})
	if err != nil {
		return errors.Wrap(err, "brdf lut")
	}
	view, err := r.m.CreateImageView(img, vkm.ViewInfo{Type: vk.ImageViewType2d})
	if err != nil {
		_ = r.m.DestroyImage(img)
		return err
	}
	r.lut = texture{image: img, view: view, mips: 1}
	return nil
}

func (r *Deferred) createSpecular() error {
	s := r.cfg.IBL.PrefilterSize
	img, err := r.m.CreateImageCube(vkm.ImageInfo{
		Width: s, Height: s, Format: formatSpecular,
		Usage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit |
			vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
		MipLevels: r.cfg.IBL.PrefilterMips,
	})
	if err != nil {
		return errors.Wrap(err, "specular irradiance")
	}
	view, err := r.m.CreateImageView(img, vkm.ViewInfo{Type: vk.ImageViewTypeCube})
	if err != nil {
		_ = r.m.DestroyImage(img)
		return err
	}
	r.specular = texture{image: img, view: view, mips: r.cfg.IBL.PrefilterMips}
	return nil
}

// loadCached fills img from the cache. It reports false when the artifact
// is absent or stale.
func (r *Deferred) loadCached(name string, img vkm.Handle, h ArtifactHeader, texel uint64) (bool, error) {
	regions, size := mipRegions(h, texel)
	payload := r.cache.load(name, h, int(size))
	if payload == nil {
		return false, nil
	}
	if err := r.m.TransferHostDataToImage(img, payload, regions, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		return false, errors.Wrapf(err, "restore %s", name)
	}
	r.log.Info("loaded from cache", "artifact", name)
	return true, nil
}

// startBRDF dispatches the LUT bake on queue. The LUT image is shared
// concurrently, so any queue family may write it.
func (r *Deferred) startBRDF(queue vulkan.QueueKind) (*bake, error) {
	if ok, err := r.loadCached(cacheBRDFLUT, r.lut.image, r.brdfHeader(), brdfTexelBytes); ok || err != nil {
		return nil, err
	}
	set, err := r.m.AllocateDescriptorSet(r.pool, r.sets.storage)
	if err != nil {
		return nil, err
	}
	if err := r.m.UpdateDescriptorSet(set, []vkm.DescriptorWrite{{
		Binding: 0, Type: vk.DescriptorTypeStorageImage, View: r.lut.view, Layout: vk.ImageLayoutGeneral,
	}}); err != nil {
		return nil, err
	}
	groups := (r.cfg.IBL.BRDFLUTSize + 15) / 16
	b, err := r.submitAsync(queue, func(rec *vkm.Recorder) error {
		transition(rec, r.lut.image, stepLUTToStorage, vkm.Subresource{})
		rec.BindPipeline(r.pipelines.brdf)
		rec.BindDescriptorSets(0, []vkm.Handle{set}, nil)
		rec.Dispatch(groups, groups, 1)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "brdf lut")
	}
	b.name = PassBRDFLUT
	b.finish = func(rec *vkm.Recorder) {
		transition(rec, r.lut.image, stepLUTToRead, vkm.Subresource{})
	}
	r.bakedFresh[cacheBRDFLUT] = true
	return b, nil
}

// startPrefilter renders every face of every mip of the specular cube on
// queue, one roughness level per mip.
func (r *Deferred) startPrefilter(queue vulkan.QueueKind) (*bake, error) {
	if ok, err := r.loadCached(cacheSpecular, r.specular.image, r.specularHeader(), specularTexelBytes); ok || err != nil {
		return nil, err
	}
	set, err := r.m.AllocateDescriptorSet(r.pool, r.sets.single)
	if err != nil {
		return nil, err
	}
	if err := r.m.UpdateDescriptorSet(set, []vkm.DescriptorWrite{{
		Binding: 0, Type: vk.DescriptorTypeCombinedImageSampler,
		View: r.env.view, Sampler: r.samplers.cube, Layout: vk.ImageLayoutShaderReadOnlyOptimal,
	}}); err != nil {
		return nil, err
	}

	var views, fbs []vkm.Handle
	release := func() {
		for _, fb := range fbs {
			_ = r.m.DestroyFramebuffer(fb)
		}
		for _, v := range views {
			_ = r.m.ReleaseView(v)
		}
	}
	type target struct {
		fb   vkm.Handle
		size uint32
		mip  uint32
		face uint32
	}
	var targets []target
	mips := r.cfg.IBL.PrefilterMips
	for mip := uint32(0); mip < mips; mip++ {
		size := max(r.cfg.IBL.PrefilterSize>>mip, 1)
		for face := uint32(0); face < 6; face++ {
			v, err := r.m.CreateImageView(r.specular.image, vkm.ViewInfo{
				Type: vk.ImageViewType2d, BaseMip: mip, MipCount: 1, BaseLayer: face, LayerCount: 1,
			})
			if err != nil {
				release()
				return nil, err
			}
			views = append(views, v)
			fb, err := r.m.CreateFramebuffer(r.passes.prefilter, []vkm.Handle{v}, size, size, 1)
			if err != nil {
				release()
				return nil, err
			}
			fbs = append(fbs, fb)
			targets = append(targets, target{fb: fb, size: size, mip: mip, face: face})
		}
	}

	envSize := float32(r.assets.Environment.Size())
	frag := shaderStages(vk.ShaderStageFragmentBit)
	b, err := r.submitAsync(queue, func(rec *vkm.Recorder) error {
		for _, t := range targets {
			rec.BeginRenderPass(r.passes.prefilter, t.fb, vk.Extent2D{Width: t.size, Height: t.size}, nil)
			rec.BindPipeline(r.pipelines.prefilter)
			rec.SetViewport(float32(t.size), float32(t.size))
			rec.SetScissor(t.size, t.size)
			rec.BindDescriptorSets(0, []vkm.Handle{set}, nil)
			roughness := float32(0)
			if mips > 1 {
				roughness = float32(t.mip) / float32(mips-1)
			}
			rec.PushConstants(frag, 0, pushBytes(PrefilterPush{Roughness: roughness, Face: t.face, EnvSize: envSize}))
			rec.Draw(3, 1, 0, 0)
			rec.EndRenderPass()
		}
		transition(rec, r.specular.image, stepSpecularToRead, vkm.Subresource{})
		return nil
	})
	if err != nil {
		release()
		return nil, errors.Wrap(err, "prefilter")
	}
	b.name = PassPrefilter
	b.release = release
	r.bakedFresh[cacheSpecular] = true
	return b, nil
}

// persistBakes writes freshly computed artifacts to the cache.
func (r *Deferred) persistBakes() {
	if !r.cache.enabled() {
		return
	}
	for name := range r.bakedFresh {
		var img vkm.Handle
		var h ArtifactHeader
		var texel uint64
		switch name {
		case cacheBRDFLUT:
			img, h, texel = r.lut.image, r.brdfHeader(), brdfTexelBytes
		case cacheSpecular:
			img, h, texel = r.specular.image, r.specularHeader(), specularTexelBytes
		default:
			continue
		}
		regions, size := mipRegions(h, texel)
		data, err := r.m.ReadImageToHost(img, regions, size)
		if err != nil {
			r.log.Warn("read back for cache failed", "artifact", name, "err", err)
			continue
		}
		if err := r.cache.store(name, h, data); err != nil {
			r.log.Warn("cache write failed", "artifact", name, "err", err)
		}
	}
	r.bakedFresh = map[string]bool{}
}

func (r *Deferred) persistPipelineCache() {
	if !r.cache.enabled() {
		return
	}
	data, err := r.m.PipelineCacheData()
	if err != nil || len(data) == 0 {
		return
	}
	if err := r.cache.storeRaw(cachePipelineCache, data); err != nil {
		r.log.Warn("pipeline cache write failed", "err", err)
	}
}
