package renderer

import (
	"math/bits"
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/core"
	"deferred-engine/internal/vkm"
	"deferred-engine/scene"
	"deferred-engine/vulkan"
)

// draw is one indexed draw into the shared scene buffers.
type draw struct {
	name         string
	material     int
	firstIndex   uint32
	indexCount   uint32
	vertexOffset int32
}

// sceneGeometry is every mesh packed into one vertex and one index buffer.
type sceneGeometry struct {
	vertices vkm.Handle
	indices  vkm.Handle
	draws    []draw
}

// packMeshes concatenates the meshes and orders draws by material type so
// pipeline switches happen once per type.
func packMeshes(assets *scene.Assets) (vertices, indices []byte, draws []draw) {
	var nv, ni int
	for _, ma := range assets.Meshes {
		nv += len(ma.Data.Vertices)
		ni += len(ma.Data.Indices)
	}
	vertices = make([]byte, 0, nv*int(core.VertexStride))
	indices = make([]byte, 0, ni*4)
	var baseVertex, baseIndex uint32
	for _, ma := range assets.Meshes {
		if len(ma.Data.Indices) == 0 {
			continue
		}
		vertices = append(vertices, ma.Data.VertexBytes()...)
		indices = append(indices, ma.Data.IndexBytes()...)
		draws = append(draws, draw{
			name:         ma.Name,
			material:     ma.Material,
			firstIndex:   baseIndex,
			indexCount:   uint32(len(ma.Data.Indices)),
			vertexOffset: int32(baseVertex),
		})
		baseVertex += uint32(len(ma.Data.Vertices))
		baseIndex += uint32(len(ma.Data.Indices))
	}
	sort.SliceStable(draws, func(i, j int) bool {
		return assets.Materials[draws[i].material].Type < assets.Materials[draws[j].material].Type
	})
	return vertices, indices, draws
}

func uploadGeometry(m *vkm.Manager, assets *scene.Assets) (*sceneGeometry, error) {
	vb, ib, draws := packMeshes(assets)
	if len(draws) == 0 {
		return &sceneGeometry{}, nil
	}
	g := &sceneGeometry{draws: draws}
	var err error
	dst := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	if g.vertices, err = m.CreateBuffer(uint64(len(vb)), dst|vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), vkm.DeviceLocal()); err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}
	if g.indices, err = m.CreateBuffer(uint64(len(ib)), dst|vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), vkm.DeviceLocal()); err != nil {
		g.destroy(m)
		return nil, errors.Wrap(err, "index buffer")
	}
	if err := m.TransferHostDataToBuffer(g.vertices, 0, vb); err != nil {
		g.destroy(m)
		return nil, errors.Wrap(err, "upload vertices")
	}
	if err := m.TransferHostDataToBuffer(g.indices, 0, ib); err != nil {
		g.destroy(m)
		return nil, errors.Wrap(err, "upload indices")
	}
	return g, nil
}

func (g *sceneGeometry) destroy(m *vkm.Manager) {
	if !g.vertices.IsNil() {
		_ = m.DestroyBuffer(g.vertices)
	}
	if !g.indices.IsNil() {
		_ = m.DestroyBuffer(g.indices)
	}
	g.vertices, g.indices = 0, 0
}

// mipLevels is the length of a full mip chain.
func mipLevels(w, h uint32) uint32 {
	return uint32(bits.Len32(max(w, h)))
}

var mippedUsage = vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)

// generateMips fills mips 1.. of every layer by successive blits, leaving
// the whole image in ShaderRead. Mip 0 must already be in ShaderRead.
func generateMips(rec *vkm.Recorder, img vkm.Handle, mips, layerCount uint32) {
	for i := uint32(1); i < mips; i++ {
		src, dst := vkm.Subresource{BaseMip: i - 1, MipCount: 1}, vkm.Subresource{BaseMip: i, MipCount: 1}
		if i > 1 {
			transition(rec, img, stepMipSrcFromDst, src)
		} else {
			transition(rec, img, stepMipSrcFromRead, src)
		}
		transition(rec, img, stepMipDstFromRead, dst)
		for layer := uint32(0); layer < layerCount; layer++ {
			rec.BlitMip(img, layer, i-1, i)
		}
		transition(rec, img, stepMipSrcToRead, src)
	}
	if mips > 1 {
		transition(rec, img, stepMipDstToRead, vkm.Subresource{BaseMip: mips - 1, MipCount: 1})
	}
}

// texture is a sampled image with a view over every mip.
type texture struct {
	image vkm.Handle
	view  vkm.Handle
	mips  uint32
}

// uploadTexture creates a mipped 2D image from an RGBA8 image.
func (r *Deferred) uploadTexture(img *scene.Image, format vk.Format) (texture, error) {
	mips := mipLevels(img.Width, img.Height)
	h, err := r.m.CreateImage2D(vkm.ImageInfo{
		Width: img.Width, Height: img.Height, Format: format, Usage: mippedUsage, MipLevels: mips,
	})
	if err != nil {
		return texture{}, errors.Wrapf(err, "texture %s", img.Name)
	}
	regions := []vkm.ImageRegion{{LayerCount: 1, Width: img.Width, Height: img.Height}}
	if err := r.m.TransferHostDataToImage(h, img.Pixels, regions, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, errors.Wrapf(err, "upload %s", img.Name)
	}
	if err := r.immediate(vulkan.QueueGraphics, func(rec *vkm.Recorder) error {
		generateMips(rec, h, mips, 1)
		return nil
	}); err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, errors.Wrapf(err, "mips of %s", img.Name)
	}
	view, err := r.m.CreateImageView(h, vkm.ViewInfo{Type: vk.ImageViewType2d})
	if err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, err
	}
	return texture{image: h, view: view, mips: mips}, nil
}

// uploadCube creates a mipped cube image from six faces.
func (r *Deferred) uploadCube(cube *scene.CubeImage, format vk.Format) (texture, error) {
	size := cube.Size()
	mips := mipLevels(size, size)
	h, err := r.m.CreateImageCube(vkm.ImageInfo{
		Width: size, Height: size, Format: format, Usage: mippedUsage, MipLevels: mips,
	})
	if err != nil {
		return texture{}, errors.Wrap(err, "environment cube")
	}
	regions := []vkm.ImageRegion{{LayerCount: 6, Width: size, Height: size}}
	if err := r.m.TransferHostDataToImage(h, cube.Pixels(), regions, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, errors.Wrap(err, "upload environment")
	}
	if err := r.immediate(vulkan.QueueGraphics, func(rec *vkm.Recorder) error {
		generateMips(rec, h, mips, 6)
		return nil
	}); err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, errors.Wrap(err, "environment mips")
	}
	view, err := r.m.CreateImageView(h, vkm.ViewInfo{Type: vk.ImageViewTypeCube})
	if err != nil {
		_ = r.m.DestroyImage(h)
		return texture{}, err
	}
	return texture{image: h, view: view, mips: mips}, nil
}

// materialSet is the bound texture set of one scene material.
type materialSet struct {
	typ scene.MaterialType
	set vkm.Handle
}

type textureKey struct {
	img    *scene.Image
	format vk.Format
}

// uploadMaterials uploads each distinct material image once and writes
// one descriptor set per material.
func (r *Deferred) uploadMaterials(materials []*scene.Material) error {
	cache := map[textureKey]texture{}
	get := func(img *scene.Image, format vk.Format) (texture, error) {
		k := textureKey{img, format}
		if t, ok := cache[k]; ok {
			return t, nil
		}
		t, err := r.uploadTexture(img, format)
		if err != nil {
			return t, err
		}
		cache[k] = t
		r.textures = append(r.textures, t)
		return t, nil
	}
	for _, mat := range materials {
		slots := []struct {
			img    *scene.Image
			format vk.Format
		}{
			{mat.Albedo, formatAlbedo},
			{mat.Normal, formatLinearTex},
			{mat.RoughnessMetalness, formatLinearTex},
			{mat.AO, formatLinearTex},
		}
		set, err := r.m.AllocateDescriptorSet(r.pool, r.sets.material)
		if err != nil {
			return errors.Wrapf(err, "material %s", mat.Name)
		}
		writes := make([]vkm.DescriptorWrite, len(slots))
		for i, s := range slots {
			t, err := get(s.img, s.format)
			if err != nil {
				return errors.Wrapf(err, "material %s", mat.Name)
			}
			writes[i] = vkm.DescriptorWrite{
				Binding: uint32(i), Type: vk.DescriptorTypeCombinedImageSampler,
				View: t.view, Sampler: r.samplers.material, Layout: vk.ImageLayoutShaderReadOnlyOptimal,
			}
		}
		if err := r.m.UpdateDescriptorSet(set, writes); err != nil {
			return errors.Wrapf(err, "material %s", mat.Name)
		}
		r.materials = append(r.materials, materialSet{typ: mat.Type, set: set})
	}
	r.log.Info("materials uploaded", "materials", len(materials), "textures", len(cache))
	return nil
}
