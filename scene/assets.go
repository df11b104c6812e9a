package scene

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"deferred-engine/core"
)

// MeshAsset is one decoded mesh with the index of its entry in Assets.Materials.
type MeshAsset struct {
	Name     string
	Data     *core.MeshData
	Material int
	Bounds   AABB
}

// Assets is the host-side content of a scene, ready for upload.
type Assets struct {
	Meshes      []MeshAsset
	Materials   []*Material
	Environment *CubeImage
	Light       DirectionalLight
	// Bounds is the union of every mesh's bounds.
	Bounds AABB
}

// LoadMesh decodes a mesh by path: builtin primitives, glTF (.gltf, .glb) or .obj.
func LoadMesh(path string) (*core.MeshData, error) {
	if strings.HasPrefix(path, BuiltinPrefix) {
		return BuiltinMesh(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return LoadGLTF(path)
	case ".obj":
		return LoadOBJ(path)
	}
	return nil, errors.Newf("mesh %q: unsupported format", path)
}

// LoadAssets decodes every mesh and image named by desc in parallel.
// Images referenced more than once are decoded once and shared.
func LoadAssets(ctx context.Context, desc *Description, log *slog.Logger) (*Assets, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	facePaths, err := environmentFaces(desc.Environment)
	if err != nil {
		return nil, err
	}

	// Unique image paths in first-seen order.
	var imagePaths []string
	imageIndex := map[string]int{}
	addImage := func(p string) {
		if p == "" {
			return
		}
		if _, ok := imageIndex[p]; !ok {
			imageIndex[p] = len(imagePaths)
			imagePaths = append(imagePaths, p)
		}
	}
	for _, m := range desc.Materials {
		addImage(m.Albedo)
		addImage(m.Normal)
		addImage(m.RoughnessMetalness)
		addImage(m.AO)
	}
	for _, p := range facePaths {
		addImage(p)
	}

	meshes := make([]*core.MeshData, len(desc.Meshes))
	images := make([]*Image, len(imagePaths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range desc.Meshes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := LoadMesh(m.Path)
			if err != nil {
				return err
			}
			meshes[i] = data
			log.Debug("mesh decoded", "path", m.Path, "vertices", len(data.Vertices), "indices", len(data.Indices))
			return nil
		})
	}
	for i, p := range imagePaths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := LoadImage(p)
			if err != nil {
				return err
			}
			images[i] = img
			log.Debug("image decoded", "path", p, "width", img.Width, "height", img.Height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "load assets")
	}

	imageAt := func(p string, fallback func() *Image) *Image {
		if p == "" {
			return fallback()
		}
		return images[imageIndex[p]]
	}

	out := &Assets{Light: desc.Light.DirectionalLight()}
	materialIndex := make(map[string]int, len(desc.Materials))
	for _, m := range desc.Materials {
		materialIndex[m.Name] = len(out.Materials)
		out.Materials = append(out.Materials, &Material{
			Name:               m.Name,
			Type:               m.Type,
			Albedo:             imageAt(m.Albedo, defaultAlbedo),
			Normal:             imageAt(m.Normal, defaultNormal),
			RoughnessMetalness: imageAt(m.RoughnessMetalness, defaultRoughness),
			AO:                 imageAt(m.AO, defaultAO),
		})
	}

	defaultMaterial := -1
	for i, m := range desc.Meshes {
		mi, ok := materialIndex[m.Material]
		if !ok {
			if defaultMaterial < 0 {
				defaultMaterial = len(out.Materials)
				out.Materials = append(out.Materials, &Material{
					Name:               "default",
					Albedo:             defaultAlbedo(),
					Normal:             defaultNormal(),
					RoughnessMetalness: defaultRoughness(),
					AO:                 defaultAO(),
				})
			}
			mi = defaultMaterial
		}
		lo, hi := meshes[i].Bounds()
		box := AABB{Min: lo, Max: hi}
		out.Meshes = append(out.Meshes, MeshAsset{Name: m.Path, Data: meshes[i], Material: mi, Bounds: box})
		if i == 0 {
			out.Bounds = box
		} else {
			out.Bounds = out.Bounds.Union(box)
		}
	}

	var faces [6]*Image
	for i, p := range facePaths {
		faces[i] = images[imageIndex[p]]
	}
	if out.Environment, err = NewCubeImage(faces); err != nil {
		return nil, errors.Wrap(err, "environment")
	}

	log.Info("scene assets loaded",
		"meshes", len(out.Meshes), "materials", len(out.Materials), "images", len(images),
		"environment_size", out.Environment.Size())
	return out, nil
}

func environmentFaces(env EnvironmentDesc) ([6]string, error) {
	if env.Dir != "" {
		return FindCubeFaces(env.Dir)
	}
	var faces [6]string
	if len(env.Faces) != 6 {
		return faces, errors.Newf("environment has %d faces, want 6", len(env.Faces))
	}
	copy(faces[:], env.Faces)
	return faces, nil
}
