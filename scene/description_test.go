package scene

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/math"
)

const sceneTOML = `
[[mesh]]
path = "models/floor.obj"
material = "stone"

[[mesh]]
path = "builtin:sphere"

[[material]]
name = "stone"
type = "masked"
albedo = "textures/stone.png"

[environment]
dir = "sky"

[light]
direction = [0.0, -1.0, 0.0]
intensity = 3.0
`

const sceneYAML = `
mesh:
  - path: models/floor.obj
    material: stone
  - path: builtin:sphere
material:
  - name: stone
    type: masked
    albedo: textures/stone.png
environment:
  dir: sky
light:
  direction: [0, -1, 0]
  intensity: 3
`

func TestDecodeDescriptionFormatsAgree(t *testing.T) {
	fromTOML, err := DecodeDescription(".toml", []byte(sceneTOML))
	require.NoError(t, err)
	fromYAML, err := DecodeDescription(".yml", []byte(sceneYAML))
	require.NoError(t, err)
	assert.Equal(t, fromTOML, fromYAML)

	d := fromTOML
	require.Len(t, d.Meshes, 2)
	assert.Equal(t, MaterialMasked, d.Materials[0].Type)
	assert.Equal(t, [3]float32{1, 1, 1}, d.Light.Color, "color keeps its default")
	vecNear(t, math.NewVec3(0, -1, 0), d.Light.DirectionalLight().Direction)
}

func TestDecodeDescriptionRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "bogus = 1\n" + sceneTOML,
		"no meshes":         "[environment]\ndir = \"sky\"\n[light]\ndirection = [0.0, -1.0, 0.0]\n",
		"undefined mat":     "[[mesh]]\npath = \"a.obj\"\nmaterial = \"x\"\n[environment]\ndir = \"s\"\n[light]\ndirection = [0.0, -1.0, 0.0]\n",
		"bad material type": "[[mesh]]\npath = \"a.obj\"\n[[material]]\nname = \"m\"\ntype = \"glass\"\n[environment]\ndir = \"s\"\n[light]\ndirection = [0.0, -1.0, 0.0]\n",
		"no environment":    "[[mesh]]\npath = \"a.obj\"\n[light]\ndirection = [0.0, -1.0, 0.0]\n",
		"five faces":        "[[mesh]]\npath = \"a.obj\"\n[environment]\nfaces = [\"1\", \"2\", \"3\", \"4\", \"5\"]\n[light]\ndirection = [0.0, -1.0, 0.0]\n",
		"zero light":        "[[mesh]]\npath = \"a.obj\"\n[environment]\ndir = \"s\"\n",
	}
	for name, src := range cases {
		_, err := DecodeDescription(".toml", []byte(src))
		assert.Error(t, err, name)
	}

	_, err := DecodeDescription(".json", []byte("{}"))
	assert.ErrorContains(t, err, "unsupported")
	_, err = DecodeDescription(".yaml", []byte("bogus: 1\n"+sceneYAML))
	assert.Error(t, err)
}

func TestDescriptionResolve(t *testing.T) {
	d, err := DecodeDescription(".toml", []byte(sceneTOML))
	require.NoError(t, err)
	d.Resolve("/data")
	assert.Equal(t, filepath.Join("/data", "models/floor.obj"), d.Meshes[0].Path)
	assert.Equal(t, "builtin:sphere", d.Meshes[1].Path)
	assert.Equal(t, filepath.Join("/data", "textures/stone.png"), d.Materials[0].Albedo)
	assert.Empty(t, d.Materials[0].Normal)
	assert.Equal(t, filepath.Join("/data", "sky"), d.Environment.Dir)
}

func TestLoadAssets(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"models", "textures", "sky"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "floor.obj"), []byte(quadOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "textures", "stone.png"),
		encodePNG(t, 4, 4, color.RGBA{R: 90, G: 90, B: 90, A: 255}), 0o644))
	writeCubeDir(t, filepath.Join(dir, "sky"), 8)
	path := filepath.Join(dir, "scene.toml")
	require.NoError(t, os.WriteFile(path, []byte(sceneTOML), 0o644))

	desc, err := LoadDescription(path)
	require.NoError(t, err)
	assets, err := LoadAssets(context.Background(), desc, nil)
	require.NoError(t, err)

	require.Len(t, assets.Meshes, 2)
	require.Len(t, assets.Materials, 2, "stone plus the default for the unassigned sphere")
	assert.Equal(t, 0, assets.Meshes[0].Material)
	assert.Equal(t, 1, assets.Meshes[1].Material)
	stone := assets.Materials[0]
	assert.Equal(t, uint32(4), stone.Albedo.Width)
	assert.Equal(t, uint32(1), stone.Normal.Width)

	assert.Equal(t, uint32(8), assets.Environment.Size())
	vecNear(t, math.NewVec3(-0.5, -0.5, -0.5), assets.Bounds.Min)
	vecNear(t, math.NewVec3(1, 1, 0.5), assets.Bounds.Max)
}

func TestLoadAssetsReportsMissingFiles(t *testing.T) {
	desc := &Description{
		Meshes:      []MeshDesc{{Path: filepath.Join(t.TempDir(), "missing.glb")}},
		Environment: EnvironmentDesc{Faces: []string{"a", "b", "c", "d", "e", "f"}},
		Light:       LightDesc{Direction: [3]float32{0, -1, 0}},
	}
	_, err := LoadAssets(context.Background(), desc, nil)
	assert.Error(t, err)
}

func TestLoadAssetsHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	writeCubeDir(t, dir, 2)
	desc := &Description{
		Meshes:      []MeshDesc{{Path: "builtin:cube"}},
		Environment: EnvironmentDesc{Dir: dir},
		Light:       LightDesc{Direction: [3]float32{0, -1, 0}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadAssets(ctx, desc, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
