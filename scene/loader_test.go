package scene

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/math"
)

const quadOBJ = `# unit quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestParseOBJTriangulatesAndGeneratesNormals(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(quadOBJ))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	for _, v := range m.Vertices {
		vecNear(t, math.NewVec3(0, 0, 1), v.Normal)
	}
	assert.Equal(t, math.NewVec2(1, 1), m.Vertices[2].UV)
}

func TestParseOBJNegativeIndicesAndSharedCorners(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nf -3//1 -2//1 -1//1\nf 1//1 2//1 3//1\n"
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1, 2}, m.Indices)
}

func TestParseOBJErrors(t *testing.T) {
	cases := map[string]string{
		"no faces":      "v 0 0 0\n",
		"short face":    "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"out of range":  "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n",
		"zero index":    "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n",
		"bad float":     "v 0 x 0\n",
		"missing comps": "vt 0\n",
	}
	for name, src := range cases {
		_, err := ParseOBJ(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}

func TestQuatMatrixRotatesLikeRotationY(t *testing.T) {
	angle := math32.Pi / 3
	s, c := math32.Sincos(angle / 2)
	q := quatMatrix(0, s, 0, c)
	want := math.Mat4RotationY(angle)
	p := math.NewVec3(1, 2, 3)
	vecNear(t, want.TransformPoint(p), q.TransformPoint(p))
}

func TestNodeMatrixAppliesScaleRotationTranslation(t *testing.T) {
	s, c := math32.Sincos(math32.Pi / 4)
	n := &gltf.Node{
		Translation: [3]float64{10, 0, 0},
		Rotation:    [4]float64{0, 0, float64(s), float64(c)},
		Scale:       [3]float64{2, 2, 2},
	}
	// Scale to (2,0,0), rotate 90 degrees about Z to (0,2,0), then translate.
	vecNear(t, math.NewVec3(10, 2, 0), nodeMatrix(n).TransformPoint(math.NewVec3(1, 0, 0)))

	m := &gltf.Node{Matrix: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 6, 7, 1}}
	vecNear(t, math.NewVec3(5, 6, 7), nodeMatrix(m).TransformPoint(math.Vec3{}))
}

func TestRootNodesWithoutScene(t *testing.T) {
	doc := &gltf.Document{Nodes: []*gltf.Node{{Children: []int{1}}, {}, {}}}
	assert.Equal(t, []int{0, 2}, rootNodes(doc))
}

func TestFlattenGLTFRejectsCycles(t *testing.T) {
	root := 0
	doc := &gltf.Document{
		Nodes:  []*gltf.Node{{Children: []int{1}}, {Children: []int{0}}},
		Scenes: []*gltf.Scene{{Nodes: []int{0}}},
		Scene:  &root,
	}
	_, err := flattenGLTF(doc)
	assert.ErrorContains(t, err, "reached twice")
}

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImageConvertsToRGBA(t *testing.T) {
	img, err := DecodeImage("red", encodePNG(t, 3, 2, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	require.Len(t, img.Pixels, 3*2*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[:4])

	_, err = DecodeImage("junk", []byte("not an image"))
	assert.Error(t, err)
}

func TestCubeImageValidation(t *testing.T) {
	var faces [6]*Image
	for i := range faces {
		faces[i] = &Image{Width: 2, Height: 2, Pixels: make([]byte, 16)}
	}
	cube, err := NewCubeImage(faces)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cube.Size())
	assert.Len(t, cube.Pixels(), 6*16)

	faces[3] = &Image{Width: 4, Height: 4, Pixels: make([]byte, 64)}
	_, err = NewCubeImage(faces)
	assert.ErrorContains(t, err, "ny")

	faces[3] = &Image{Width: 2, Height: 1, Pixels: make([]byte, 8)}
	_, err = NewCubeImage(faces)
	assert.ErrorContains(t, err, "square")

	faces[3] = nil
	_, err = NewCubeImage(faces)
	assert.ErrorContains(t, err, "missing")
}

func writeCubeDir(t *testing.T, dir string, size int) {
	t.Helper()
	for _, f := range CubeFaceNames {
		data := encodePNG(t, size, size, color.RGBA{B: 255, A: 255})
		require.NoError(t, os.WriteFile(filepath.Join(dir, f+".png"), data, 0o644))
	}
}

func TestFindCubeFaces(t *testing.T) {
	dir := t.TempDir()
	writeCubeDir(t, dir, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), nil, 0o644))

	paths, err := FindCubeFaces(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "px.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "nz.png"), paths[5])

	require.NoError(t, os.Remove(filepath.Join(dir, "py.png")))
	_, err = FindCubeFaces(dir)
	assert.ErrorContains(t, err, "py")
}
