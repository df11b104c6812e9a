package scene

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image holds CPU-side pixel data for a 2D texture.
// Pixels are RGBA8, row-major, top-to-bottom.
type Image struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// LoadImage reads a PNG, JPEG, BMP, TIFF or WebP file and converts it to RGBA8.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %q", path)
	}
	img, err := DecodeImage(path, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %q", path)
	}
	return img, nil
}

// DecodeImage decodes an encoded image held in memory.
func DecodeImage(name string, data []byte) (*Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, errors.Newf("image %q has no pixels", name)
	}
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	return &Image{
		Name:   name,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pixels: rgba.Pix,
	}, nil
}

// SolidImage creates a 1x1 image. Used for material slots left empty.
func SolidImage(name string, r, g, b, a uint8) *Image {
	return &Image{
		Name:   name,
		Width:  1,
		Height: 1,
		Pixels: []byte{r, g, b, a},
	}
}

// CubeFaceNames lists the face file stems in Vulkan layer order (+X, -X, +Y, -Y, +Z, -Z).
var CubeFaceNames = [6]string{"px", "nx", "py", "ny", "pz", "nz"}

// CubeImage is six square faces of equal size in layer order.
type CubeImage struct {
	Faces [6]*Image
}

// Size returns the edge length shared by every face.
func (c *CubeImage) Size() uint32 { return c.Faces[0].Width }

// Pixels returns the faces concatenated layer by layer, ready for a single upload.
func (c *CubeImage) Pixels() []byte {
	face := len(c.Faces[0].Pixels)
	out := make([]byte, 0, 6*face)
	for _, f := range c.Faces {
		out = append(out, f.Pixels...)
	}
	return out
}

// NewCubeImage checks that the faces are square and share one size.
func NewCubeImage(faces [6]*Image) (*CubeImage, error) {
	for i, f := range faces {
		if f == nil {
			return nil, errors.Newf("cube face %s missing", CubeFaceNames[i])
		}
		if f.Width != f.Height {
			return nil, errors.Newf("cube face %s is %dx%d, want square", CubeFaceNames[i], f.Width, f.Height)
		}
		if f.Width != faces[0].Width {
			return nil, errors.Newf("cube face %s is %d wide, want %d", CubeFaceNames[i], f.Width, faces[0].Width)
		}
	}
	return &CubeImage{Faces: faces}, nil
}

// FindCubeFaces locates the six face files of a cube map directory. Each face
// is the first file whose stem matches its CubeFaceNames entry.
func FindCubeFaces(dir string) ([6]string, error) {
	var paths [6]string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return paths, errors.Wrapf(err, "read cube directory %q", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := name[:len(name)-len(filepath.Ext(name))]
		for i, face := range CubeFaceNames {
			if stem == face && paths[i] == "" {
				paths[i] = filepath.Join(dir, name)
			}
		}
	}
	for i, p := range paths {
		if p == "" {
			return paths, errors.Newf("cube directory %q has no %s face", dir, CubeFaceNames[i])
		}
	}
	return paths, nil
}
