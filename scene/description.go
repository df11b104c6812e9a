package scene

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"deferred-engine/math"
)

// Description is the runtime scene file: which meshes to draw, their
// materials, the environment cube map and the sun.
type Description struct {
	Meshes      []MeshDesc      `toml:"mesh" yaml:"mesh"`
	Materials   []MaterialDesc  `toml:"material" yaml:"material"`
	Environment EnvironmentDesc `toml:"environment" yaml:"environment"`
	Light       LightDesc       `toml:"light" yaml:"light"`
	Camera      CameraDesc      `toml:"camera" yaml:"camera"`
}

type MeshDesc struct {
	Path     string `toml:"path" yaml:"path"`
	Material string `toml:"material" yaml:"material"`
}

// MaterialDesc names up to four texture files. Empty paths get defaults.
type MaterialDesc struct {
	Name               string       `toml:"name" yaml:"name"`
	Type               MaterialType `toml:"type" yaml:"type"`
	Albedo             string       `toml:"albedo" yaml:"albedo"`
	Normal             string       `toml:"normal" yaml:"normal"`
	RoughnessMetalness string       `toml:"roughness_metalness" yaml:"roughness_metalness"`
	AO                 string       `toml:"ao" yaml:"ao"`
}

// EnvironmentDesc is either six face paths in +X, -X, +Y, -Y, +Z, -Z order
// or a directory holding px/nx/py/ny/pz/nz images.
type EnvironmentDesc struct {
	Faces []string `toml:"faces" yaml:"faces"`
	Dir   string   `toml:"dir" yaml:"dir"`
}

type LightDesc struct {
	Direction [3]float32 `toml:"direction" yaml:"direction"`
	Color     [3]float32 `toml:"color" yaml:"color"`
	Intensity float32    `toml:"intensity" yaml:"intensity"`
}

// CameraDesc is the starting pose. Angles are in degrees.
type CameraDesc struct {
	Position [3]float32 `toml:"position" yaml:"position"`
	Yaw      float32    `toml:"yaw" yaml:"yaw"`
	Pitch    float32    `toml:"pitch" yaml:"pitch"`
}

func vec3(a [3]float32) math.Vec3 { return math.Vec3{X: a[0], Y: a[1], Z: a[2]} }

// DirectionalLight converts the light section.
func (l LightDesc) DirectionalLight() DirectionalLight {
	return DirectionalLight{
		Direction: vec3(l.Direction).Normalize(),
		Color:     vec3(l.Color),
		Intensity: l.Intensity,
	}
}

func (c CameraDesc) PositionVec() math.Vec3 { return vec3(c.Position) }

// LoadDescription reads a .toml, .yaml or .yml scene file, validates it and
// resolves every asset path against the file's directory.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scene %q", path)
	}
	desc, err := DecodeDescription(filepath.Ext(path), data)
	if err != nil {
		return nil, errors.Wrapf(err, "scene %q", path)
	}
	desc.Resolve(filepath.Dir(path))
	return desc, nil
}

// DecodeDescription parses data in the format named by ext and validates it.
// Paths are left as written.
func DecodeDescription(ext string, data []byte) (*Description, error) {
	desc := &Description{Light: LightDesc{Color: [3]float32{1, 1, 1}, Intensity: 1}}
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(desc); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, errors.Newf("unknown keys:\n%s", strict.String())
			}
			return nil, errors.Wrap(err, "decode toml")
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(desc); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
	default:
		return nil, errors.Newf("unsupported scene format %q", ext)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

// Validate checks cross references between sections.
func (d *Description) Validate() error {
	if len(d.Meshes) == 0 {
		return errors.New("scene has no meshes")
	}
	materials := make(map[string]bool, len(d.Materials))
	for i, m := range d.Materials {
		if m.Name == "" {
			return errors.Newf("material %d has no name", i)
		}
		if materials[m.Name] {
			return errors.Newf("material %q defined twice", m.Name)
		}
		materials[m.Name] = true
	}
	for i, m := range d.Meshes {
		if m.Path == "" {
			return errors.Newf("mesh %d has no path", i)
		}
		if m.Material != "" && !materials[m.Material] {
			return errors.Newf("mesh %q uses undefined material %q", m.Path, m.Material)
		}
	}

	env := d.Environment
	switch {
	case env.Dir != "" && len(env.Faces) > 0:
		return errors.New("environment sets both dir and faces")
	case env.Dir == "" && len(env.Faces) == 0:
		return errors.New("environment needs dir or faces")
	case len(env.Faces) > 0 && len(env.Faces) != 6:
		return errors.Newf("environment has %d faces, want 6", len(env.Faces))
	}

	dir := vec3(d.Light.Direction)
	if dir.LengthSqr() == 0 || !dir.IsFinite() {
		return errors.Newf("light direction %v is not a usable vector", d.Light.Direction)
	}
	if d.Light.Intensity < 0 {
		return errors.Newf("light intensity %v is negative", d.Light.Intensity)
	}
	return nil
}

// Resolve makes relative asset paths relative to dir.
func (d *Description) Resolve(dir string) {
	join := func(p *string) {
		if *p == "" || filepath.IsAbs(*p) || strings.HasPrefix(*p, BuiltinPrefix) {
			return
		}
		*p = filepath.Join(dir, *p)
	}
	for i := range d.Meshes {
		join(&d.Meshes[i].Path)
	}
	for i := range d.Materials {
		m := &d.Materials[i]
		join(&m.Albedo)
		join(&m.Normal)
		join(&m.RoughnessMetalness)
		join(&m.AO)
	}
	for i := range d.Environment.Faces {
		join(&d.Environment.Faces[i])
	}
	join(&d.Environment.Dir)
}
