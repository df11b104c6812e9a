package scene

import (
	"strings"

	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"

	"deferred-engine/core"
	"deferred-engine/math"
)

// BuiltinPrefix marks a mesh path that names a generated primitive, e.g. "builtin:cube".
const BuiltinPrefix = "builtin:"

// BuiltinMesh returns the named primitive: "cube", "plane" or "sphere".
// All primitives have counter-clockwise front faces.
func BuiltinMesh(name string) (*core.MeshData, error) {
	switch strings.TrimPrefix(name, BuiltinPrefix) {
	case "cube":
		return CreateCube(1), nil
	case "plane":
		return CreatePlane(10, 10, 1), nil
	case "sphere":
		return CreateSphere(0.5, 32, 16), nil
	}
	return nil, errors.Newf("unknown builtin mesh %q", name)
}

// CreateCube generates an axis-aligned cube centred on the origin with one
// quad per face so normals stay flat.
func CreateCube(size float32) *core.MeshData {
	s := size / 2
	faces := [6]struct{ n, u, v math.Vec3 }{
		{n: math.Vec3{X: 1}, u: math.Vec3{Y: 1}, v: math.Vec3{Z: 1}},
		{n: math.Vec3{X: -1}, u: math.Vec3{Z: 1}, v: math.Vec3{Y: 1}},
		{n: math.Vec3{Y: 1}, u: math.Vec3{Z: 1}, v: math.Vec3{X: 1}},
		{n: math.Vec3{Y: -1}, u: math.Vec3{X: 1}, v: math.Vec3{Z: 1}},
		{n: math.Vec3{Z: 1}, u: math.Vec3{X: 1}, v: math.Vec3{Y: 1}},
		{n: math.Vec3{Z: -1}, u: math.Vec3{Y: 1}, v: math.Vec3{X: 1}},
	}
	quad := [4]math.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	out := &core.MeshData{}
	for _, f := range faces {
		base := uint32(len(out.Vertices))
		for _, uv := range quad {
			p := f.n.Add(f.u.Mul(2*uv.X - 1)).Add(f.v.Mul(2*uv.Y - 1))
			out.Vertices = append(out.Vertices, core.Vertex{
				Position: p.Mul(s),
				Normal:   f.n,
				UV:       uv,
			})
		}
		out.Indices = append(out.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return out
}

// CreatePlane generates a flat plane on y = 0 facing +Y.
func CreatePlane(width, depth float32, subdivisions int) *core.MeshData {
	if subdivisions < 1 {
		subdivisions = 1
	}
	halfW := width / 2
	halfD := depth / 2

	out := &core.MeshData{}
	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u := float32(x) / float32(subdivisions)
			v := float32(z) / float32(subdivisions)
			out.Vertices = append(out.Vertices, core.Vertex{
				Position: math.Vec3{X: -halfW + u*width, Z: -halfD + v*depth},
				Normal:   math.Vec3{Y: 1},
				UV:       math.Vec2{X: u, Y: v},
			})
		}
	}

	row := uint32(subdivisions + 1)
	for z := 0; z < subdivisions; z++ {
		for x := 0; x < subdivisions; x++ {
			topLeft := uint32(z)*row + uint32(x)
			topRight := topLeft + 1
			bottomLeft := topLeft + row
			bottomRight := bottomLeft + 1

			out.Indices = append(out.Indices, topLeft, bottomLeft, topRight)
			out.Indices = append(out.Indices, topRight, bottomLeft, bottomRight)
		}
	}
	return out
}

// CreateSphere generates a UV sphere.
func CreateSphere(radius float32, segments, rings int) *core.MeshData {
	if segments < 3 {
		segments = 3
	}
	if rings < 2 {
		rings = 2
	}

	out := &core.MeshData{}
	for ring := 0; ring <= rings; ring++ {
		phi := float32(ring) * math32.Pi / float32(rings)
		sinPhi, cosPhi := math32.Sincos(phi)
		for seg := 0; seg <= segments; seg++ {
			theta := float32(seg) * 2 * math32.Pi / float32(segments)
			sinTheta, cosTheta := math32.Sincos(theta)

			normal := math.Vec3{X: sinPhi * cosTheta, Y: cosPhi, Z: sinPhi * sinTheta}
			out.Vertices = append(out.Vertices, core.Vertex{
				Position: normal.Mul(radius),
				Normal:   normal,
				UV:       math.Vec2{X: float32(seg) / float32(segments), Y: float32(ring) / float32(rings)},
			})
		}
	}

	row := uint32(segments + 1)
	for ring := 0; ring < rings; ring++ {
		for seg := 0; seg < segments; seg++ {
			current := uint32(ring)*row + uint32(seg)
			next := current + row

			if ring > 0 {
				out.Indices = append(out.Indices, current, current+1, next)
			}
			if ring < rings-1 {
				out.Indices = append(out.Indices, current+1, next+1, next)
			}
		}
	}
	return out
}
