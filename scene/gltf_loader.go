package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"deferred-engine/core"
	"deferred-engine/math"
)

// LoadGLTF opens a .glb or .gltf file and flattens every mesh primitive
// reachable from the default scene into one MeshData in world space.
// Materials and textures embedded in the file are ignored; the scene
// description assigns those.
func LoadGLTF(path string) (*core.MeshData, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "gltf open %q", path)
	}
	out, err := flattenGLTF(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "gltf %q", path)
	}
	return out, nil
}

func flattenGLTF(doc *gltf.Document) (*core.MeshData, error) {
	out := &core.MeshData{}
	visited := make([]bool, len(doc.Nodes))

	var walk func(idx int, parent math.Mat4) error
	walk = func(idx int, parent math.Mat4) error {
		if idx < 0 || idx >= len(doc.Nodes) {
			return errors.Newf("node index %d out of range", idx)
		}
		if visited[idx] {
			return errors.Newf("node %d reached twice", idx)
		}
		visited[idx] = true

		gn := doc.Nodes[idx]
		world := nodeMatrix(gn).Mul(parent)
		if gn.Mesh != nil {
			if *gn.Mesh >= len(doc.Meshes) {
				return errors.Newf("node %d: mesh index %d out of range", idx, *gn.Mesh)
			}
			for pi, prim := range doc.Meshes[*gn.Mesh].Primitives {
				if err := appendPrimitive(doc, prim, world, out); err != nil {
					return errors.Wrapf(err, "mesh %d primitive %d", *gn.Mesh, pi)
				}
			}
		}
		for _, c := range gn.Children {
			if err := walk(c, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range rootNodes(doc) {
		if err := walk(root, math.Mat4Identity()); err != nil {
			return nil, err
		}
	}
	if len(out.Indices) == 0 {
		return nil, errors.New("no triangles")
	}
	return out, nil
}

// rootNodes returns the default scene's roots, or every parentless node when
// the file names no scene.
func rootNodes(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c >= 0 && c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// nodeMatrix converts a node's local transform to the row-vector convention.
// glTF stores column-major matrices for column vectors, so the flat array
// read row by row is already the transposed form.
func nodeMatrix(gn *gltf.Node) math.Mat4 {
	if m := gn.MatrixOrDefault(); m != identityMatrix {
		var out math.Mat4
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				out[i][j] = float32(m[i*4+j])
			}
		}
		return out
	}
	t := gn.TranslationOrDefault()
	r := gn.RotationOrDefault()
	s := gn.ScaleOrDefault()
	scale := math.Mat4Scale(math.Vec3{X: float32(s[0]), Y: float32(s[1]), Z: float32(s[2])})
	rot := quatMatrix(float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3]))
	trans := math.Mat4Translation(math.Vec3{X: float32(t[0]), Y: float32(t[1]), Z: float32(t[2])})
	return scale.Mul(rot).Mul(trans)
}

// quatMatrix builds the row-vector rotation for unit quaternion (x, y, z, w).
func quatMatrix(x, y, z, w float32) math.Mat4 {
	m := math.Mat4Identity()
	m[0][0] = 1 - 2*(y*y+z*z)
	m[0][1] = 2 * (x*y + z*w)
	m[0][2] = 2 * (x*z - y*w)
	m[1][0] = 2 * (x*y - z*w)
	m[1][1] = 1 - 2*(x*x+z*z)
	m[1][2] = 2 * (y*z + x*w)
	m[2][0] = 2 * (x*z + y*w)
	m[2][1] = 2 * (y*z - x*w)
	m[2][2] = 1 - 2*(x*x+y*y)
	return m
}

// appendPrimitive transforms one triangle primitive into out.
func appendPrimitive(doc *gltf.Document, prim *gltf.Primitive, world math.Mat4, out *core.MeshData) error {
	if prim.Mode != gltf.PrimitiveTriangles {
		return errors.Newf("unsupported primitive mode %v", prim.Mode)
	}
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return errors.New("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return errors.Wrap(err, "positions")
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return errors.Wrap(err, "normals")
		}
	}
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return errors.Wrap(err, "texcoords")
		}
	}

	normalMatrix := world.Inverse().Transpose()
	base := uint32(len(out.Vertices))
	for i, p := range positions {
		v := core.Vertex{
			Position: world.TransformPoint(math.Vec3{X: p[0], Y: p[1], Z: p[2]}),
			Normal:   math.Vec3{Y: 1},
		}
		if i < len(normals) {
			n := math.Vec4{X: normals[i][0], Y: normals[i][1], Z: normals[i][2]}
			v.Normal = n.MulMat(normalMatrix).ToVec3().Normalize()
		}
		if i < len(uvs) {
			v.UV = math.Vec2{X: uvs[i][0], Y: uvs[i][1]}
		}
		out.Vertices = append(out.Vertices, v)
	}

	if prim.Indices == nil {
		for i := range positions {
			out.Indices = append(out.Indices, base+uint32(i))
		}
		return nil
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return errors.Wrap(err, "indices")
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return errors.Newf("index %d exceeds %d vertices", idx, len(positions))
		}
		out.Indices = append(out.Indices, base+idx)
	}
	return nil
}
