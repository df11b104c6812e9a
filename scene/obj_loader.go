package scene

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"deferred-engine/core"
	"deferred-engine/math"
)

// objRef is one face corner: 0-based position / UV / normal indices (-1 = absent).
type objRef struct{ v, vt, vn int }

// LoadOBJ parses a Wavefront .obj file into a single mesh. Objects, groups
// and materials are merged; the scene description assigns the material.
func LoadOBJ(path string) (*core.MeshData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open obj %q", path)
	}
	defer f.Close()

	m, err := ParseOBJ(f)
	if err != nil {
		return nil, errors.Wrapf(err, "obj %q", path)
	}
	return m, nil
}

// ParseOBJ reads .obj text. Polygons are fan-triangulated and corners with the
// same position/UV/normal triple share a vertex.
func ParseOBJ(r io.Reader) (*core.MeshData, error) {
	var positions, normals []math.Vec3
	var uvs []math.Vec2
	var corners []objRef

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v", "vn":
			vals, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			p := math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}
			if fields[0] == "v" {
				positions = append(positions, p)
			} else {
				normals = append(normals, p)
			}

		case "vt":
			vals, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			uvs = append(uvs, math.Vec2{X: vals[0], Y: vals[1]})

		case "f":
			if len(fields) < 4 {
				return nil, errors.Newf("line %d: face needs 3 vertices, got %d", line, len(fields)-1)
			}
			refs := make([]objRef, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				ref, err := parseFaceVertex(tok, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", line)
				}
				refs = append(refs, ref)
			}
			// Fan triangulation: 0-1-2, 0-2-3, ...
			for i := 1; i+1 < len(refs); i++ {
				corners = append(corners, refs[0], refs[i], refs[i+1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan obj")
	}
	if len(corners) == 0 {
		return nil, errors.New("no faces")
	}
	return buildOBJMesh(corners, positions, normals, uvs), nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, errors.Newf("want %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := range out {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseFaceVertex parses "v", "v/vt", "v//vn" or "v/vt/vn". OBJ indices are
// 1-based; negative indices count back from the latest element.
func parseFaceVertex(tok string, nv, nvt, nvn int) (objRef, error) {
	resolve := func(s string, count int) (int, error) {
		if s == "" {
			return -1, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		idx := n - 1
		if n < 0 {
			idx = count + n
		}
		if n == 0 || idx < 0 || idx >= count {
			return 0, errors.Newf("index %d out of range (%d defined)", n, count)
		}
		return idx, nil
	}

	parts := strings.Split(tok, "/")
	ref := objRef{v: -1, vt: -1, vn: -1}
	var err error
	if ref.v, err = resolve(parts[0], nv); err != nil {
		return ref, err
	}
	if ref.v < 0 {
		return ref, errors.Newf("face vertex %q has no position", tok)
	}
	if len(parts) > 1 {
		if ref.vt, err = resolve(parts[1], nvt); err != nil {
			return ref, err
		}
	}
	if len(parts) > 2 {
		if ref.vn, err = resolve(parts[2], nvn); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

func buildOBJMesh(corners []objRef, positions, normals []math.Vec3, uvs []math.Vec2) *core.MeshData {
	out := &core.MeshData{Indices: make([]uint32, 0, len(corners))}
	seen := map[objRef]uint32{}
	missingNormals := false

	for _, c := range corners {
		if idx, ok := seen[c]; ok {
			out.Indices = append(out.Indices, idx)
			continue
		}
		v := core.Vertex{Position: positions[c.v]}
		if c.vn >= 0 {
			v.Normal = normals[c.vn]
		} else {
			missingNormals = true
		}
		if c.vt >= 0 {
			v.UV = uvs[c.vt]
		}
		idx := uint32(len(out.Vertices))
		out.Vertices = append(out.Vertices, v)
		seen[c] = idx
		out.Indices = append(out.Indices, idx)
	}

	if missingNormals {
		generateNormals(out)
	}
	return out
}

// generateNormals writes area-weighted vertex normals for vertices that have none.
func generateNormals(m *core.MeshData) {
	accum := make([]math.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		v0 := m.Vertices[i0].Position
		n := m.Vertices[i1].Position.Sub(v0).Cross(m.Vertices[i2].Position.Sub(v0))
		accum[i0] = accum[i0].Add(n)
		accum[i1] = accum[i1].Add(n)
		accum[i2] = accum[i2].Add(n)
	}
	for i := range m.Vertices {
		if m.Vertices[i].Normal.LengthSqr() == 0 {
			m.Vertices[i].Normal = accum[i].Normalize()
		}
	}
}
