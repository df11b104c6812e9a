package scene

import "deferred-engine/math"

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal math.Vec3
	D      float32
}

// DistanceTo is positive on the inside.
func (p Plane) DistanceTo(pt math.Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

// Frustum holds the six clip planes of a view frustum.
type Frustum struct {
	Planes [6]Plane // left, right, bottom, top, near, far
}

// FrustumFromViewProj extracts normalized planes from a row-vector
// view-projection matrix with Vulkan's [0,1] depth range. Clip component j
// is the dot product with column j.
func FrustumFromViewProj(vp math.Mat4) Frustum {
	col := func(j int) math.Vec4 {
		return math.Vec4{X: vp[0][j], Y: vp[1][j], Z: vp[2][j], W: vp[3][j]}
	}
	c0, c1, c2, c3 := col(0), col(1), col(2), col(3)

	var f Frustum
	f.Planes[0] = normalizePlane(c3.X+c0.X, c3.Y+c0.Y, c3.Z+c0.Z, c3.W+c0.W)
	f.Planes[1] = normalizePlane(c3.X-c0.X, c3.Y-c0.Y, c3.Z-c0.Z, c3.W-c0.W)
	f.Planes[2] = normalizePlane(c3.X+c1.X, c3.Y+c1.Y, c3.Z+c1.Z, c3.W+c1.W)
	f.Planes[3] = normalizePlane(c3.X-c1.X, c3.Y-c1.Y, c3.Z-c1.Z, c3.W-c1.W)
	f.Planes[4] = normalizePlane(c2.X, c2.Y, c2.Z, c2.W)
	f.Planes[5] = normalizePlane(c3.X-c2.X, c3.Y-c2.Y, c3.Z-c2.Z, c3.W-c2.W)
	return f
}

func normalizePlane(a, b, c, d float32) Plane {
	l := math.Vec3{X: a, Y: b, Z: c}.Length()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: math.Vec3{X: a / l, Y: b / l, Z: c / l}, D: d / l}
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max math.Vec3
}

// BoundsOf returns the box around points; the zero box for none.
func BoundsOf(points []math.Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box = box.Extend(p)
	}
	return box
}

func (b AABB) Extend(p math.Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

func (b AABB) Union(o AABB) AABB {
	return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

func (b AABB) Size() math.Vec3 { return b.Max.Sub(b.Min) }

// Corners lists the eight corners, X varying fastest.
func (b AABB) Corners() [8]math.Vec3 {
	mn, mx := b.Min, b.Max
	return [8]math.Vec3{
		{X: mn.X, Y: mn.Y, Z: mn.Z},
		{X: mx.X, Y: mn.Y, Z: mn.Z},
		{X: mn.X, Y: mx.Y, Z: mn.Z},
		{X: mx.X, Y: mx.Y, Z: mn.Z},
		{X: mn.X, Y: mn.Y, Z: mx.Z},
		{X: mx.X, Y: mn.Y, Z: mx.Z},
		{X: mn.X, Y: mx.Y, Z: mx.Z},
		{X: mx.X, Y: mx.Y, Z: mx.Z},
	}
}

// Transform returns the box around b's corners moved by m.
func (b AABB) Transform(m math.Mat4) AABB {
	c := b.Corners()
	out := AABB{Min: m.TransformPoint(c[0]), Max: m.TransformPoint(c[0])}
	for _, p := range c[1:] {
		out = out.Extend(m.TransformPoint(p))
	}
	return out
}

// IntersectsFrustum reports false only when the box is entirely outside
// one of the planes.
func (b AABB) IntersectsFrustum(f *Frustum) bool {
	for i := range f.Planes {
		p := f.Planes[i]
		// positive vertex
		v := b.Max
		if p.Normal.X < 0 {
			v.X = b.Min.X
		}
		if p.Normal.Y < 0 {
			v.Y = b.Min.Y
		}
		if p.Normal.Z < 0 {
			v.Z = b.Min.Z
		}
		if p.DistanceTo(v) < 0 {
			return false
		}
	}
	return true
}
