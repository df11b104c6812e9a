package scene

import (
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"

	"deferred-engine/math"
)

// ErrNegativePadding reports an inverted or degenerate cascade box.
var ErrNegativePadding = errors.New("negative light-space padding")

// DirectionalLight is a light at infinity shining along Direction.
type DirectionalLight struct {
	Direction math.Vec3
	Color     math.Vec3
	Intensity float32
}

// View looks from the origin along the light direction. World +X is used
// as up when the direction is parallel to +Y.
func (l DirectionalLight) View() math.Mat4 {
	dir := l.Direction.Normalize()
	up := math.Vec3Up
	if math32.Abs(dir.Dot(up)) > 0.999 {
		up = math.Vec3Right
	}
	return math.Mat4LookAt(math.Vec3Zero, dir, up)
}

// CascadeParams are the shadow map properties cascade fitting needs.
type CascadeParams struct {
	Resolution uint32
	KernelSize int
	// Splits, when given, are copied into Cascade.SplitDepth.
	Splits []float32
}

// Cascade is one light-space fit. Light view position p maps to shadow
// clip space as p*Scale + Offset.
type Cascade struct {
	SplitDepth float32
	Min, Max   math.Vec3
	Scale      math.Vec3
	Offset     math.Vec3
}

// Matrix maps world space to the cascade's shadow clip space.
func (c Cascade) Matrix(lightView math.Mat4) math.Mat4 {
	return lightView.Mul(math.Mat4ScaleOffset(c.Scale, c.Offset))
}

func maxPairDistance(pts []math.Vec3) float32 {
	var d float32
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			d = math32.Max(d, pts[i].Distance(pts[j]))
		}
	}
	return d
}

func snap(v, step float32) float32 {
	return math32.Floor(v/step) * step
}

// ComputeCascadeScalesAndOffsets fits one orthographic projection per
// cascade. corners holds the 4N+4 world-space boundary corners; the X/Y
// extent of every fit is the cascade's largest corner distance plus a
// filter margin, snapped to whole shadow texels. Depth runs from the scene
// box corner nearest the light to the far end of the cascade.
func (l DirectionalLight) ComputeCascadeScalesAndOffsets(corners []math.Vec3, sceneBox AABB, p CascadeParams) ([]Cascade, error) {
	if len(corners) < 8 || len(corners)%4 != 0 {
		return nil, errors.Newf("need 4N+4 frustum corners, got %d", len(corners))
	}
	if p.Resolution == 0 {
		return nil, errors.New("shadow resolution is zero")
	}
	n := len(corners)/4 - 1
	view := l.View()

	sceneNear := math32.Inf(-1)
	for _, c := range sceneBox.Corners() {
		sceneNear = math32.Max(sceneNear, view.TransformPoint(c).Z)
	}

	out := make([]Cascade, n)
	for i := range out {
		world := CascadeCorners(corners, i)
		light := make([]math.Vec3, len(world))
		for k, c := range world {
			light[k] = view.TransformPoint(c)
		}
		box := BoundsOf(light)

		diag := maxPairDistance(world)
		size := box.Size()
		padX := (diag - size.X) / 2
		padY := (diag - size.Y) / 2
		if !(padX >= 0 && padY >= 0) {
			return nil, errors.Wrapf(ErrNegativePadding, "cascade %d: pad %g,%g", i, padX, padY)
		}
		box.Min.X -= padX
		box.Max.X += padX
		box.Min.Y -= padY
		box.Max.Y += padY

		texel := diag / float32(p.Resolution)
		margin := float32(p.KernelSize/2) * texel
		box.Min.X -= margin
		box.Max.X += margin
		box.Min.Y -= margin
		box.Max.Y += margin

		texel = (diag + 2*margin) / float32(p.Resolution)
		box.Min.X = snap(box.Min.X, texel)
		box.Min.Y = snap(box.Min.Y, texel)
		box.Max.X = snap(box.Max.X, texel)
		box.Max.Y = snap(box.Max.Y, texel)

		// light looks down -Z: larger Z is nearer
		box.Max.Z = math32.Max(box.Max.Z, sceneNear)
		depth := box.Max.Z - box.Min.Z
		if !(depth > 0) || !(box.Max.X > box.Min.X) || !(box.Max.Y > box.Min.Y) {
			return nil, errors.Newf("cascade %d: degenerate light-space box %v..%v", i, box.Min, box.Max)
		}

		c := Cascade{Min: box.Min, Max: box.Max}
		c.Scale = math.NewVec3(2/(box.Max.X-box.Min.X), 2/(box.Max.Y-box.Min.Y), 1/(box.Min.Z-box.Max.Z))
		c.Offset = math.NewVec3(
			-(box.Max.X+box.Min.X)/(box.Max.X-box.Min.X),
			-(box.Max.Y+box.Min.Y)/(box.Max.Y-box.Min.Y),
			-box.Max.Z*c.Scale.Z,
		)
		if i < len(p.Splits) {
			c.SplitDepth = p.Splits[i]
		}
		out[i] = c
	}
	return out, nil
}
