package scene

import (
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"

	"deferred-engine/core"
	"deferred-engine/math"
)

// MaxCascades bounds Camera.SegmentCount; the shadow shaders index
// fixed-size arrays of this length.
const MaxCascades = 4

const maxPitch = 89 * math32.Pi / 180

// Camera is a yaw/pitch fly camera that also partitions its frustum into
// shadow cascades. Yaw 0 and pitch 0 look down -Z.
type Camera struct {
	Position math.Vec3
	Yaw      float32
	Pitch    float32
	// FOV is the vertical field of view in radians.
	FOV    float32
	Aspect float32
	Near   float32
	Far    float32
	// Lambda blends uniform (0) and logarithmic (1) cascade splits.
	Lambda float32

	segments int
}

// NewCamera builds a camera with a fixed cascade count.
func NewCamera(fovDegrees, aspect, near, far float32, segments int) (*Camera, error) {
	if segments < 1 || segments > MaxCascades {
		return nil, errors.Newf("cascade count %d outside [1,%d]", segments, MaxCascades)
	}
	if !(near > 0 && near < far) {
		return nil, errors.Newf("invalid depth range near=%g far=%g", near, far)
	}
	return &Camera{
		FOV:      fovDegrees * math32.Pi / 180,
		Aspect:   aspect,
		Near:     near,
		Far:      far,
		Lambda:   0.5,
		segments: segments,
	}, nil
}

// SegmentCount is the number of shadow cascades, fixed for the camera's
// lifetime.
func (c *Camera) SegmentCount() int { return c.segments }

func (c *Camera) Forward() math.Vec3 {
	sy, cy := math32.Sincos(c.Yaw)
	sp, cp := math32.Sincos(c.Pitch)
	return math.NewVec3(cp*sy, sp, -cp*cy)
}

func (c *Camera) Right() math.Vec3 {
	return c.Forward().Cross(math.Vec3Up).Normalize()
}

func (c *Camera) Up() math.Vec3 {
	return c.Right().Cross(c.Forward())
}

func (c *Camera) View() math.Mat4 {
	return math.Mat4LookAt(c.Position, c.Position.Add(c.Forward()), math.Vec3Up)
}

func (c *Camera) Projection() math.Mat4 {
	return math.Mat4Perspective(c.FOV, c.Aspect, c.Near, c.Far)
}

func (c *Camera) ViewProjection() math.Mat4 {
	return c.View().Mul(c.Projection())
}

// SetAspect updates the aspect ratio after a resize.
func (c *Camera) SetAspect(width, height uint32) {
	if height > 0 {
		c.Aspect = float32(width) / float32(height)
	}
}

// Move translates along the camera's right, up and forward axes.
func (c *Camera) Move(right, up, forward float32) {
	d := c.Right().Mul(right).Add(math.Vec3Up.Mul(up)).Add(c.Forward().Mul(forward))
	c.Position = c.Position.Add(d)
}

// Rotate turns the camera; pitch is clamped short of the poles.
func (c *Camera) Rotate(dyaw, dpitch float32) {
	c.Yaw += dyaw
	c.Pitch = math32.Max(-maxPitch, math32.Min(maxPitch, c.Pitch+dpitch))
}

// Zoom narrows the field of view for positive steps.
func (c *Camera) Zoom(steps float32) {
	const lo, hi = 20 * math32.Pi / 180, 100 * math32.Pi / 180
	c.FOV = math32.Max(lo, math32.Min(hi, c.FOV-steps*math32.Pi/180))
}

// Controls scales raw input into camera motion.
type Controls struct {
	Speed       float32 // world units per second
	Sensitivity float32 // radians per pixel
}

func DefaultControls() Controls {
	return Controls{Speed: 4, Sensitivity: 0.003}
}

// Apply moves and turns the camera from one input snapshot.
func (c *Camera) Apply(in core.InputState, ctl Controls) {
	dist := ctl.Speed * float32(in.Delta.Seconds())
	var right, up, forward float32
	if in.Pressed(core.KeyForward) {
		forward += dist
	}
	if in.Pressed(core.KeyBack) {
		forward -= dist
	}
	if in.Pressed(core.KeyRight) {
		right += dist
	}
	if in.Pressed(core.KeyLeft) {
		right -= dist
	}
	if in.Pressed(core.KeyUp) {
		up += dist
	}
	if in.Pressed(core.KeyDown) {
		up -= dist
	}
	if right != 0 || up != 0 || forward != 0 {
		c.Move(right, up, forward)
	}
	if in.Drag != (math.Vec2{}) {
		c.Rotate(in.Drag.X*ctl.Sensitivity, -in.Drag.Y*ctl.Sensitivity)
	}
	if in.Scroll != 0 {
		c.Zoom(in.Scroll)
	}
}

// SplitDepths returns the far depth of each cascade, blending uniform and
// logarithmic splits by lambda. The last split is Far.
func (c *Camera) SplitDepths(lambda float32) []float32 {
	n := float32(c.segments)
	out := make([]float32, c.segments)
	for i := range out {
		p := float32(i+1) / n
		logSplit := c.Near * math32.Pow(c.Far/c.Near, p)
		uniSplit := c.Near + (c.Far-c.Near)*p
		d := (1-lambda)*uniSplit + lambda*logSplit
		out[i] = math32.Max(c.Near, math32.Min(c.Far, d))
	}
	out[len(out)-1] = c.Far
	return out
}

// planeCorners appends the four frustum corners at view depth d in the
// order bottom-left, bottom-right, top-right, top-left.
func (c *Camera) planeCorners(dst []math.Vec3, d float32) []math.Vec3 {
	fwd, right, up := c.Forward(), c.Right(), c.Up()
	center := c.Position.Add(fwd.Mul(d))
	h := d * math32.Tan(c.FOV/2)
	w := h * c.Aspect
	r, u := right.Mul(w), up.Mul(h)
	return append(dst,
		center.Sub(r).Sub(u),
		center.Add(r).Sub(u),
		center.Add(r).Add(u),
		center.Sub(r).Add(u),
	)
}

// CornersWorldSpace returns the 4N+4 world-space corners of the cascade
// boundary planes, near plane first. Cascade i spans points [4i, 4i+8).
func (c *Camera) CornersWorldSpace() []math.Vec3 {
	out := make([]math.Vec3, 0, 4*c.segments+4)
	out = c.planeCorners(out, c.Near)
	for _, d := range c.SplitDepths(c.Lambda) {
		out = c.planeCorners(out, d)
	}
	return out
}

// CascadeCorners returns the eight corners of cascade i from a
// CornersWorldSpace result.
func CascadeCorners(corners []math.Vec3, i int) []math.Vec3 {
	return corners[4*i : 4*i+8]
}
