package math

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestVec3Operations(t *testing.T) {
	v1 := NewVec3(1, 2, 3)
	v2 := NewVec3(4, 5, 6)

	if got, want := v1.Add(v2), NewVec3(5, 7, 9); got != want {
		t.Errorf("Add: expected %v, got %v", want, got)
	}
	if got, want := v2.Sub(v1), NewVec3(3, 3, 3); got != want {
		t.Errorf("Sub: expected %v, got %v", want, got)
	}
	if got := v1.Dot(v2); got != 32 {
		t.Errorf("Dot: expected 32, got %v", got)
	}
	if cross := Vec3Right.Cross(Vec3Up); cross != Vec3Front {
		t.Errorf("Cross: expected %v, got %v", Vec3Front, cross)
	}
	if got, want := v1.Min(NewVec3(0, 5, 3)), NewVec3(0, 2, 3); got != want {
		t.Errorf("Min: expected %v, got %v", want, got)
	}
	if got, want := v1.Max(NewVec3(0, 5, 3)), NewVec3(1, 5, 3); got != want {
		t.Errorf("Max: expected %v, got %v", want, got)
	}
}

func TestVec3Normalize(t *testing.T) {
	n := NewVec3(3, 0, 4).Normalize()
	if !near(n.Length(), 1) {
		t.Errorf("Normalize: expected length 1, got %v", n.Length())
	}
	if z := Vec3Zero.Normalize(); z != Vec3Zero {
		t.Errorf("Normalize: zero vector should stay zero, got %v", z)
	}
}

func TestVec3IsFinite(t *testing.T) {
	if !NewVec3(1, 2, 3).IsFinite() {
		t.Error("IsFinite: finite vector reported as non-finite")
	}
	if NewVec3(float32(math.NaN()), 0, 0).IsFinite() {
		t.Error("IsFinite: NaN not detected")
	}
	if NewVec3(0, float32(math.Inf(1)), 0).IsFinite() {
		t.Error("IsFinite: Inf not detected")
	}
}

func TestMat4Translation(t *testing.T) {
	translation := NewVec3(1, 2, 3)
	m := Mat4Translation(translation)

	if got := m.TransformPoint(Vec3Zero); got != translation {
		t.Errorf("Translation: expected %v, got %v", translation, got)
	}
}

func TestMat4MulOrder(t *testing.T) {
	// Scale first, then translate.
	m := Mat4Scale(NewVec3(2, 2, 2)).Mul(Mat4Translation(NewVec3(1, 0, 0)))
	got := m.TransformPoint(NewVec3(1, 1, 1))
	if got != NewVec3(3, 2, 2) {
		t.Errorf("Mul order: expected (3,2,2), got %v", got)
	}
}

func TestMat4Inverse(t *testing.T) {
	m := Mat4RotationY(0.7).Mul(Mat4Translation(NewVec3(3, -2, 5)))
	id := m.Mul(m.Inverse())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := float32(0)
			if i == j {
				want = 1
			}
			if !near(id[i][j], want) {
				t.Fatalf("Inverse: m*inv(m)[%d][%d] = %v", i, j, id[i][j])
			}
		}
	}
}

func TestMat4PerspectiveDepthRange(t *testing.T) {
	n, f := float32(0.5), float32(50)
	m := Mat4Perspective(float32(math.Pi/3), 16.0/9.0, n, f)

	if got := m.TransformPoint(NewVec3(0, 0, -n)).Z; !near(got, 0) {
		t.Errorf("Perspective: near plane depth expected 0, got %v", got)
	}
	if got := m.TransformPoint(NewVec3(0, 0, -f)).Z; !near(got, 1) {
		t.Errorf("Perspective: far plane depth expected 1, got %v", got)
	}
	if m[1][1] >= 0 {
		t.Error("Perspective: expected Y flip for Vulkan clip space")
	}
}

func TestMat4LookAt(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	m := Mat4LookAt(eye, Vec3Zero, Vec3Up)

	if got := m.TransformPoint(eye); !near(got.Length(), 0) {
		t.Errorf("LookAt: expected eye at origin, got %v", got)
	}
	if got := m.TransformPoint(Vec3Zero); !near(got.Z, -5) {
		t.Errorf("LookAt: expected target on -Z, got %v", got)
	}
}

func BenchmarkMat4Mul(b *testing.B) {
	m1 := Mat4RotationY(0.3)
	m2 := Mat4Translation(NewVec3(1, 2, 3))

	for i := 0; i < b.N; i++ {
		_ = m1.Mul(m2)
	}
}
