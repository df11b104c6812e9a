package renderer

import (
	"encoding/binary"

	"deferred-engine/config"
	"deferred-engine/math"
)

// SceneUniforms is binding 0 of the frame set, shared by every per-frame
// pass. Matrices are row-vector form; GLSL reads them column-major, which
// makes `m * v` in the shaders apply them correctly. Layout is std140.
type SceneUniforms struct {
	ViewProj    math.Mat4
	View        math.Mat4
	InvViewProj math.Mat4
	CameraPos   [4]float32
	LightDir    [4]float32 // xyz toward the scene, w intensity
	LightColor  [4]float32
	// Splits holds each cascade's far view depth.
	Splits  [config.MaxCascades]float32
	Cascade [config.MaxCascades]math.Mat4
	// Params: cascade count, PCF kernel size, prefilter mip count, unused.
	Params [4]float32
}

// CascadeUniforms is the dynamic binding 1 of the frame set: one region per
// shadow cascade.
type CascadeUniforms struct {
	LightViewProj math.Mat4
}

// ObjectPush is the per-draw push block of the geometry and shadow passes.
type ObjectPush struct {
	Model  math.Mat4
	Normal math.Mat4
}

// Bloom push modes.
const (
	bloomBright uint32 = iota
	bloomHorizontal
	bloomVertical
	bloomMerge
)

type BloomPush struct {
	TexelX, TexelY float32
	Mode           uint32
	Threshold      float32
	Intensity      float32
}

type FinalPush struct {
	Exposure float32
	// Gamma is set when the swap chain format is not sRGB.
	Gamma uint32
}

type PrefilterPush struct {
	Roughness float32
	Face      uint32
	// EnvSize is the environment cube edge in texels.
	EnvSize float32
}

var (
	sceneUniformSize   = uint64(binary.Size(SceneUniforms{}))
	cascadeUniformSize = uint64(binary.Size(CascadeUniforms{}))
)

// pushBytes encodes a push block little-endian.
func pushBytes(v interface{}) []byte {
	out := make([]byte, 0, binary.Size(v))
	out, _ = binary.Append(out, binary.LittleEndian, v)
	return out
}

func vec4(v math.Vec3, w float32) [4]float32 { return [4]float32{v.X, v.Y, v.Z, w} }
