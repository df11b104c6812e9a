package renderer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Shader binaries the pipelines load from Options.ShaderDir, named
// <source>.spv.
const (
	shaderGeometryVert  = "geometry.vert"
	shaderGeometryFrag  = "geometry.frag"
	shaderMaskedFrag    = "geometry_masked.frag"
	shaderShadowVert    = "shadow.vert"
	shaderFullscreen    = "fullscreen.vert"
	shaderLightingFrag  = "lighting.frag"
	shaderBloomFrag     = "bloom.frag"
	shaderFinalFrag     = "final.frag"
	shaderPrefilterFrag = "prefilter.frag"
	shaderBRDFComp      = "brdf.comp"
	shaderOverlayVert   = "overlay.vert"
	shaderOverlayFrag   = "overlay.frag"
)

// ShaderPath returns the SPIR-V file for a shader source name.
func ShaderPath(dir, name string) string {
	return filepath.Join(dir, name+".spv")
}

// ShaderSources maps every shader the renderer uses to its GLSL source.
// The binding and push-constant layouts here must agree with the
// descriptor set layouts built in passes.go.
func ShaderSources() map[string]string {
	return map[string]string{
		shaderGeometryVert:  geometryVertGLSL,
		shaderGeometryFrag:  geometryFragGLSL,
		shaderMaskedFrag:    strings.Replace(geometryFragGLSL, "#version 450\n", "#version 450\n#define MASKED\n", 1),
		shaderShadowVert:    shadowVertGLSL,
		shaderFullscreen:    fullscreenVertGLSL,
		shaderLightingFrag:  lightingFragGLSL,
		shaderBloomFrag:     bloomFragGLSL,
		shaderFinalFrag:     finalFragGLSL,
		shaderPrefilterFrag: prefilterFragGLSL,
		shaderBRDFComp:      brdfCompGLSL,
		shaderOverlayVert:   overlayVertGLSL,
		shaderOverlayFrag:   overlayFragGLSL,
	}
}

// findCompiler returns the command line prefix of the first GLSL compiler
// on PATH.
func findCompiler() ([]string, error) {
	if p, err := exec.LookPath("glslc"); err == nil {
		return []string{p, "-O", "--target-env=vulkan1.0"}, nil
	}
	if p, err := exec.LookPath("glslangValidator"); err == nil {
		return []string{p, "-V"}, nil
	}
	return nil, errors.New("no shader compiler found (glslc or glslangValidator)")
}

// CompileShaders writes each GLSL source into dir and compiles it to SPIR-V.
// Binaries that already exist are kept unless force is set.
func CompileShaders(ctx context.Context, dir string, force bool, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create shader dir")
	}
	var compiler []string
	for name, src := range ShaderSources() {
		out := ShaderPath(dir, name)
		if !force {
			if _, err := os.Stat(out); err == nil {
				continue
			}
		}
		if compiler == nil {
			var err error
			if compiler, err = findCompiler(); err != nil {
				return err
			}
		}
		srcPath := filepath.Join(dir, name)
		if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", name)
		}
		args := append(append([]string(nil), compiler[1:]...), srcPath, "-o", out)
		cmd := exec.CommandContext(ctx, compiler[0], args...)
		var stderr bytes.Buffer
		cmd.Stdout = &stderr
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return errors.Wrapf(err, "compile %s: %s", name, strings.TrimSpace(stderr.String()))
		}
		log.Info("shader compiled", "shader", name, "out", out)
	}
	return nil
}

// MissingShaders lists the shader binaries absent from dir.
func MissingShaders(dir string) []string {
	var missing []string
	for name := range ShaderSources() {
		if _, err := os.Stat(ShaderPath(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

const sceneBlockGLSL = `
layout(set = 0, binding = 0) uniform Scene {
    mat4 viewProj;
    mat4 view;
    mat4 invViewProj;
    vec4 cameraPos;
    vec4 lightDir;
    vec4 lightColor;
    vec4 splits;
    mat4 cascade[4];
    vec4 params;
} scene;
`

const objectBlockGLSL = `
layout(push_constant) uniform Object {
    mat4 model;
    mat4 normal;
} object;
`

const geometryVertGLSL = "#version 450\n" + sceneBlockGLSL + objectBlockGLSL + `
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;

layout(location = 0) out vec3 outWorld;
layout(location = 1) out vec3 outNormal;
layout(location = 2) out vec2 outUV;
layout(location = 3) out float outDepth;

void main() {
    vec4 world = object.model * vec4(inPosition, 1.0);
    outWorld = world.xyz;
    outNormal = normalize((object.normal * vec4(inNormal, 0.0)).xyz);
    outUV = inUV;
    outDepth = -(scene.view * world).z;
    gl_Position = scene.viewProj * world;
}
`

const geometryFragGLSL = `#version 450
layout(set = 1, binding = 0) uniform sampler2D albedoMap;
layout(set = 1, binding = 1) uniform sampler2D normalMap;
layout(set = 1, binding = 2) uniform sampler2D roughnessMetalnessMap;
layout(set = 1, binding = 3) uniform sampler2D aoMap;

layout(location = 0) in vec3 inWorld;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in float inDepth;

layout(location = 0) out uvec4 outNormalAlbedo;
layout(location = 1) out vec4 outPosition;
layout(location = 2) out vec4 outMaterial;

// Tangent frame from screen-space derivatives; meshes carry no tangents.
vec3 perturbNormal(vec3 n, vec3 p, vec2 uv) {
    vec3 dp1 = dFdx(p);
    vec3 dp2 = dFdy(p);
    vec2 duv1 = dFdx(uv);
    vec2 duv2 = dFdy(uv);
    vec3 dp2perp = cross(dp2, n);
    vec3 dp1perp = cross(n, dp1);
    vec3 t = dp2perp * duv1.x + dp1perp * duv2.x;
    vec3 b = dp2perp * duv1.y + dp1perp * duv2.y;
    float len2 = max(dot(t, t), dot(b, b));
    if (len2 < 1e-20) {
        return n;
    }
    float inv = inversesqrt(len2);
    vec3 mapped = texture(normalMap, uv).xyz * 2.0 - 1.0;
    return normalize(mat3(t * inv, b * inv, n) * mapped);
}

void main() {
    vec4 albedo = texture(albedoMap, inUV);
#ifdef MASKED
    if (albedo.a < 0.5) {
        discard;
    }
#endif
    vec3 n = perturbNormal(normalize(inNormal), inWorld, inUV);
    vec2 rm = texture(roughnessMetalnessMap, inUV).gb;
    float ao = texture(aoMap, inUV).r;
    outNormalAlbedo = uvec4(floatBitsToUint(n), packUnorm4x8(albedo));
    outPosition = vec4(inWorld, inDepth);
    outMaterial = vec4(rm.x, rm.y, ao, 1.0);
}
`

const shadowVertGLSL = "#version 450\n" + objectBlockGLSL + `
layout(set = 0, binding = 1) uniform CascadeBlock {
    mat4 lightViewProj;
} cascade;

layout(location = 0) in vec3 inPosition;

void main() {
    gl_Position = cascade.lightViewProj * (object.model * vec4(inPosition, 1.0));
}
`

const fullscreenVertGLSL = `#version 450
layout(location = 0) out vec2 outUV;

void main() {
    outUV = vec2((gl_VertexIndex << 1) & 2, gl_VertexIndex & 2);
    gl_Position = vec4(outUV * 2.0 - 1.0, 0.0, 1.0);
}
`

const pbrCommonGLSL = `
const float PI = 3.14159265359;

float distributionGGX(float NdotH, float roughness) {
    float a = roughness * roughness;
    float a2 = a * a;
    float d = NdotH * NdotH * (a2 - 1.0) + 1.0;
    return a2 / max(PI * d * d, 1e-7);
}

float geometrySchlickGGX(float NdotX, float k) {
    return NdotX / (NdotX * (1.0 - k) + k);
}

vec2 hammersley(uint i, uint n) {
    uint bits = i;
    bits = (bits << 16u) | (bits >> 16u);
    bits = ((bits & 0x55555555u) << 1u) | ((bits & 0xAAAAAAAAu) >> 1u);
    bits = ((bits & 0x33333333u) << 2u) | ((bits & 0xCCCCCCCCu) >> 2u);
    bits = ((bits & 0x0F0F0F0Fu) << 4u) | ((bits & 0xF0F0F0F0u) >> 4u);
    bits = ((bits & 0x00FF00FFu) << 8u) | ((bits & 0xFF00FF00u) >> 8u);
    return vec2(float(i) / float(n), float(bits) * 2.3283064365386963e-10);
}

vec3 importanceSampleGGX(vec2 xi, vec3 n, float roughness) {
    float a = roughness * roughness;
    float phi = 2.0 * PI * xi.x;
    float cosTheta = sqrt((1.0 - xi.y) / (1.0 + (a * a - 1.0) * xi.y));
    float sinTheta = sqrt(1.0 - cosTheta * cosTheta);
    vec3 h = vec3(cos(phi) * sinTheta, sin(phi) * sinTheta, cosTheta);
    vec3 up = abs(n.z) < 0.999 ? vec3(0.0, 0.0, 1.0) : vec3(1.0, 0.0, 0.0);
    vec3 tangent = normalize(cross(up, n));
    vec3 bitangent = cross(n, tangent);
    return normalize(tangent * h.x + bitangent * h.y + n * h.z);
}
`

const lightingFragGLSL = "#version 450\n" + sceneBlockGLSL + pbrCommonGLSL + `
layout(set = 1, binding = 0) uniform usampler2D gNormalAlbedo;
layout(set = 1, binding = 1) uniform sampler2D gPosition;
layout(set = 1, binding = 2) uniform sampler2D gMaterial;
layout(set = 1, binding = 3) uniform sampler2DArrayShadow shadowMap;
layout(set = 1, binding = 4) uniform sampler2D brdfLUT;
layout(set = 1, binding = 5) uniform samplerCube specularMap;
layout(set = 1, binding = 6) uniform samplerCube environmentMap;

layout(location = 0) in vec2 inUV;
layout(location = 0) out vec4 outColor;

int cascadeIndex(float depth) {
    int count = int(scene.params.x);
    for (int i = 0; i < count - 1; i++) {
        if (depth < scene.splits[i]) {
            return i;
        }
    }
    return count - 1;
}

float shadowFactor(vec3 world, float depth) {
    int c = cascadeIndex(depth);
    vec4 clip = scene.cascade[c] * vec4(world, 1.0);
    vec3 p = clip.xyz / clip.w;
    vec2 uv = p.xy * 0.5 + 0.5;
    if (p.z > 1.0 || any(lessThan(uv, vec2(0.0))) || any(greaterThan(uv, vec2(1.0)))) {
        return 1.0;
    }
    int radius = int(scene.params.y) / 2;
    vec2 texel = 1.0 / vec2(textureSize(shadowMap, 0).xy);
    float lit = 0.0;
    int taps = 0;
    for (int x = -radius; x <= radius; x++) {
        for (int y = -radius; y <= radius; y++) {
            lit += texture(shadowMap, vec4(uv + vec2(x, y) * texel, float(c), p.z));
            taps++;
        }
    }
    return lit / float(taps);
}

vec3 fresnelSchlickRoughness(float cosTheta, vec3 f0, float roughness) {
    return f0 + (max(vec3(1.0 - roughness), f0) - f0) * pow(clamp(1.0 - cosTheta, 0.0, 1.0), 5.0);
}

void main() {
    vec4 material = texture(gMaterial, inUV);
    if (material.a < 0.5) {
        vec4 far = scene.invViewProj * vec4(inUV * 2.0 - 1.0, 1.0, 1.0);
        vec3 dir = normalize(far.xyz / far.w - scene.cameraPos.xyz);
        outColor = vec4(textureLod(environmentMap, dir, 0.0).rgb, 1.0);
        return;
    }

    uvec4 na = texture(gNormalAlbedo, inUV);
    vec3 n = normalize(uintBitsToFloat(na.xyz));
    vec3 albedo = unpackUnorm4x8(na.w).rgb;
    vec4 position = texture(gPosition, inUV);
    float roughness = clamp(material.r, 0.04, 1.0);
    float metalness = material.g;
    float ao = material.b;

    vec3 v = normalize(scene.cameraPos.xyz - position.xyz);
    vec3 l = normalize(-scene.lightDir.xyz);
    vec3 h = normalize(v + l);
    float NdotV = max(dot(n, v), 1e-4);
    float NdotL = max(dot(n, l), 0.0);
    float NdotH = max(dot(n, h), 0.0);

    vec3 f0 = mix(vec3(0.04), albedo, metalness);
    vec3 f = f0 + (1.0 - f0) * pow(1.0 - max(dot(h, v), 0.0), 5.0);
    float k = (roughness + 1.0) * (roughness + 1.0) / 8.0;
    float g = geometrySchlickGGX(NdotV, k) * geometrySchlickGGX(NdotL, k);
    vec3 specular = distributionGGX(NdotH, roughness) * g * f / (4.0 * NdotV * max(NdotL, 1e-4));
    vec3 kd = (1.0 - f) * (1.0 - metalness);
    vec3 radiance = scene.lightColor.rgb * scene.lightDir.w;
    vec3 direct = (kd * albedo / PI + specular) * radiance * NdotL * shadowFactor(position.xyz, position.w);

    vec3 fr = fresnelSchlickRoughness(NdotV, f0, roughness);
    vec3 kdAmbient = (1.0 - fr) * (1.0 - metalness);
    float envMips = float(textureQueryLevels(environmentMap));
    vec3 irradiance = textureLod(environmentMap, n, envMips - 1.0).rgb;
    vec3 r = reflect(-v, n);
    vec3 prefiltered = textureLod(specularMap, r, roughness * (scene.params.z - 1.0)).rgb;
    vec2 brdf = texture(brdfLUT, vec2(NdotV, roughness)).rg;
    vec3 ambient = (kdAmbient * irradiance * albedo + prefiltered * (fr * brdf.x + brdf.y)) * ao;

    outColor = vec4(direct + ambient, 1.0);
}
`

const bloomFragGLSL = `#version 450
layout(set = 0, binding = 0) uniform sampler2D source;

layout(push_constant) uniform Bloom {
    vec2 texel;
    uint mode;
    float threshold;
    float intensity;
} bloom;

layout(location = 0) in vec2 inUV;
layout(location = 0) out vec4 outColor;

const float weights[5] = float[](0.227027, 0.1945946, 0.1216216, 0.054054, 0.016216);

void main() {
    if (bloom.mode == 0u) {
        vec3 c = texture(source, inUV).rgb;
        float luma = dot(c, vec3(0.2126, 0.7152, 0.0722));
        outColor = vec4(luma > bloom.threshold ? c : vec3(0.0), 1.0);
        return;
    }
    if (bloom.mode == 3u) {
        outColor = vec4(texture(source, inUV).rgb * bloom.intensity, 0.0);
        return;
    }
    vec2 step = bloom.mode == 1u ? vec2(bloom.texel.x, 0.0) : vec2(0.0, bloom.texel.y);
    vec3 sum = texture(source, inUV).rgb * weights[0];
    for (int i = 1; i < 5; i++) {
        sum += texture(source, inUV + step * float(i)).rgb * weights[i];
        sum += texture(source, inUV - step * float(i)).rgb * weights[i];
    }
    outColor = vec4(sum, 1.0);
}
`

const finalFragGLSL = `#version 450
layout(set = 0, binding = 0) uniform sampler2D hdr;

layout(push_constant) uniform Final {
    float exposure;
    uint gamma;
} final;

layout(location = 0) in vec2 inUV;
layout(location = 0) out vec4 outColor;

void main() {
    vec3 c = texture(hdr, inUV).rgb * final.exposure;
    c = c / (1.0 + c);
    if (final.gamma != 0u) {
        c = pow(c, vec3(1.0 / 2.2));
    }
    outColor = vec4(c, 1.0);
}
`

const prefilterFragGLSL = "#version 450\n" + pbrCommonGLSL + `
layout(set = 0, binding = 0) uniform samplerCube environmentMap;

layout(push_constant) uniform Prefilter {
    float roughness;
    uint face;
    float envSize;
} prefilter;

layout(location = 0) in vec2 inUV;
layout(location = 0) out vec4 outColor;

vec3 faceDirection(uint face, vec2 uv) {
    vec2 p = uv * 2.0 - 1.0;
    switch (face) {
    case 0u: return vec3(1.0, -p.y, -p.x);
    case 1u: return vec3(-1.0, -p.y, p.x);
    case 2u: return vec3(p.x, 1.0, p.y);
    case 3u: return vec3(p.x, -1.0, -p.y);
    case 4u: return vec3(p.x, -p.y, 1.0);
    }
    return vec3(-p.x, -p.y, -1.0);
}

const uint SAMPLES = 512u;

void main() {
    vec3 n = normalize(faceDirection(prefilter.face, inUV));
    if (prefilter.roughness <= 0.0) {
        outColor = vec4(textureLod(environmentMap, n, 0.0).rgb, 1.0);
        return;
    }
    vec3 sum = vec3(0.0);
    float weight = 0.0;
    float texelSolid = 4.0 * PI / (6.0 * prefilter.envSize * prefilter.envSize);
    for (uint i = 0u; i < SAMPLES; i++) {
        vec3 h = importanceSampleGGX(hammersley(i, SAMPLES), n, prefilter.roughness);
        vec3 l = normalize(2.0 * dot(n, h) * h - n);
        float NdotL = dot(n, l);
        if (NdotL > 0.0) {
            float NdotH = max(dot(n, h), 0.0);
            float pdf = distributionGGX(NdotH, prefilter.roughness) / 4.0 + 1e-4;
            float sampleSolid = 1.0 / (float(SAMPLES) * pdf);
            float lod = 0.5 * log2(sampleSolid / texelSolid) + 1.0;
            sum += textureLod(environmentMap, l, max(lod, 0.0)).rgb * NdotL;
            weight += NdotL;
        }
    }
    outColor = vec4(sum / max(weight, 1e-4), 1.0);
}
`

const brdfCompGLSL = "#version 450\n" + pbrCommonGLSL + `
layout(local_size_x = 16, local_size_y = 16) in;
layout(set = 0, binding = 0, rg16f) uniform writeonly image2D lut;

const uint SAMPLES = 1024u;

void main() {
    ivec2 size = imageSize(lut);
    ivec2 texel = ivec2(gl_GlobalInvocationID.xy);
    if (texel.x >= size.x || texel.y >= size.y) {
        return;
    }
    float NdotV = (float(texel.x) + 0.5) / float(size.x);
    float roughness = (float(texel.y) + 0.5) / float(size.y);
    vec3 v = vec3(sqrt(1.0 - NdotV * NdotV), 0.0, NdotV);
    vec3 n = vec3(0.0, 0.0, 1.0);
    float k = roughness * roughness / 2.0;
    vec2 acc = vec2(0.0);
    for (uint i = 0u; i < SAMPLES; i++) {
        vec3 h = importanceSampleGGX(hammersley(i, SAMPLES), n, roughness);
        vec3 l = normalize(2.0 * dot(v, h) * h - v);
        float NdotL = max(l.z, 0.0);
        float NdotH = max(h.z, 0.0);
        float VdotH = max(dot(v, h), 0.0);
        if (NdotL > 0.0) {
            float g = geometrySchlickGGX(NdotV, k) * geometrySchlickGGX(NdotL, k);
            float gVis = g * VdotH / (NdotH * NdotV);
            float fc = pow(1.0 - VdotH, 5.0);
            acc += vec2((1.0 - fc) * gVis, fc * gVis);
        }
    }
    imageStore(lut, texel, vec4(acc / float(SAMPLES), 0.0, 0.0));
}
`

const overlayPushGLSL = `
layout(push_constant) uniform Panel {
    vec4 rect;
    vec4 color;
} panel;
`

// overlay.vert expands six vertices into the rect given in NDC as
// (x0, y0, x1, y1).
const overlayVertGLSL = "#version 450\n" + overlayPushGLSL + `
const vec2 corners[6] = vec2[](vec2(0, 0), vec2(1, 0), vec2(1, 1), vec2(0, 0), vec2(1, 1), vec2(0, 1));

void main() {
    vec2 c = corners[gl_VertexIndex];
    gl_Position = vec4(mix(panel.rect.xy, panel.rect.zw, c), 0.0, 1.0);
}
`

const overlayFragGLSL = "#version 450\n" + overlayPushGLSL + `
layout(location = 0) out vec4 outColor;

void main() {
    outColor = panel.color;
}
`
