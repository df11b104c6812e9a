package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/internal/vkm"
	"deferred-engine/vulkan"
)

// Every layout change the renderer records must have a barrier.
func TestLayoutStepsKnown(t *testing.T) {
	for step, l := range layoutSteps {
		assert.NotEqual(t, l[0], l[1], "step %d has no layouts", step)
		_, err := vkm.LookupTransition(l[0], l[1])
		assert.NoError(t, err, "step %d: %d -> %d", step, l[0], l[1])
	}
}

// Barriers recorded outside transition would bypass layoutSteps.
func TestTransitionsGoThroughLayoutSteps(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		want := 0
		if name == "passes.go" {
			want = 1
		}
		assert.Equal(t, want, strings.Count(string(src), ".TransitionImageLayout("), name)
	}
}

func TestFlagHelpers(t *testing.T) {
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit),
		stages(vk.PipelineStageVertexShaderBit, vk.PipelineStageFragmentShaderBit))
	assert.Equal(t, vk.AccessFlags(0), accesses())
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), shaderStages(vk.ShaderStageFragmentBit))
}

func TestPassKind(t *testing.T) {
	assert.Equal(t, PassShadow, passKind("shadow[4]"))
	assert.Equal(t, PassLighting, passKind(PassLighting))
	for _, p := range DefaultPassGraph(3).Passes {
		rule, ok := knownPasses[passKind(p.Name)]
		assert.True(t, ok, p.Name)
		assert.Equal(t, p.Schedule, rule.schedule, p.Name)
		assert.NoError(t, checkPass(p), p.Name)
	}
}

func TestCheckPassQueue(t *testing.T) {
	brdf := Pass{Name: PassBRDFLUT, Schedule: OneTime, Queue: vulkan.QueueCompute}
	assert.NoError(t, checkPass(brdf))
	brdf.Queue = vulkan.QueueGraphics
	assert.NoError(t, checkPass(brdf))
	brdf.Queue = vulkan.QueueTransfer
	assert.Error(t, checkPass(brdf))

	assert.Error(t, checkPass(Pass{Name: PassPrefilter, Schedule: OneTime, Queue: vulkan.QueueCompute}))
	assert.Error(t, checkPass(Pass{Name: PassLighting, Schedule: PerFrame, Queue: vulkan.QueueCompute}))
	assert.Error(t, checkPass(Pass{Name: PassLighting, Schedule: OneTime, Queue: vulkan.QueueGraphics}))
	assert.Error(t, checkPass(Pass{Name: "ssao", Schedule: PerFrame, Queue: vulkan.QueueGraphics}))
}

func TestQueueRuns(t *testing.T) {
	g, c := vulkan.QueueGraphics, vulkan.QueueCompute
	assert.Equal(t, []queueRun{{queue: g, start: 0, end: 4}}, queueRuns([]vulkan.QueueKind{g, g, g, g}))
	assert.Equal(t, []queueRun{
		{queue: g, start: 0, end: 1},
		{queue: c, start: 1, end: 3},
		{queue: g, start: 3, end: 4},
	}, queueRuns([]vulkan.QueueKind{g, c, c, g}))
	assert.Empty(t, queueRuns(nil))
}

func TestIsSRGB(t *testing.T) {
	assert.True(t, isSRGB(vk.FormatB8g8r8a8Srgb))
	assert.False(t, isSRGB(vk.FormatB8g8r8a8Unorm))
}
