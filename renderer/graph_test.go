package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deferred-engine/vulkan"
)

func passNames(ps []Pass) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

func TestDefaultPassGraphOrder(t *testing.T) {
	g := DefaultPassGraph(3)
	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{
		PassPrefilter, PassBRDFLUT, PassGeometry, "shadow[3]",
		PassLighting, PassBloom, PassFinal, PassOverlay,
	}, passNames(order))

	once, err := g.OneTimePasses()
	require.NoError(t, err)
	assert.Equal(t, []string{PassPrefilter, PassBRDFLUT}, passNames(once))
	assert.Equal(t, vulkan.QueueCompute, once[1].Queue)
}

func TestDefaultPassGraphSubmissions(t *testing.T) {
	groups, passes, err := DefaultPassGraph(2).Submissions()
	require.NoError(t, err)
	assert.Equal(t, []Submission{SubmitScene, SubmitPost, SubmitFinal, SubmitOverlay}, groups)
	assert.Len(t, passes[SubmitScene], 3)
	assert.Equal(t, PassLighting, passes[SubmitScene][2].Name)
}

func TestOrderIsIndependentOfDeclarationForDependencies(t *testing.T) {
	g := &PassGraph{
		Resources: []Resource{{Name: "a"}, {Name: "b"}},
		Passes: []Pass{
			{Name: "consumer", Schedule: PerFrame, Submit: "x", Reads: []string{"b"}},
			{Name: "middle", Schedule: PerFrame, Submit: "x", Reads: []string{"a"}, Writes: []string{"b"}},
			{Name: "producer", Schedule: PerFrame, Submit: "x", Writes: []string{"a"}},
		},
	}
	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"producer", "middle", "consumer"}, passNames(order))
}

func TestOrderRejectsCycles(t *testing.T) {
	g := &PassGraph{
		Resources: []Resource{{Name: "a"}, {Name: "b"}},
		Passes: []Pass{
			{Name: "p", Schedule: PerFrame, Submit: "x", Reads: []string{"b"}, Writes: []string{"a"}},
			{Name: "q", Schedule: PerFrame, Submit: "x", Reads: []string{"a"}, Writes: []string{"b"}},
		},
	}
	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicPassGraph)
}

func TestValidateRejectsMalformedGraphs(t *testing.T) {
	cases := map[string]*PassGraph{
		"unknown read": {
			Passes: []Pass{{Name: "p", Schedule: PerFrame, Submit: "x", Reads: []string{"ghost"}}},
		},
		"unknown write": {
			Passes: []Pass{{Name: "p", Schedule: PerFrame, Submit: "x", Writes: []string{"ghost"}}},
		},
		"never written": {
			Resources: []Resource{{Name: "a"}},
			Passes:    []Pass{{Name: "p", Schedule: PerFrame, Submit: "x", Reads: []string{"a"}}},
		},
		"duplicate pass": {
			Passes: []Pass{
				{Name: "p", Schedule: PerFrame, Submit: "x"},
				{Name: "p", Schedule: PerFrame, Submit: "x"},
			},
		},
		"duplicate resource": {
			Resources: []Resource{{Name: "a"}, {Name: "a"}},
		},
		"no submission": {
			Passes: []Pass{{Name: "p", Schedule: PerFrame}},
		},
		"one-time reads per-frame": {
			Resources: []Resource{{Name: "a"}},
			Passes: []Pass{
				{Name: "w", Schedule: PerFrame, Submit: "x", Writes: []string{"a"}},
				{Name: "r", Schedule: OneTime, Reads: []string{"a"}},
			},
		},
		"one-time writes external": {
			Resources: []Resource{{Name: "a", External: true}},
			Passes:    []Pass{{Name: "w", Schedule: OneTime, Writes: []string{"a"}}},
		},
	}
	for name, g := range cases {
		assert.Error(t, g.Validate(), name)
	}
}

func TestSubmissionsRejectInterleavedGroups(t *testing.T) {
	g := &PassGraph{
		Resources: []Resource{{Name: "a"}, {Name: "b"}},
		Passes: []Pass{
			{Name: "p", Schedule: PerFrame, Submit: "one", Writes: []string{"a"}},
			{Name: "q", Schedule: PerFrame, Submit: "two", Reads: []string{"a"}, Writes: []string{"b"}},
			{Name: "r", Schedule: PerFrame, Submit: "one", Reads: []string{"b"}},
		},
	}
	_, _, err := g.Submissions()
	assert.ErrorContains(t, err, "interleaved")
}

func TestSubmissionQueues(t *testing.T) {
	queues, err := DefaultPassGraph(2).SubmissionQueues()
	require.NoError(t, err)
	assert.Equal(t, []vulkan.QueueKind{
		vulkan.QueueGraphics, vulkan.QueueGraphics, vulkan.QueueGraphics, vulkan.QueueGraphics,
	}, queues)

	g := &PassGraph{
		Resources: []Resource{{Name: "a"}, {Name: "b"}},
		Passes: []Pass{
			{Name: "draw", Queue: vulkan.QueueGraphics, Schedule: PerFrame, Submit: "scene", Writes: []string{"a"}},
			{Name: "cull", Queue: vulkan.QueueCompute, Schedule: PerFrame, Submit: "async", Reads: []string{"a"}, Writes: []string{"b"}},
		},
	}
	queues, err = g.SubmissionQueues()
	require.NoError(t, err)
	assert.Equal(t, []vulkan.QueueKind{vulkan.QueueGraphics, vulkan.QueueCompute}, queues)
	assert.Equal(t, []queueRun{
		{queue: vulkan.QueueGraphics, start: 0, end: 1},
		{queue: vulkan.QueueCompute, start: 1, end: 2},
	}, queueRuns(queues))

	g.Passes[1].Submit = "scene"
	_, err = g.SubmissionQueues()
	assert.ErrorContains(t, err, "mixes")
}
