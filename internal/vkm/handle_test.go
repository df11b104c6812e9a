package vkm

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePacking(t *testing.T) {
	h := makeHandle(KindBuffer, 7, 42)
	assert.Equal(t, KindBuffer, h.Kind())
	assert.Equal(t, uint32(7), h.Generation())
	assert.Equal(t, uint32(42), h.Index())
	assert.False(t, h.IsNil())
	assert.Equal(t, "buffer#42.7", h.String())
	assert.Equal(t, "nil", Handle(0).String())
}

func TestTableStaleAfterRemove(t *testing.T) {
	tbl := newTable[string](KindImage)
	h := tbl.insert("albedo")

	v, err := tbl.get(h)
	require.NoError(t, err)
	assert.Equal(t, "albedo", v)

	_, err = tbl.remove(h)
	require.NoError(t, err)

	_, err = tbl.get(h)
	assert.True(t, errors.Is(err, ErrStaleHandle))
	_, err = tbl.remove(h)
	assert.True(t, errors.Is(err, ErrStaleHandle), "double free must fail")
}

func TestTableReuseBumpsGeneration(t *testing.T) {
	tbl := newTable[int](KindSampler)
	first := tbl.insert(1)
	_, err := tbl.remove(first)
	require.NoError(t, err)

	second := tbl.insert(2)
	assert.Equal(t, first.Index(), second.Index(), "slot is recycled")
	assert.NotEqual(t, first.Generation(), second.Generation())

	_, err = tbl.get(first)
	assert.True(t, errors.Is(err, ErrStaleHandle))
	v, err := tbl.get(second)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestTableRejectsWrongKind(t *testing.T) {
	images := newTable[int](KindImage)
	buffers := newTable[int](KindBuffer)
	h := images.insert(1)
	buffers.insert(1)

	_, err := buffers.get(h)
	assert.True(t, errors.Is(err, ErrStaleHandle))
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestTableOutOfRange(t *testing.T) {
	tbl := newTable[int](KindFence)
	_, err := tbl.get(makeHandle(KindFence, 1, 3))
	assert.True(t, errors.Is(err, ErrStaleHandle))
}

func TestTableGenerationWrapSkipsZero(t *testing.T) {
	tbl := newTable[int](KindBuffer)
	h := tbl.insert(0)
	tbl.slots[h.Index()].gen = genMask
	h = makeHandle(KindBuffer, genMask, h.Index())
	_, err := tbl.remove(h)
	require.NoError(t, err)

	next := tbl.insert(0)
	assert.Equal(t, uint32(1), next.Generation())
}

func TestTableHandlesNewestFirst(t *testing.T) {
	tbl := newTable[int](KindPipeline)
	a := tbl.insert(1)
	b := tbl.insert(2)
	c := tbl.insert(3)
	_, err := tbl.remove(b)
	require.NoError(t, err)

	assert.Equal(t, []Handle{c, a}, tbl.handles())
	assert.Equal(t, 2, tbl.len())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "set-layout", KindDescriptorSetLayout.String())
	assert.Equal(t, "kind(200)", Kind(200).String())
}
