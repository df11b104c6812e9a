package vkm

import (
	"fmt"
)

// Kind identifies the resource table a handle belongs to.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindImage
	KindImageView
	KindSampler
	KindBuffer
	KindDescriptorPool
	KindDescriptorSetLayout
	KindDescriptorSet
	KindPipelineLayout
	KindPipeline
	KindRenderPass
	KindFramebuffer
	KindCommandBuffer
	KindSemaphore
	KindFence
	KindShaderModule
)

var kindNames = [...]string{
	KindInvalid:             "invalid",
	KindImage:               "image",
	KindImageView:           "image-view",
	KindSampler:             "sampler",
	KindBuffer:              "buffer",
	KindDescriptorPool:      "descriptor-pool",
	KindDescriptorSetLayout: "set-layout",
	KindDescriptorSet:       "descriptor-set",
	KindPipelineLayout:      "pipeline-layout",
	KindPipeline:            "pipeline",
	KindRenderPass:          "render-pass",
	KindFramebuffer:         "framebuffer",
	KindCommandBuffer:       "command-buffer",
	KindSemaphore:           "semaphore",
	KindFence:               "fence",
	KindShaderModule:        "shader-module",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Handle is an opaque reference to a resource owned by a Manager. It packs
// the kind in the top 8 bits, a 24-bit generation and a 32-bit slot index.
// The zero Handle is never valid.
type Handle uint64

const (
	genBits = 24
	genMask = 1<<genBits - 1
)

func makeHandle(k Kind, gen, index uint32) Handle {
	return Handle(uint64(k)<<56 | uint64(gen&genMask)<<32 | uint64(index))
}

func (h Handle) Kind() Kind { return Kind(h >> 56) }
func (h Handle) Generation() uint32 { return uint32(h>>32) & genMask }
func (h Handle) Index() uint32 { return uint32(h) }
func (h Handle) IsNil() bool { return h == 0 }

func (h Handle) String() string {
	if h == 0 {
		return "nil"
	}
	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.Index(), h.Generation())
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// table is one typed arena. Freed slots are recycled with a bumped
// generation so old handles to them fail lookups. It has no lock of its
// own; the Manager's mutex covers all tables.
type table[T any] struct {
	kind  Kind
	slots []slot[T]
	free  []uint32
}

func newTable[T any](k Kind) *table[T] {
	return &table[T]{kind: k}
}

func (t *table[T]) insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{gen: 1})
	}
	s := &t.slots[idx]
	s.live = true
	s.val = v
	return makeHandle(t.kind, s.gen, idx)
}

func (t *table[T]) lookup(h Handle) (*slot[T], error) {
	if h.Kind() != t.kind {
		return nil, violation(ErrStaleHandle, "handle %s used as %s", h, t.kind)
	}
	idx := h.Index()
	if int(idx) >= len(t.slots) {
		return nil, violation(ErrStaleHandle, "handle %s out of range", h)
	}
	s := &t.slots[idx]
	if !s.live || s.gen != h.Generation() {
		return nil, violation(ErrStaleHandle, "handle %s is stale", h)
	}
	return s, nil
}

func (t *table[T]) get(h Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.val, nil
}

func (t *table[T]) set(h Handle, v T) error {
	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	s.val = v
	return nil
}

func (t *table[T]) remove(h Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.val
	var zero T
	s.val = zero
	s.live = false
	s.gen = (s.gen + 1) & genMask
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, h.Index())
	return v, nil
}

// handles returns every live handle, newest slot first.
func (t *table[T]) handles() []Handle {
	var out []Handle
	for i := len(t.slots) - 1; i >= 0; i-- {
		if s := t.slots[i]; s.live {
			out = append(out, makeHandle(t.kind, s.gen, uint32(i)))
		}
	}
	return out
}

func (t *table[T]) len() int {
	return len(t.slots) - len(t.free)
}
