package vkm

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// PoolCapacity tracks what a descriptor pool can still hand out, so that
// exhaustion is reported before the driver fails the allocation.
type PoolCapacity struct {
	sets      uint32
	remaining map[vk.DescriptorType]uint32
}

func NewPoolCapacity(sizes []vk.DescriptorPoolSize, maxSets uint32) *PoolCapacity {
	c := &PoolCapacity{sets: maxSets, remaining: map[vk.DescriptorType]uint32{}}
	for _, s := range sizes {
		c.remaining[s.Type] += s.DescriptorCount
	}
	return c
}

// Reserve takes one set with the given bindings from the pool.
func (c *PoolCapacity) Reserve(bindings []vk.DescriptorSetLayoutBinding) error {
	if c.sets == 0 {
		return violation(ErrDescriptorPoolExhausted, "no sets left")
	}
	need := map[vk.DescriptorType]uint32{}
	for _, b := range bindings {
		need[b.DescriptorType] += b.DescriptorCount
	}
	for typ, n := range need {
		if c.remaining[typ] < n {
			return violation(ErrDescriptorPoolExhausted, "need %d descriptors of type %d, %d left", n, typ, c.remaining[typ])
		}
	}
	for typ, n := range need {
		c.remaining[typ] -= n
	}
	c.sets--
	return nil
}

// Sets reports how many more sets may be allocated.
func (c *PoolCapacity) Sets() uint32 { return c.sets }

// PoolSizes totals the descriptors that count sets of each layout need.
func PoolSizes(count uint32, layouts ...[]vk.DescriptorSetLayoutBinding) []vk.DescriptorPoolSize {
	totals := map[vk.DescriptorType]uint32{}
	var order []vk.DescriptorType
	for _, l := range layouts {
		for _, b := range l {
			if _, ok := totals[b.DescriptorType]; !ok {
				order = append(order, b.DescriptorType)
			}
			totals[b.DescriptorType] += b.DescriptorCount * count
		}
	}
	out := make([]vk.DescriptorPoolSize, len(order))
	for i, t := range order {
		out[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: totals[t]}
	}
	return out
}

func (m *Manager) CreateDescriptorPool(sizes []vk.DescriptorPoolSize, maxSets uint32) (Handle, error) {
	pool, err := vulkan.CreateDescriptorPool(m.dev, sizes, maxSets)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descPools.insert(&poolEntry{pool: pool, cap: NewPoolCapacity(sizes, maxSets)}), nil
}

// EndDescriptorSetLayout validates and creates the set layout.
func (m *Manager) EndDescriptorSetLayout(b *DescriptorSetLayoutBuilder) (Handle, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	bindings := b.Bindings()
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(m.dev.Device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout)
	if err := vulkan.Check(ret, "vkCreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLayouts.insert(&setLayoutEntry{handle: layout, bindings: bindings}), nil
}

// SetLayoutBindings returns the bindings a set layout was created with.
func (m *Manager) SetLayoutBindings(h Handle) ([]vk.DescriptorSetLayoutBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.setLayouts.get(h)
	if err != nil {
		return nil, err
	}
	return e.bindings, nil
}

func (m *Manager) AllocateDescriptorSet(pool, layout Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.descPools.get(pool)
	if err != nil {
		return 0, err
	}
	l, err := m.setLayouts.get(layout)
	if err != nil {
		return 0, err
	}
	if err := p.cap.Reserve(l.bindings); err != nil {
		return 0, errors.Wrapf(err, "allocate from %s", pool)
	}
	set, err := p.pool.Allocate(m.dev, l.handle)
	if err != nil {
		return 0, err
	}
	return m.sets.insert(&setEntry{set: set, layout: layout, pool: pool}), nil
}

// DescriptorWrite points one binding of a set at a buffer range or an
// image view with sampler.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         vk.DescriptorType

	Buffer Handle
	Offset uint64
	Range  uint64

	View    Handle
	Sampler Handle
	Layout  vk.ImageLayout
}

func isImageDescriptor(t vk.DescriptorType) bool {
	switch t {
	case vk.DescriptorTypeCombinedImageSampler, vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeStorageImage, vk.DescriptorTypeInputAttachment:
		return true
	}
	return false
}

// UpdateDescriptorSet applies writes to a set. The set must not be in use
// by a pending submission.
func (m *Manager) UpdateDescriptorSet(set Handle, writes []DescriptorWrite) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.sets.get(set)
	if err != nil {
		return err
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.set,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		if isImageDescriptor(w.Type) {
			info := vk.DescriptorImageInfo{ImageLayout: w.Layout}
			if !w.View.IsNil() {
				v, err := m.views.get(w.View)
				if err != nil {
					return errors.Wrapf(err, "write binding %d", w.Binding)
				}
				info.ImageView = v.view
			}
			if !w.Sampler.IsNil() {
				smp, err := m.samplers.get(w.Sampler)
				if err != nil {
					return errors.Wrapf(err, "write binding %d", w.Binding)
				}
				info.Sampler = smp.Handle
			}
			vw.PImageInfo = []vk.DescriptorImageInfo{info}
		} else {
			b, err := m.buffers.get(w.Buffer)
			if err != nil {
				return errors.Wrapf(err, "write binding %d", w.Binding)
			}
			rng := w.Range
			if rng == 0 {
				rng = b.Size - w.Offset
			}
			vw.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(rng),
			}}
		}
		vkWrites[i] = vw
	}
	vk.UpdateDescriptorSets(m.dev.Device, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}
