package vkm

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// SubmitBatch gathers several submissions to one queue, each with its own
// wait and signal semaphores, and hands them to the driver in one call.
type SubmitBatch struct {
	m     *Manager
	kind  vulkan.QueueKind
	infos []vk.SubmitInfo
	err   error
}

// BeginQueueSubmit starts a batch for the queue serving kind.
func (m *Manager) BeginQueueSubmit(kind vulkan.QueueKind) *SubmitBatch {
	return &SubmitBatch{m: m, kind: kind}
}

// NewSubmit appends one submission. waits and stages pair up by index. A
// submission without command buffers still waits and signals.
func (b *SubmitBatch) NewSubmit(buffers, waits []Handle, stages []vk.PipelineStageFlags, signals []Handle) *SubmitBatch {
	if b.err != nil {
		return b
	}
	if len(waits) != len(stages) {
		b.err = errors.AssertionFailedf("%d wait semaphores with %d stage masks", len(waits), len(stages))
		return b
	}
	m := b.m
	m.mu.RLock()
	defer m.mu.RUnlock()
	cmds := make([]vk.CommandBuffer, len(buffers))
	for i, h := range buffers {
		e, err := m.commands.get(h)
		if err != nil {
			b.err = err
			return b
		}
		cmds[i] = e.cmd
	}
	w, err := m.semaphoreHandles(waits)
	if err != nil {
		b.err = err
		return b
	}
	s, err := m.semaphoreHandles(signals)
	if err != nil {
		b.err = err
		return b
	}
	b.infos = append(b.infos, vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(w)),
		PWaitSemaphores:      w,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(s)),
		PSignalSemaphores:    s,
	})
	return b
}

// Len reports the submissions gathered so far.
func (b *SubmitBatch) Len() int { return len(b.infos) }

// End submits the batch. fence may be zero; waitIdle blocks until the
// queue drains.
func (b *SubmitBatch) End(fence Handle, waitIdle bool) error {
	if b.err != nil {
		return b.err
	}
	f := vk.NullFence
	if !fence.IsNil() {
		fs, err := b.m.fenceHandles([]Handle{fence})
		if err != nil {
			return err
		}
		f = fs[0]
	}
	queue, _ := b.m.dev.Queue(b.kind)
	ret := vk.QueueSubmit(queue, uint32(len(b.infos)), b.infos, f)
	if err := vulkan.Check(ret, "vkQueueSubmit"); err != nil {
		return errors.Wrapf(err, "%s queue, %d submissions", b.kind, len(b.infos))
	}
	if waitIdle {
		return vulkan.Check(vk.QueueWaitIdle(queue), "vkQueueWaitIdle")
	}
	return nil
}
