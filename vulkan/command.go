package vulkan

import (
	vk "github.com/goki/vulkan"
)

// CommandPool is a resettable pool bound to one queue family.
type CommandPool struct {
	Handle vk.CommandPool
	Family uint32
}

func CreateCommandPool(d *Device, family uint32) (*CommandPool, error) {
	p := &CommandPool{Family: family}
	ret := vk.CreateCommandPool(d.Device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &p.Handle)
	if err := Check(ret, "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CommandPool) Allocate(d *Device) (vk.CommandBuffer, error) {
	bufs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(d.Device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.Handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, bufs)
	if err := Check(ret, "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	return bufs[0], nil
}

func (p *CommandPool) Free(d *Device, cmd vk.CommandBuffer) {
	vk.FreeCommandBuffers(d.Device, p.Handle, 1, []vk.CommandBuffer{cmd})
}

func (p *CommandPool) Destroy(d *Device) {
	if p.Handle != vk.NullCommandPool {
		vk.DestroyCommandPool(d.Device, p.Handle, nil)
		p.Handle = vk.NullCommandPool
	}
}

// ExecuteSingleTimeCommands records fn into a transient command buffer,
// submits it to queue and blocks until the queue is idle.
func ExecuteSingleTimeCommands(d *Device, pool *CommandPool, queue vk.Queue, fn func(cmd vk.CommandBuffer) error) error {
	cmd, err := pool.Allocate(d)
	if err != nil {
		return err
	}
	defer pool.Free(d, cmd)

	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := Check(ret, "vkBeginCommandBuffer"); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		vk.EndCommandBuffer(cmd)
		return err
	}
	if err := Check(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer"); err != nil {
		return err
	}

	fence, err := CreateFence(d, false)
	if err != nil {
		return err
	}
	defer vk.DestroyFence(d.Device, fence, nil)

	ret = vk.QueueSubmit(queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}}, fence)
	if err := Check(ret, "vkQueueSubmit"); err != nil {
		return err
	}
	return WaitFences(d, []vk.Fence{fence}, Forever)
}
