package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

func CreateSemaphore(d *Device) (vk.Semaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(d.Device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if err := Check(ret, "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return s, nil
}

func CreateFence(d *Device, signaled bool) (vk.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := Check(vk.CreateFence(d.Device, &info, nil, &f), "vkCreateFence"); err != nil {
		return vk.NullFence, err
	}
	return f, nil
}

// Forever waits without a timeout.
const Forever time.Duration = -1

// WaitFences blocks until every fence is signaled. A timeout is fatal to
// the caller; it is reported as ErrFenceTimeout.
func WaitFences(d *Device, fences []vk.Fence, timeout time.Duration) error {
	if len(fences) == 0 {
		return nil
	}
	ns := uint64(vk.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	ret := vk.WaitForFences(d.Device, uint32(len(fences)), fences, vk.True, ns)
	if ret == vk.Timeout {
		return errors.Wrapf(ErrFenceTimeout, "waited %v on %d fences", timeout, len(fences))
	}
	return Check(ret, "vkWaitForFences")
}

func ResetFences(d *Device, fences []vk.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	return Check(vk.ResetFences(d.Device, uint32(len(fences)), fences), "vkResetFences")
}
