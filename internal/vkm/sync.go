package vkm

import (
	"time"

	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

func (m *Manager) CreateSemaphore() (Handle, error) {
	s, err := vulkan.CreateSemaphore(m.dev)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.semaphores.insert(s), nil
}

func (m *Manager) CreateFence(signaled bool) (Handle, error) {
	f, err := vulkan.CreateFence(m.dev, signaled)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fences.insert(f), nil
}

func (m *Manager) fenceHandles(hs []Handle) ([]vk.Fence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vk.Fence, len(hs))
	for i, h := range hs {
		f, err := m.fences.get(h)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// semaphoreHandles expects the caller to hold m.mu.
func (m *Manager) semaphoreHandles(hs []Handle) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(hs))
	for i, h := range hs {
		s, err := m.semaphores.get(h)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Semaphore returns the raw semaphore, for swap chain acquire and present.
func (m *Manager) Semaphore(h Handle) (vk.Semaphore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.semaphores.get(h)
}

// WaitFences waits for every fence. A timeout is reported as
// ErrFenceTimeout and is fatal to the caller.
func (m *Manager) WaitFences(fences []Handle, timeout time.Duration) error {
	fs, err := m.fenceHandles(fences)
	if err != nil {
		return err
	}
	return vulkan.WaitFences(m.dev, fs, timeout)
}

func (m *Manager) ResetFences(fences []Handle) error {
	fs, err := m.fenceHandles(fences)
	if err != nil {
		return err
	}
	return vulkan.ResetFences(m.dev, fs)
}
