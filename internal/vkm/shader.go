package vkm

import (
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

// LoadShaderModule creates a shader module from a SPIR-V file.
func (m *Manager) LoadShaderModule(path string) (Handle, error) {
	mod, err := vulkan.LoadShaderModule(m.dev, path)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	h := m.shaders.insert(mod)
	m.mu.Unlock()
	m.log.Debug("shader loaded", "handle", h, "path", path)
	return h, nil
}

// DestroyShaderModule frees a module once every pipeline using it exists.
func (m *Manager) DestroyShaderModule(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, err := m.shaders.remove(h)
	if err != nil {
		return err
	}
	vk.DestroyShaderModule(m.dev.Device, mod, nil)
	return nil
}
