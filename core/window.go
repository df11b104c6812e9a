package core

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"deferred-engine/vulkan"
)

func init() {
	// glfw must be driven from the main thread.
	runtime.LockOSThread()
}

type Window struct {
	Handle *glfw.Window
	Title  string

	resized bool
	input   inputTracker
}

type WindowConfig struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	Fullscreen bool
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "deferred",
		Resizable: true,
	}
}

// InitVulkan initializes glfw and points the Vulkan loader at its instance
// proc address. It must run on the main thread before any Vulkan call.
func InitVulkan() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no Vulkan loader")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		glfw.Terminate()
		return err
	}
	return nil
}

// NewWindow creates a window without a client API; call InitVulkan first.
func NewWindow(config WindowConfig) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	var monitor *glfw.Monitor
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{Handle: handle, Title: config.Title}
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, _, _ int) {
		w.resized = true
	})
	handle.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		w.input.scroll += float32(yoff)
	})
	return w, nil
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) RequestClose() {
	w.Handle.SetShouldClose(true)
}

// Poll processes pending events and returns the input snapshot since the
// previous call.
func (w *Window) Poll() InputState {
	glfw.PollEvents()
	x, y := w.Handle.GetCursorPos()
	s := w.input.snapshot(w.keyDown, w.Handle.GetMouseButton(glfw.MouseButtonRight) == glfw.Press, x, y)
	s.Resized = w.resized
	w.resized = false
	return s
}

// WaitWhileMinimized blocks until the framebuffer has a non-zero size.
func (w *Window) WaitWhileMinimized() {
	for {
		width, height := w.Handle.GetFramebufferSize()
		if (width > 0 && height > 0) || w.Handle.ShouldClose() {
			return
		}
		glfw.WaitEvents()
	}
}

func (w *Window) keyDown(k Key) bool {
	return w.Handle.GetKey(glfwKeys[k]) == glfw.Press
}

// FramebufferSize is the drawable extent in pixels.
func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.Handle.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.Handle.GetRequiredInstanceExtensions()
}

// CreateSurface creates the presentation surface for instance.
func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.Handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "create window surface")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

// Destroy closes the window and terminates glfw.
func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
