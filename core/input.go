package core

import (
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"deferred-engine/math"
)

// Key names the keys the engine reacts to.
type Key int

const (
	KeyForward Key = iota
	KeyBack
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyEscape
	keyCount
)

var glfwKeys = [keyCount]glfw.Key{
	KeyForward: glfw.KeyW,
	KeyBack:    glfw.KeyS,
	KeyLeft:    glfw.KeyA,
	KeyRight:   glfw.KeyD,
	KeyUp:      glfw.KeyE,
	KeyDown:    glfw.KeyQ,
	KeyEscape:  glfw.KeyEscape,
}

// InputState is one frame's worth of user input. It is a plain value so
// frame updates can be driven without a window.
type InputState struct {
	Keys [keyCount]bool
	// Drag is the cursor motion in pixels while the right button is held.
	Drag math.Vec2
	// Scroll is the accumulated vertical wheel offset.
	Scroll float32
	// Resized reports a framebuffer size change since the last poll.
	Resized bool
	// Delta is the wall time since the previous frame.
	Delta time.Duration
}

func (s InputState) Pressed(k Key) bool {
	return k >= 0 && k < keyCount && s.Keys[k]
}

type inputTracker struct {
	scroll   float32
	dragging bool
	lastX    float64
	lastY    float64
}

func (t *inputTracker) snapshot(down func(Key) bool, right bool, x, y float64) InputState {
	var s InputState
	for k := Key(0); k < keyCount; k++ {
		s.Keys[k] = down(k)
	}
	if right && t.dragging {
		s.Drag = math.NewVec2(float32(x-t.lastX), float32(y-t.lastY))
	}
	t.dragging = right
	t.lastX, t.lastY = x, y
	s.Scroll = t.scroll
	t.scroll = 0
	return s
}
