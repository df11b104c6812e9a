// Package vulkan owns the device-level Vulkan objects of the engine: the
// instance, physical/logical device with its queues, the swap chain, and
// thin owners for buffers, images, samplers and descriptor pools.
package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var (
	ErrNoSuitableDevice   = errors.New("no suitable GPU found")
	ErrOutOfMemory        = errors.New("out of device memory")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrSwapChainOutOfDate = errors.New("swap chain out of date")
	ErrFenceTimeout       = errors.New("fence wait timed out")
	ErrNotHostVisible     = errors.New("buffer is not host visible")
	ErrMapOutOfRange      = errors.New("mapping out of range")
)

// Check converts a Vulkan result into an error naming the failed call.
func Check(ret vk.Result, call string) error {
	if ret == vk.Success {
		return nil
	}
	switch ret {
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory:
		return errors.Mark(errors.Newf("%s: %v", call, vk.Error(ret)), ErrOutOfMemory)
	case vk.ErrorFormatNotSupported:
		return errors.Mark(errors.Newf("%s: %v", call, vk.Error(ret)), ErrUnsupportedFormat)
	case vk.ErrorOutOfDate:
		return errors.Mark(errors.Newf("%s: %v", call, vk.Error(ret)), ErrSwapChainOutOfDate)
	}
	return errors.Newf("%s failed: %v (%d)", call, vk.Error(ret), ret)
}

// Init loads the Vulkan entry points. The window layer must have pointed the
// loader at its instance proc address first.
func Init() error {
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "vulkan loader")
	}
	return nil
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
