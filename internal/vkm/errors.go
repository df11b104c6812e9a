package vkm

import (
	"github.com/cockroachdb/errors"

	"deferred-engine/vulkan"
)

var (
	ErrStaleHandle                 = errors.New("stale or mismatched handle")
	ErrUnsupportedLayoutTransition = errors.New("unsupported image layout transition")
	ErrTooManyDepthAttachments     = errors.New("subpass already has a depth attachment")
	ErrResolveAttachmentMismatch   = errors.New("resolve attachment count differs from color attachment count")
	ErrInvalidAttachmentIndex      = errors.New("attachment index out of range")
	ErrInvalidSubpassIndex         = errors.New("subpass index out of range")
	ErrDescriptorPoolExhausted     = errors.New("descriptor pool exhausted")
	ErrInvalidPipeline             = errors.New("invalid pipeline description")
	ErrDuplicateBinding            = errors.New("descriptor binding declared twice")

	// Re-exported so callers of the manager need not import the wrapper
	// package to classify errors.
	ErrOutOfMemory        = vulkan.ErrOutOfMemory
	ErrUnsupportedFormat  = vulkan.ErrUnsupportedFormat
	ErrNotHostVisible     = vulkan.ErrNotHostVisible
	ErrMapOutOfRange      = vulkan.ErrMapOutOfRange
	ErrFenceTimeout       = vulkan.ErrFenceTimeout
	ErrSwapChainOutOfDate = vulkan.ErrSwapChainOutOfDate
)

// violation reports a programming error: it is an assertion failure that
// still matches its sentinel under errors.Is.
func violation(sentinel error, format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), sentinel)
}
