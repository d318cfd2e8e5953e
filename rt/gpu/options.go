package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/meshrt/rt"
)

// options collects renderer construction settings. All fields have
// working defaults; use the With* functions to override.
type options struct {
	logger          rt.Logger
	window          *glfw.Window
	powerPreference wgpu.PowerPreference
	workgroupSize   uint32
	maxTextureDim   int
	debug           bool
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger:          rt.NewNopLogger(),
		powerPreference: wgpu.PowerPreferenceHighPerformance,
		workgroupSize:   16,
		maxTextureDim:   4096,
	}
}

// WithLogger routes renderer diagnostics to the given logger.
func WithLogger(l rt.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWindow enables the on-screen presentation path. Without a window
// the renderer runs headless and every frame is read back to the host.
func WithWindow(w *glfw.Window) Option {
	return func(o *options) { o.window = w }
}

// WithPowerPreference overrides the adapter selection preference.
func WithPowerPreference(p wgpu.PowerPreference) Option {
	return func(o *options) { o.powerPreference = p }
}

// WithWorkgroupSize overrides the square compute tile edge. Must match
// the kernel's workgroup_size attribute.
func WithWorkgroupSize(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.workgroupSize = n
		}
	}
}

// WithMaxTextureDim caps texture dimensions accepted into the heap.
func WithMaxTextureDim(n int) Option {
	return func(o *options) { o.maxTextureDim = n }
}

// WithDebug enables debug logging on the configured logger.
func WithDebug(enabled bool) Option {
	return func(o *options) { o.debug = enabled }
}
