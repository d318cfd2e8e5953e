package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/meshrt/rt"
)

// Context owns the device handle and issues synchronous submission
// units. Every other component goes through it for GPU work.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface // nil when headless

	Limits wgpu.Limits

	log rt.Logger
}

// NewContext brings up the wgpu instance/adapter/device. When window is
// non-nil a surface is created for presentation; otherwise the context
// is headless.
func NewContext(window *glfw.Window, pref wgpu.PowerPreference, log rt.Logger) (*Context, error) {
	if log == nil {
		log = rt.NewNopLogger()
	}
	c := &Context{log: log}
	c.Instance = wgpu.CreateInstance(nil)

	if window != nil {
		c.Surface = c.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	}

	adapter, err := c.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: c.Surface,
		PowerPreference:   pref,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("gpu: no suitable adapter: %w", err)
	}
	c.Adapter = adapter

	// Scene heaps routinely exceed the 128MB default storage binding
	// limit, so ask for the larger buffer limits up front.
	limits := wgpu.DefaultLimits()
	limits.MaxBufferSize = 1 << 30
	limits.MaxStorageBufferBindingSize = 1 << 30

	c.Device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "meshrt Device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("gpu: device request failed: %w", err)
	}
	c.Queue = c.Device.GetQueue()
	c.Limits = limits

	log.Debugf("gpu context up, max buffer size %d", limits.MaxBufferSize)
	return c, nil
}

// HasNativeDisplay reports whether the context can present on screen.
func (c *Context) HasNativeDisplay() bool { return c.Surface != nil }

// Submit records commands via fn into one command buffer, submits it
// and blocks until the device has drained the queue. One Submit call is
// one synchronous submission unit; nothing recorded by fn is observable
// before Submit returns.
func (c *Context) Submit(label string, fn func(enc *wgpu.CommandEncoder) error) error {
	enc, err := c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("gpu: %s: create encoder: %w", label, err)
	}
	if err := fn(enc); err != nil {
		return fmt.Errorf("gpu: %s: %w", label, err)
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu: %s: encoder finish: %w", label, err)
	}
	c.Queue.Submit(cmd)
	c.Device.Poll(true, nil)
	return nil
}

// Wait blocks until all submitted GPU work has completed.
func (c *Context) Wait() {
	c.Device.Poll(true, nil)
}

func (c *Context) Release() {
	if c.Device != nil {
		c.Device.Poll(true, nil)
		c.Device.Release()
		c.Device = nil
	}
	if c.Adapter != nil {
		c.Adapter.Release()
		c.Adapter = nil
	}
	if c.Surface != nil {
		c.Surface.Release()
		c.Surface = nil
	}
	if c.Instance != nil {
		c.Instance.Release()
		c.Instance = nil
	}
}
