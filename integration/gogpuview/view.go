// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gogpuview

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/renderer"
	"github.com/gogpu/yuvview/slot"
)

var (
	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("gogpuview: nil DeviceProvider")

	// ErrNoHal is returned when the provider does not expose hal handles.
	ErrNoHal = errors.New("gogpuview: provider does not expose hal device and queue")

	// ErrTarget is returned when a draw target cannot be resolved to a hal
	// texture view.
	ErrTarget = errors.New("gogpuview: unsupported draw target")

	// ErrClosed is returned by Draw after Close.
	ErrClosed = errors.New("gogpuview: view is closed")
)

// halProvider is implemented by gogpu's device provider.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// View renders a slot onto a gogpu surface.
type View struct {
	r      *renderer.Renderer
	width  int
	height int
	closed bool
}

// New creates the renderer on the provider's device. The surface format
// reported by the provider is used unless opts override it.
func New(provider gpucontext.DeviceProvider, s *slot.Slot, opts ...renderer.Option) (*View, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	device, queue, err := halHandles(provider)
	if err != nil {
		return nil, err
	}

	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]renderer.Option{renderer.WithFormat(f)}, opts...)
	}
	r := renderer.New(s, opts...)
	if err := r.OnSurfaceCreated(device, queue); err != nil {
		return nil, fmt.Errorf("gogpuview: %w", err)
	}
	return &View{r: r}, nil
}

func halHandles(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, ErrNoHal
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHal, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHal, hp.HalQueue())
	}
	return device, queue, nil
}

// Draw renders one tick into target, which may be a hal.TextureView, a
// *wgpu.TextureView or the gpucontext.TextureView gogpu hands out. A
// change in width or height is forwarded as a surface change first.
func (v *View) Draw(target any, width, height int) (bool, error) {
	if v.closed {
		return false, ErrClosed
	}
	if width != v.width || height != v.height {
		v.Resize(width, height)
	}
	view, err := resolveView(target)
	if err != nil {
		return false, err
	}
	return v.r.OnDrawFrame(view)
}

// Resize forwards a surface size change.
func (v *View) Resize(width, height int) {
	v.width, v.height = width, height
	v.r.OnSurfaceChanged(width, height)
}

// Renderer returns the underlying renderer.
func (v *View) Renderer() *renderer.Renderer {
	return v.r
}

// Close destroys the GPU resources. It must run on the render thread while
// the device is still alive. Close is idempotent.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.r.OnSurfaceDestroyed()
	return nil
}

func resolveView(target any) (hal.TextureView, error) {
	switch t := target.(type) {
	case nil:
		return nil, renderer.ErrNoTarget
	case *wgpu.TextureView:
		if t == nil {
			return nil, renderer.ErrNoTarget
		}
		// Nil once released.
		if hv := t.HalTextureView(); hv != nil {
			return hv, nil
		}
		return nil, renderer.ErrNoTarget
	case hal.TextureView:
		return t, nil
	case gpucontext.TextureView:
		if t.IsNil() {
			return nil, renderer.ErrNoTarget
		}
		return resolveView((*wgpu.TextureView)(t.Pointer()))
	}
	return nil, fmt.Errorf("%w: %T", ErrTarget, target)
}
