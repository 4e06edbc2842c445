// Package renderer draws I420 frames taken from a slot.Slot onto a wgpu
// render target.
//
// A Renderer is owned by the render thread. The host calls OnSurfaceCreated
// once a device exists, OnSurfaceChanged on every resize, OnDrawFrame once
// per display refresh and OnSurfaceDestroyed before the device goes away.
// Each drawn frame uploads the Y, U and V planes into single-channel
// textures, converts to RGB in the fragment stage and selects pre-rotated
// geometry for the frame's orientation and mirroring.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/geometry"
	"github.com/gogpu/yuvview/internal/logging"
	"github.com/gogpu/yuvview/internal/shader"
	"github.com/gogpu/yuvview/slot"
)

var (
	// ErrNoDevice is returned by OnSurfaceCreated without a device or queue.
	ErrNoDevice = errors.New("renderer: nil device or queue")

	// ErrNoTarget is returned by OnDrawFrame without a render target.
	ErrNoTarget = errors.New("renderer: nil render target")
)

// State is the lifecycle state of a Renderer.
type State int

const (
	Uninitialized State = iota
	Created
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Created:
		return "created"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts render ticks.
type Stats struct {
	Drawn    uint64 // frames uploaded and drawn
	Idle     uint64 // ticks with nothing new in the slot
	Rejected uint64 // frames that failed validation or upload
}

// submission is a command buffer the GPU may still be reading.
type submission struct {
	index uint64
	cmd   hal.CommandBuffer
}

// Renderer is the I420 preview renderer. It is not safe for concurrent use;
// only the slot it reads from is shared with the producer.
type Renderer struct {
	slot *slot.Slot
	opts options

	state  State
	device hal.Device
	queue  hal.Queue
	res    *resources

	viewW, viewH int
	inflight     []submission
	stats        Stats
}

// New returns an uninitialized renderer reading from s.
func New(s *slot.Slot, opts ...Option) *Renderer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Renderer{slot: s, opts: o}
}

func (r *Renderer) log() *slog.Logger {
	if r.opts.logger != nil {
		return r.opts.logger
	}
	return logging.Logger()
}

// State returns the lifecycle state.
func (r *Renderer) State() State {
	return r.state
}

// Stats returns the tick counters.
func (r *Renderer) Stats() Stats {
	return r.stats
}

// Viewport returns the size last passed to OnSurfaceChanged.
func (r *Renderer) Viewport() (width, height int) {
	return r.viewW, r.viewH
}

// OnSurfaceCreated allocates the GPU resources: the I420 program, a vertex
// buffer holding every geometry group, the transform uniform, a linear
// sampler and one placeholder texture per plane. It is a no-op when the
// renderer is already created. On failure every handle created by the
// attempt is destroyed and the state is left unchanged.
func (r *Renderer) OnSurfaceCreated(device hal.Device, queue hal.Queue) error {
	if r.state == Created {
		return nil
	}
	if device == nil || queue == nil {
		return ErrNoDevice
	}

	res, err := createResources(device, queue, r.opts.format)
	if err != nil {
		return err
	}
	r.device = device
	r.queue = queue
	r.res = res
	r.inflight = r.inflight[:0]
	r.state = Created
	r.log().Info("renderer: surface created", "format", r.opts.format)
	return nil
}

// OnSurfaceChanged records the viewport size. It is ignored unless the
// renderer is created.
func (r *Renderer) OnSurfaceChanged(width, height int) {
	if r.state != Created {
		return
	}
	r.viewW, r.viewH = width, height
	r.log().Debug("renderer: surface changed", "width", width, "height", height)
}

// OnSurfaceDestroyed waits for the GPU, destroys every resource and
// releases any frame still pending in the slot. Safe to call repeatedly and
// before OnSurfaceCreated.
func (r *Renderer) OnSurfaceDestroyed() {
	if r.state != Created {
		if r.slot != nil {
			r.slot.Clear()
		}
		return
	}
	if err := r.device.WaitIdle(); err != nil {
		r.log().Warn("renderer: wait idle before teardown", "err", err)
	}
	for _, s := range r.inflight {
		r.device.FreeCommandBuffer(s.cmd)
	}
	r.inflight = r.inflight[:0]

	r.res.destroy(r.device)
	r.res = nil
	r.device = nil
	r.queue = nil
	if r.slot != nil {
		r.slot.Clear()
	}
	r.state = Destroyed
	r.log().Info("renderer: surface destroyed",
		"drawn", r.stats.Drawn,
		"idle", r.stats.Idle,
		"rejected", r.stats.Rejected,
	)
}

// retire frees command buffers of completed submissions.
func (r *Renderer) retire() {
	if len(r.inflight) == 0 {
		return
	}
	done := r.queue.PollCompleted()
	keep := r.inflight[:0]
	for _, s := range r.inflight {
		if s.index <= done {
			r.device.FreeCommandBuffer(s.cmd)
			continue
		}
		keep = append(keep, s)
	}
	r.inflight = keep
}

// planeTexture is one single-channel texture and its view.
type planeTexture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  int
	height int
}

// resources is everything OnSurfaceCreated allocates.
type resources struct {
	program  *shader.Program
	vertices hal.Buffer
	uniform  hal.Buffer
	sampler  hal.Sampler
	planes   [frame.NumPlanes]planeTexture
	group    hal.BindGroup

	// stale is set when a plane view is replaced and cleared only once
	// group points at the current views.
	stale bool
}

func createResources(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (res *resources, err error) {
	res = &resources{}
	defer func() {
		if err != nil {
			res.destroy(device)
			res = nil
		}
	}()

	res.program, err = shader.Compile(device, shader.I420Descriptor(format, geometry.Layout()))
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}

	res.vertices, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "i420_vertices",
		Size:  geometry.Size,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: create vertex buffer: %w", err)
	}
	if err = queue.WriteBuffer(res.vertices, 0, geometry.Bytes()); err != nil {
		return nil, fmt.Errorf("renderer: upload vertices: %w", err)
	}

	res.uniform, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "i420_transform",
		Size:  MatrixSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: create uniform buffer: %w", err)
	}
	if err = queue.WriteBuffer(res.uniform, 0, matrixBytes(Matrix(1, 1))); err != nil {
		return nil, fmt.Errorf("renderer: upload transform: %w", err)
	}

	res.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "i420_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: create sampler: %w", err)
	}

	for i := range res.planes {
		if res.planes[i], err = createPlane(device, i, 1, 1); err != nil {
			return nil, err
		}
	}
	if err = res.rebindGroup(device); err != nil {
		return nil, err
	}
	return res, nil
}

func createPlane(device hal.Device, plane, width, height int) (planeTexture, error) {
	label := fmt.Sprintf("i420_plane%d", plane)
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatR8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return planeTexture{}, fmt.Errorf("renderer: create %s texture: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        gputypes.TextureFormatR8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return planeTexture{}, fmt.Errorf("renderer: create %s view: %w", label, err)
	}
	return planeTexture{tex: tex, view: view, width: width, height: height}, nil
}

func (p *planeTexture) destroy(device hal.Device) {
	if p.view != nil {
		device.DestroyTextureView(p.view)
	}
	if p.tex != nil {
		device.DestroyTexture(p.tex)
	}
	*p = planeTexture{}
}

// rebindGroup replaces the bind group with one pointing at the current
// plane views. The old group is kept when creation fails.
func (res *resources) rebindGroup(device hal.Device) error {
	entries := make([]gputypes.BindGroupEntry, 0, 2+frame.NumPlanes)

	transform, err := res.program.UniformLocation(shader.UniformTransform)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: transform.Binding,
		Resource: gputypes.BufferBinding{
			Buffer: res.uniform.NativeHandle(),
			Size:   MatrixSize,
		},
	})
	for i, name := range shader.PlaneUniforms {
		b, err := res.program.UniformLocation(name)
		if err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  b.Binding,
			Resource: gputypes.TextureViewBinding{TextureView: res.planes[i].view.NativeHandle()},
		})
	}
	sampler, err := res.program.UniformLocation(shader.UniformSampler)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  sampler.Binding,
		Resource: gputypes.SamplerBinding{Sampler: res.sampler.NativeHandle()},
	})

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "i420_bind_group",
		Layout:  res.program.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("renderer: create bind group: %w", err)
	}
	if res.group != nil {
		device.DestroyBindGroup(res.group)
	}
	res.group = group
	res.stale = false
	return nil
}

// destroy tears down in reverse creation order. Nil handles are skipped so
// a partially built set can be rolled back.
func (res *resources) destroy(device hal.Device) {
	if res.group != nil {
		device.DestroyBindGroup(res.group)
		res.group = nil
	}
	for i := len(res.planes) - 1; i >= 0; i-- {
		res.planes[i].destroy(device)
	}
	if res.sampler != nil {
		device.DestroySampler(res.sampler)
		res.sampler = nil
	}
	if res.uniform != nil {
		device.DestroyBuffer(res.uniform)
		res.uniform = nil
	}
	if res.vertices != nil {
		device.DestroyBuffer(res.vertices)
		res.vertices = nil
	}
	if res.program != nil {
		res.program.Destroy()
		res.program = nil
	}
}
