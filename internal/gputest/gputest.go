// Package gputest provides a HAL device for tests: the noop backend wrapped
// with per-kind resource accounting, injectable creation failures and a
// recording of every render pass and queue upload.
package gputest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// ErrInjected is returned by creations armed with FailOn.
var ErrInjected = errors.New("gputest: injected failure")

// Resource kinds tracked by Device.
const (
	KindBuffer          = "buffer"
	KindTexture         = "texture"
	KindTextureView     = "texture_view"
	KindSampler         = "sampler"
	KindBindGroupLayout = "bind_group_layout"
	KindBindGroup       = "bind_group"
	KindPipelineLayout  = "pipeline_layout"
	KindShaderModule    = "shader_module"
	KindRenderPipeline  = "render_pipeline"
	KindCommandEncoder  = "command_encoder"
	KindCommandBuffer   = "command_buffer"
)

// NoopDevice opens the noop backend and registers cleanup on t.
func NoopDevice(t testing.TB) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("noop backend exposed no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return open.Device, open.Queue
}

// New returns a tracking device and queue over the noop backend.
func New(t testing.TB) (*Device, *Queue) {
	t.Helper()
	dev, q := NoopDevice(t)
	d := &Device{
		Device:  dev,
		created: map[string]int{},
		live:    map[string]int{},
		failAt:  map[string]int{},
		views:   map[uintptr]bool{},
	}
	return d, &Queue{Queue: q}
}

// Device wraps a hal.Device and counts creations and destructions by kind.
type Device struct {
	hal.Device

	mu        sync.Mutex
	created   map[string]int
	live      map[string]int
	failAt    map[string]int // kind -> remaining successful creations before failure
	passes    []*Pass
	waitIdles int

	nextView uintptr
	views    map[uintptr]bool // view handle -> live
}

// view gives each texture view a distinct NativeHandle so bind groups can
// be traced back to the views they reference.
type view struct {
	hal.TextureView
	handle uintptr
}

func (v *view) NativeHandle() uintptr { return v.handle }

// group remembers the view handles a bind group was created with.
type group struct {
	hal.BindGroup
	views []uintptr
}

// FailOn arms the nth next creation of kind (1 = the very next) to fail.
func (d *Device) FailOn(kind string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt[kind] = n
}

// Created returns how many resources of kind were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Live returns how many resources of kind are created but not destroyed.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveTotal returns the number of outstanding resources, not counting
// command encoders and command buffers.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for kind, c := range d.live {
		if kind != KindCommandEncoder && kind != KindCommandBuffer {
			n += c
		}
	}
	return n
}

// Passes returns every render pass begun on encoders from this device.
func (d *Device) Passes() []*Pass {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Pass, len(d.passes))
	copy(out, d.passes)
	return out
}

// WaitIdles returns how often WaitIdle was called.
func (d *Device) WaitIdles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitIdles
}

func (d *Device) create(kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.failAt[kind]; ok {
		if n <= 1 {
			delete(d.failAt, kind)
			return fmt.Errorf("%w: %s", ErrInjected, kind)
		}
		d.failAt[kind] = n - 1
	}
	d.created[kind]++
	d.live[kind]++
	return nil
}

func (d *Device) destroy(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[kind]--
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if err := d.create(KindBuffer); err != nil {
		return nil, err
	}
	return d.Device.CreateBuffer(desc)
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.destroy(KindBuffer)
	d.Device.DestroyBuffer(b)
}

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if err := d.create(KindTexture); err != nil {
		return nil, err
	}
	return d.Device.CreateTexture(desc)
}

func (d *Device) DestroyTexture(t hal.Texture) {
	d.destroy(KindTexture)
	d.Device.DestroyTexture(t)
}

func (d *Device) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if err := d.create(KindTextureView); err != nil {
		return nil, err
	}
	tv, err := d.Device.CreateTextureView(t, desc)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextView++
	d.views[d.nextView] = true
	return &view{TextureView: tv, handle: d.nextView}, nil
}

func (d *Device) DestroyTextureView(v hal.TextureView) {
	d.destroy(KindTextureView)
	if tv, ok := v.(*view); ok {
		d.mu.Lock()
		d.views[tv.handle] = false
		d.mu.Unlock()
		v = tv.TextureView
	}
	d.Device.DestroyTextureView(v)
}

// viewLive reports whether handle names a view created and not yet
// destroyed on d.
func (d *Device) viewLive(handle uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views[handle]
}

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	if err := d.create(KindSampler); err != nil {
		return nil, err
	}
	return d.Device.CreateSampler(desc)
}

func (d *Device) DestroySampler(s hal.Sampler) {
	d.destroy(KindSampler)
	d.Device.DestroySampler(s)
}

func (d *Device) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	if err := d.create(KindBindGroupLayout); err != nil {
		return nil, err
	}
	return d.Device.CreateBindGroupLayout(desc)
}

func (d *Device) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.destroy(KindBindGroupLayout)
	d.Device.DestroyBindGroupLayout(l)
}

func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	if err := d.create(KindBindGroup); err != nil {
		return nil, err
	}
	bg, err := d.Device.CreateBindGroup(desc)
	if err != nil {
		return nil, err
	}
	g := &group{BindGroup: bg}
	for _, e := range desc.Entries {
		if tv, ok := e.Resource.(gputypes.TextureViewBinding); ok {
			g.views = append(g.views, tv.TextureView)
		}
	}
	return g, nil
}

func (d *Device) DestroyBindGroup(g hal.BindGroup) {
	d.destroy(KindBindGroup)
	if tg, ok := g.(*group); ok {
		g = tg.BindGroup
	}
	d.Device.DestroyBindGroup(g)
}

func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	if err := d.create(KindPipelineLayout); err != nil {
		return nil, err
	}
	return d.Device.CreatePipelineLayout(desc)
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.destroy(KindPipelineLayout)
	d.Device.DestroyPipelineLayout(l)
}

func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if err := d.create(KindShaderModule); err != nil {
		return nil, err
	}
	return d.Device.CreateShaderModule(desc)
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.destroy(KindShaderModule)
	d.Device.DestroyShaderModule(m)
}

func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if err := d.create(KindRenderPipeline); err != nil {
		return nil, err
	}
	return d.Device.CreateRenderPipeline(desc)
}

func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.destroy(KindRenderPipeline)
	d.Device.DestroyRenderPipeline(p)
}

func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	if err := d.create(KindCommandEncoder); err != nil {
		return nil, err
	}
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &encoder{CommandEncoder: enc, dev: d}, nil
}

func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.destroy(KindCommandBuffer)
	d.Device.FreeCommandBuffer(cb)
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	d.waitIdles++
	d.mu.Unlock()
	return d.Device.WaitIdle()
}

type encoder struct {
	hal.CommandEncoder
	dev *Device
}

func (e *encoder) EndEncoding() (hal.CommandBuffer, error) {
	cb, err := e.CommandEncoder.EndEncoding()
	if err != nil {
		return nil, err
	}
	e.dev.mu.Lock()
	e.dev.created[KindCommandBuffer]++
	e.dev.live[KindCommandBuffer]++
	e.dev.mu.Unlock()
	return cb, nil
}

func (e *encoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &Pass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), dev: e.dev}
	if len(desc.ColorAttachments) > 0 {
		a := desc.ColorAttachments[0]
		p.Target = a.View
		p.LoadOp = a.LoadOp
		p.ClearValue = a.ClearValue
	}
	e.dev.mu.Lock()
	e.dev.passes = append(e.dev.passes, p)
	e.dev.mu.Unlock()
	return p
}

// DrawCall is one recorded Draw.
type DrawCall struct {
	VertexCount, InstanceCount, FirstVertex, FirstInstance uint32
}

// Viewport is one recorded SetViewport.
type Viewport struct {
	X, Y, Width, Height float32
}

// Pass records the commands issued on a render pass.
type Pass struct {
	hal.RenderPassEncoder

	Target     hal.TextureView
	LoadOp     gputypes.LoadOp
	ClearValue gputypes.Color

	Pipelines     int
	BindGroups    int
	VertexBuffers int
	Viewports     []Viewport
	Draws         []DrawCall
	Ended         bool

	// DestroyedViews counts texture views referenced by bound groups that
	// had already been destroyed when the group was set.
	DestroyedViews int

	dev *Device
}

func (p *Pass) SetPipeline(pl hal.RenderPipeline) {
	p.Pipelines++
	p.RenderPassEncoder.SetPipeline(pl)
}

func (p *Pass) SetBindGroup(index uint32, bg hal.BindGroup, offsets []uint32) {
	p.BindGroups++
	if g, ok := bg.(*group); ok {
		for _, h := range g.views {
			if !p.dev.viewLive(h) {
				p.DestroyedViews++
			}
		}
		bg = g.BindGroup
	}
	p.RenderPassEncoder.SetBindGroup(index, bg, offsets)
}

func (p *Pass) SetVertexBuffer(slot uint32, buf hal.Buffer, offset uint64) {
	p.VertexBuffers++
	p.RenderPassEncoder.SetVertexBuffer(slot, buf, offset)
}

func (p *Pass) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	p.Viewports = append(p.Viewports, Viewport{X: x, Y: y, Width: w, Height: h})
	p.RenderPassEncoder.SetViewport(x, y, w, h, minDepth, maxDepth)
}

func (p *Pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.Draws = append(p.Draws, DrawCall{vertexCount, instanceCount, firstVertex, firstInstance})
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *Pass) End() {
	p.Ended = true
	p.RenderPassEncoder.End()
}

// TextureWrite is one recorded Queue.WriteTexture.
type TextureWrite struct {
	BytesPerRow   uint32
	RowsPerImage  uint32
	Width, Height uint32
	DataLen       int
}

// Queue wraps a hal.Queue and records uploads and submissions.
type Queue struct {
	hal.Queue

	mu           sync.Mutex
	textures     []TextureWrite
	bufferWrites [][]byte
	submits      int
	failWrites   bool
}

// FailTextureWrites makes every later WriteTexture fail.
func (q *Queue) FailTextureWrites() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failWrites = true
}

func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	if q.failWrites {
		q.mu.Unlock()
		return fmt.Errorf("%w: write texture", ErrInjected)
	}
	q.textures = append(q.textures, TextureWrite{
		BytesPerRow:  layout.BytesPerRow,
		RowsPerImage: layout.RowsPerImage,
		Width:        size.Width,
		Height:       size.Height,
		DataLen:      len(data),
	})
	q.mu.Unlock()
	return q.Queue.WriteTexture(dst, data, layout, size)
}

func (q *Queue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	q.bufferWrites = append(q.bufferWrites, append([]byte(nil), data...))
	q.mu.Unlock()
	return q.Queue.WriteBuffer(buf, offset, data)
}

func (q *Queue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	q.submits++
	q.mu.Unlock()
	return q.Queue.Submit(cmds)
}

// TextureWrites returns the recorded texture uploads.
func (q *Queue) TextureWrites() []TextureWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]TextureWrite, len(q.textures))
	copy(out, q.textures)
	return out
}

// BufferWrites returns copies of the data passed to WriteBuffer.
func (q *Queue) BufferWrites() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.bufferWrites))
	copy(out, q.bufferWrites)
	return out
}

// Submits returns the number of Submit calls.
func (q *Queue) Submits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}
