package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/geometry"
	"github.com/gogpu/yuvview/internal/gputest"
	"github.com/gogpu/yuvview/slot"
)

func newTarget(t *testing.T, dev *gputest.Device) hal.TextureView {
	t.Helper()
	// Created on the wrapped device so it stays out of the resource counts.
	tex, err := dev.Device.CreateTexture(&hal.TextureDescriptor{
		Label:         "target",
		Size:          hal.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	view, err := dev.Device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "target_view"})
	if err != nil {
		t.Fatalf("CreateTextureView failed: %v", err)
	}
	return view
}

func newImage(t *testing.T, w, h, orientation int) *frame.PlanarImage {
	t.Helper()
	img, err := frame.NewI420(w, h, orientation, nil)
	if err != nil {
		t.Fatalf("NewI420(%d, %d, %d) failed: %v", w, h, orientation, err)
	}
	return img
}

type fixture struct {
	dev    *gputest.Device
	queue  *gputest.Queue
	slot   *slot.Slot
	r      *Renderer
	target hal.TextureView
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev, q := gputest.New(t)
	s := slot.New()
	f := &fixture{dev: dev, queue: q, slot: s, r: New(s), target: newTarget(t, dev)}
	if err := f.r.OnSurfaceCreated(dev, q); err != nil {
		t.Fatalf("OnSurfaceCreated failed: %v", err)
	}
	t.Cleanup(f.r.OnSurfaceDestroyed)
	return f
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestScaleFor(t *testing.T) {
	tests := []struct {
		name         string
		imgW, imgH   int
		viewW, viewH int
		wantX, wantY float32
	}{
		{"landscape view, 4:3 image scales y", 640, 480, 1920, 1080, 1, 1.3333},
		{"portrait view, 4:3 image scales x", 640, 480, 1080, 1920, 2.3703, 1},
		{"equal ratios", 1280, 720, 1920, 1080, 1, 1},
		{"rotated image in landscape view", 480, 640, 1920, 1080, 1, 2.3703},
		{"empty viewport", 640, 480, 0, 0, 1, 1},
		{"empty image", 0, 480, 1920, 1080, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := ScaleFor(tt.imgW, tt.imgH, tt.viewW, tt.viewH)
			if !approx(x, tt.wantX) || !approx(y, tt.wantY) {
				t.Errorf("ScaleFor = (%v, %v), want (%v, %v)", x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestMatrix(t *testing.T) {
	m := Matrix(2, 3)
	for i, v := range m {
		want := float32(0)
		switch i {
		case 0:
			want = 2
		case 5:
			want = 3
		case 10, 15:
			want = 1
		}
		if v != want {
			t.Errorf("m[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestSurfaceCreatedAllocates(t *testing.T) {
	f := newFixture(t)

	if f.r.State() != Created {
		t.Fatalf("State() = %v, want created", f.r.State())
	}
	for kind, want := range map[string]int{
		gputest.KindShaderModule:   2,
		gputest.KindRenderPipeline: 1,
		gputest.KindBuffer:         2,
		gputest.KindSampler:        1,
		gputest.KindTexture:        3,
		gputest.KindTextureView:    3,
		gputest.KindBindGroup:      1,
	} {
		if got := f.dev.Live(kind); got != want {
			t.Errorf("live %s = %d, want %d", kind, got, want)
		}
	}

	writes := f.queue.BufferWrites()
	if len(writes) < 1 || len(writes[0]) != geometry.Size {
		t.Errorf("first buffer write should upload the %d byte geometry table", geometry.Size)
	}
}

func TestSurfaceCreatedIdempotent(t *testing.T) {
	f := newFixture(t)
	before := f.dev.Created(gputest.KindTexture)

	if err := f.r.OnSurfaceCreated(f.dev, f.queue); err != nil {
		t.Fatalf("second OnSurfaceCreated failed: %v", err)
	}
	if got := f.dev.Created(gputest.KindTexture); got != before {
		t.Errorf("second call created %d more textures", got-before)
	}
	if f.dev.Created(gputest.KindShaderModule) != 2 {
		t.Errorf("second call recompiled the program")
	}
}

func TestSurfaceCreatedRollback(t *testing.T) {
	tests := []struct {
		kind string
		n    int
	}{
		{gputest.KindShaderModule, 2},
		{gputest.KindRenderPipeline, 1},
		{gputest.KindBuffer, 1},
		{gputest.KindBuffer, 2},
		{gputest.KindSampler, 1},
		{gputest.KindTexture, 1},
		{gputest.KindTexture, 3},
		{gputest.KindTextureView, 2},
		{gputest.KindBindGroup, 1},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			dev, q := gputest.New(t)
			r := New(slot.New())
			dev.FailOn(tt.kind, tt.n)

			err := r.OnSurfaceCreated(dev, q)
			if !errors.Is(err, gputest.ErrInjected) {
				t.Fatalf("OnSurfaceCreated error = %v, want injected failure", err)
			}
			if r.State() != Uninitialized {
				t.Errorf("State() = %v after failed create", r.State())
			}
			if n := dev.LiveTotal(); n != 0 {
				t.Errorf("%d GPU objects leaked by failed create", n)
			}

			// The failure was one-shot; a retry succeeds.
			if err := r.OnSurfaceCreated(dev, q); err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			r.OnSurfaceDestroyed()
		})
	}
}

func TestSurfaceCreatedNilDevice(t *testing.T) {
	r := New(slot.New())
	if err := r.OnSurfaceCreated(nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("error = %v, want ErrNoDevice", err)
	}
}

func TestSurfaceDestroyed(t *testing.T) {
	f := newFixture(t)
	pending := newImage(t, 64, 48, 0)
	f.slot.Push(pending)

	f.r.OnSurfaceDestroyed()

	if f.r.State() != Destroyed {
		t.Errorf("State() = %v, want destroyed", f.r.State())
	}
	if n := f.dev.LiveTotal(); n != 0 {
		t.Errorf("%d GPU objects left after destroy", n)
	}
	if f.dev.WaitIdles() != 1 {
		t.Errorf("WaitIdle called %d times, want 1", f.dev.WaitIdles())
	}
	if !pending.Released() {
		t.Error("pending frame not released on teardown")
	}

	f.r.OnSurfaceDestroyed()
	if f.dev.WaitIdles() != 1 {
		t.Error("second destroy touched the device")
	}

	drawn, err := f.r.OnDrawFrame(f.target)
	if drawn || err != nil {
		t.Errorf("draw after destroy = (%v, %v), want (false, nil)", drawn, err)
	}

	if err := f.r.OnSurfaceCreated(f.dev, f.queue); err != nil {
		t.Fatalf("re-create failed: %v", err)
	}
	if f.r.State() != Created {
		t.Errorf("State() = %v after re-create", f.r.State())
	}
}

func TestDrawBeforeCreate(t *testing.T) {
	s := slot.New()
	r := New(s)
	img := newImage(t, 16, 16, 0)
	s.Push(img)

	drawn, err := r.OnDrawFrame(nil)
	if drawn || err != nil {
		t.Errorf("OnDrawFrame = (%v, %v), want (false, nil)", drawn, err)
	}
	if img.Released() {
		t.Error("frame consumed before the renderer exists")
	}
	r.OnSurfaceChanged(100, 100)
	if w, h := r.Viewport(); w != 0 || h != 0 {
		t.Errorf("viewport = %dx%d before create, want 0x0", w, h)
	}
}

func TestDrawNoTarget(t *testing.T) {
	f := newFixture(t)
	if _, err := f.r.OnDrawFrame(nil); !errors.Is(err, ErrNoTarget) {
		t.Errorf("error = %v, want ErrNoTarget", err)
	}
}

func TestIdleTickClearsOnly(t *testing.T) {
	f := newFixture(t)

	drawn, err := f.r.OnDrawFrame(f.target)
	if err != nil {
		t.Fatalf("OnDrawFrame failed: %v", err)
	}
	if drawn {
		t.Error("idle tick reported a drawn frame")
	}

	passes := f.dev.Passes()
	if len(passes) != 1 {
		t.Fatalf("len(passes) = %d, want 1", len(passes))
	}
	p := passes[0]
	if p.LoadOp != gputypes.LoadOpClear {
		t.Errorf("LoadOp = %v, want clear", p.LoadOp)
	}
	if p.ClearValue != (gputypes.Color{R: 1, G: 1, B: 1, A: 1}) {
		t.Errorf("ClearValue = %+v, want opaque white", p.ClearValue)
	}
	if len(p.Draws) != 0 || p.Pipelines != 0 {
		t.Errorf("idle pass issued %d draws and %d pipeline binds", len(p.Draws), p.Pipelines)
	}
	if !p.Ended {
		t.Error("pass not ended")
	}
	if got := f.r.Stats(); got.Idle != 1 || got.Drawn != 0 {
		t.Errorf("Stats() = %+v", got)
	}
	if len(f.queue.TextureWrites()) != 0 {
		t.Error("idle tick uploaded textures")
	}
}

func TestDrawFrame(t *testing.T) {
	f := newFixture(t)
	f.r.OnSurfaceChanged(1920, 1080)

	img := newImage(t, 640, 480, 90)
	img.Mirror = true
	f.slot.Push(img)

	drawn, err := f.r.OnDrawFrame(f.target)
	if err != nil {
		t.Fatalf("OnDrawFrame failed: %v", err)
	}
	if !drawn {
		t.Fatal("frame not drawn")
	}
	if !img.Released() {
		t.Error("frame not released after upload")
	}

	writes := f.queue.TextureWrites()
	if len(writes) != 3 {
		t.Fatalf("len(texture writes) = %d, want 3", len(writes))
	}
	wantSizes := [3][2]uint32{{640, 480}, {320, 240}, {320, 240}}
	for i, w := range writes {
		if w.Width != wantSizes[i][0] || w.Height != wantSizes[i][1] {
			t.Errorf("plane %d uploaded %dx%d, want %dx%d", i, w.Width, w.Height, wantSizes[i][0], wantSizes[i][1])
		}
		if w.BytesPerRow != wantSizes[i][0] {
			t.Errorf("plane %d BytesPerRow = %d, want %d", i, w.BytesPerRow, wantSizes[i][0])
		}
	}

	// Placeholders were replaced by full-size textures and the group rebuilt.
	if got := f.dev.Created(gputest.KindTexture); got != 6 {
		t.Errorf("textures created = %d, want 6", got)
	}
	if got := f.dev.Live(gputest.KindTexture); got != 3 {
		t.Errorf("textures live = %d, want 3", got)
	}
	if got := f.dev.Live(gputest.KindBindGroup); got != 1 {
		t.Errorf("bind groups live = %d, want 1", got)
	}

	bw := f.queue.BufferWrites()
	m := bw[len(bw)-1]
	x := math.Float32frombits(binary.LittleEndian.Uint32(m[0:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(m[20:]))
	if !approx(x, 1) || !approx(y, 2.3703) {
		t.Errorf("transform scale = (%v, %v), want (1, 2.3703)", x, y)
	}

	passes := f.dev.Passes()
	p := passes[len(passes)-1]
	if len(p.Draws) != 1 {
		t.Fatalf("len(draws) = %d, want 1", len(p.Draws))
	}
	want := gputest.DrawCall{VertexCount: 4, InstanceCount: 1, FirstVertex: geometry.FirstVertex(90, true)}
	if p.Draws[0] != want {
		t.Errorf("draw = %+v, want %+v", p.Draws[0], want)
	}
	if p.Pipelines != 1 || p.BindGroups != 1 || p.VertexBuffers != 1 {
		t.Errorf("binds: pipeline %d, group %d, vertex %d", p.Pipelines, p.BindGroups, p.VertexBuffers)
	}
	if len(p.Viewports) != 1 || p.Viewports[0].Width != 1920 || p.Viewports[0].Height != 1080 {
		t.Errorf("viewports = %+v", p.Viewports)
	}
	if f.r.res.program.Bound() {
		t.Error("program still bound after draw")
	}
}

func TestDrawOrientationOffsets(t *testing.T) {
	tests := []struct {
		orientation int
		mirror      bool
		want        uint32
	}{
		{0, false, 0},
		{90, false, 4},
		{180, false, 8},
		{270, false, 12},
		{450, false, 4},
		{-90, false, 12},
		{0, true, 16},
		{270, true, 28},
	}
	for _, tt := range tests {
		f := newFixture(t)
		img := newImage(t, 32, 32, tt.orientation)
		img.Mirror = tt.mirror
		f.slot.Push(img)

		if _, err := f.r.OnDrawFrame(f.target); err != nil {
			t.Fatalf("OnDrawFrame(%d) failed: %v", tt.orientation, err)
		}
		passes := f.dev.Passes()
		draws := passes[len(passes)-1].Draws
		if len(draws) != 1 || draws[0].FirstVertex != tt.want {
			t.Errorf("orientation %d mirror %v: draws = %+v, want first vertex %d",
				tt.orientation, tt.mirror, draws, tt.want)
		}
	}
}

func TestDrawPaddedStride(t *testing.T) {
	f := newFixture(t)

	const w, h, stride = 100, 60, 128
	cw, ch := frame.ChromaSize(w, h)
	planes := [frame.NumPlanes]frame.Plane{
		{Data: make([]byte, stride*h), Stride: stride},
		{Data: make([]byte, 64*ch), Stride: 64},
		{Data: make([]byte, 64*ch), Stride: 64},
	}
	img, err := frame.New(planes, w, h, 0)
	if err != nil {
		t.Fatalf("frame.New failed: %v", err)
	}
	f.slot.Push(img)

	if _, err := f.r.OnDrawFrame(f.target); err != nil {
		t.Fatalf("OnDrawFrame failed: %v", err)
	}
	writes := f.queue.TextureWrites()
	if writes[0].BytesPerRow != stride || writes[1].BytesPerRow != 64 {
		t.Errorf("BytesPerRow = %d, %d; want %d, 64", writes[0].BytesPerRow, writes[1].BytesPerRow, stride)
	}
	if writes[1].Width != uint32(cw) {
		t.Errorf("chroma width = %d, want %d", writes[1].Width, cw)
	}
	if writes[0].DataLen != stride*(h-1)+w {
		t.Errorf("luma upload length = %d, want %d", writes[0].DataLen, stride*(h-1)+w)
	}
}

func TestTexturesReusedForSameSize(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.slot.Push(newImage(t, 64, 48, 0))
		if _, err := f.r.OnDrawFrame(f.target); err != nil {
			t.Fatalf("OnDrawFrame failed: %v", err)
		}
	}
	if got := f.dev.Created(gputest.KindTexture); got != 6 {
		t.Errorf("textures created = %d, want 6 (placeholders + one resize)", got)
	}
	if got := f.dev.Created(gputest.KindBindGroup); got != 2 {
		t.Errorf("bind groups created = %d, want 2", got)
	}

	f.slot.Push(newImage(t, 32, 32, 0))
	if _, err := f.r.OnDrawFrame(f.target); err != nil {
		t.Fatalf("OnDrawFrame failed: %v", err)
	}
	if got := f.dev.Created(gputest.KindTexture); got != 9 {
		t.Errorf("textures created after resize = %d, want 9", got)
	}
	if got := f.dev.Live(gputest.KindTexture); got != 3 {
		t.Errorf("textures live = %d, want 3", got)
	}
}

func TestInvalidFrameRejected(t *testing.T) {
	f := newFixture(t)
	img := newImage(t, 64, 48, 0)
	img.Planes[frame.PlaneU].Data = img.Planes[frame.PlaneU].Data[:10]
	f.slot.Push(img)

	drawn, err := f.r.OnDrawFrame(f.target)
	if !errors.Is(err, frame.ErrPlane) {
		t.Fatalf("error = %v, want ErrPlane", err)
	}
	if drawn {
		t.Error("invalid frame reported as drawn")
	}
	if !img.Released() {
		t.Error("invalid frame not released")
	}
	if got := f.r.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
	if len(f.queue.TextureWrites()) != 0 {
		t.Error("invalid frame was uploaded")
	}
}

func TestUploadFailureReleasesFrame(t *testing.T) {
	f := newFixture(t)
	f.queue.FailTextureWrites()
	img := newImage(t, 64, 48, 0)
	f.slot.Push(img)

	if _, err := f.r.OnDrawFrame(f.target); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("error = %v, want injected failure", err)
	}
	if !img.Released() {
		t.Error("frame not released after failed upload")
	}
}

func TestFailedRebindRetriedOnNextFrame(t *testing.T) {
	f := newFixture(t)
	draw := func(w, h int) (bool, error) {
		t.Helper()
		f.slot.Push(newImage(t, w, h, 0))
		return f.r.OnDrawFrame(f.target)
	}

	if _, err := draw(64, 48); err != nil {
		t.Fatalf("OnDrawFrame(64x48) failed: %v", err)
	}

	f.dev.FailOn(gputest.KindBindGroup, 1)
	drawn, err := draw(32, 32)
	if !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("error = %v, want injected failure", err)
	}
	if drawn {
		t.Error("frame reported as drawn after failed rebind")
	}

	// Same size as the failed frame: no texture changes, but the group
	// still points at the 64x48 views destroyed above.
	drawn, err = draw(32, 32)
	if err != nil || !drawn {
		t.Fatalf("OnDrawFrame(32x32) = (%v, %v), want (true, nil)", drawn, err)
	}
	passes := f.dev.Passes()
	p := passes[len(passes)-1]
	if p.BindGroups != 1 {
		t.Fatalf("bind groups set = %d, want 1", p.BindGroups)
	}
	if p.DestroyedViews != 0 {
		t.Errorf("draw bound %d destroyed texture views", p.DestroyedViews)
	}
	if got := f.dev.Live(gputest.KindBindGroup); got != 1 {
		t.Errorf("bind groups live = %d, want 1", got)
	}
}

func TestFailedWriteLeavesGroupStale(t *testing.T) {
	f := newFixture(t)
	f.queue.FailTextureWrites()
	f.slot.Push(newImage(t, 64, 48, 0))

	if _, err := f.r.OnDrawFrame(f.target); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("error = %v, want injected failure", err)
	}
	if !f.r.res.stale {
		t.Error("group not marked stale after plane textures were replaced")
	}
	if got := f.dev.Created(gputest.KindBindGroup); got != 1 {
		t.Errorf("bind groups created = %d, want 1 (no rebind on failure)", got)
	}
}

func TestPlaceholderGroupBindsLiveViews(t *testing.T) {
	f := newFixture(t)
	for _, size := range [][2]int{{64, 48}, {32, 32}, {64, 48}} {
		f.slot.Push(newImage(t, size[0], size[1], 0))
		if _, err := f.r.OnDrawFrame(f.target); err != nil {
			t.Fatalf("OnDrawFrame(%dx%d) failed: %v", size[0], size[1], err)
		}
		passes := f.dev.Passes()
		if n := passes[len(passes)-1].DestroyedViews; n != 0 {
			t.Errorf("%dx%d: draw bound %d destroyed texture views", size[0], size[1], n)
		}
	}
	if f.r.res.stale {
		t.Error("group still stale after successful draws")
	}
}

func TestCommandBuffersRetired(t *testing.T) {
	f := newFixture(t)
	for range 4 {
		if _, err := f.r.OnDrawFrame(f.target); err != nil {
			t.Fatalf("OnDrawFrame failed: %v", err)
		}
	}
	// The noop queue completes synchronously, so only the latest submission
	// is still tracked.
	if got := f.dev.Live(gputest.KindCommandBuffer); got != 1 {
		t.Errorf("live command buffers = %d, want 1", got)
	}
	if f.queue.Submits() != 4 {
		t.Errorf("Submits() = %d, want 4", f.queue.Submits())
	}

	f.r.OnSurfaceDestroyed()
	if got := f.dev.Live(gputest.KindCommandBuffer); got != 0 {
		t.Errorf("live command buffers after destroy = %d, want 0", got)
	}
}

func TestOptions(t *testing.T) {
	dev, q := gputest.New(t)
	black := gputypes.Color{A: 1}
	r := New(slot.New(), WithClearColor(black), WithFormat(gputypes.TextureFormatRGBA8Unorm))
	if err := r.OnSurfaceCreated(dev, q); err != nil {
		t.Fatalf("OnSurfaceCreated failed: %v", err)
	}
	defer r.OnSurfaceDestroyed()

	if _, err := r.OnDrawFrame(newTarget(t, dev)); err != nil {
		t.Fatalf("OnDrawFrame failed: %v", err)
	}
	if got := dev.Passes()[0].ClearValue; got != black {
		t.Errorf("ClearValue = %+v, want %+v", got, black)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Uninitialized: "uninitialized",
		Created:       "created",
		Destroyed:     "destroyed",
		State(7):      "State(7)",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
