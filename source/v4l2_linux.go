//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/logging"
)

// fourccYU12 is V4L2_PIX_FMT_YUV420, planar I420.
const fourccYU12 webcam.PixelFormat = 0x32315559

const (
	v4l2Buffers     = 4
	v4l2WaitTimeout = 1 // seconds
	v4l2DrainWait   = 2 * time.Second
)

// V4L2 captures from a Video4Linux2 device. Frames point straight into the
// driver's mmap buffers; releasing a frame queues its buffer back.
type V4L2 struct {
	path   string
	cam    *webcam.Webcam
	layout packedLayout

	mu          sync.Mutex
	closed      bool
	streaming   bool
	outstanding sync.WaitGroup
}

func openV4L2(cfg config.Source) (Source, error) {
	return NewV4L2(cfg.Device, cfg.Width, cfg.Height, cfg.FPS)
}

// NewV4L2 opens path and negotiates YU12 at width x height. The driver may
// pick a nearby size; Size reports what was granted.
func NewV4L2(path string, width, height, fps int) (*V4L2, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	if _, ok := cam.GetSupportedFormats()[fourccYU12]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	got, w, h, err := cam.SetImageFormat(fourccYU12, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("source: set format on %s: %w", path, err)
	}
	if got != fourccYU12 {
		cam.Close()
		return nil, fmt.Errorf("%w: driver chose %#x", ErrFormat, uint32(got))
	}
	if err := cam.SetBufferCount(v4l2Buffers); err != nil {
		cam.Close()
		return nil, fmt.Errorf("source: buffer count: %w", err)
	}
	if fps > 0 {
		if err := cam.SetFramerate(float32(fps)); err != nil {
			logging.Logger().Warn("source: frame rate not set", "device", path, "fps", fps, "err", err)
		}
	}
	return &V4L2{
		path:   path,
		cam:    cam,
		layout: tightLayout(int(w), int(h)),
	}, nil
}

func (v *V4L2) Name() string {
	return "v4l2:" + v.path
}

// Size returns the negotiated frame size.
func (v *V4L2) Size() (width, height int) {
	return v.layout.width, v.layout.height
}

// Start streams until ctx is done.
func (v *V4L2) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if err := v.cam.StartStreaming(); err != nil {
		v.mu.Unlock()
		return fmt.Errorf("start streaming: %w", err)
	}
	v.streaming = true
	v.mu.Unlock()

	for ctx.Err() == nil {
		err := v.cam.WaitForFrame(v4l2WaitTimeout)
		var timeout *webcam.Timeout
		switch {
		case errors.As(err, &timeout):
			continue
		case err != nil:
			return fmt.Errorf("wait for frame: %w", err)
		}

		buf, index, err := v.cam.GetFrame()
		if err != nil {
			return fmt.Errorf("get frame: %w", err)
		}
		if len(buf) == 0 {
			continue
		}
		img, err := v.wrap(buf, index)
		if err != nil {
			logging.Logger().Warn("source: dropping frame", "device", v.path, "err", err)
			_ = v.cam.ReleaseFrame(index)
			continue
		}
		deliver(img)
	}
	return ctx.Err()
}

// wrap exposes a driver buffer as a frame without copying.
func (v *V4L2) wrap(buf []byte, index uint32) (*frame.PlanarImage, error) {
	planes, err := v.layout.planes(buf)
	if err != nil {
		return nil, err
	}
	v.outstanding.Add(1)
	release := func() {
		defer v.outstanding.Done()
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.streaming {
			_ = v.cam.ReleaseFrame(index)
		}
	}
	img, err := frame.New(planes, v.layout.width, v.layout.height, 0, frame.WithRelease(release))
	if err != nil {
		v.outstanding.Done()
		return nil, err
	}
	return img, nil
}

// Close stops streaming and closes the device. Cancel Start first. The mmap buffers are only
// unmapped once every delivered frame is released; if some are still
// held after a short wait the device is left open and an error returned.
func (v *V4L2) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	done := make(chan struct{})
	go func() {
		v.outstanding.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(v4l2DrainWait):
		return fmt.Errorf("source: %s: frames still held after %s", v.path, v4l2DrainWait)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.streaming = false
	return v.cam.Close()
}
