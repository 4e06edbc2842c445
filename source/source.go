// Package source produces I420 frames for the preview: capture devices,
// pipelines, still images and a synthetic pattern. Every source delivers
// *frame.PlanarImage values whose release hook hands memory back to the
// driver or the buffer pool; Pump feeds them into a slot.Slot.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/logging"
	"github.com/gogpu/yuvview/orientation"
	"github.com/gogpu/yuvview/slot"
)

var (
	// ErrUnknownKind is returned by Open for kinds it does not know.
	ErrUnknownKind = errors.New("source: unknown kind")

	// ErrUnsupported is returned by Open for kinds left out of this build.
	ErrUnsupported = errors.New("source: not supported in this build")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("source: closed")

	// ErrFormat is returned when a device cannot produce I420.
	ErrFormat = errors.New("source: device does not produce I420")

	// ErrEndOfCapture is returned by Start when a file or stream source
	// runs out of frames.
	ErrEndOfCapture = errors.New("source: end of capture")
)

// Source is a producer of frames.
type Source interface {
	// Start delivers frames until ctx is done or the source fails. It
	// blocks; cancellation returns nil. Each delivered image must be
	// released exactly once by whoever ends up holding it.
	Start(ctx context.Context, deliver func(*frame.PlanarImage)) error

	// Close releases the device. Frames still held elsewhere stay valid
	// until released.
	Close() error

	// Name identifies the source in logs.
	Name() string
}

// Open builds the source selected by cfg.Kind. pool supplies frame memory
// for sources that copy; nil uses a private pool.
func Open(cfg config.Source, pool *bufpool.Pool) (Source, error) {
	if pool == nil {
		pool = bufpool.New(0)
	}
	var (
		src Source
		err error
	)
	switch cfg.Kind {
	case config.KindSynthetic, "":
		src = NewSynthetic(cfg.Width, cfg.Height, cfg.FPS, pool)
	case config.KindStill:
		src, err = NewStill(cfg.Path, cfg.FPS, pool)
	case config.KindV4L2:
		src, err = openV4L2(cfg)
	case config.KindMediaDevices:
		src, err = openMediaDevices(cfg, pool)
	case config.KindGStreamer:
		src, err = openGStreamer(cfg, pool)
	case config.KindOpenCV:
		src, err = openOpenCV(cfg, pool)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("source: opened", "name", src.Name(), "kind", cfg.Kind)
	return src, nil
}

// PumpOption configures Pump.
type PumpOption func(*pumpOptions)

type pumpOptions struct {
	orient *orientation.Result
	now    func() time.Time
	pushed func()
}

// WithOrientation stamps r onto every frame, overriding what the source
// reported.
func WithOrientation(r orientation.Result) PumpOption {
	return func(o *pumpOptions) {
		o.orient = &r
	}
}

// WithPushed calls fn after every frame pushed into the slot, from the
// producer goroutine. Hosts that render on demand use it to schedule a
// redraw.
func WithPushed(fn func()) PumpOption {
	return func(o *pumpOptions) {
		o.pushed = fn
	}
}

// Pump runs src until ctx is done, pushing each delivery into s after
// stamping a sequence number, a timestamp and a trace id. Deliveries that
// race with cancellation are released instead of pushed, so once Pump
// returns no further frame reaches s and the slot can be closed.
func Pump(ctx context.Context, src Source, s *slot.Slot, opts ...PumpOption) error {
	o := pumpOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.Logger().With("source", src.Name())

	var seq uint64
	deliver := func(img *frame.PlanarImage) {
		if img == nil {
			return
		}
		if ctx.Err() != nil {
			img.Release()
			return
		}
		seq++
		img.Seq = seq
		img.Timestamp = o.now()
		img.TraceID = uuid.NewString()
		if o.orient != nil {
			o.orient.Apply(img)
		}
		log.Debug("source: frame",
			"seq", img.Seq,
			"trace_id", img.TraceID,
			"size", fmt.Sprintf("%dx%d", img.Width, img.Height),
		)
		s.Push(img)
		if o.pushed != nil {
			o.pushed()
		}
	}

	log.Info("source: started")
	err := src.Start(ctx, deliver)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		log.Warn("source: stopped with error", "err", err, "frames", seq)
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}
	log.Info("source: stopped", "frames", seq)
	return nil
}

// ticker calls fn at fps until ctx is done.
func ticker(ctx context.Context, fps int, fn func() error) error {
	if fps <= 0 {
		fps = 30
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}
