package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/pion/mediadevices"
	mdframe "github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"

	// Camera driver registration.
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

// MediaDevices captures from the first camera pion/mediadevices finds
// matching the configured constraints.
type MediaDevices struct {
	device string
	pool   *bufpool.Pool
	track  *mediadevices.VideoTrack

	closeOnce sync.Once
	closeErr  error
}

func openMediaDevices(cfg config.Source, pool *bufpool.Pool) (Source, error) {
	return NewMediaDevices(cfg.Device, cfg.Width, cfg.Height, cfg.FPS, pool)
}

// NewMediaDevices requests an I420 track near width x height. An empty
// device picks the default camera.
func NewMediaDevices(device string, width, height, fps int, pool *bufpool.Pool) (*MediaDevices, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormat(mdframe.FormatI420)
			if width > 0 && height > 0 {
				c.Width = prop.Int(width)
				c.Height = prop.Int(height)
			}
			if fps > 0 {
				c.FrameRate = prop.Float(fps)
			}
			if device != "" {
				c.DeviceID = prop.String(device)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("source: get user media: %w", err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("source: get user media: no video track")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return nil, fmt.Errorf("source: unexpected track type %T", tracks[0])
	}
	if pool == nil {
		pool = bufpool.New(0)
	}
	return &MediaDevices{device: device, pool: pool, track: track}, nil
}

func (m *MediaDevices) Name() string {
	if m.device == "" {
		return "mediadevices:default"
	}
	return "mediadevices:" + m.device
}

// Start reads frames until ctx is done. Closing the source unblocks a
// pending read.
func (m *MediaDevices) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	reader := m.track.NewReader(false)
	stop := context.AfterFunc(ctx, func() { m.Close() })
	defer stop()

	for {
		img, release, err := reader.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		out, err := m.convert(img)
		release()
		if err != nil {
			return err
		}
		deliver(out)
	}
}

// convert copies a driver frame into pool memory. I420 frames arrive as
// 4:2:0 image.YCbCr holding the camera's own samples, which are copied
// as is.
func (m *MediaDevices) convert(img image.Image) (*frame.PlanarImage, error) {
	ycc, ok := img.(*image.YCbCr)
	if !ok || ycc.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return yuv.FromImage(img, m.pool)
	}
	b := ycc.Rect
	yo, co := ycc.YOffset(b.Min.X, b.Min.Y), ycc.COffset(b.Min.X, b.Min.Y)
	view, err := frame.New([frame.NumPlanes]frame.Plane{
		{Data: ycc.Y[yo:], Stride: ycc.YStride},
		{Data: ycc.Cb[co:], Stride: ycc.CStride},
		{Data: ycc.Cr[co:], Stride: ycc.CStride},
	}, b.Dx(), b.Dy(), 0)
	if err != nil {
		return nil, err
	}
	return view.Clone(m.pool)
}

func (m *MediaDevices) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.track.Close()
	})
	return m.closeErr
}
