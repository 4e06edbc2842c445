//go:build gocv

package source

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
)

// OpenCV captures through a gocv VideoCapture (camera index, file or URL)
// and converts BGR frames to I420 with OpenCV.
type OpenCV struct {
	device        string
	width, height int
	pool          *bufpool.Pool

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	closed bool
}

func openOpenCV(cfg config.Source, pool *bufpool.Pool) (Source, error) {
	return NewOpenCV(cfg.Device, cfg.Width, cfg.Height, cfg.FPS, pool)
}

// NewOpenCV opens device. Frames are resized to width x height rounded
// down to even numbers, as OpenCV's I420 conversion requires.
func NewOpenCV(device string, width, height, fps int, pool *bufpool.Pool) (*OpenCV, error) {
	width, height = width&^1, height&^1
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("source: opencv: %w", frame.ErrSize)
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	if fps > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
	if pool == nil {
		pool = bufpool.New(0)
	}
	return &OpenCV{device: device, width: width, height: height, pool: pool, cap: vc}, nil
}

func (o *OpenCV) Name() string {
	return "opencv:" + o.device
}

// Start reads frames until ctx is done or the capture ends.
func (o *OpenCV) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	bgr := gocv.NewMat()
	defer bgr.Close()
	sized := gocv.NewMat()
	defer sized.Close()
	i420 := gocv.NewMat()
	defer i420.Close()

	layout := tightLayout(o.width, o.height)
	for ctx.Err() == nil {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return ErrClosed
		}
		ok := o.cap.Read(&bgr)
		o.mu.Unlock()
		if !ok {
			return ErrEndOfCapture
		}
		if bgr.Empty() {
			continue
		}

		src := bgr
		if bgr.Cols() != o.width || bgr.Rows() != o.height {
			gocv.Resize(bgr, &sized, image.Pt(o.width, o.height), 0, 0, gocv.InterpolationLinear)
			src = sized
		}
		gocv.CvtColor(src, &i420, gocv.ColorBGRToYUVI420)

		img, err := layout.copyInto(i420.ToBytes(), o.pool)
		if err != nil {
			return err
		}
		deliver(img)
	}
	return ctx.Err()
}

func (o *OpenCV) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.cap.Close()
}
