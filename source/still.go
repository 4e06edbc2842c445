package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	// Decoders for still images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

// Still redelivers one decoded image as a live feed. The image is
// converted to I420 once; each delivery is a pool-backed copy.
type Still struct {
	path   string
	fps    int
	pool   *bufpool.Pool
	src    *frame.PlanarImage
	closed atomic.Bool
}

// NewStill decodes path. PNG, JPEG, GIF, BMP, TIFF, WebP and TGA are
// understood.
func NewStill(path string, fps int, pool *bufpool.Pool) (*Still, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open still: %w", err)
	}
	defer f.Close()

	img, err := DecodeStill(f)
	if err != nil {
		return nil, fmt.Errorf("source: %s: %w", path, err)
	}
	if pool == nil {
		pool = bufpool.New(0)
	}
	return &Still{path: path, fps: fps, pool: pool, src: img}, nil
}

// DecodeStill decodes any registered image format into an I420 frame
// backed by heap memory.
func DecodeStill(r io.Reader) (*frame.PlanarImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out, err := yuv.FromImage(img, nil)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", format, err)
	}
	return out, nil
}

func (s *Still) Name() string {
	return "still:" + filepath.Base(s.path)
}

// Size returns the frame size.
func (s *Still) Size() (width, height int) {
	return s.src.Width, s.src.Height
}

// Start delivers a copy of the image every 1/fps seconds.
func (s *Still) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ticker(ctx, s.fps, func() error {
		img, err := s.src.Clone(s.pool)
		if err != nil {
			return err
		}
		deliver(img)
		return nil
	})
}

func (s *Still) Close() error {
	s.closed.Store(true)
	return nil
}
