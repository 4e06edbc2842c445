package source

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

// barColors are the classic 75% colour bars.
var barColors = [][3]float64{
	{0.75, 0.75, 0.75}, // grey
	{0.75, 0.75, 0},    // yellow
	{0, 0.75, 0.75},    // cyan
	{0, 0.75, 0},       // green
	{0.75, 0, 0.75},    // magenta
	{0.75, 0, 0},       // red
	{0, 0, 0.75},       // blue
	{0, 0, 0},          // black
}

// Synthetic scrolls colour bars one pixel per frame. Frames come from a
// buffer pool and go back to it on release.
type Synthetic struct {
	width, height, fps int
	pool               *bufpool.Pool
	bars               [][3]uint8 // Y, U, V per bar
	frames             atomic.Uint64
	closed             atomic.Bool
}

// NewSynthetic returns a width x height pattern source. A nil pool gets a
// private one.
func NewSynthetic(width, height, fps int, pool *bufpool.Pool) *Synthetic {
	if pool == nil {
		pool = bufpool.New(0)
	}
	s := &Synthetic{width: width, height: height, fps: fps, pool: pool}
	for _, c := range barColors {
		y, u, v := yuv.FromRGB(c[0], c[1], c[2])
		s.bars = append(s.bars, [3]uint8{y, u, v})
	}
	return s
}

func (s *Synthetic) Name() string {
	return fmt.Sprintf("synthetic:%dx%d@%d", s.width, s.height, s.fps)
}

// Start delivers a frame every 1/fps seconds.
func (s *Synthetic) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ticker(ctx, s.fps, func() error {
		img, err := s.Frame(s.frames.Add(1) - 1)
		if err != nil {
			return err
		}
		deliver(img)
		return nil
	})
}

// Frame renders pattern frame n. The bars are shifted left by n pixels.
func (s *Synthetic) Frame(n uint64) (*frame.PlanarImage, error) {
	img, err := frame.NewI420(s.width, s.height, 0, s.pool)
	if err != nil {
		return nil, err
	}
	barW := max(1, (s.width+len(s.bars)-1)/len(s.bars))
	shift := int(n % uint64(s.width))
	bar := func(x int) [3]uint8 {
		return s.bars[((x+shift)%s.width)/barW%len(s.bars)]
	}

	yp := img.Planes[frame.PlaneY]
	for x := range s.width {
		yp.Data[x] = bar(x)[0]
	}
	for y := 1; y < s.height; y++ {
		copy(yp.Data[y*yp.Stride:y*yp.Stride+s.width], yp.Data[:s.width])
	}

	cw, ch := frame.ChromaSize(s.width, s.height)
	up, vp := img.Planes[frame.PlaneU], img.Planes[frame.PlaneV]
	for x := range cw {
		c := bar(2 * x)
		up.Data[x] = c[1]
		vp.Data[x] = c[2]
	}
	for y := 1; y < ch; y++ {
		copy(up.Data[y*up.Stride:y*up.Stride+cw], up.Data[:cw])
		copy(vp.Data[y*vp.Stride:y*vp.Stride+cw], vp.Data[:cw])
	}
	return img, nil
}

func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}
