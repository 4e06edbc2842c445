package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

func TestSyntheticFrame(t *testing.T) {
	pool := bufpool.New(2)
	s := NewSynthetic(16, 6, 30, pool)

	grey, _, _ := yuv.FromRGB(0.75, 0.75, 0.75)
	yellow, yellowU, yellowV := yuv.FromRGB(0.75, 0.75, 0)

	img, err := s.Frame(0)
	if err != nil {
		t.Fatalf("Frame(0): %v", err)
	}
	if err := img.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	yp := img.Planes[frame.PlaneY]
	// 16 pixels over 8 bars: two pixels per bar.
	if yp.Data[0] != grey || yp.Data[2] != yellow {
		t.Errorf("row 0 = %v, want grey then yellow", yp.Data[:4])
	}
	if last := yp.Data[5*yp.Stride+2]; last != yellow {
		t.Errorf("last row x=2 = %d, want %d", last, yellow)
	}
	up, vp := img.Planes[frame.PlaneU], img.Planes[frame.PlaneV]
	if up.Data[1] != yellowU || vp.Data[2*vp.Stride+1] != yellowV {
		t.Errorf("chroma at x=1 = (%d, %d), want (%d, %d)", up.Data[1], vp.Data[2*vp.Stride+1], yellowU, yellowV)
	}
	img.Release()
	if pool.Len() != 1 {
		t.Errorf("pool.Len() = %d after release, want 1", pool.Len())
	}

	shifted, err := s.Frame(2)
	if err != nil {
		t.Fatalf("Frame(2): %v", err)
	}
	defer shifted.Release()
	if got := shifted.Planes[frame.PlaneY].Data[0]; got != yellow {
		t.Errorf("Frame(2) x=0 = %d, want yellow %d", got, yellow)
	}
	if st := pool.Stats(); st.Reused != 1 {
		t.Errorf("pool reused %d buffers, want 1", st.Reused)
	}
}

func TestSyntheticStart(t *testing.T) {
	s := NewSynthetic(8, 8, 1000, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []uint64
	err := s.Start(ctx, func(img *frame.PlanarImage) {
		got = append(got, uint64(len(got)))
		img.Release()
		if len(got) == 2 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Start = %v, want nil after cancel", err)
	}
	if len(got) < 2 {
		t.Errorf("delivered %d frames, want at least 2", len(got))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Start(context.Background(), func(*frame.PlanarImage) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestSyntheticInvalidSize(t *testing.T) {
	s := NewSynthetic(0, 4, 30, nil)
	if _, err := s.Frame(0); !errors.Is(err, frame.ErrSize) {
		t.Errorf("Frame with zero width = %v, want ErrSize", err)
	}
}
