// Package snapshot writes preview frames to image files. Frames are
// rendered on the CPU through yuv.Image, so a snapshot shows exactly what
// the GPU preview shows: rotated, mirrored and converted with the same
// coefficients.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

// ErrFormat is returned for unknown output formats.
var ErrFormat = errors.New("snapshot: unsupported format")

// Format is an output encoding.
type Format string

// Supported formats.
const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ParseFormat accepts a format name or file extension, with or without
// the dot, in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

// FormatFromPath picks the format from a file name's extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Options tune encoding.
type Options struct {
	// MaxSize bounds the longer side in pixels; larger images are scaled
	// down. Zero keeps the original size.
	MaxSize int
	// Quality is the JPEG quality, 1..100. Zero uses jpeg.DefaultQuality.
	Quality int
}

// Write encodes img to w.
func Write(w io.Writer, img image.Image, f Format, opts Options) error {
	if img == nil {
		return yuv.ErrNilImage
	}
	img = Fit(img, opts.MaxSize)

	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		q := opts.Quality
		if q <= 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: min(q, 100)})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case WebP:
		err = nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, f)
	}
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", f, err)
	}
	return nil
}

// WriteFrame renders a frame on the CPU and encodes it.
func WriteFrame(w io.Writer, img *frame.PlanarImage, f Format, opts Options) error {
	rgba, err := yuv.Image(img)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return Write(w, rgba, f, opts)
}

// WriteAnimation encodes frames as an animated lossless WebP, each shown
// for delay.
func WriteAnimation(w io.Writer, frames []*frame.PlanarImage, delay time.Duration, opts Options) error {
	if len(frames) == 0 {
		return fmt.Errorf("snapshot: no frames")
	}
	ani := &nativewebp.Animation{LoopCount: 0}
	ms := uint(max(delay.Milliseconds(), 1))
	for _, img := range frames {
		rgba, err := yuv.Image(img)
		if err != nil {
			return fmt.Errorf("snapshot: frame %d: %w", img.Seq, err)
		}
		ani.Images = append(ani.Images, Fit(rgba, opts.MaxSize))
		ani.Durations = append(ani.Durations, ms)
		ani.Disposals = append(ani.Disposals, 0)
	}
	if err := nativewebp.EncodeAll(w, ani, nil); err != nil {
		return fmt.Errorf("snapshot: encode animation: %w", err)
	}
	return nil
}

// Fit scales img down so that neither side exceeds maxSize, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func Fit(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	if maxSize <= 0 || (b.Dx() <= maxSize && b.Dy() <= maxSize) {
		return img
	}
	w, h := maxSize, maxSize
	if b.Dx() >= b.Dy() {
		h = max(1, b.Dy()*maxSize/b.Dx())
	} else {
		w = max(1, b.Dx()*maxSize/b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Name returns a fresh file path in dir: frame-<uuid><ext>.
func Name(dir string, f Format) string {
	return filepath.Join(dir, "frame-"+uuid.NewString()+f.Ext())
}

// Save writes img to a new file in dir and returns its path.
func Save(dir string, img *frame.PlanarImage, f Format, opts Options) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	path = Name(dir, f)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("snapshot: close %s: %w", path, cerr)
		}
	}()
	if err := WriteFrame(out, img, f, opts); err != nil {
		return "", err
	}
	return path, nil
}
