package snapshot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/yuv"
)

func testFrame(t *testing.T, w, h int) *frame.PlanarImage {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			src.Set(x, y, color.NRGBA{R: uint8(x * 255 / max(1, w-1)), G: 128, B: uint8(y * 255 / max(1, h-1)), A: 255})
		}
	}
	img, err := yuv.FromImage(src, nil)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"png", PNG},
		{".PNG", PNG},
		{"jpg", JPEG},
		{"jpeg", JPEG},
		{"bmp", BMP},
		{".tif", TIFF},
		{"tiff", TIFF},
		{"WebP", WebP},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("gif"); !errors.Is(err, ErrFormat) {
		t.Errorf("ParseFormat(gif) = %v, want ErrFormat", err)
	}
	if f, err := FormatFromPath("/tmp/a/b.jpg"); err != nil || f != JPEG {
		t.Errorf("FormatFromPath = (%q, %v), want jpeg", f, err)
	}
}

func TestWriteFramePNGRoundTrip(t *testing.T) {
	img := testFrame(t, 8, 6)
	img.Orientation = 90
	want, err := yuv.Image(img)
	if err != nil {
		t.Fatalf("yuv.Image: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, img, PNG, Options{}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if got.Bounds() != want.Bounds() {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), want.Bounds())
	}
	if got.Bounds().Dx() != 6 || got.Bounds().Dy() != 8 {
		t.Errorf("rotated snapshot is %v, want 6x8", got.Bounds())
	}
	for y := range 8 {
		for x := range 6 {
			g := color.RGBAModel.Convert(got.At(x, y)).(color.RGBA)
			if w := want.RGBAAt(x, y); g != w {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestWriteWebPLossless(t *testing.T) {
	img := testFrame(t, 6, 4)
	want, err := yuv.Image(img)
	if err != nil {
		t.Fatalf("yuv.Image: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, want, WebP, Options{}); err != nil {
		t.Fatalf("Write webp: %v", err)
	}
	got, err := nativewebp.Decode(&buf)
	if err != nil {
		t.Fatalf("nativewebp.Decode: %v", err)
	}
	for y := range 4 {
		for x := range 6 {
			g := color.RGBAModel.Convert(got.At(x, y)).(color.RGBA)
			if w := want.RGBAAt(x, y); g != w {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestWriteEveryFormat(t *testing.T) {
	rgba, err := yuv.Image(testFrame(t, 4, 4))
	if err != nil {
		t.Fatalf("yuv.Image: %v", err)
	}
	for _, f := range []Format{PNG, JPEG, BMP, TIFF, WebP} {
		var buf bytes.Buffer
		if err := Write(&buf, rgba, f, Options{Quality: 90}); err != nil {
			t.Errorf("Write %s: %v", f, err)
			continue
		}
		if buf.Len() == 0 {
			t.Errorf("Write %s produced no bytes", f)
		}
	}
	if err := Write(&bytes.Buffer{}, rgba, Format("gif"), Options{}); !errors.Is(err, ErrFormat) {
		t.Errorf("Write gif = %v, want ErrFormat", err)
	}
	if err := Write(&bytes.Buffer{}, nil, PNG, Options{}); !errors.Is(err, yuv.ErrNilImage) {
		t.Errorf("Write nil = %v, want ErrNilImage", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{400, 200, 100, 100, 50},
		{200, 400, 100, 50, 100},
		{80, 60, 100, 80, 60},
		{80, 60, 0, 80, 60},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
		got := Fit(img, tt.max).Bounds()
		if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
			t.Errorf("Fit(%dx%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	path, err := Save(dir, testFrame(t, 8, 8), BMP, Options{MaxSize: 4})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !regexp.MustCompile(`^frame-[0-9a-f-]{36}\.bmp$`).MatchString(filepath.Base(path)) {
		t.Errorf("file name %q does not match frame-<uuid>.bmp", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	img, err := bmp.Decode(f)
	if err != nil {
		t.Fatalf("bmp.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("saved %v, want 4x4 after MaxSize", b)
	}
	if Name(dir, PNG) == Name(dir, PNG) {
		t.Error("Name repeats")
	}
}

func TestWriteAnimation(t *testing.T) {
	frames := []*frame.PlanarImage{testFrame(t, 4, 4), testFrame(t, 4, 4)}
	var buf bytes.Buffer
	if err := WriteAnimation(&buf, frames, 33*time.Millisecond, Options{}); err != nil {
		t.Fatalf("WriteAnimation: %v", err)
	}
	b := buf.Bytes()
	if len(b) < 12 || string(b[:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		t.Errorf("animation does not start with a RIFF WEBP header")
	}
	if err := WriteAnimation(&buf, nil, time.Second, Options{}); err == nil {
		t.Error("WriteAnimation accepted no frames")
	}
}
