// Package yuv is the CPU reference for the I420 colour conversion done by
// the renderer's fragment stage, plus the inverse transform used to turn
// decoded images into I420 frames.
//
// Samples are studio range: luma 16..235 and chroma 16..240 centred on
// 128, as delivered by cameras and capture pipelines.
package yuv

import (
	"errors"
	"image"
	"image/color"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/geometry"
)

// Conversion constants. Y, U and V are plane samples scaled to [0, 1]; the
// offsets fold in the 16 and 128 level shifts.
const (
	LumaScale = 1.164383562

	RFromV  = 1.5960267860
	ROffset = 0.8742022179

	GFromU  = 0.3917622901
	GFromV  = 0.8129676472
	GOffset = 0.5316678235

	BFromU  = 2.0172321430
	BOffset = 1.0856307890
)

// ErrNilImage is returned for a nil source or frame.
var ErrNilImage = errors.New("yuv: nil image")

// ToRGB converts one sample to RGB. The result is not clamped.
func ToRGB(y, u, v float64) (r, g, b float64) {
	y *= LumaScale
	r = y + RFromV*v - ROffset
	g = y - GFromU*u - GFromV*v + GOffset
	b = y + BFromU*u - BOffset
	return r, g, b
}

// FromRGB is the inverse of ToRGB for r, g, b in [0, 1]. It returns the
// 8-bit studio range samples.
func FromRGB(r, g, b float64) (y, u, v uint8) {
	fy := 16 + 65.481*r + 128.553*g + 24.966*b
	fu := 128 - 37.797*r - 74.203*g + 112.0*b
	fv := 128 + 112.0*r - 93.786*g - 18.214*b
	return clamp8(fy), clamp8(fu), clamp8(fv)
}

// Image renders img into an RGBA image of its logical size, rotated and
// mirrored the way the renderer displays it. Sampling is nearest
// neighbour.
func Image(img *frame.PlanarImage) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}

	// Texture coordinates at the screen corners, indexed [right][bottom].
	var corner [2][2][2]float64
	for _, v := range geometry.Quad(img.Orientation, img.Mirror) {
		s, t := 0, 0
		if v.X > 0 {
			s = 1
		}
		if v.Y < 0 {
			t = 1
		}
		corner[s][t] = [2]float64{float64(v.U), float64(v.V)}
	}
	origin := corner[0][0]
	du := [2]float64{corner[1][0][0] - origin[0], corner[1][0][1] - origin[1]}
	dv := [2]float64{corner[0][1][0] - origin[0], corner[0][1][1] - origin[1]}

	lw, lh := img.LogicalSize()
	cw, ch := frame.ChromaSize(img.Width, img.Height)
	out := image.NewRGBA(image.Rect(0, 0, lw, lh))
	yp, up, vp := img.Planes[frame.PlaneY], img.Planes[frame.PlaneU], img.Planes[frame.PlaneV]

	for sy := range lh {
		t := (float64(sy) + 0.5) / float64(lh)
		row := out.Pix[sy*out.Stride:]
		for sx := range lw {
			s := (float64(sx) + 0.5) / float64(lw)
			tu := origin[0] + s*du[0] + t*dv[0]
			tv := origin[1] + s*du[1] + t*dv[1]
			px := index(tu, img.Width)
			py := index(tv, img.Height)

			luma := float64(yp.Data[py*yp.Stride+px]) / 255
			cb, cr := 0.5, 0.5
			if cw > 0 && ch > 0 {
				cx, cy := min(px/2, cw-1), min(py/2, ch-1)
				cb = float64(up.Data[cy*up.Stride+cx]) / 255
				cr = float64(vp.Data[cy*vp.Stride+cx]) / 255
			}
			r, g, b := ToRGB(luma, cb, cr)
			o := sx * 4
			row[o] = unit8(r)
			row[o+1] = unit8(g)
			row[o+2] = unit8(b)
			row[o+3] = 0xff
		}
	}
	return out, nil
}

// FromImage converts src into a tightly packed I420 frame with orientation
// 0 whose buffer comes from alloc (nil allocates from the heap).
//
// A 4:2:0 *image.YCbCr is copied plane by plane, rescaling Go's full-range
// samples to studio range. Anything else goes through RGB with 2x2 chroma
// averaging.
func FromImage(src image.Image, alloc frame.Allocator) (*frame.PlanarImage, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	b := src.Bounds()
	dst, err := frame.NewI420(b.Dx(), b.Dy(), 0, alloc)
	if err != nil {
		return nil, err
	}
	if ycc, ok := src.(*image.YCbCr); ok && ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		copyYCbCr(dst, ycc)
		return dst, nil
	}
	convertRGB(dst, src)
	return dst, nil
}

func copyYCbCr(dst *frame.PlanarImage, src *image.YCbCr) {
	b := src.Rect
	yp := dst.Planes[frame.PlaneY]
	for y := range dst.Height {
		srow := src.Y[src.YOffset(b.Min.X, b.Min.Y+y):]
		drow := yp.Data[y*yp.Stride : y*yp.Stride+dst.Width]
		for x := range drow {
			drow[x] = lumaLUT[srow[x]]
		}
	}
	cw, ch := frame.ChromaSize(dst.Width, dst.Height)
	up, vp := dst.Planes[frame.PlaneU], dst.Planes[frame.PlaneV]
	for y := range ch {
		for x := range cw {
			off := src.COffset(b.Min.X+2*x, b.Min.Y+2*y)
			up.Data[y*up.Stride+x] = chromaLUT[src.Cb[off]]
			vp.Data[y*vp.Stride+x] = chromaLUT[src.Cr[off]]
		}
	}
}

func convertRGB(dst *frame.PlanarImage, src image.Image) {
	b := src.Bounds()
	w, h := dst.Width, dst.Height
	rgb := make([][3]float64, w*h)
	yp := dst.Planes[frame.PlaneY]
	for y := range h {
		for x := range w {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			r, g, bl := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
			rgb[y*w+x] = [3]float64{r, g, bl}
			yp.Data[y*yp.Stride+x], _, _ = FromRGB(r, g, bl)
		}
	}

	cw, ch := frame.ChromaSize(w, h)
	up, vp := dst.Planes[frame.PlaneU], dst.Planes[frame.PlaneV]
	for y := range ch {
		for x := range cw {
			var sum [3]float64
			for _, p := range [4]int{(2*y)*w + 2*x, (2*y)*w + 2*x + 1, (2*y+1)*w + 2*x, (2*y+1)*w + 2*x + 1} {
				sum[0] += rgb[p][0]
				sum[1] += rgb[p][1]
				sum[2] += rgb[p][2]
			}
			_, u, v := FromRGB(sum[0]/4, sum[1]/4, sum[2]/4)
			up.Data[y*up.Stride+x] = u
			vp.Data[y*vp.Stride+x] = v
		}
	}
}

var lumaLUT, chromaLUT [256]uint8

func init() {
	for i := range 256 {
		lumaLUT[i] = clamp8(16 + float64(i)*219/255)
		chromaLUT[i] = clamp8(128 + (float64(i)-128)*224/255)
	}
}

// index maps a texture coordinate to a pixel index, clamping to the edge.
func index(c float64, n int) int {
	i := int(c * float64(n))
	return max(0, min(i, n-1))
}

func unit8(c float64) uint8 {
	return clamp8(c * 255)
}

func clamp8(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f + 0.5)
}
