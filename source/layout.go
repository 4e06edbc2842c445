package source

import (
	"fmt"

	"github.com/gogpu/yuvview/frame"
)

// packedLayout describes an I420 buffer with planes stored back to back.
type packedLayout struct {
	width, height int
	strides       [frame.NumPlanes]int
	offsets       [frame.NumPlanes]int
	size          int
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// tightLayout is the V4L2 YU12 layout: no row padding.
func tightLayout(width, height int) packedLayout {
	cw, ch := frame.ChromaSize(width, height)
	l := packedLayout{width: width, height: height}
	l.strides = [frame.NumPlanes]int{width, cw, cw}
	l.offsets[frame.PlaneU] = width * height
	l.offsets[frame.PlaneV] = l.offsets[frame.PlaneU] + cw*ch
	l.size = l.offsets[frame.PlaneV] + cw*ch
	return l
}

// gstLayout is GStreamer's default I420 layout: rows padded to four bytes
// and odd dimensions rounded up for the chroma planes.
func gstLayout(width, height int) packedLayout {
	l := packedLayout{width: width, height: height}
	ys := roundUp(width, 4)
	cs := roundUp(roundUp(width, 2)/2, 4)
	ch := roundUp(height, 2) / 2
	l.strides = [frame.NumPlanes]int{ys, cs, cs}
	l.offsets[frame.PlaneU] = ys * roundUp(height, 2)
	l.offsets[frame.PlaneV] = l.offsets[frame.PlaneU] + cs*ch
	l.size = l.offsets[frame.PlaneV] + cs*ch
	return l
}

// planes slices buf into the three planes of l without copying.
func (l packedLayout) planes(buf []byte) ([frame.NumPlanes]frame.Plane, error) {
	var p [frame.NumPlanes]frame.Plane
	if len(buf) < l.size {
		return p, fmt.Errorf("%w: buffer has %d bytes, layout needs %d", frame.ErrPlane, len(buf), l.size)
	}
	for i := range p {
		end := len(buf)
		if i+1 < frame.NumPlanes {
			end = l.offsets[i+1]
		}
		p[i] = frame.Plane{Data: buf[l.offsets[i]:end:end], Stride: l.strides[i]}
	}
	return p, nil
}

// copyInto copies buf, laid out as l, into a tightly packed frame from
// alloc.
func (l packedLayout) copyInto(buf []byte, alloc frame.Allocator) (*frame.PlanarImage, error) {
	src, err := l.planes(buf)
	if err != nil {
		return nil, err
	}
	dst, err := frame.NewI420(l.width, l.height, 0, alloc)
	if err != nil {
		return nil, err
	}
	cw, ch := frame.ChromaSize(l.width, l.height)
	frame.CopyPlane(dst.Planes[frame.PlaneY], src[frame.PlaneY], l.width, l.height)
	frame.CopyPlane(dst.Planes[frame.PlaneU], src[frame.PlaneU], cw, ch)
	frame.CopyPlane(dst.Planes[frame.PlaneV], src[frame.PlaneV], cw, ch)
	return dst, nil
}
