package frame

// Allocator supplies plane memory. bufpool.Pool implements it.
type Allocator interface {
	// Allocate returns a buffer of at least minCapacity bytes with
	// len == minCapacity.
	Allocate(minCapacity int) []byte
	// Retain hands a buffer back for reuse and reports whether it was kept.
	Retain(buf []byte) bool
}

// I420Size returns the byte size of a tightly packed I420 image.
func I420Size(width, height int) int {
	cw, ch := ChromaSize(width, height)
	return width*height + 2*cw*ch
}

// NewI420 allocates a tightly packed I420 image (stride == plane width)
// backed by one buffer from alloc. Release returns the buffer to alloc.
// A nil alloc uses plain heap memory.
func NewI420(width, height, orientation int, alloc Allocator) (*PlanarImage, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrSize
	}
	if _, err := NormalizeOrientation(orientation); err != nil {
		return nil, err
	}
	var buf []byte
	if alloc != nil {
		buf = alloc.Allocate(I420Size(width, height))
	} else {
		buf = make([]byte, I420Size(width, height))
	}

	cw, ch := ChromaSize(width, height)
	ySize, cSize := width*height, cw*ch
	planes := [NumPlanes]Plane{
		{Data: buf[:ySize:ySize], Stride: width},
		{Data: buf[ySize : ySize+cSize : ySize+cSize], Stride: cw},
		{Data: buf[ySize+cSize : ySize+2*cSize], Stride: cw},
	}

	var opts []Option
	if alloc != nil {
		opts = append(opts, WithRelease(func() { alloc.Retain(buf) }))
	}
	img, err := New(planes, width, height, orientation, opts...)
	if err != nil {
		if alloc != nil {
			alloc.Retain(buf)
		}
		return nil, err
	}
	return img, nil
}

// Clone copies img into a new tightly packed image from alloc. Stamps,
// orientation and mirror are carried over; the release hook is not.
func (img *PlanarImage) Clone(alloc Allocator) (*PlanarImage, error) {
	dst, err := NewI420(img.Width, img.Height, img.Orientation, alloc)
	if err != nil {
		return nil, err
	}
	for i := range img.Planes {
		CopyPlane(dst.Planes[i], img.Planes[i], dst.planeWidth(i), dst.planeHeight(i))
	}
	dst.Mirror = img.Mirror
	dst.Seq = img.Seq
	dst.Timestamp = img.Timestamp
	dst.TraceID = img.TraceID
	return dst, nil
}

// CopyPlane copies rows of width bytes from src into dst honouring both
// strides.
func CopyPlane(dst, src Plane, width, rows int) {
	for y := range rows {
		copy(dst.Data[y*dst.Stride:y*dst.Stride+width], src.Data[y*src.Stride:y*src.Stride+width])
	}
}

func (img *PlanarImage) planeWidth(i int) int {
	w, _ := img.PlaneSize(i)
	return w
}

func (img *PlanarImage) planeHeight(i int) int {
	_, h := img.PlaneSize(i)
	return h
}
