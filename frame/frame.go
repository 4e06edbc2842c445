// Package frame defines PlanarImage, the I420 frame that travels from a
// capture source through the frame slot to the renderer.
//
// A PlanarImage holds three planes (Y, U, V). The chroma planes are exactly
// half the luma width and height, rounded down. Whoever currently holds an
// image owns its buffers; the last holder calls Release so the producer can
// reuse the memory.
package frame

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Plane indices in PlanarImage.Planes.
const (
	PlaneY = iota
	PlaneU
	PlaneV

	// NumPlanes is the number of planes in an I420 image.
	NumPlanes = 3
)

var (
	// ErrOrientation is returned for rotations that are not a multiple of
	// 90 degrees.
	ErrOrientation = errors.New("frame: orientation is not a multiple of 90 degrees")

	// ErrSize is returned for non-positive image dimensions.
	ErrSize = errors.New("frame: invalid image size")

	// ErrPlane is returned when a plane is too small for the image size or
	// its stride is shorter than a row.
	ErrPlane = errors.New("frame: plane does not match image size")
)

// Plane is one image plane: Stride bytes per row.
type Plane struct {
	Data   []byte
	Stride int
}

// PlanarImage is one captured I420 frame.
//
// A PlanarImage must not be copied after first use.
type PlanarImage struct {
	Planes [NumPlanes]Plane

	// Width and Height are the luma plane dimensions.
	Width  int
	Height int

	// Orientation is the display rotation in degrees: 0, 90, 180 or 270.
	// It selects pre-rotated geometry; the pixel data is never transposed.
	Orientation int

	// Mirror requests a horizontal flip on screen (front cameras).
	Mirror bool

	// Seq, Timestamp and TraceID are stamped by the producer pump.
	Seq       uint64
	Timestamp time.Time
	TraceID   string

	release  func()
	released atomic.Bool
}

// Option configures a PlanarImage built with New.
type Option func(*PlanarImage)

// WithRelease installs the hook run by Release. Sources use it to return
// driver buffers or pool memory.
func WithRelease(fn func()) Option {
	return func(img *PlanarImage) {
		img.release = fn
	}
}

// WithMirror marks the image as requiring a horizontal flip.
func WithMirror(mirror bool) Option {
	return func(img *PlanarImage) {
		img.Mirror = mirror
	}
}

// New builds a PlanarImage from caller-owned planes. The orientation is
// normalized into [0, 360); New fails with ErrOrientation when it is not a
// multiple of 90 and with ErrPlane when a plane cannot hold its rows.
func New(planes [NumPlanes]Plane, width, height, orientation int, opts ...Option) (*PlanarImage, error) {
	deg, err := NormalizeOrientation(orientation)
	if err != nil {
		return nil, err
	}
	img := &PlanarImage{
		Planes:      planes,
		Width:       width,
		Height:      height,
		Orientation: deg,
	}
	for _, opt := range opts {
		opt(img)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// NormalizeOrientation maps any multiple of 90 degrees into {0, 90, 180,
// 270}. 450 becomes 90 and -90 becomes 270.
func NormalizeOrientation(degrees int) (int, error) {
	if degrees%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrOrientation, degrees)
	}
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d, nil
}

// ChromaSize returns the U and V plane dimensions for a luma plane of
// width x height: exactly half in each direction.
func ChromaSize(width, height int) (int, int) {
	return width / 2, height / 2
}

// PlaneSize returns the pixel dimensions of plane i.
func (img *PlanarImage) PlaneSize(i int) (width, height int) {
	if i == PlaneY {
		return img.Width, img.Height
	}
	return ChromaSize(img.Width, img.Height)
}

// LogicalSize returns the displayed dimensions: width and height swap for
// 90 and 270 degree orientations.
func (img *PlanarImage) LogicalSize() (width, height int) {
	if img.Orientation%180 != 0 {
		return img.Height, img.Width
	}
	return img.Width, img.Height
}

// Validate checks dimensions, orientation and that every plane can hold
// its rows at its stride.
func (img *PlanarImage) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrSize, img.Width, img.Height)
	}
	if img.Orientation%90 != 0 || img.Orientation < 0 || img.Orientation >= 360 {
		return fmt.Errorf("%w: %d", ErrOrientation, img.Orientation)
	}
	for i := range img.Planes {
		w, h := img.PlaneSize(i)
		p := img.Planes[i]
		if w == 0 || h == 0 {
			continue
		}
		if p.Stride < w {
			return fmt.Errorf("%w: plane %d stride %d < width %d", ErrPlane, i, p.Stride, w)
		}
		if need := p.Stride*(h-1) + w; len(p.Data) < need {
			return fmt.Errorf("%w: plane %d has %d bytes, need %d", ErrPlane, i, len(p.Data), need)
		}
	}
	return nil
}

// Release hands the image back to whoever supplied its buffers. Only the
// first call runs the hook; Release on a nil image is a no-op.
func (img *PlanarImage) Release() {
	if img == nil {
		return
	}
	if img.released.CompareAndSwap(false, true) && img.release != nil {
		img.release()
	}
}

// Released reports whether Release has been called.
func (img *PlanarImage) Released() bool {
	return img.released.Load()
}
