// Package orientation derives the display rotation of captured frames from
// the camera sensor mounting, the device pose and the display rotation.
package orientation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/yuvview/frame"
)

// ErrRotation is returned for display rotations outside 0..3 quarter turns.
var ErrRotation = errors.New("orientation: display rotation must be 0..3 quarter turns")

// ErrFacing is returned by ParseFacing for unknown names.
var ErrFacing = errors.New("orientation: unknown lens facing")

// Facing is the direction a camera lens points.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingBack:
		return "back"
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	default:
		return fmt.Sprintf("Facing(%d)", int(f))
	}
}

// ParseFacing parses "back", "front" or "external" (case insensitive).
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back", "rear", "":
		return FacingBack, nil
	case "front", "user":
		return FacingFront, nil
	case "external":
		return FacingExternal, nil
	}
	return FacingBack, fmt.Errorf("%w: %q", ErrFacing, s)
}

// Input describes the camera and device state for one frame.
type Input struct {
	// SensorOrientation is the fixed clockwise mounting angle of the
	// sensor, a multiple of 90.
	SensorOrientation int
	// DeviceAngle is the physical device pose in degrees (0, 90, 180, 270).
	DeviceAngle int
	// DisplayRotation is the display surface rotation in quarter turns.
	DisplayRotation int
	Facing          Facing
}

// Result is the orientation metadata attached to a frame.
type Result struct {
	// Degrees is the clockwise rotation to display the image upright.
	Degrees int
	// DeviceAngle is the device pose as seen from the lens: swapped
	// 0<->180 for back cameras.
	DeviceAngle     int
	DisplayRotation int
	// Mirror is set for front cameras.
	Mirror bool
}

// Compute derives the frame orientation. For back cameras the
// display-derived angle is reflected (360 - angle) and a 0 or 180 degree
// device angle is swapped before the sensor angle is added.
func Compute(in Input) (Result, error) {
	if in.SensorOrientation%90 != 0 {
		return Result{}, fmt.Errorf("%w: sensor %d", frame.ErrOrientation, in.SensorOrientation)
	}
	if in.DisplayRotation < 0 || in.DisplayRotation > 3 {
		return Result{}, fmt.Errorf("%w: %d", ErrRotation, in.DisplayRotation)
	}

	rotation := 90 * in.DisplayRotation
	device := in.DeviceAngle
	if in.Facing == FacingBack {
		rotation = 360 - rotation
		switch device {
		case 0:
			device = 180
		case 180:
			device = 0
		}
	}

	deg, err := frame.NormalizeOrientation(in.SensorOrientation + rotation)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Degrees:         deg,
		DeviceAngle:     device,
		DisplayRotation: in.DisplayRotation,
		Mirror:          in.Facing == FacingFront,
	}, nil
}

// Apply stamps the rotation and mirror flag onto img.
func (r Result) Apply(img *frame.PlanarImage) {
	if img == nil {
		return
	}
	img.Orientation = r.Degrees
	img.Mirror = r.Mirror
}
