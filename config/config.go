// Package config loads the settings shared by the yuvview commands: a JSON
// file overlaid with command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/yuvview/orientation"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Source kinds.
const (
	KindSynthetic    = "synthetic"
	KindStill        = "still"
	KindV4L2         = "v4l2"
	KindMediaDevices = "mediadev"
	KindGStreamer    = "gst"
	KindOpenCV       = "opencv"
)

// Kinds lists every source kind in the order they are documented.
var Kinds = []string{KindSynthetic, KindStill, KindV4L2, KindMediaDevices, KindGStreamer, KindOpenCV}

// Snapshot formats accepted in the file.
var formats = []string{"png", "jpeg", "jpg", "bmp", "tiff", "tif", "webp"}

// Config holds everything the commands can be told.
type Config struct {
	Source      Source      `json:"source"`
	Orientation Orientation `json:"orientation"`
	Window      Window      `json:"window"`
	Snapshot    Snapshot    `json:"snapshot"`
	LogLevel    string      `json:"log_level"`
}

// Source selects and parameterizes the frame source.
type Source struct {
	Kind     string `json:"kind"`
	Device   string `json:"device"`   // v4l2 node, camera label or OpenCV index
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FPS      int    `json:"fps"`
	Path     string `json:"path"`     // still image file
	Pipeline string `json:"pipeline"` // GStreamer launch line without the sink
}

// Orientation describes how the camera is mounted and held.
type Orientation struct {
	Sensor          int    `json:"sensor"`
	DeviceAngle     int    `json:"device_angle"`
	DisplayRotation int    `json:"display_rotation"`
	Facing          string `json:"facing"`
}

// Window configures the preview window.
type Window struct {
	Title      string `json:"title"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ClearColor string `json:"clear_color"` // #RRGGBB or #RRGGBBAA
}

// Snapshot configures yuvsnap output.
type Snapshot struct {
	Dir     string `json:"dir"`
	Format  string `json:"format"`
	MaxSize int    `json:"max_size"` // longest side in pixels, 0 keeps the frame size
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Source: Source{
			Kind:   KindSynthetic,
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Orientation: Orientation{Facing: "back"},
		Window: Window{
			Title:      "yuvview",
			Width:      1280,
			Height:     720,
			ClearColor: "#ffffff",
		},
		Snapshot: Snapshot{Dir: ".", Format: "png"},
		LogLevel: "info",
	}
}

// Load reads a JSON config file. Fields not set in the file keep their
// Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds command-line values that override the file.
type Flags struct {
	Source   string
	Device   string
	Path     string
	Pipeline string
	Width    int
	Height   int
	FPS      int
	Facing   string
	Debug    bool
	SnapDir  string
	SnapFmt  string
	SnapSize int
}

// Bind registers the override flags on fs.
func (f *Flags) Bind(fs *flag.FlagSet) {
	fs.StringVar(&f.Source, "source", "", "source kind: "+strings.Join(Kinds, ", "))
	fs.StringVar(&f.Device, "device", "", "capture device (v4l2 node, camera id or OpenCV index)")
	fs.StringVar(&f.Path, "path", "", "still image file")
	fs.StringVar(&f.Pipeline, "pipeline", "", "GStreamer pipeline without the sink")
	fs.IntVar(&f.Width, "width", 0, "capture width")
	fs.IntVar(&f.Height, "height", 0, "capture height")
	fs.IntVar(&f.FPS, "fps", 0, "capture frame rate")
	fs.StringVar(&f.Facing, "facing", "", "lens facing: back, front or external")
	fs.BoolVar(&f.Debug, "debug", false, "debug logging")
	fs.StringVar(&f.SnapDir, "out", "", "snapshot directory")
	fs.StringVar(&f.SnapFmt, "format", "", "snapshot format")
	fs.IntVar(&f.SnapSize, "max-size", 0, "snapshot longest side in pixels")
}

// Prepare loads path (or the defaults when path is empty), applies flags
// and validates the result.
func Prepare(path string, flags Flags) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	cfg.Resolve(flags)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve applies non-zero flags over c and fills per-kind defaults.
func (c *Config) Resolve(flags Flags) {
	if flags.Source != "" {
		c.Source.Kind = flags.Source
	}
	if flags.Device != "" {
		c.Source.Device = flags.Device
	}
	if flags.Path != "" {
		c.Source.Path = flags.Path
	}
	if flags.Pipeline != "" {
		c.Source.Pipeline = flags.Pipeline
	}
	if flags.Width > 0 {
		c.Source.Width = flags.Width
	}
	if flags.Height > 0 {
		c.Source.Height = flags.Height
	}
	if flags.FPS > 0 {
		c.Source.FPS = flags.FPS
	}
	if flags.Facing != "" {
		c.Orientation.Facing = flags.Facing
	}
	if flags.Debug {
		c.LogLevel = "debug"
	}
	if flags.SnapDir != "" {
		c.Snapshot.Dir = flags.SnapDir
	}
	if flags.SnapFmt != "" {
		c.Snapshot.Format = flags.SnapFmt
	}
	if flags.SnapSize > 0 {
		c.Snapshot.MaxSize = flags.SnapSize
	}

	if c.Source.Device == "" {
		switch c.Source.Kind {
		case KindV4L2:
			c.Source.Device = "/dev/video0"
		case KindOpenCV:
			c.Source.Device = "0"
		}
	}
	if c.Source.FPS <= 0 {
		c.Source.FPS = 30
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if !slices.Contains(Kinds, c.Source.Kind) {
		return fmt.Errorf("%w: source kind %q (want one of %s)", ErrInvalid, c.Source.Kind, strings.Join(Kinds, ", "))
	}
	if c.Source.Width < 0 || c.Source.Height < 0 || c.Source.FPS < 0 {
		return fmt.Errorf("%w: source size %dx%d @ %d fps", ErrInvalid, c.Source.Width, c.Source.Height, c.Source.FPS)
	}
	if c.Source.Kind == KindSynthetic && (c.Source.Width < 2 || c.Source.Height < 2) {
		return fmt.Errorf("%w: synthetic source needs a size of at least 2x2", ErrInvalid)
	}
	if c.Source.Kind == KindStill && c.Source.Path == "" {
		return fmt.Errorf("%w: still source needs a path", ErrInvalid)
	}
	if _, err := c.OrientationInput(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	if _, err := c.ClearRGBA(); err != nil {
		return err
	}
	if !slices.Contains(formats, strings.ToLower(c.Snapshot.Format)) {
		return fmt.Errorf("%w: snapshot format %q", ErrInvalid, c.Snapshot.Format)
	}
	if c.Snapshot.MaxSize < 0 {
		return fmt.Errorf("%w: snapshot max size %d", ErrInvalid, c.Snapshot.MaxSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// OrientationInput converts the orientation settings. Sensor and display
// rotation are checked by orientation.Compute.
func (c Config) OrientationInput() (orientation.Input, error) {
	facing, err := orientation.ParseFacing(c.Orientation.Facing)
	if err != nil {
		return orientation.Input{}, err
	}
	in := orientation.Input{
		SensorOrientation: c.Orientation.Sensor,
		DeviceAngle:       c.Orientation.DeviceAngle,
		DisplayRotation:   c.Orientation.DisplayRotation,
		Facing:            facing,
	}
	if _, err := orientation.Compute(in); err != nil {
		return orientation.Input{}, err
	}
	return in, nil
}

// Level parses LogLevel; empty means info.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// ClearRGBA parses the window clear colour into [0, 1] components.
func (c Config) ClearRGBA() ([4]float64, error) {
	s := strings.TrimPrefix(c.Window.ClearColor, "#")
	if s == "" {
		return [4]float64{1, 1, 1, 1}, nil
	}
	if len(s) != 6 && len(s) != 8 {
		return [4]float64{}, fmt.Errorf("%w: clear colour %q", ErrInvalid, c.Window.ClearColor)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [4]float64{}, fmt.Errorf("%w: clear colour %q", ErrInvalid, c.Window.ClearColor)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return [4]float64{
		float64(v>>24&0xff) / 255,
		float64(v>>16&0xff) / 255,
		float64(v>>8&0xff) / 255,
		float64(v&0xff) / 255,
	}, nil
}
