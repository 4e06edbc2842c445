package renderer

import (
	"log/slog"

	"github.com/gogpu/gputypes"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r := renderer.New(s,
//		renderer.WithClearColor(gputypes.Color{R: 0, G: 0, B: 0, A: 1}),
//		renderer.WithFormat(gputypes.TextureFormatRGBA8Unorm),
//	)
type Option func(*options)

type options struct {
	clear  gputypes.Color
	format gputypes.TextureFormat
	logger *slog.Logger
}

// defaultOptions clears to opaque white and renders into BGRA8 surfaces.
func defaultOptions() options {
	return options{
		clear:  gputypes.Color{R: 1, G: 1, B: 1, A: 1},
		format: gputypes.TextureFormatBGRA8Unorm,
	}
}

// WithClearColor sets the background drawn around the image and on idle
// ticks.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clear = c
	}
}

// WithFormat sets the format of the render targets passed to OnDrawFrame.
// It must match the surface configuration of the host.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithLogger sets a logger for this renderer only. Without it the package
// logger installed through the module root SetLogger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
