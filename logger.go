package yuvview

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/internal/logging"
)

// SetLogger configures the logger for yuvview and all its sub-packages.
// By default yuvview produces no log output. The logger is also handed to
// the wgpu HAL so device diagnostics land in the same place.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by yuvview:
//   - [slog.LevelDebug]: per-frame diagnostics (sequence, trace id, uploads)
//   - [slog.LevelInfo]: lifecycle events (source opened, surface created)
//   - [slog.LevelWarn]: dropped or rejected frames, release errors
//
// Example:
//
//	yuvview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
	hal.SetLogger(l)
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
