//go:build !gst

package source

import (
	"fmt"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
)

func openGStreamer(cfg config.Source, _ *bufpool.Pool) (Source, error) {
	return nil, fmt.Errorf("%w: gstreamer (build with -tags gst)", ErrUnsupported)
}
