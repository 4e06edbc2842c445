//go:build !linux

package source

import (
	"fmt"

	"github.com/gogpu/yuvview/config"
)

func openV4L2(cfg config.Source) (Source, error) {
	return nil, fmt.Errorf("%w: v4l2 %s", ErrUnsupported, cfg.Device)
}
