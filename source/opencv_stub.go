//go:build !gocv

package source

import (
	"fmt"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
)

func openOpenCV(cfg config.Source, _ *bufpool.Pool) (Source, error) {
	return nil, fmt.Errorf("%w: opencv (build with -tags gocv)", ErrUnsupported)
}
