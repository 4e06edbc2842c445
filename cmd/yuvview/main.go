// Command yuvview previews an I420 source in a gogpu window.
//
//	yuvview -source v4l2 -device /dev/video0 -width 1280 -height 720
//	yuvview -config preview.json -facing front -debug
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/gogpu/gogpu"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/yuvview"
	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/integration/gogpuview"
	"github.com/gogpu/yuvview/orientation"
	"github.com/gogpu/yuvview/renderer"
	"github.com/gogpu/yuvview/slot"
	"github.com/gogpu/yuvview/source"
)

func main() {
	var flags config.Flags
	configPath := flag.String("config", "", "JSON config file")
	flags.Bind(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Prepare(*configPath, flags)
	if err != nil {
		log.Fatal(err)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	yuvview.SetLogger(logger)

	in, err := cfg.OrientationInput()
	if err != nil {
		log.Fatal(err)
	}
	orient, err := orientation.Compute(in)
	if err != nil {
		log.Fatal(err)
	}
	bg, _ := cfg.ClearRGBA()

	pool := bufpool.New(bufpool.DefaultCapacity)
	frames := slot.New()
	src, err := source.Open(cfg.Source, pool)
	if err != nil {
		log.Fatal(err)
	}

	// Draw on demand: each pushed frame requests one redraw.
	app := gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle(cfg.Window.Title).
		WithSize(cfg.Window.Width, cfg.Window.Height).
		WithContinuousRender(false))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := source.Pump(ctx, src, frames,
			source.WithOrientation(orient),
			source.WithPushed(app.RequestRedraw),
		)
		if err != nil {
			log.Printf("capture stopped: %v", err)
		}
	}()

	var view *gogpuview.View
	app.OnDraw(func(dc *gogpu.Context) {
		w, h := dc.Width(), dc.Height()
		if w <= 0 || h <= 0 {
			return
		}
		if view == nil {
			provider := app.GPUContextProvider()
			if provider == nil {
				return
			}
			view, err = gogpuview.New(provider, frames,
				renderer.WithClearColor(gputypes.Color{R: bg[0], G: bg[1], B: bg[2], A: bg[3]}),
				renderer.WithLogger(logger),
			)
			if err != nil {
				log.Fatalf("create renderer: %v", err)
			}
			log.Printf("Backend: %s", dc.Backend())
		}
		if _, err := view.Draw(dc.SurfaceView(), w, h); err != nil {
			logger.Warn("draw failed", "err", err)
		}
	})

	app.EventSource().OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if key != gpucontext.KeySpace || view == nil {
			return
		}
		st := view.Renderer().Stats()
		ps := pool.Stats()
		ss := frames.Stats()
		log.Printf("drawn=%d idle=%d rejected=%d pushed=%d dropped=%d pool_reused=%d pool_allocated=%d",
			st.Drawn, st.Idle, st.Rejected, ss.Pushed, ss.Dropped, ps.Reused, ps.Allocated)
	})

	// Stop the producer before the slot and renderer go away.
	app.OnClose(func() {
		cancel()
		wg.Wait()
		frames.Close()
		if view != nil {
			_ = view.Close()
		}
		if err := src.Close(); err != nil {
			log.Printf("close source: %v", err)
		}
	})

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
