// Command yuvsnap grabs frames from a source and writes them as images,
// rendered with the same orientation and colour math as the preview.
//
//	yuvsnap -source still -path test.jpg -n 1 -format webp
//	yuvsnap -source v4l2 -n 30 -anim clip.webp
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gogpu/yuvview"
	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/orientation"
	"github.com/gogpu/yuvview/slot"
	"github.com/gogpu/yuvview/snapshot"
	"github.com/gogpu/yuvview/source"
)

// openSource is replaced in tests.
var openSource = source.Open

type options struct {
	count   int
	anim    string
	timeout time.Duration
}

func main() {
	var (
		flags      config.Flags
		opts       options
		configPath = flag.String("config", "", "JSON config file")
	)
	flag.IntVar(&opts.count, "n", 1, "number of frames to grab")
	flag.StringVar(&opts.anim, "anim", "", "write the frames as one animated WebP to this file")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "give up waiting for frames after this long")
	flags.Bind(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Prepare(*configPath, flags)
	if err != nil {
		log.Fatal(err)
	}
	level, _ := cfg.Level()
	yuvview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(cfg, opts); err != nil {
		log.Fatal(err)
	}
}

// run grabs the frames and writes them. The source is closed on every
// return path.
func run(cfg config.Config, opts options) (err error) {
	format, err := snapshot.ParseFormat(cfg.Snapshot.Format)
	if err != nil {
		return err
	}
	in, err := cfg.OrientationInput()
	if err != nil {
		return err
	}
	orient, err := orientation.Compute(in)
	if err != nil {
		return err
	}

	src, err := openSource(cfg.Source, bufpool.New(bufpool.DefaultCapacity))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	frames := slot.New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Pump(ctx, src, frames, source.WithOrientation(orient)); err != nil {
			log.Printf("capture stopped: %v", err)
		}
	}()

	grabbed, err := grab(ctx, frames, opts.count)
	cancel()
	wg.Wait()
	frames.Close()
	defer func() {
		for _, img := range grabbed {
			img.Release()
		}
	}()
	if err != nil {
		if len(grabbed) == 0 {
			return err
		}
		log.Printf("%v (got %d of %d frames)", err, len(grabbed), opts.count)
	}

	sopts := snapshot.Options{MaxSize: cfg.Snapshot.MaxSize}
	if opts.anim != "" {
		if err := writeAnimation(opts.anim, grabbed, cfg.Source.FPS, sopts); err != nil {
			return err
		}
		log.Printf("wrote %d frames to %s", len(grabbed), opts.anim)
		return nil
	}
	for _, img := range grabbed {
		path, err := snapshot.Save(cfg.Snapshot.Dir, img, format, sopts)
		if err != nil {
			return err
		}
		log.Printf("frame %d -> %s", img.Seq, path)
	}
	return nil
}

// grab takes n distinct frames from s, polling until ctx is done. Each
// frame is copied to the heap and released at once so zero-copy sources
// get their buffers back.
func grab(ctx context.Context, s *slot.Slot, n int) ([]*frame.PlanarImage, error) {
	var out []*frame.PlanarImage
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for len(out) < n {
		select {
		case <-ctx.Done():
			return out, fmt.Errorf("grab: %w", ctx.Err())
		case <-tick.C:
			img, ok := s.Take()
			if !ok {
				continue
			}
			c, err := img.Clone(nil)
			img.Release()
			if err != nil {
				return out, fmt.Errorf("grab: %w", err)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func writeAnimation(path string, frames []*frame.PlanarImage, fps int, opts snapshot.Options) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return snapshot.WriteAnimation(f, frames, time.Second/time.Duration(max(fps, 1)), opts)
}
