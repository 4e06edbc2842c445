//go:build gst

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/gogpu/yuvview/bufpool"
	"github.com/gogpu/yuvview/config"
	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/logging"
)

// DefaultPipeline is used when no pipeline description is configured.
const DefaultPipeline = "videotestsrc is-live=true pattern=smpte"

const gstBusPoll = 50 * time.Millisecond


// GStreamer runs a gst-launch style pipeline and converts its output to
// I420 at a fixed size through an appsink.
type GStreamer struct {
	desc     string
	layout   packedLayout
	pool     *bufpool.Pool
	pipeline *gst.Pipeline
	sink     *app.Sink

	mu      sync.Mutex
	deliver func(*frame.PlanarImage)
	closed  bool
}

func openGStreamer(cfg config.Source, pool *bufpool.Pool) (Source, error) {
	return NewGStreamer(cfg.Pipeline, cfg.Width, cfg.Height, cfg.FPS, pool)
}

// NewGStreamer parses desc, an upstream pipeline without a sink, and
// appends the conversion and appsink stages.
func NewGStreamer(desc string, width, height, fps int, pool *bufpool.Pool) (*GStreamer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("source: gstreamer: %w", frame.ErrSize)
	}
	if desc == "" {
		desc = DefaultPipeline
	}
	if pool == nil {
		pool = bufpool.New(0)
	}
	gst.Init(nil)

	launch := fmt.Sprintf("%s ! videoconvert ! videoscale ! videorate ! capsfilter name=caps ! appsink name=sink", desc)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("source: parse pipeline: %w", err)
	}
	capsElem, err := pipeline.GetElementByName("caps")
	if err != nil {
		return nil, fmt.Errorf("source: capsfilter: %w", err)
	}
	capsElem.SetProperty("caps", gst.NewCapsFromString(i420Caps(width, height, fps)))

	sinkElem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("source: appsink: %w", err)
	}
	sink := app.SinkFromElement(sinkElem)
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	g := &GStreamer{
		desc:     desc,
		layout:   gstLayout(width, height),
		pool:     pool,
		pipeline: pipeline,
		sink:     sink,
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onSample,
	})
	return g, nil
}

func i420Caps(width, height, fps int) string {
	caps := fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d", width, height)
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return caps
}

func (g *GStreamer) Name() string {
	return "gst:" + g.desc
}

// onSample copies one appsink buffer into pool memory.
func (g *GStreamer) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	img, err := g.layout.copyInto(mapInfo.Bytes(), g.pool)
	buffer.Unmap()
	if err != nil {
		logging.Logger().Warn("source: dropping gstreamer buffer", "err", err)
		return gst.FlowOK
	}

	g.mu.Lock()
	deliver := g.deliver
	g.mu.Unlock()
	if deliver == nil {
		img.Release()
		return gst.FlowOK
	}
	deliver(img)
	return gst.FlowOK
}

// Start plays the pipeline and watches its bus until ctx is done, EOS or
// an error.
func (g *GStreamer) Start(ctx context.Context, deliver func(*frame.PlanarImage)) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	g.deliver = deliver
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.deliver = nil
		g.mu.Unlock()
		_ = g.pipeline.SetState(gst.StateNull)
	}()

	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	bus := g.pipeline.GetPipelineBus()
	for ctx.Err() == nil {
		msg := bus.TimedPop(gstBusPoll)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return ErrEndOfCapture
		case gst.MessageError:
			gerr := msg.ParseError()
			logging.Logger().Error("source: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			return fmt.Errorf("pipeline: %s", gerr.Error())
		}
	}
	return ctx.Err()
}

func (g *GStreamer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.deliver = nil
	return g.pipeline.SetState(gst.StateNull)
}
