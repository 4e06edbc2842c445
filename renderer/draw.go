package renderer

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/frame"
	"github.com/gogpu/yuvview/internal/geometry"
)

// OnDrawFrame renders one display tick into target and reports whether a
// new frame was drawn. With nothing new in the slot it only clears the
// target. Calls outside the Created state do nothing and return false.
//
// The taken frame is released as soon as its planes are uploaded, before
// the draw is encoded, so the producer can reuse its buffers.
func (r *Renderer) OnDrawFrame(target hal.TextureView) (bool, error) {
	if r.state != Created {
		return false, nil
	}
	if target == nil {
		return false, ErrNoTarget
	}
	r.retire()

	img, ok := r.slot.Take()
	if !ok {
		r.stats.Idle++
		return false, r.submit(target, nil)
	}

	err := r.upload(img)
	img.Release()
	if err != nil {
		r.stats.Rejected++
		r.log().Warn("renderer: frame rejected", "seq", img.Seq, "trace", img.TraceID, "err", err)
		if cerr := r.submit(target, nil); cerr != nil {
			return false, cerr
		}
		return false, err
	}

	w, h := img.LogicalSize()
	x, y := ScaleFor(w, h, r.viewW, r.viewH)
	if err := r.queue.WriteBuffer(r.res.uniform, 0, matrixBytes(Matrix(x, y))); err != nil {
		return false, fmt.Errorf("renderer: write transform: %w", err)
	}

	first := geometry.FirstVertex(img.Orientation, img.Mirror)
	if err := r.submit(target, &first); err != nil {
		return false, err
	}
	r.stats.Drawn++
	r.log().Debug("renderer: frame drawn",
		"seq", img.Seq,
		"size", fmt.Sprintf("%dx%d", img.Width, img.Height),
		"orientation", img.Orientation,
		"mirror", img.Mirror,
		"scale_x", x,
		"scale_y", y,
	)
	return true, nil
}

// upload validates img and writes its planes into the plane textures,
// recreating any texture whose size changed. The bind group is rebuilt
// whenever it still references a replaced texture.
func (r *Renderer) upload(img *frame.PlanarImage) error {
	if err := img.Validate(); err != nil {
		return err
	}

	for i := range r.res.planes {
		w, h := img.PlaneSize(i)
		if w == 0 || h == 0 {
			continue // 1-pixel-wide or -high images have empty chroma
		}
		pt := &r.res.planes[i]
		if pt.width != w || pt.height != h {
			next, err := createPlane(r.device, i, w, h)
			if err != nil {
				return err
			}
			pt.destroy(r.device)
			*pt = next
			r.res.stale = true
		}

		p := img.Planes[i]
		err := r.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  pt.tex,
				MipLevel: 0,
				Aspect:   gputypes.TextureAspectAll,
			},
			p.Data[:p.Stride*(h-1)+w],
			&hal.ImageDataLayout{
				BytesPerRow:  uint32(p.Stride),
				RowsPerImage: uint32(h),
			},
			&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		)
		if err != nil {
			return fmt.Errorf("renderer: upload plane %d: %w", i, err)
		}
	}

	// A group left stale by an earlier failed upload is rebuilt here too,
	// even when this frame matches the current plane sizes.
	if r.res.stale {
		return r.res.rebindGroup(r.device)
	}
	return nil
}

// submit encodes one render pass that clears target and, when first is
// set, draws the quad starting at that vertex.
func (r *Renderer) submit(target hal.TextureView, first *uint32) error {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "i420_encoder",
	})
	if err != nil {
		return fmt.Errorf("renderer: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("i420_frame"); err != nil {
		return fmt.Errorf("renderer: begin encoding: %w", err)
	}

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "i420_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: r.opts.clear,
		}},
	})
	if first != nil {
		if r.viewW > 0 && r.viewH > 0 {
			pass.SetViewport(0, 0, float32(r.viewW), float32(r.viewH), 0, 1)
		}
		if err := r.res.program.Use(pass); err != nil {
			pass.End()
			encoder.DiscardEncoding()
			return fmt.Errorf("renderer: %w", err)
		}
		pass.SetVertexBuffer(0, r.res.vertices, 0)
		pass.SetBindGroup(0, r.res.group, nil)
		pass.Draw(geometry.VerticesPerGroup, 1, *first, 0)
		r.res.program.Unuse()
	}
	pass.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("renderer: end encoding: %w", err)
	}
	index, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		r.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("renderer: submit: %w", err)
	}
	r.inflight = append(r.inflight, submission{index: index, cmd: cmd})
	return nil
}
