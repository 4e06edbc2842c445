// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gogpuview hosts the YUV renderer inside a gogpu window.
//
// The host application owns the window and its GPU device. View borrows
// the device through the gpucontext.DeviceProvider the app exposes and
// renders the newest frame of a slot.Slot into the surface view handed
// to each draw callback:
//
//	app := gogpu.NewApp(gogpu.DefaultConfig().WithContinuousRender(false))
//	frames := slot.New()
//	var view *gogpuview.View
//
//	go source.Pump(ctx, src, frames, source.WithPushed(app.RequestRedraw))
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    if view == nil {
//	        view, _ = gogpuview.New(app.GPUContextProvider(), frames)
//	    }
//	    w, h := dc.SurfaceSize()
//	    view.Draw(dc.SurfaceView(), w, h)
//	})
//	app.OnClose(func() { view.Close() })
//
// Producers push frames into the slot from their own goroutines and ask
// the app for a redraw after each push. A draw with no new frame clears the
// surface, so the app should not render continuously. Every View method
// must run on the render thread.
package gogpuview
