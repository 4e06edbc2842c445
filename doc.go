// Package yuvview previews planar YUV (I420) camera frames on the GPU.
//
// # Overview
//
// Frames travel one way through the module:
//
//	source.Source -> source.Pump -> slot.Slot -> renderer.Renderer -> surface
//
// A source delivers *frame.PlanarImage values from a V4L2 device, a
// pion/mediadevices camera, a GStreamer pipeline, OpenCV, a still image or
// a synthetic pattern. The pump stamps them and pushes them into a
// single-frame slot; a newer frame overwrites and releases an older one
// that was never drawn. On every display tick the renderer takes the
// newest frame, uploads the three planes as R8 textures, releases the
// frame and draws a quad that converts BT.601 studio-range YUV to RGB in
// the fragment shader.
//
// # Orientation
//
// Sensor mounting, display rotation and lens facing are folded into a
// rotation (0, 90, 180 or 270 degrees) and a mirror flag by package
// orientation. The renderer never transposes pixels: it selects one of
// eight pre-rotated quads and scales it to over-fill the viewport while
// keeping the image aspect ratio.
//
// # Packages
//
//   - frame, bufpool, slot: frame type, buffer reuse, the hand-off slot
//   - orientation: rotation and mirror from device pose
//   - renderer: wgpu hal resources and the draw loop
//   - yuv: CPU reference conversion in both directions
//   - source, snapshot, config: producers, image output, settings
//   - integration/gogpuview: hosting inside a gogpu window
//
// # Logging
//
// Nothing is logged until SetLogger is called.
package yuvview
