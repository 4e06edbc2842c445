// Package geometry holds the static full-screen quads used by the I420
// renderer, one triangle strip per orientation and mirror combination.
//
// Rotation is baked into texture coordinates rather than applied to pixel
// data; mirroring negates the clip-space x coordinate.
package geometry

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

const (
	// VerticesPerGroup is the vertex count of one triangle strip quad.
	VerticesPerGroup = 4

	// Orientations is the number of rotation groups (0, 90, 180, 270).
	Orientations = 4

	// Groups is the total number of quads: every orientation, plain and
	// mirrored.
	Groups = 2 * Orientations

	// VertexCount is the number of vertices in the table.
	VertexCount = Groups * VerticesPerGroup

	// VertexStride is the byte size of one vertex: position xyz + uv.
	VertexStride = 5 * 4

	// Size is the byte size of the serialized table.
	Size = VertexCount * VertexStride
)

// Vertex is one table entry.
type Vertex struct {
	X, Y, Z float32
	U, V    float32
}

// Strip order: bottom-left, bottom-right, top-left, top-right.
var positions = [VerticesPerGroup][2]float32{
	{-1, -1},
	{1, -1},
	{-1, 1},
	{1, 1},
}

// Texture coordinates per orientation, in strip order. Row 0 of the
// uploaded plane is v = 0.
var texCoords = [Orientations][VerticesPerGroup][2]float32{
	{{0, 1}, {1, 1}, {0, 0}, {1, 0}}, // 0
	{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, // 90
	{{1, 0}, {0, 0}, {1, 1}, {0, 1}}, // 180
	{{1, 1}, {1, 0}, {0, 1}, {0, 0}}, // 270
}

// Table returns every vertex, groups 0-3 plain and 4-7 mirrored.
func Table() []Vertex {
	out := make([]Vertex, 0, VertexCount)
	for _, mirror := range []bool{false, true} {
		for o := range Orientations {
			for i := range VerticesPerGroup {
				x := positions[i][0]
				if mirror {
					x = -x
				}
				out = append(out, Vertex{
					X: x,
					Y: positions[i][1],
					U: texCoords[o][i][0],
					V: texCoords[o][i][1],
				})
			}
		}
	}
	return out
}

// Bytes serializes the table little-endian, ready for a vertex buffer.
func Bytes() []byte {
	buf := make([]byte, Size)
	for i, v := range Table() {
		off := i * VertexStride
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v.X))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(v.Y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(v.Z))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(v.U))
		binary.LittleEndian.PutUint32(buf[off+16:], math.Float32bits(v.V))
	}
	return buf
}

// Group returns the quad index for an orientation in degrees:
// (degrees/90) mod 4, offset by Orientations when mirrored.
func Group(degrees int, mirror bool) int {
	g := (degrees / 90) % Orientations
	if g < 0 {
		g += Orientations
	}
	if mirror {
		g += Orientations
	}
	return g
}

// FirstVertex returns the first vertex of the quad to draw.
func FirstVertex(degrees int, mirror bool) uint32 {
	return uint32(Group(degrees, mirror) * VerticesPerGroup) //nolint:gosec // at most 28
}

// Quad returns the four vertices drawn for an orientation, in strip order.
func Quad(degrees int, mirror bool) []Vertex {
	g := Group(degrees, mirror)
	return Table()[g*VerticesPerGroup : (g+1)*VerticesPerGroup]
}

// Layout describes the vertex buffer for the pipeline:
//
//	location 0: position (vec3<f32>)
//	location 1: tex_coord (vec2<f32>)
func Layout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			},
		},
	}
}
