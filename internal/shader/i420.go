package shader

import (
	_ "embed"

	"github.com/gogpu/gputypes"
)

// I420 stage sources.
var (
	//go:embed shaders/i420.vert.wgsl
	I420VertexSource string

	//go:embed shaders/i420.frag.wgsl
	I420FragmentSource string
)

// Names declared by the I420 sources.
const (
	I420VertexEntry   = "vs_main"
	I420FragmentEntry = "fs_main"

	UniformTransform = "transform"
	UniformTexY      = "tex_y"
	UniformTexU      = "tex_u"
	UniformTexV      = "tex_v"
	UniformSampler   = "plane_sampler"

	AttributePosition = "position"
	AttributeTexCoord = "tex_coord"
)

// PlaneUniforms lists the texture uniforms in Y, U, V order.
var PlaneUniforms = [3]string{UniformTexY, UniformTexU, UniformTexV}

// I420Descriptor returns the descriptor of the I420 program drawing
// triangle strips from buffers into a target of the given format.
func I420Descriptor(format gputypes.TextureFormat, buffers []gputypes.VertexBufferLayout) *Descriptor {
	return &Descriptor{
		Label:          "i420",
		VertexSource:   I420VertexSource,
		FragmentSource: I420FragmentSource,
		VertexEntry:    I420VertexEntry,
		FragmentEntry:  I420FragmentEntry,
		Buffers:        buffers,
		Targets: []gputypes.ColorTargetState{
			{Format: format, WriteMask: gputypes.ColorWriteMaskAll},
		},
		Topology: gputypes.PrimitiveTopologyTriangleStrip,
	}
}
