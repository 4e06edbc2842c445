// Package shader compiles and links the vertex/fragment program used by the
// I420 renderer on a wgpu HAL device.
//
// Compile runs each WGSL stage through the naga front end, creates a HAL
// shader module per stage, checks the stage interfaces and links them into a
// render pipeline with a bind group layout reflected from the sources. Any
// failure releases every handle created for that attempt.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/yuvview/internal/logging"
)

var (
	// ErrCompile is returned when a stage fails to parse, lower, validate or
	// load as a shader module.
	ErrCompile = errors.New("shader: compile failed")

	// ErrValidate is returned when the stages do not fit together: a missing
	// entry point, an unfed vertex input, or a slot used for two kinds.
	ErrValidate = errors.New("shader: validation failed")

	// ErrLink is returned when layout or pipeline creation fails.
	ErrLink = errors.New("shader: link failed")

	// ErrUnknownUniform is returned by UniformLocation for names the program
	// does not declare.
	ErrUnknownUniform = errors.New("shader: unknown uniform")

	// ErrUnknownAttribute is returned by AttributeLocation for names the
	// vertex stage does not declare.
	ErrUnknownAttribute = errors.New("shader: unknown attribute")

	// ErrDestroyed is returned when a destroyed program is used.
	ErrDestroyed = errors.New("shader: program destroyed")

	// ErrNoDevice is returned by Compile without a device.
	ErrNoDevice = errors.New("shader: nil device")
)

// Descriptor describes a program to compile.
type Descriptor struct {
	Label          string
	VertexSource   string
	FragmentSource string
	VertexEntry    string
	FragmentEntry  string
	Buffers        []gputypes.VertexBufferLayout
	Targets        []gputypes.ColorTargetState
	Topology       gputypes.PrimitiveTopology
}

// Program is a linked vertex/fragment pipeline. It is not safe for
// concurrent use: all calls belong on the render thread.
type Program struct {
	device hal.Device
	label  string

	vertex     hal.ShaderModule
	fragment   hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	bindings   []Binding
	uniforms   map[string]Binding
	attributes map[string]uint32
	bound      bool
}

// Compile builds a program on device. On error nothing stays allocated.
func Compile(device hal.Device, desc *Descriptor) (*Program, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	p := &Program{device: device, label: desc.Label}
	if err := p.build(desc); err != nil {
		p.Destroy()
		return nil, err
	}
	logging.Logger().Debug("shader: program linked",
		"label", p.label,
		"bindings", len(p.bindings),
		"attributes", len(p.attributes),
	)
	return p, nil
}

func (p *Program) build(desc *Descriptor) error {
	vmod, err := frontEnd(StageVertex, desc.VertexSource)
	if err != nil {
		return err
	}
	if p.vertex, err = p.createModule(StageVertex, desc.VertexSource); err != nil {
		return err
	}

	fmod, err := frontEnd(StageFragment, desc.FragmentSource)
	if err != nil {
		return err
	}
	if p.fragment, err = p.createModule(StageFragment, desc.FragmentSource); err != nil {
		return err
	}

	if err := p.validate(desc, vmod, fmod); err != nil {
		return err
	}
	return p.link(desc)
}

func (p *Program) createModule(stage Stage, source string) (hal.ShaderModule, error) {
	mod, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.label + "_" + stage.String(),
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %s module: %w", ErrCompile, stage, err)
	}
	return mod, nil
}

// validate checks entry points, reflects bindings and attributes, and makes
// sure every vertex input is fed by a buffer attribute.
func (p *Program) validate(desc *Descriptor, vmod, fmod *ir.Module) error {
	if err := checkEntryPoint(vmod, desc.VertexEntry, StageVertex); err != nil {
		return err
	}
	if err := checkEntryPoint(fmod, desc.FragmentEntry, StageFragment); err != nil {
		return err
	}

	vb, err := reflectBindings(vmod, StageVertex)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidate, err)
	}
	fb, err := reflectBindings(fmod, StageFragment)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidate, err)
	}
	merged, err := mergeBindings(vb, fb)
	if err != nil {
		return err
	}
	for _, b := range merged {
		if b.Group != 0 {
			return fmt.Errorf("%w: %q uses bind group %d, only group 0 is supported", ErrValidate, b.Name, b.Group)
		}
	}

	attrs := reflectAttributes(vmod, desc.VertexEntry)
	fed := map[uint32]bool{}
	for _, l := range desc.Buffers {
		for _, a := range l.Attributes {
			fed[a.ShaderLocation] = true
		}
	}
	for name, loc := range attrs {
		if !fed[loc] {
			return fmt.Errorf("%w: vertex input %q at location %d has no buffer attribute", ErrValidate, name, loc)
		}
	}

	p.bindings = merged
	p.uniforms = make(map[string]Binding, len(merged))
	for _, list := range [][]Binding{vb, fb} {
		for _, b := range list {
			for _, m := range merged {
				if m.Group == b.Group && m.Binding == b.Binding {
					p.uniforms[b.Name] = m
				}
			}
		}
	}
	p.attributes = attrs
	return nil
}

// link creates the bind group layout, pipeline layout and render pipeline.
func (p *Program) link(desc *Descriptor) error {
	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.label + "_bind_layout",
		Entries: layoutEntries(p.bindings),
	})
	if err != nil {
		return fmt.Errorf("%w: create bind group layout: %w", ErrLink, err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("%w: create pipeline layout: %w", ErrLink, err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  p.label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vertex,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.Buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     p.fragment,
			EntryPoint: desc.FragmentEntry,
			Targets:    desc.Targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: desc.Topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create render pipeline: %w", ErrLink, err)
	}
	p.pipeline = pipeline
	return nil
}

// UniformLocation returns the binding of a uniform buffer, texture or
// sampler declared by either stage.
func (p *Program) UniformLocation(name string) (Binding, error) {
	b, ok := p.uniforms[name]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q", ErrUnknownUniform, name)
	}
	return b, nil
}

// AttributeLocation returns the @location of a vertex input.
func (p *Program) AttributeLocation(name string) (uint32, error) {
	loc, ok := p.attributes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return loc, nil
}

// Bindings returns the merged bindings ordered by slot.
func (p *Program) Bindings() []Binding {
	out := make([]Binding, len(p.bindings))
	copy(out, p.bindings)
	return out
}

// BindGroupLayout returns the layout for bind group 0.
func (p *Program) BindGroupLayout() hal.BindGroupLayout {
	return p.bindLayout
}

// Use makes the program current on pass. Draw and bind calls for this
// program must follow Use and precede Unuse.
func (p *Program) Use(pass hal.RenderPassEncoder) error {
	if p.pipeline == nil {
		return ErrDestroyed
	}
	pass.SetPipeline(p.pipeline)
	p.bound = true
	return nil
}

// Unuse marks the program as no longer current.
func (p *Program) Unuse() {
	p.bound = false
}

// Bound reports whether the program is between Use and Unuse.
func (p *Program) Bound() bool {
	return p.bound
}

// Destroy releases every GPU object in reverse creation order. Safe to
// call more than once.
func (p *Program) Destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.fragment != nil {
		p.device.DestroyShaderModule(p.fragment)
		p.fragment = nil
	}
	if p.vertex != nil {
		p.device.DestroyShaderModule(p.vertex)
		p.vertex = nil
	}
	p.bound = false
}
