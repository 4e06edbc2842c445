package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Stage identifies a shader stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

func (s Stage) visibility() gputypes.ShaderStages {
	if s == StageFragment {
		return gputypes.ShaderStageFragment
	}
	return gputypes.ShaderStageVertex
}

func (s Stage) irStage() ir.ShaderStage {
	if s == StageFragment {
		return ir.StageFragment
	}
	return ir.StageVertex
}

// Kind is the resource type behind a binding.
type Kind int

const (
	KindUniformBuffer Kind = iota + 1
	KindTexture
	KindSampler
)

func (k Kind) String() string {
	switch k {
	case KindUniformBuffer:
		return "uniform"
	case KindTexture:
		return "texture"
	case KindSampler:
		return "sampler"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Binding is a reflected resource binding: the location a uniform, texture
// or sampler occupies in the bind group.
type Binding struct {
	Name       string
	Group      uint32
	Binding    uint32
	Kind       Kind
	Visibility gputypes.ShaderStages
}

// frontEnd parses, lowers and validates one stage.
func frontEnd(stage Stage, source string) (*ir.Module, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: %s stage: empty source", ErrCompile, stage)
	}
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s stage: %w", ErrCompile, stage, err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s stage: %w", ErrCompile, stage, err)
	}
	problems, err := naga.Validate(mod)
	if err != nil {
		return nil, fmt.Errorf("%w: %s stage: %w", ErrCompile, stage, err)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s stage: %s", ErrCompile, stage, problems[0].Message)
	}
	return mod, nil
}

// reflectBindings lists the resource bindings a module declares.
func reflectBindings(mod *ir.Module, stage Stage) ([]Binding, error) {
	var out []Binding
	for _, gv := range mod.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		kind, err := bindingKind(mod, gv)
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", stage, err)
		}
		out = append(out, Binding{
			Name:       gv.Name,
			Group:      gv.Binding.Group,
			Binding:    gv.Binding.Binding,
			Kind:       kind,
			Visibility: stage.visibility(),
		})
	}
	return out, nil
}

func bindingKind(mod *ir.Module, gv ir.GlobalVariable) (Kind, error) {
	switch gv.Space {
	case ir.SpaceUniform:
		return KindUniformBuffer, nil
	case ir.SpaceHandle:
		if int(gv.Type) >= len(mod.Types) {
			return 0, fmt.Errorf("binding %q: bad type handle %d", gv.Name, gv.Type)
		}
		switch mod.Types[gv.Type].Inner.(type) {
		case ir.ImageType:
			return KindTexture, nil
		case ir.SamplerType:
			return KindSampler, nil
		}
	}
	return 0, fmt.Errorf("binding %q: unsupported resource", gv.Name)
}

// mergeBindings joins per-stage bindings by slot. A slot used by both
// stages must hold the same kind of resource.
func mergeBindings(stages ...[]Binding) ([]Binding, error) {
	bySlot := map[[2]uint32]*Binding{}
	var order [][2]uint32
	for _, list := range stages {
		for _, b := range list {
			key := [2]uint32{b.Group, b.Binding}
			prev, ok := bySlot[key]
			if !ok {
				bc := b
				bySlot[key] = &bc
				order = append(order, key)
				continue
			}
			if prev.Kind != b.Kind {
				return nil, fmt.Errorf("%w: @group(%d) @binding(%d) is %s in one stage and %s in another",
					ErrValidate, b.Group, b.Binding, prev.Kind, b.Kind)
			}
			prev.Visibility |= b.Visibility
		}
	}

	out := make([]Binding, 0, len(order))
	for _, key := range order {
		out = append(out, *bySlot[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out, nil
}

// reflectAttributes maps vertex input names to their @location, looking
// through struct-typed arguments.
func reflectAttributes(mod *ir.Module, entry string) map[string]uint32 {
	attrs := map[string]uint32{}
	ep := findEntryPoint(mod, entry)
	if ep == nil {
		return attrs
	}
	for _, arg := range ep.Function.Arguments {
		if loc, ok := locationOf(arg.Binding); ok {
			attrs[arg.Name] = loc
			continue
		}
		if int(arg.Type) >= len(mod.Types) {
			continue
		}
		st, ok := mod.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			continue
		}
		for _, m := range st.Members {
			if loc, ok := locationOf(m.Binding); ok {
				attrs[m.Name] = loc
			}
		}
	}
	return attrs
}

func locationOf(b *ir.Binding) (uint32, bool) {
	if b == nil {
		return 0, false
	}
	switch lb := (*b).(type) {
	case ir.LocationBinding:
		return lb.Location, true
	case *ir.LocationBinding:
		return lb.Location, true
	}
	return 0, false
}

func findEntryPoint(mod *ir.Module, name string) *ir.EntryPoint {
	for i := range mod.EntryPoints {
		if mod.EntryPoints[i].Name == name {
			return &mod.EntryPoints[i]
		}
	}
	return nil
}

// checkEntryPoint reports an error unless mod has an entry point called name
// for stage.
func checkEntryPoint(mod *ir.Module, name string, stage Stage) error {
	ep := findEntryPoint(mod, name)
	if ep == nil {
		return fmt.Errorf("%w: %s stage has no entry point %q", ErrValidate, stage, name)
	}
	if ep.Stage != stage.irStage() {
		return fmt.Errorf("%w: entry point %q is not a %s shader", ErrValidate, name, stage)
	}
	return nil
}

// layoutEntries converts merged bindings into bind group layout entries.
func layoutEntries(bindings []Binding) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, b := range bindings {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: b.Visibility,
		}
		switch b.Kind {
		case KindUniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case KindTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case KindSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		}
		entries = append(entries, e)
	}
	return entries
}
