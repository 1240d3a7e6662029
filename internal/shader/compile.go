package shader

import (
	"strings"

	"github.com/andewx/diesel/driver"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/pkg/errors"
)

type Options struct {
	// SPIRV embeds a SPIR-V module for the Vulkan platform.
	SPIRV bool
}

// CompileError carries the diagnostics of a failed compile, one line each.
type CompileError struct {
	Name     string
	Messages []string
}

func (e *CompileError) Error() string {
	prefix := e.Name
	if prefix == "" {
		prefix = "shader"
	}
	lines := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		lines[i] = prefix + ": " + m
	}
	return strings.Join(lines, "\n")
}

func compileError(name string, err error) *CompileError {
	return &CompileError{Name: name, Messages: strings.Split(strings.TrimSpace(err.Error()), "\n")}
}

// Module parses, lowers and validates WGSL source.
func Module(source, name string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, compileError(name, err)
	}
	m, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, compileError(name, err)
	}
	verrs, err := naga.Validate(m)
	if err != nil {
		return nil, compileError(name, err)
	}
	if len(verrs) > 0 {
		ce := &CompileError{Name: name}
		for _, v := range verrs {
			ce.Messages = append(ce.Messages, v.Error())
		}
		return nil, ce
	}
	return m, nil
}

// EntryPoint finds the entry point called name for stage.
func EntryPoint(m *ir.Module, name string, stage driver.ShaderStage) (*ir.EntryPoint, error) {
	want := ir.StageVertex
	if stage == driver.StagePixel {
		want = ir.StageFragment
	}
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Name != name {
			continue
		}
		if ep.Stage != want {
			return nil, errors.Errorf("entry point %s is not a %s shader", name, stage)
		}
		return ep, nil
	}
	return nil, errors.Errorf("entry point %s not found", name)
}

// Compile turns WGSL source into Bytecode for entry and target. All errors
// are *CompileError so the platform can hand their text back as diagnostics.
func Compile(source, name, entry, target string, opts Options) (*Bytecode, *ir.Module, error) {
	profile, err := ParseProfile(target)
	if err != nil {
		return nil, nil, compileError(name, err)
	}
	m, err := Module(source, name)
	if err != nil {
		return nil, nil, err
	}
	ep, err := EntryPoint(m, entry, profile.Stage)
	if err != nil {
		return nil, nil, compileError(name, err)
	}
	inputs, err := InputSignature(m, ep)
	if err != nil {
		return nil, nil, compileError(name, err)
	}
	bc := &Bytecode{
		Profile: profile,
		Entry:   entry,
		Source:  source,
		Inputs:  inputs,
	}
	if opts.SPIRV {
		if bc.SPIRV, err = naga.GenerateSPIRV(m, spirv.Options{Version: spirv.Version1_3}); err != nil {
			return nil, nil, compileError(name, err)
		}
	}
	return bc, m, nil
}

// Load decodes bytecode and rebuilds its module and entry point.
func Load(data []byte) (*Bytecode, *ir.Module, *ir.EntryPoint, error) {
	bc, err := Decode(data)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := Module(bc.Source, "")
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "bytecode source")
	}
	ep, err := EntryPoint(m, bc.Entry, bc.Profile.Stage)
	if err != nil {
		return nil, nil, nil, err
	}
	return bc, m, ep, nil
}
