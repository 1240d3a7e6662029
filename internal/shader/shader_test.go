package shader

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/andewx/diesel/driver"
)

const triangle = `
@vertex
fn vs_main(@location(0) pos: vec4<f32>) -> @builtin(position) vec4<f32> {
    return pos;
}

@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

const twoInputs = `
struct VertexIn {
    @location(0) pos: vec3<f32>,
    @location(3) id: u32,
    @builtin(vertex_index) vi: u32,
}

@vertex
fn vs_main(in: VertexIn) -> @builtin(position) vec4<f32> {
    return vec4<f32>(in.pos, 1.0);
}
`

func TestParseProfile(t *testing.T) {
	good := map[string]Profile{
		"vs_5_0": {driver.StageVertex, 5, 0},
		"ps_5_0": {driver.StagePixel, 5, 0},
		"vs_4_1": {driver.StageVertex, 4, 1},
	}
	for s, want := range good {
		got, err := ParseProfile(s)
		if err != nil {
			t.Errorf("ParseProfile(%q): %v", s, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProfile(%q) = %+v, want %+v", s, got, want)
		}
		if got.String() != s {
			t.Errorf("String() = %q, want %q", got.String(), s)
		}
	}
	for _, s := range []string{"", "vs_5", "gs_5_0", "vs_6_0", "vs_x_0", "cs_5_0"} {
		if _, err := ParseProfile(s); err == nil {
			t.Errorf("ParseProfile(%q) succeeded", s)
		}
	}
}

func TestCompileVertexSignature(t *testing.T) {
	bc, m, err := Compile(triangle, "triangle.wgsl", "vs_main", "vs_5_0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("nil module")
	}
	if len(bc.Inputs) != 1 {
		t.Fatalf("inputs = %v", bc.Inputs)
	}
	in := bc.Inputs[0]
	if in.Semantic != "TEXCOORD" || in.Index != 0 || in.Components != 4 || in.Kind != driver.ComponentFloat {
		t.Errorf("input = %+v", in)
	}
}

func TestCompileStructInputs(t *testing.T) {
	bc, _, err := Compile(twoInputs, "", "vs_main", "vs_5_0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bc.Inputs) != 2 {
		t.Fatalf("inputs = %v, want the two located members", bc.Inputs)
	}
	if bc.Inputs[1].Index != 3 || bc.Inputs[1].Kind != driver.ComponentUint || bc.Inputs[1].Components != 1 {
		t.Errorf("second input = %+v", bc.Inputs[1])
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name, src, entry, target string
	}{
		{"syntax", "fn broken( {", "vs_main", "vs_5_0"},
		{"missing entry", triangle, "main", "vs_5_0"},
		{"wrong stage", triangle, "ps_main", "vs_5_0"},
		{"bad profile", triangle, "vs_main", "hs_5_0"},
	}
	for _, c := range cases {
		_, _, err := Compile(c.src, "bad.wgsl", c.entry, c.target, Options{})
		if err == nil {
			t.Errorf("%s: compile succeeded", c.name)
			continue
		}
		ce, ok := err.(*CompileError)
		if !ok {
			t.Errorf("%s: error %T, want *CompileError", c.name, err)
			continue
		}
		if !strings.HasPrefix(ce.Error(), "bad.wgsl: ") {
			t.Errorf("%s: diagnostics %q lack the source name", c.name, ce.Error())
		}
	}
}

func TestCompileSPIRV(t *testing.T) {
	bc, _, err := Compile(triangle, "", "vs_main", "vs_5_0", Options{SPIRV: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(bc.SPIRV) < 20 || len(bc.SPIRV)%4 != 0 {
		t.Fatalf("SPIR-V size %d", len(bc.SPIRV))
	}
	if magic := binary.LittleEndian.Uint32(bc.SPIRV); magic != 0x07230203 {
		t.Errorf("SPIR-V magic %#x", magic)
	}
}

func TestContainer(t *testing.T) {
	bc, _, err := Compile(triangle, "", "ps_main", "ps_5_0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	bc.SPIRV = []byte{1, 2, 3, 4, 5}
	data := bc.Encode()
	if len(data)%4 != 0 {
		t.Errorf("container length %d not word aligned", len(data))
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Entry != "ps_main" || got.Profile != bc.Profile || got.Source != triangle {
		t.Errorf("decoded %+v", got)
	}
	if !bytes.Equal(got.SPIRV, bc.SPIRV) {
		t.Errorf("SPIR-V = %v", got.SPIRV)
	}

	if _, err := Decode([]byte("DXBC0000000000000")); err != ErrNotBytecode {
		t.Errorf("foreign data: %v", err)
	}
	if _, err := Decode(data[:len(data)-8]); err == nil {
		t.Error("truncated container decoded")
	}
}

func TestLoad(t *testing.T) {
	bc, _, err := Compile(triangle, "", "vs_main", "vs_5_0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, m, ep, err := Load(bc.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if ep.Name != "vs_main" || m.Functions[ep.Function].Result == nil {
		t.Errorf("entry point %+v", ep)
	}
}

func TestValidateLayout(t *testing.T) {
	sig := Signature{{Semantic: "TEXCOORD", Index: 0, Components: 4, Kind: driver.ComponentFloat}}
	el := func(name string, index uint32, f driver.Format) driver.InputElementDesc {
		return driver.InputElementDesc{SemanticName: name, SemanticIndex: index, Format: f}
	}

	ok := [][]driver.InputElementDesc{
		{el("TEXCOORD", 0, driver.FormatR32G32B32Float)},
		{el("texcoord", 0, driver.FormatR32G32B32A32Float)},
		{el("POSITION", 0, driver.FormatR32G32B32Float)},
		{el("POSITION", 0, driver.FormatR32G32B32Float), el("COLOR", 0, driver.FormatR8G8B8A8Unorm)},
	}
	for _, elements := range ok {
		if err := ValidateLayout(elements, sig); err != nil {
			t.Errorf("%v: %v", elements, err)
		}
	}

	bad := [][]driver.InputElementDesc{
		nil,
		{el("TEXCOORD", 1, driver.FormatR32G32B32Float)},
		{el("TEXCOORD", 0, driver.FormatR32G32B32Uint)},
		{el("TEXCOORD", 0, driver.FormatUnknown)},
		{el("", 0, driver.FormatR32G32B32Float)},
		{el("TEXCOORD", 0, driver.FormatR32G32B32Float), el("texcoord", 0, driver.FormatR32Float)},
	}
	for _, elements := range bad {
		err := ValidateLayout(elements, sig)
		if _, isLayout := err.(*LayoutError); !isLayout {
			t.Errorf("%v: got %v, want *LayoutError", elements, err)
		}
	}
}

func TestResolveOffsets(t *testing.T) {
	elements := []driver.InputElementDesc{
		{SemanticName: "A", Format: driver.FormatR32G32B32Float, AlignedByteOffset: driver.AppendAlignedElement},
		{SemanticName: "B", Format: driver.FormatR32Float, AlignedByteOffset: driver.AppendAlignedElement},
		{SemanticName: "C", Format: driver.FormatR32G32Float, AlignedByteOffset: 32},
		{SemanticName: "D", Format: driver.FormatR32Float, InputSlot: 1, AlignedByteOffset: driver.AppendAlignedElement},
	}
	got := ResolveOffsets(elements)
	want := []uint32{0, 12, 32, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
