//go:build windows

package d3d11

import (
	"io"
	"testing"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
)

func TestNativeLayouts(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"D3D11_BUFFER_DESC", unsafe.Sizeof(driver.BufferDesc{}), 24},
		{"D3D11_TEXTURE2D_DESC", unsafe.Sizeof(driver.Texture2DDesc{}), 44},
		{"D3D11_VIEWPORT", unsafe.Sizeof(driver.Viewport{}), 24},
		{"DXGI_SWAP_CHAIN_DESC1", unsafe.Sizeof(swapChainDesc1{}), 48},
		{"D3D11_INPUT_ELEMENT_DESC", unsafe.Sizeof(inputElementDesc{}), unsafe.Sizeof(uintptr(0)) + 24},
		{"D3D11_SUBRESOURCE_DATA", unsafe.Sizeof(subresourceData{}), unsafe.Sizeof(uintptr(0)) + 8},
		{"D3D11_MAPPED_SUBRESOURCE", unsafe.Sizeof(mappedSubresource{}), unsafe.Sizeof(uintptr(0)) + 8},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: size %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestSwapChainDescRoundTrip(t *testing.T) {
	in := driver.SwapChainDesc1{
		Format:      driver.FormatB8G8R8A8Unorm,
		Stereo:      true,
		SampleDesc:  driver.SampleDesc{Count: 1},
		BufferUsage: driver.UsageRenderTargetOutput,
		BufferCount: 2,
		SwapEffect:  driver.SwapEffectFlipDiscard,
		AlphaMode:   driver.AlphaModeIgnore,
	}
	n := nativeSwapChainDesc(&in)
	if n.Stereo != 1 || n.SwapEffect != 4 || n.AlphaMode != 3 || n.Format != 87 {
		t.Fatalf("native = %+v", n)
	}
	if out := n.driverDesc(); out != in {
		t.Errorf("driverDesc = %+v, want %+v", out, in)
	}
}

const triangle = `
@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
	return vec4<f32>(pos, 1.0);
}

@fragment
fn ps_main() -> @location(0) vec4<f32> {
	return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBufferReadback(t *testing.T) {
	p, err := New(Options{Log: quiet()})
	if err != nil {
		t.Skip(err)
	}
	status, dev, ctx := p.CreateDevice(driver.CreateDeviceBGRASupport)
	if status.Failed() {
		t.Skip(status)
	}
	defer dev.Release()
	defer ctx.Release()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	status, src := dev.CreateBuffer(&driver.BufferDesc{
		ByteWidth: uint32(len(data)),
		Usage:     driver.UsageImmutable,
		BindFlags: driver.BindVertexBuffer,
	}, &driver.SubresourceData{SysMem: data})
	if status.Failed() {
		t.Fatal(status)
	}
	defer src.Release()
	status, staging := dev.CreateBuffer(&driver.BufferDesc{
		ByteWidth:      uint32(len(data)),
		Usage:          driver.UsageStaging,
		CPUAccessFlags: driver.CPUAccessRead,
	}, nil)
	if status.Failed() {
		t.Fatal(status)
	}
	defer staging.Release()

	ctx.CopyResource(staging, src)
	status, m := ctx.Map(staging, 0, driver.MapRead)
	if status.Failed() {
		t.Fatal(status)
	}
	if string(m.Data) != string(data) {
		t.Errorf("readback = %v, want %v", m.Data, data)
	}
	ctx.Unmap(staging, 0)

	if status, _ := dev.CreateBuffer(&driver.BufferDesc{ByteWidth: 32, Usage: driver.UsageImmutable, BindFlags: driver.BindVertexBuffer},
		&driver.SubresourceData{SysMem: data}); status != driver.ErrInvalidArg {
		t.Errorf("short initial data = %v", status)
	}
}

func TestCompileAndLayout(t *testing.T) {
	p, err := New(Options{Log: quiet()})
	if err != nil {
		t.Skip(err)
	}
	status, code, diag := p.Compile([]byte(triangle), "triangle.wgsl", "vs_main", "vs_5_0", 0)
	if diag != nil {
		defer diag.Release()
	}
	if status.Failed() {
		var msg []byte
		if diag != nil {
			msg = diag.Bytes()
		}
		t.Fatalf("compile: %v: %s", status, msg)
	}
	defer code.Release()
	if b := code.Bytes(); len(b) < 4 || string(b[:4]) != "DXBC" {
		t.Fatalf("bytecode does not start with DXBC")
	}

	status, dev, ctx := p.CreateDevice(0)
	if status.Failed() {
		t.Skip(status)
	}
	defer dev.Release()
	defer ctx.Release()

	elements := []driver.InputElementDesc{{SemanticName: "TEXCOORD", Format: driver.FormatR32G32B32Float}}
	status, layout := dev.CreateInputLayout(elements, code.Bytes())
	if status.Failed() {
		t.Fatalf("matching layout: %v", status)
	}
	layout.Release()

	wrong := []driver.InputElementDesc{{SemanticName: "COLOR", Format: driver.FormatR32G32B32Float}}
	if status, l := dev.CreateInputLayout(wrong, code.Bytes()); status.Succeeded() {
		l.Release()
		t.Error("layout with a foreign semantic was accepted")
	}

	status, _, diag2 := p.Compile([]byte("fn broken("), "broken.wgsl", "vs_main", "vs_5_0", 0)
	if status.Succeeded() || diag2 == nil {
		t.Fatal("broken source compiled")
	}
	diag2.Release()
}
