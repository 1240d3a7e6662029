package soft

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDevice(t *testing.T, opts Options) (*Platform, *Device, *Context) {
	t.Helper()
	if opts.Log == nil {
		opts.Log = quietLog()
	}
	p := New(opts)
	status, dev, ctx := p.CreateDevice(0)
	if status.Failed() {
		t.Fatalf("CreateDevice: %v", status)
	}
	return p, dev.(*Device), ctx.(*Context)
}

func compile(t *testing.T, src, entry, target string) []byte {
	t.Helper()
	bc, _, err := shader.Compile(src, "test.wgsl", entry, target, shader.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return bc.Encode()
}

func floats(v ...float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

const flatShader = `
@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 1.0);
}

@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.0, 1.0);
}
`

func TestNoHardware(t *testing.T) {
	p := New(Options{NoHardware: true, Log: quietLog()})
	status, dev, ctx := p.CreateDevice(0)
	if status != driver.ErrUnsupported || dev != nil || ctx != nil {
		t.Errorf("CreateDevice = %v, %v, %v", status, dev, ctx)
	}
	if n := p.LiveObjects(); n != 0 {
		t.Errorf("%d live objects", n)
	}
}

func TestObjectLifetime(t *testing.T) {
	p, dev, ctx := newTestDevice(t, Options{})
	_, tex := dev.CreateTexture2D(&driver.Texture2DDesc{
		Width: 4, Height: 4, Format: driver.FormatB8G8R8A8Unorm, BindFlags: driver.BindRenderTarget,
	}, nil)
	_, rtv := dev.CreateRenderTargetView(tex)
	ctx.OMSetRenderTargets([]driver.RenderTargetView{rtv})
	if n := p.LiveObjects(); n != 4 {
		t.Fatalf("live = %d, want 4", n)
	}
	if refs := tex.Release(); refs != 1 {
		t.Errorf("texture refs after owner release = %d, want 1 held by the view", refs)
	}
	if refs := rtv.Release(); refs != 1 {
		t.Errorf("view refs after owner release = %d, want 1 held by the context", refs)
	}
	ctx.Release()
	if n := p.LiveObjects(); n != 1 {
		t.Errorf("live = %d, want only the device", n)
	}
	dev.Release()
	if n := p.LiveObjects(); n != 0 {
		t.Errorf("live = %d after releasing everything", n)
	}

	defer func() {
		if recover() == nil {
			t.Error("Release on a freed object did not panic")
		}
	}()
	dev.Release()
}

func TestCreateBufferValidation(t *testing.T) {
	_, dev, _ := newTestDevice(t, Options{})
	cases := []struct {
		name string
		desc driver.BufferDesc
		init []byte
		want driver.Status
	}{
		{"default", driver.BufferDesc{ByteWidth: 16, BindFlags: driver.BindVertexBuffer}, nil, driver.StatusOK},
		{"zero size", driver.BufferDesc{BindFlags: driver.BindVertexBuffer}, nil, driver.ErrInvalidArg},
		{"immutable without data", driver.BufferDesc{ByteWidth: 16, Usage: driver.UsageImmutable}, nil, driver.ErrInvalidArg},
		{"short data", driver.BufferDesc{ByteWidth: 16}, make([]byte, 8), driver.ErrInvalidArg},
		{"staging bound", driver.BufferDesc{ByteWidth: 16, Usage: driver.UsageStaging, BindFlags: driver.BindVertexBuffer, CPUAccessFlags: driver.CPUAccessRead}, nil, driver.ErrInvalidArg},
		{"dynamic", driver.BufferDesc{ByteWidth: 16, Usage: driver.UsageDynamic, CPUAccessFlags: driver.CPUAccessWrite}, nil, driver.StatusOK},
		{"structured stride", driver.BufferDesc{ByteWidth: 16, MiscFlags: driver.ResourceMiscBufferStructured, StructureByteStride: 3}, nil, driver.ErrInvalidArg},
	}
	for _, c := range cases {
		var init *driver.SubresourceData
		if c.init != nil {
			init = &driver.SubresourceData{SysMem: c.init}
		}
		status, buf := dev.CreateBuffer(&c.desc, init)
		if status != c.want {
			t.Errorf("%s: status %v, want %v", c.name, status, c.want)
		}
		if (buf != nil) != status.Succeeded() {
			t.Errorf("%s: buffer %v with status %v", c.name, buf, status)
		}
		if buf != nil {
			buf.Release()
		}
	}
}

func TestMapRules(t *testing.T) {
	_, dev, ctx := newTestDevice(t, Options{})
	_, staging := dev.CreateBuffer(&driver.BufferDesc{
		ByteWidth: 8, Usage: driver.UsageStaging, CPUAccessFlags: driver.CPUAccessRead,
	}, nil)
	_, def := dev.CreateBuffer(&driver.BufferDesc{ByteWidth: 8}, &driver.SubresourceData{SysMem: []byte{1, 2, 3, 4, 5, 6, 7, 8}})

	if status, _ := ctx.Map(def, 0, driver.MapRead); status != driver.ErrInvalidArg {
		t.Errorf("map default buffer: %v", status)
	}
	if status, _ := ctx.Map(staging, 0, driver.MapWrite); status != driver.ErrInvalidArg {
		t.Errorf("map read-only staging for write: %v", status)
	}
	ctx.CopyResource(staging, def)
	status, m := ctx.Map(staging, 0, driver.MapRead)
	if status.Failed() {
		t.Fatalf("map: %v", status)
	}
	if m.Data[7] != 8 || m.RowPitch != 8 {
		t.Errorf("mapped %v pitch %d", m.Data, m.RowPitch)
	}
	if status, _ := ctx.Map(staging, 0, driver.MapRead); status != driver.ErrInvalidArg {
		t.Errorf("second map: %v", status)
	}
	ctx.Unmap(staging, 0)
	if status, _ := ctx.Map(staging, 0, driver.MapRead); status.Failed() {
		t.Errorf("map after unmap: %v", status)
	}
}

func quad(x0, y0, x1, y1 float64) [2][3]screenVertex {
	v := func(x, y float64) screenVertex { return screenVertex{x: x, y: y, invW: 1} }
	return [2][3]screenVertex{
		{v(x0, y0), v(x1, y0), v(x1, y1)},
		{v(x0, y0), v(x1, y1), v(x0, y1)},
	}
}

func TestCoverTopLeft(t *testing.T) {
	hits := map[[2]int]int{}
	clip := rect{0, 0, 8, 8}
	for _, tri := range quad(2.5, 2.5, 5.5, 5.5) {
		err := cover(tri, clip, func(px, py int, l [3]float64) error {
			hits[[2]int{px, py}]++
			if s := l[0] + l[1] + l[2]; math.Abs(s-1) > 1e-9 {
				t.Errorf("weights at (%d, %d) sum to %v", px, py, s)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := 0
			if x >= 2 && x <= 4 && y >= 2 && y <= 4 {
				want = 1
			}
			if got := hits[[2]int{x, y}]; got != want {
				t.Errorf("pixel (%d, %d) covered %d times, want %d", x, y, got, want)
			}
		}
	}
}

func TestCoverCullsCounterClockwise(t *testing.T) {
	tri := quad(0, 0, 8, 8)[0]
	tri[1], tri[2] = tri[2], tri[1]
	n := 0
	cover(tri, rect{0, 0, 8, 8}, func(int, int, [3]float64) error { n++; return nil })
	if n != 0 {
		t.Errorf("counter-clockwise triangle covered %d pixels", n)
	}
}

func TestEncode(t *testing.T) {
	px := make([]byte, 4)
	encode(driver.FormatB8G8R8A8Unorm, px, []float64{0, 0.2, 0.4, 1})
	if want := []byte{102, 51, 0, 255}; string(px) != string(want) {
		t.Errorf("BGRA = %v, want %v", px, want)
	}
	encode(driver.FormatR8G8B8A8Unorm, px, []float64{2, -1, math.NaN()})
	if want := []byte{255, 0, 0, 255}; string(px) != string(want) {
		t.Errorf("RGBA = %v, want %v", px, want)
	}
	got := decode(driver.FormatR32G32Float, floats(3, 4))
	if got[0] != 3 || got[1] != 4 || got[2] != 0 || got[3] != 1 {
		t.Errorf("decode = %v", got)
	}
}

// pipeline binds an 8x8 render target and the shaders in src.
func pipeline(t *testing.T, dev *Device, ctx *Context, src string, verts []byte) *Texture2D {
	t.Helper()
	_, tex := dev.CreateTexture2D(&driver.Texture2DDesc{
		Width: 8, Height: 8, Format: driver.FormatR8G8B8A8Unorm, BindFlags: driver.BindRenderTarget,
	}, nil)
	_, rtv := dev.CreateRenderTargetView(tex)
	vsCode := compile(t, src, "vs_main", "vs_5_0")
	_, vs := dev.CreateVertexShader(vsCode)
	_, ps := dev.CreatePixelShader(compile(t, src, "ps_main", "ps_5_0"))
	status, layout := dev.CreateInputLayout([]driver.InputElementDesc{
		{SemanticName: "POSITION", Format: driver.FormatR32G32B32Float},
	}, vsCode)
	if status.Failed() {
		t.Fatalf("input layout: %v", status)
	}
	_, vb := dev.CreateBuffer(&driver.BufferDesc{ByteWidth: uint32(len(verts)), BindFlags: driver.BindVertexBuffer},
		&driver.SubresourceData{SysMem: verts})

	ctx.OMSetRenderTargets([]driver.RenderTargetView{rtv})
	ctx.RSSetViewports([]driver.Viewport{{Width: 8, Height: 8, MaxDepth: 1}})
	ctx.VSSetShader(vs)
	ctx.PSSetShader(ps)
	ctx.IASetInputLayout(layout)
	ctx.IASetVertexBuffers(0, []driver.Buffer{vb}, []uint32{12}, []uint32{0})
	ctx.IASetPrimitiveTopology(driver.TopologyTriangleList)
	ctx.ClearRenderTargetView(rtv, [4]float32{0, 0, 0, 1})
	for _, o := range []driver.Unknown{rtv, vs, ps, layout, vb} {
		o.Release()
	}
	return tex.(*Texture2D)
}

func pixel(tex *Texture2D, x, y int) []byte {
	off := y*tex.pitch + x*4
	return tex.data[off : off+4]
}

func TestDrawQuad(t *testing.T) {
	p, dev, ctx := newTestDevice(t, Options{})
	// Two clockwise triangles covering pixel centers 2..4 on both axes.
	verts := floats(
		-0.375, 0.375, 0, 0.375, 0.375, 0, 0.375, -0.375, 0,
		-0.375, 0.375, 0, 0.375, -0.375, 0, -0.375, -0.375, 0,
	)
	tex := pipeline(t, dev, ctx, flatShader, verts)
	ctx.Draw(6, 0)

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := []byte{0, 0, 0, 255}
			if x >= 2 && x <= 4 && y >= 2 && y <= 4 {
				want = []byte{255, 128, 0, 255}
			}
			if got := pixel(tex, x, y); string(got) != string(want) {
				t.Errorf("pixel (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
	tex.Release()
	ctx.Release()
	dev.Release()
	if n := p.LiveObjects(); n != 0 {
		t.Errorf("%d objects leaked", n)
	}
}

const varyingShader = `
struct VertexOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> VertexOut {
    var out: VertexOut;
    out.pos = vec4<f32>(pos, 1.0);
    out.color = vec4<f32>(pos.x * 0.5 + 0.5, 0.0, 0.0, 1.0);
    return out;
}

@fragment
fn ps_main(in: VertexOut) -> @location(0) vec4<f32> {
    if in.pos.y < 4.0 {
        discard;
    }
    return in.color;
}
`

func TestDrawVaryingAndDiscard(t *testing.T) {
	_, dev, ctx := newTestDevice(t, Options{})
	verts := floats(-1, 1, 0, 1, 1, 0, 1, -1, 0, -1, 1, 0, 1, -1, 0, -1, -1, 0)
	tex := pipeline(t, dev, ctx, varyingShader, verts)
	ctx.Draw(6, 0)

	if got := pixel(tex, 3, 1); got[0] != 0 {
		t.Errorf("discarded pixel written: %v", got)
	}
	// Red follows x: pixel center 0.5 maps to 0.5/8, center 7.5 to 7.5/8.
	for _, x := range []int{0, 3, 7} {
		want := byte(math.RoundToEven((float64(x) + 0.5) / 8 * 255))
		got := pixel(tex, x, 6)[0]
		if d := int(got) - int(want); d < -1 || d > 1 {
			t.Errorf("red at x=%d is %d, want %d", x, got, want)
		}
	}
}

func TestDrawDroppedOnLayoutMismatch(t *testing.T) {
	_, dev, ctx := newTestDevice(t, Options{})
	verts := floats(-1, 1, 0, 1, 1, 0, 1, -1, 0)
	tex := pipeline(t, dev, ctx, flatShader, verts)

	other := `
@vertex
fn vs_main(@location(2) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 1.0);
}`
	_, vs := dev.CreateVertexShader(compile(t, other, "vs_main", "vs_5_0"))
	ctx.VSSetShader(vs)
	vs.Release()
	ctx.Draw(3, 0)
	for i := 0; i < len(tex.data); i += 4 {
		if tex.data[i] != 0 {
			t.Fatalf("draw with a mismatched layout wrote byte %d", i)
		}
	}
}

const controlFlow = `
fn scale(v: vec2<f32>, k: f32) -> vec2<f32> {
    return v * k;
}

@vertex
fn vs_main(@builtin(vertex_index) vi: u32, @location(0) p: vec3<f32>) -> @builtin(position) vec4<f32> {
    var acc = 0.0;
    for (var i = 0u; i < 4u; i = i + 1u) {
        if i == 2u {
            continue;
        }
        acc = acc + f32(i);
    }
    var sel = 0.0;
    switch vi {
        case 0u: {
            sel = 1.0;
        }
        case 1u, 2u: {
            sel = 2.0;
        }
        default: {
            sel = 3.0;
        }
    }
    let m = mat2x2<f32>(vec2<f32>(2.0, 0.0), vec2<f32>(0.0, 3.0));
    let q = m * scale(p.xy, 0.5);
    return vec4<f32>(q, acc, sel);
}
`

func TestInterpreter(t *testing.T) {
	_, m, err := shader.Compile(controlFlow, "", "vs_main", "vs_5_0", shader.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ep, err := shader.EntryPoint(m, "vs_main", driver.StageVertex)
	if err != nil {
		t.Fatal(err)
	}
	mc := newMachine(m)
	for vi, sel := range []float64{1, 2, 2, 3} {
		in := &stageIO{vertexIndex: uint32(vi), loc: map[uint32]attr{0: {v: []float64{2, 4, 0, 1}}}}
		out, killed, err := mc.invoke(ep, in)
		if err != nil || killed {
			t.Fatalf("invoke: %v killed=%v", err, killed)
		}
		want := [4]float64{2, 6, 4, sel}
		if out.position != want {
			t.Errorf("vertex %d: position %v, want %v", vi, out.position, want)
		}
	}
}

func newSwapChain(t *testing.T, p *Platform, dev *Device, w *Window, effect driver.SwapEffect) *SwapChain {
	t.Helper()
	_, f := p.CreateFactory()
	defer f.Release()
	status, sc := f.CreateSwapChainForHwnd(dev, w, &driver.SwapChainDesc1{
		Format:      driver.FormatB8G8R8A8Unorm,
		SampleDesc:  driver.SampleDesc{Count: 1},
		BufferUsage: driver.UsageRenderTargetOutput,
		BufferCount: 2,
		SwapEffect:  effect,
	})
	if status.Failed() {
		t.Fatalf("CreateSwapChainForHwnd: %v", status)
	}
	return sc.(*SwapChain)
}

func TestPresentPacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p, dev, _ := newTestDevice(t, Options{Clock: clock})
	start := clock.now
	sc := newSwapChain(t, p, dev, &Window{Width: 4, Height: 4}, driver.SwapEffectFlipDiscard)
	period := p.RefreshPeriod()

	for i := 1; i <= 3; i++ {
		if status := sc.Present(1, 0); status != driver.StatusOK {
			t.Fatalf("present %d: %v", i, status)
		}
		if elapsed := clock.now.Sub(start); elapsed < time.Duration(i)*period {
			t.Errorf("present %d returned after %v, want at least %v", i, elapsed, time.Duration(i)*period)
		}
	}

	// A late frame still waits a full period and flips on a blank.
	clock.now = clock.now.Add(period*5/2 + 1)
	called := clock.now
	sc.Present(1, 0)
	if got, want := clock.now.Sub(start), 7*period; got != want {
		t.Errorf("late present flipped at %v, want %v", got, want)
	}
	if waited := clock.now.Sub(called); waited < period {
		t.Errorf("late present waited %v, want at least %v", waited, period)
	}

	before := clock.now
	sc.Present(0, 0)
	if clock.now != before {
		t.Error("sync interval 0 waited")
	}
	if sc.Present(2, 0); clock.now.Sub(before) != 2*period {
		t.Errorf("sync interval 2 waited %v", clock.now.Sub(before))
	}
	if sc.PresentCount() != 6 || p.Presents() != 6 {
		t.Errorf("presents = %d / %d", sc.PresentCount(), p.Presents())
	}
}

func TestPresentStatus(t *testing.T) {
	p, dev, _ := newTestDevice(t, Options{Clock: &fakeClock{}})
	w := &Window{Width: 4, Height: 4}
	sc := newSwapChain(t, p, dev, w, driver.SwapEffectFlipDiscard)

	if status := sc.Present(5, 0); status != driver.ErrInvalidCall {
		t.Errorf("interval 5: %v", status)
	}
	if status := sc.Present(1, driver.PresentTest); status != driver.StatusOK || sc.PresentCount() != 0 {
		t.Errorf("test present: %v, count %d", status, sc.PresentCount())
	}
	w.Width = 0
	if status := sc.Present(1, 0); status != driver.StatusOccluded {
		t.Errorf("occluded: %v", status)
	}
	w.Width, w.Closed = 4, true
	if status := sc.Present(1, 0); status != driver.ErrInvalidCall {
		t.Errorf("closed window: %v", status)
	}
	w.Closed = false
	p.LoseDevice(driver.ErrDeviceHung)
	if status := sc.Present(1, 0); status != driver.ErrDeviceRemoved {
		t.Errorf("lost device: %v", status)
	}
	if dev.RemovedReason() != driver.ErrDeviceHung {
		t.Errorf("removed reason %v", dev.RemovedReason())
	}
	if status, _ := dev.CreateBuffer(&driver.BufferDesc{ByteWidth: 4}, nil); status != driver.ErrDeviceRemoved {
		t.Errorf("create on lost device: %v", status)
	}
}

func TestSwapChainFlip(t *testing.T) {
	p, dev, ctx := newTestDevice(t, Options{Clock: &fakeClock{}})
	sc := newSwapChain(t, p, dev, &Window{Width: 2, Height: 2}, driver.SwapEffectFlipDiscard)
	if d := sc.Desc(); d.Width != 2 || d.Height != 2 {
		t.Errorf("size from window = %dx%d", d.Width, d.Height)
	}
	if status, _ := sc.GetBuffer(2); status != driver.ErrInvalidCall {
		t.Errorf("GetBuffer(2): %v", status)
	}
	_, back := sc.GetBuffer(0)
	_, rtv := dev.CreateRenderTargetView(back)
	ctx.ClearRenderTargetView(rtv, [4]float32{1, 0, 0, 1})
	sc.Present(0, 0)

	if front := sc.Front(); front[0] != 0 || front[2] != 255 {
		t.Errorf("front buffer %v, want red BGRA", front[:4])
	}
	if got := back.(*Texture2D).data[2]; got != 0 {
		t.Errorf("back buffer after flip still holds the presented image")
	}

	rtv.Release()
	back.Release()
	sc.Release()
	ctx.Release()
	dev.Release()
	if n := p.LiveObjects(); n != 0 {
		t.Errorf("%d objects leaked", n)
	}
}
