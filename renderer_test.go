package diesel_test

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/andewx/diesel"
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/soft"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newPlatform(clock *fakeClock) *soft.Platform {
	if clock == nil {
		clock = &fakeClock{now: time.Unix(0, 0)}
	}
	return soft.New(soft.Options{Clock: clock, Log: quiet()})
}

func newRenderer(t *testing.T, p *soft.Platform, scene diesel.Scene) *diesel.Renderer {
	t.Helper()
	r := diesel.NewRenderer(p, &soft.Window{Width: 64, Height: 48}, scene, quiet())
	t.Cleanup(r.Release)
	return r
}

func TestCreateDeviceWithoutHardware(t *testing.T) {
	p := soft.New(soft.Options{NoHardware: true, Log: quiet()})
	dev, ctx, err := diesel.CreateDevice(p)
	if dev != nil || ctx != nil {
		t.Error("objects returned on failure")
	}
	var e *diesel.Error
	if !errors.As(err, &e) || e.Status != driver.ErrUnsupported {
		t.Errorf("err = %v", err)
	}

	r := diesel.NewRenderer(p, &soft.Window{Width: 8, Height: 8}, diesel.DefaultScene(), quiet())
	if err := r.Init(); err == nil || r.Stage() != diesel.StageUninitialized {
		t.Errorf("Init = %v at stage %s", err, r.Stage())
	}
}

// inside reports the signed distance in pixels from (x, y) to the nearest edge
// of the clockwise screen triangle v, positive inside.
func inside(v [3][2]float64, x, y float64) float64 {
	d := math.Inf(1)
	for i := 0; i < 3; i++ {
		a, b := v[i], v[(i+1)%3]
		dx, dy := b[0]-a[0], b[1]-a[1]
		e := (dx*(y-a[1]) - dy*(x-a[0])) / math.Hypot(dx, dy)
		d = math.Min(d, e)
	}
	return d
}

func TestRendererTriangle(t *testing.T) {
	p := newPlatform(nil)
	scene := diesel.DefaultScene()
	r := newRenderer(t, p, scene)
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	if r.Stage() != diesel.StagePipelineBound {
		t.Fatalf("stage %s after Init", r.Stage())
	}
	if err := r.Draw(); err != nil {
		t.Fatal(err)
	}
	img, err := r.Capture()
	if err != nil {
		t.Fatal(err)
	}

	const w, h = 64, 48
	var tri [3][2]float64
	for i, v := range scene.Vertices {
		tri[i] = [2]float64{(float64(v[0]) + 1) / 2 * w, (1 - float64(v[1])) / 2 * h}
	}
	white, clear := 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			d := inside(tri, float64(x)+0.5, float64(y)+0.5)
			switch {
			case d > 0.01:
				if c.R != 255 || c.G != 255 || c.B != 255 || c.A != 255 {
					t.Errorf("pixel (%d, %d) inside the triangle is %v", x, y, c)
				}
				white++
			case d < -0.01:
				if c.R != 0 || c.G != 51 || c.B != 102 || c.A != 255 {
					t.Errorf("pixel (%d, %d) outside the triangle is %v", x, y, c)
				}
				clear++
			}
		}
	}
	if white == 0 || clear == 0 {
		t.Errorf("white %d clear %d", white, clear)
	}

	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	if r.Stage() != diesel.StageFrameLoop || r.Frames() != 1 {
		t.Errorf("stage %s frames %d", r.Stage(), r.Frames())
	}
}

func TestRendererReleasesEverything(t *testing.T) {
	p := newPlatform(nil)
	r := diesel.NewRenderer(p, &soft.Window{Width: 16, Height: 16}, diesel.DefaultScene(), quiet())
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.Frame(); err != nil {
			t.Fatal(err)
		}
	}
	if p.LiveObjects() == 0 {
		t.Fatal("no live objects while running")
	}
	r.Release()
	r.Release()
	if n := p.LiveObjects(); n != 0 {
		t.Errorf("%d objects alive after Release", n)
	}
}

func TestPresentPacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := newPlatform(clock)
	r := newRenderer(t, p, diesel.DefaultScene())
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	start := clock.now
	const n = 5
	for i := 0; i < n; i++ {
		if err := r.Frame(); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed, want := clock.now.Sub(start), n*p.RefreshPeriod(); elapsed < want {
		t.Errorf("%d vsynced presents took %v, want at least %v", n, elapsed, want)
	}
	if p.Presents() != n {
		t.Errorf("presents = %d", p.Presents())
	}
}

func TestPresentPacingAfterLateStart(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := newPlatform(clock)
	r := newRenderer(t, p, diesel.DefaultScene())
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	period := p.RefreshPeriod()
	clock.now = clock.now.Add(period * 5 / 2)
	start := clock.now
	const n = 3
	for i := 0; i < n; i++ {
		if err := r.Frame(); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := clock.now.Sub(start); elapsed < n*period {
		t.Errorf("%d presents after a late start took %v, want at least %v", n, elapsed, n*period)
	}
}

func TestStageOrder(t *testing.T) {
	r := newRenderer(t, newPlatform(nil), diesel.DefaultScene())
	if err := r.Draw(); err == nil {
		t.Error("Draw before Init succeeded")
	}
	if err := r.Present(); err == nil {
		t.Error("Present before Draw succeeded")
	}
	if err := r.BindPipeline(); err == nil || r.Stage() != diesel.StageUninitialized {
		t.Errorf("BindPipeline out of order: %v, stage %s", err, r.Stage())
	}
	if err := r.CreateDevice(); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateDevice(); err == nil {
		t.Error("device stage re-entered")
	}
	if err := r.CreateSwapChain(); err != nil || r.Stage() != diesel.StageSwapchainReady {
		t.Errorf("CreateSwapChain: %v, stage %s", err, r.Stage())
	}
}

func TestCompileFailureHalts(t *testing.T) {
	scene := diesel.DefaultScene()
	scene.PixelSource = "@fragment fn ps_main() -> @location(0) vec4<f32> { return undefined_name; }"
	r := newRenderer(t, newPlatform(nil), scene)
	err := r.Init()
	if err == nil {
		t.Fatal("Init succeeded with a broken pixel shader")
	}
	if r.Stage() != diesel.StageSwapchainReady {
		t.Errorf("stage %s", r.Stage())
	}
	var e *diesel.Error
	if !errors.As(err, &e) || e.Status != driver.ErrFail || e.Detail == "" {
		t.Fatalf("err = %#v", err)
	}
	if !strings.Contains(e.Op, "ps_5_0") {
		t.Errorf("op %q does not name the profile", e.Op)
	}
	if err := r.CompileShaders(); err == nil || !strings.Contains(err.Error(), "halted") {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestInputLayoutMismatch(t *testing.T) {
	scene := diesel.DefaultScene()
	scene.InputElements[0].SemanticIndex = 1
	r := newRenderer(t, newPlatform(nil), scene)
	err := r.Init()
	if diesel.StatusOf(err) != driver.ErrInvalidArg {
		t.Errorf("err = %v", err)
	}
	if r.Stage() != diesel.StageSwapchainReady {
		t.Errorf("stage %s", r.Stage())
	}
}

func TestDeviceLost(t *testing.T) {
	p := newPlatform(nil)
	r := newRenderer(t, p, diesel.DefaultScene())
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	p.LoseDevice(driver.ErrDeviceHung)
	err := r.Frame()
	if diesel.StatusOf(err) != driver.ErrDeviceRemoved {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "DXGI_ERROR_DEVICE_HUNG") {
		t.Errorf("removed reason missing from %q", err)
	}
	if err := r.Frame(); err == nil {
		t.Error("frame after device loss succeeded")
	}
	if err := r.Present(); err == nil || !strings.Contains(err.Error(), "halted") {
		t.Errorf("present after device loss: %v", err)
	}
	if r.Frames() != 1 {
		t.Errorf("frames = %d", r.Frames())
	}
}

func TestSwapChainBuffers(t *testing.T) {
	r := newRenderer(t, newPlatform(nil), diesel.DefaultScene())
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	sc := r.SwapChain()
	if d := sc.Desc(); d.Width != 64 || d.Height != 48 {
		t.Errorf("back buffer %dx%d, want the window size", d.Width, d.Height)
	}
	if _, err := sc.GetBuffer(2); diesel.StatusOf(err) != driver.ErrInvalidCall {
		t.Errorf("GetBuffer(2): %v", err)
	}
	back, err := sc.GetBuffer(1)
	if err != nil {
		t.Fatal(err)
	}
	back.Release()
}

func TestBufferRoundTrip(t *testing.T) {
	p := newPlatform(nil)
	dev, ctx, err := diesel.CreateDevice(p)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Release()
	defer ctx.Release()

	verts := []diesel.Vertex{{1, 2, 3}, {4, 5, 6}}
	buf, err := diesel.CreateBufferFromData(dev, verts, driver.UsageDefault, driver.BindVertexBuffer, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	if w := buf.Desc().ByteWidth; w != 2*diesel.VertexStride {
		t.Errorf("byte width %d", w)
	}
	data, err := ctx.ReadBuffer(dev, buf)
	if err != nil {
		t.Fatal(err)
	}
	want := unsafe.Slice((*byte)(unsafe.Pointer(&verts[0])), len(verts)*int(unsafe.Sizeof(verts[0])))
	if !bytes.Equal(data, want) {
		t.Errorf("read back %v, want %v", data, want)
	}

	type record struct {
		ID    uint32
		Flags uint16
		Kind  uint16
		Pos   [2]int32
	}
	records := []record{{7, 1, 2, [2]int32{-3, 4}}, {8, 0, 9, [2]int32{5, -6}}, {0xdeadbeef, 0xffff, 0, [2]int32{1 << 30, -1}}}
	sbuf, err := diesel.CreateBufferFromData(dev, records, driver.UsageDefault, driver.BindShaderResource, 0,
		driver.ResourceMiscBufferStructured, true)
	if err != nil {
		t.Fatal(err)
	}
	defer sbuf.Release()
	if d := sbuf.Desc(); d.StructureByteStride != uint32(unsafe.Sizeof(record{})) || d.ByteWidth != 3*d.StructureByteStride {
		t.Errorf("structured desc %+v", d)
	}
	data, err = ctx.ReadBuffer(dev, sbuf)
	if err != nil {
		t.Fatal(err)
	}
	want = unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), len(records)*int(unsafe.Sizeof(records[0])))
	if !bytes.Equal(data, want) {
		t.Errorf("structured read back %v, want %v", data, want)
	}

	if _, err := diesel.CreateBufferFromData(dev, []diesel.Vertex{}, driver.UsageDefault, driver.BindVertexBuffer, 0, 0, false); diesel.StatusOf(err) != driver.ErrInvalidArg {
		t.Errorf("empty buffer: %v", err)
	}
}
