package diesel

import (
	"image"

	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stage is a Renderer state. Stages are entered strictly in order and never
// re-entered.
type Stage int

const (
	StageUninitialized Stage = iota
	StageDeviceReady
	StageSwapchainReady
	StageShadersCompiled
	StagePipelineBound
	StageFrameLoop
)

var stageNames = [...]string{
	StageUninitialized:   "uninitialized",
	StageDeviceReady:     "device ready",
	StageSwapchainReady:  "swapchain ready",
	StageShadersCompiled: "shaders compiled",
	StagePipelineBound:   "pipeline bound",
	StageFrameLoop:       "frame loop",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "invalid"
	}
	return stageNames[s]
}

// Renderer runs the startup sequence for one Scene on one window and then
// draws and presents frames. Any failure halts it for good.
type Renderer struct {
	platform driver.Platform
	window   driver.Window
	scene    Scene
	log      logrus.FieldLogger

	stage  Stage
	halted error
	frames uint64

	device    *Device
	context   *DeviceContext
	factory   *Factory
	swapchain *SwapChain
	vsBlob    *ShaderBlob
	psBlob    *ShaderBlob
	vs        *VertexShader
	ps        *PixelShader
	layout    *InputLayout
	back      *Texture2D
	rtv       *RenderTargetView
	vertices  *Buffer
}

func NewRenderer(p driver.Platform, window driver.Window, scene Scene, log logrus.FieldLogger) *Renderer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Renderer{
		platform: p,
		window:   window,
		scene:    scene,
		log:      log.WithField("platform", p.Name()),
	}
}

func (r *Renderer) Stage() Stage { return r.stage }

// Frames counts successful presents.
func (r *Renderer) Frames() uint64 { return r.frames }

func (r *Renderer) Device() *Device                 { return r.device }
func (r *Renderer) Context() *DeviceContext         { return r.context }
func (r *Renderer) SwapChain() *SwapChain           { return r.swapchain }
func (r *Renderer) RenderTarget() *RenderTargetView { return r.rtv }

// Init walks the renderer from Uninitialized to PipelineBound.
func (r *Renderer) Init() error {
	steps := []func() error{r.CreateDevice, r.CreateSwapChain, r.CompileShaders, r.BindPipeline}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) advance(to Stage, step func() error) error {
	if r.halted != nil {
		return errors.Wrap(r.halted, "renderer halted")
	}
	if r.stage != to-1 {
		return errors.Errorf("renderer: cannot enter %s from %s", to, r.stage)
	}
	if err := step(); err != nil {
		r.halted = err
		r.log.WithError(err).WithField("stage", to).Error("renderer startup failed")
		return errors.Wrapf(err, "enter %s", to)
	}
	r.stage = to
	r.log.WithField("stage", to).Info("renderer stage entered")
	return nil
}

func (r *Renderer) CreateDevice() error {
	return r.advance(StageDeviceReady, func() (err error) {
		r.device, r.context, err = CreateDevice(r.platform)
		return err
	})
}

func (r *Renderer) CreateSwapChain() error {
	return r.advance(StageSwapchainReady, func() (err error) {
		if r.factory, err = CreateFactory(r.platform); err != nil {
			return err
		}
		desc := r.scene.SwapChain
		r.swapchain, err = r.factory.CreateSwapChainForWindow(r.device, r.window, &desc)
		return err
	})
}

// CompileShaders compiles both stages, creates the shader objects and the
// input layout from the vertex bytecode.
func (r *Renderer) CompileShaders() error {
	return r.advance(StageShadersCompiled, func() (err error) {
		s := &r.scene
		if r.vsBlob, err = CompileShader(r.platform, s.VertexSource, s.VertexProfile, s.VertexEntry, s.CompileFlags); err != nil {
			return err
		}
		if r.vs, err = r.device.CreateVertexShader(r.vsBlob); err != nil {
			return err
		}
		pixelSource := s.PixelSource
		if pixelSource == "" {
			pixelSource = s.VertexSource
		}
		if r.psBlob, err = CompileShader(r.platform, pixelSource, s.PixelProfile, s.PixelEntry, s.CompileFlags); err != nil {
			return err
		}
		if r.ps, err = r.device.CreatePixelShader(r.psBlob); err != nil {
			return err
		}
		r.layout, err = r.device.CreateInputLayout(s.InputElements, r.vsBlob)
		return err
	})
}

// BindPipeline binds shaders, layout and viewport, creates the render target
// view over back buffer 0 and uploads the vertices.
func (r *Renderer) BindPipeline() error {
	return r.advance(StagePipelineBound, func() (err error) {
		ctx := r.context
		ctx.VSSetShader(r.vs)
		ctx.PSSetShader(r.ps)
		ctx.IASetInputLayout(r.layout)

		desc := r.swapchain.Desc()
		vp := r.scene.Viewport
		if vp.Width == 0 || vp.Height == 0 {
			vp = driver.Viewport{Width: float32(desc.Width), Height: float32(desc.Height)}
		}
		ctx.SetViewport(vp)

		if r.back, err = r.swapchain.GetBuffer(0); err != nil {
			return err
		}
		if r.rtv, err = r.device.CreateRenderTargetView(r.back); err != nil {
			return err
		}
		ctx.SetRenderTarget(r.rtv)

		r.vertices, err = CreateBufferFromData(r.device, r.scene.Vertices,
			driver.UsageDefault, driver.BindVertexBuffer, 0, 0, false)
		if err != nil {
			return err
		}
		ctx.IASetVertexBuffer(r.vertices)
		ctx.IASetPrimitiveTopology(r.scene.Topology)
		return nil
	})
}

func (r *Renderer) ready() error {
	if r.halted != nil {
		return errors.Wrap(r.halted, "renderer halted")
	}
	if r.stage < StagePipelineBound {
		return errors.Errorf("renderer: cannot draw in stage %s", r.stage)
	}
	return nil
}

// Draw clears the back buffer and draws the scene. The render target is
// rebound every frame since flip presentation unbinds it.
func (r *Renderer) Draw() error {
	if err := r.ready(); err != nil {
		return err
	}
	if r.stage == StagePipelineBound {
		r.stage = StageFrameLoop
		r.log.WithField("stage", r.stage).Info("renderer stage entered")
	}
	r.context.SetRenderTarget(r.rtv)
	r.context.ClearRenderTargetView(r.rtv, r.scene.ClearColor)
	r.context.Draw(uint32(len(r.scene.Vertices)), 0)
	return nil
}

func (r *Renderer) Present() error {
	if r.halted != nil {
		return errors.Wrap(r.halted, "renderer halted")
	}
	if r.stage != StageFrameLoop {
		return errors.Errorf("renderer: cannot present in stage %s", r.stage)
	}
	if err := r.swapchain.Present(r.scene.SyncInterval, 0); err != nil {
		if reason := r.device.RemovedReason(); reason.Failed() {
			err = errors.Wrapf(err, "device removed: %s", reason)
		}
		r.halted = err
		return err
	}
	r.frames++
	return nil
}

// Frame draws and presents once.
func (r *Renderer) Frame() error {
	if err := r.Draw(); err != nil {
		return err
	}
	return r.Present()
}

// Capture reads back buffer 0 into an RGBA image. Call it between Draw and
// Present to see the frame about to be shown.
func (r *Renderer) Capture() (*image.RGBA, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return CaptureTexture(r.device, r.context, r.back)
}

// CaptureTexture copies tex through a staging texture and converts it to
// RGBA.
func CaptureTexture(dev *Device, ctx *DeviceContext, tex *Texture2D) (*image.RGBA, error) {
	desc := tex.Desc()
	staging, err := dev.CreateTexture2D(driver.Texture2DDesc{
		Width:          desc.Width,
		Height:         desc.Height,
		MipLevels:      1,
		ArraySize:      1,
		Format:         desc.Format,
		SampleDesc:     driver.SampleDesc{Count: 1},
		Usage:          driver.UsageStaging,
		CPUAccessFlags: driver.CPUAccessRead,
	}, nil)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	ctx.CopyResource(staging, tex)
	mapped, err := ctx.Map(staging, driver.MapRead)
	if err != nil {
		return nil, err
	}
	defer ctx.Unmap(staging)

	img := image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height)))
	bgra := desc.Format == driver.FormatB8G8R8A8Unorm
	for y := 0; y < int(desc.Height); y++ {
		src := mapped.Data[y*int(mapped.RowPitch):]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < int(desc.Width); x++ {
			p := src[x*4 : x*4+4]
			if bgra {
				dst[x*4+0], dst[x*4+1], dst[x*4+2], dst[x*4+3] = p[2], p[1], p[0], p[3]
			} else {
				copy(dst[x*4:x*4+4], p)
			}
		}
	}
	return img, nil
}

// Release frees everything in reverse creation order. It is safe to call
// at any stage and more than once.
func (r *Renderer) Release() {
	release(&r.vertices)
	release(&r.rtv)
	release(&r.back)
	release(&r.layout)
	release(&r.ps)
	release(&r.psBlob)
	release(&r.vs)
	release(&r.vsBlob)
	release(&r.swapchain)
	release(&r.factory)
	release(&r.context)
	release(&r.device)
}

func release[T any, P interface {
	*T
	Release()
}](p *P) {
	if *p != nil {
		(*p).Release()
		*p = nil
	}
}
