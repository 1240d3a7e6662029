//go:build windows

package d3d11

import (
	"runtime"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/gogpu/naga/hlsl"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Log logrus.FieldLogger
}

type Platform struct {
	log logrus.FieldLogger
}

func init() {
	driver.Register("d3d11", func() (driver.Platform, error) {
		return New(Options{})
	})
}

// New loads d3d11.dll, dxgi.dll and d3dcompiler_47.dll.
func New(opts Options) (*Platform, error) {
	for _, proc := range []interface{ Find() error }{procD3D11CreateDevice, procCreateDXGIFactory1, procD3DCompile} {
		if err := proc.Find(); err != nil {
			return nil, errors.Wrap(err, "d3d11: load")
		}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Platform{log: log.WithField("driver", "d3d11")}, nil
}

func (p *Platform) Name() string { return "d3d11" }

// CreateDevice asks for a hardware device at the default feature levels.
func (p *Platform) CreateDevice(flags driver.CreateDeviceFlag) (driver.Status, driver.Device, driver.DeviceContext) {
	var dev, ctx uintptr
	var level uint32
	hr, _, _ := procD3D11CreateDevice.Call(
		0, // pAdapter
		driverTypeHardware,
		0, // Software
		uintptr(flags),
		0, // pFeatureLevels
		0, // FeatureLevels
		sdkVersion,
		uintptr(unsafe.Pointer(&dev)),
		uintptr(unsafe.Pointer(&level)),
		uintptr(unsafe.Pointer(&ctx)),
	)
	status := driver.Status(int32(uint32(hr)))
	if status.Failed() {
		p.log.WithField("status", status).Warn("D3D11CreateDevice failed")
		return status, nil, nil
	}
	p.log.WithField("feature_level", level>>12).Debug("device created")
	d := &Device{unknown: unknown{dev}, log: p.log}
	return status, d, &Context{unknown: unknown{ctx}, log: p.log}
}

func (p *Platform) CreateFactory() (driver.Status, driver.Factory) {
	var f uintptr
	hr, _, _ := procCreateDXGIFactory1.Call(
		uintptr(unsafe.Pointer(&iidIDXGIFactory2)),
		uintptr(unsafe.Pointer(&f)),
	)
	status := driver.Status(int32(uint32(hr)))
	if status.Failed() {
		return status, nil
	}
	return status, &Factory{unknown: unknown{f}, log: p.log}
}

// Compile validates the WGSL entry point, translates the module to HLSL and
// compiles that with D3DCompile.
func (p *Platform) Compile(source []byte, sourceName, entryPoint, target string, flags driver.CompileFlag) (driver.Status, driver.Blob, driver.Blob) {
	_, m, err := shader.Compile(string(source), sourceName, entryPoint, target, shader.Options{})
	if err != nil {
		p.log.WithError(err).WithField("entry", entryPoint).Debug("compile failed")
		return driver.ErrFail, nil, newHostBlob([]byte(err.Error()))
	}
	src, info, err := hlsl.Compile(m, &hlsl.Options{
		ShaderModel:         hlsl.ShaderModel5_0,
		FakeMissingBindings: true,
		EntryPoint:          entryPoint,
	})
	if err != nil {
		return driver.ErrFail, nil, newHostBlob([]byte(err.Error()))
	}
	entry := entryPoint
	if name, ok := info.EntryPointNames[entryPoint]; ok {
		entry = name
	}
	return d3dCompile([]byte(src), sourceName, entry, target, flags)
}

func d3dCompile(src []byte, sourceName, entry, target string, flags driver.CompileFlag) (driver.Status, driver.Blob, driver.Blob) {
	if len(src) == 0 {
		return driver.ErrInvalidArg, nil, nil
	}
	entry0 := []byte(entry + "\x00")
	target0 := []byte(target + "\x00")
	var name *byte
	if sourceName != "" {
		name = &append([]byte(sourceName), 0)[0]
	}
	var code, diag uintptr
	hr, _, _ := procD3DCompile.Call(
		uintptr(unsafe.Pointer(&src[0])),
		uintptr(len(src)),
		uintptr(unsafe.Pointer(name)),
		0, // pDefines
		standardFileInclude,
		uintptr(unsafe.Pointer(&entry0[0])),
		uintptr(unsafe.Pointer(&target0[0])),
		uintptr(flags),
		0, // Flags2
		uintptr(unsafe.Pointer(&code)),
		uintptr(unsafe.Pointer(&diag)),
	)
	runtime.KeepAlive(name)
	status := driver.Status(int32(uint32(hr)))
	var out, errs driver.Blob
	if diag != 0 {
		errs = &blob{unknown{diag}}
	}
	if status.Failed() {
		release(code)
		return status, nil, errs
	}
	if code != 0 {
		out = &blob{unknown{code}}
	}
	return status, out, errs
}
