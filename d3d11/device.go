//go:build windows

package d3d11

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// driver.BufferDesc, driver.Texture2DDesc and driver.Viewport share the
// layout of their D3D11 counterparts and are passed as is.

type subresourceData struct {
	SysMem           unsafe.Pointer
	SysMemPitch      uint32
	SysMemSlicePitch uint32
}

type inputElementDesc struct {
	SemanticName         *byte
	SemanticIndex        uint32
	Format               uint32
	InputSlot            uint32
	AlignedByteOffset    uint32
	InputSlotClass       uint32
	InstanceDataStepRate uint32
}

type Device struct {
	unknown
	log logrus.FieldLogger
}

func (d *Device) RemovedReason() driver.Status {
	return hresult(syscall.SyscallN(method(d.ptr, deviceGetDeviceRemovedReason), d.ptr))
}

func initialData(initial *driver.SubresourceData, need int) (*subresourceData, bool) {
	if initial == nil {
		return nil, true
	}
	if len(initial.SysMem) < need || need == 0 {
		return nil, false
	}
	return &subresourceData{
		SysMem:           unsafe.Pointer(&initial.SysMem[0]),
		SysMemPitch:      initial.SysMemPitch,
		SysMemSlicePitch: initial.SysMemSlicePitch,
	}, true
}

func (d *Device) CreateBuffer(desc *driver.BufferDesc, initial *driver.SubresourceData) (driver.Status, driver.Buffer) {
	data, ok := initialData(initial, int(desc.ByteWidth))
	if !ok {
		return driver.ErrInvalidArg, nil
	}
	var buf uintptr
	status := hresult(syscall.SyscallN(method(d.ptr, deviceCreateBuffer), d.ptr,
		uintptr(unsafe.Pointer(desc)),
		uintptr(unsafe.Pointer(data)),
		uintptr(unsafe.Pointer(&buf)),
	))
	runtime.KeepAlive(initial)
	if status.Failed() {
		d.log.WithField("status", status).Debug("CreateBuffer failed")
		return status, nil
	}
	return status, &Buffer{unknown: unknown{buf}, desc: *desc}
}

func (d *Device) CreateTexture2D(desc *driver.Texture2DDesc, initial *driver.SubresourceData) (driver.Status, driver.Texture2D) {
	var need int
	if initial != nil && desc.Height > 0 {
		need = int(initial.SysMemPitch)*int(desc.Height-1) + int(desc.Width)*desc.Format.Size()
	}
	data, ok := initialData(initial, need)
	if !ok {
		return driver.ErrInvalidArg, nil
	}
	var tex uintptr
	status := hresult(syscall.SyscallN(method(d.ptr, deviceCreateTexture2D), d.ptr,
		uintptr(unsafe.Pointer(desc)),
		uintptr(unsafe.Pointer(data)),
		uintptr(unsafe.Pointer(&tex)),
	))
	runtime.KeepAlive(initial)
	if status.Failed() {
		d.log.WithField("status", status).Debug("CreateTexture2D failed")
		return status, nil
	}
	return status, &Texture2D{unknown: unknown{tex}, desc: *desc}
}

func (d *Device) CreateRenderTargetView(resource driver.Texture2D) (driver.Status, driver.RenderTargetView) {
	tex, ok := resource.(*Texture2D)
	if !ok {
		return driver.ErrInvalidArg, nil
	}
	var view uintptr
	status := hresult(syscall.SyscallN(method(d.ptr, deviceCreateRenderTargetView), d.ptr,
		tex.ptr,
		0, // pDesc
		uintptr(unsafe.Pointer(&view)),
	))
	if status.Failed() {
		return status, nil
	}
	return status, &RenderTargetView{unknown: unknown{view}, tex: &Texture2D{unknown: unknown{tex.ptr}, desc: tex.desc}}
}

func (d *Device) CreateInputLayout(elements []driver.InputElementDesc, bytecode []byte) (driver.Status, driver.InputLayout) {
	if len(bytecode) == 0 {
		return driver.ErrInvalidArg, nil
	}
	descs := make([]inputElementDesc, len(elements))
	for i, e := range elements {
		name, err := windows.BytePtrFromString(e.SemanticName)
		if err != nil {
			return driver.ErrInvalidArg, nil
		}
		descs[i] = inputElementDesc{
			SemanticName:         name,
			SemanticIndex:        e.SemanticIndex,
			Format:               uint32(e.Format),
			InputSlot:            e.InputSlot,
			AlignedByteOffset:    e.AlignedByteOffset,
			InputSlotClass:       uint32(e.InputSlotClass),
			InstanceDataStepRate: e.InstanceDataStepRate,
		}
	}
	var first *inputElementDesc
	if len(descs) > 0 {
		first = &descs[0]
	}
	var layout uintptr
	status := hresult(syscall.SyscallN(method(d.ptr, deviceCreateInputLayout), d.ptr,
		uintptr(unsafe.Pointer(first)),
		uintptr(len(descs)),
		uintptr(unsafe.Pointer(&bytecode[0])),
		uintptr(len(bytecode)),
		uintptr(unsafe.Pointer(&layout)),
	))
	runtime.KeepAlive(descs)
	if status.Failed() {
		d.log.WithField("status", status).Warn("input layout does not match the shader signature")
		return status, nil
	}
	return status, &InputLayout{unknown: unknown{layout}, elements: append([]driver.InputElementDesc(nil), elements...)}
}

func (d *Device) CreateVertexShader(bytecode []byte) (driver.Status, driver.VertexShader) {
	ptr, status := d.createShader(deviceCreateVertexShader, bytecode)
	if status.Failed() {
		return status, nil
	}
	return status, &VertexShader{unknown{ptr}}
}

func (d *Device) CreatePixelShader(bytecode []byte) (driver.Status, driver.PixelShader) {
	ptr, status := d.createShader(deviceCreatePixelShader, bytecode)
	if status.Failed() {
		return status, nil
	}
	return status, &PixelShader{unknown{ptr}}
}

func (d *Device) createShader(slot int, bytecode []byte) (uintptr, driver.Status) {
	if len(bytecode) == 0 {
		return 0, driver.ErrInvalidArg
	}
	var s uintptr
	status := hresult(syscall.SyscallN(method(d.ptr, slot), d.ptr,
		uintptr(unsafe.Pointer(&bytecode[0])),
		uintptr(len(bytecode)),
		0, // pClassLinkage
		uintptr(unsafe.Pointer(&s)),
	))
	return s, status
}

type Buffer struct {
	unknown
	desc driver.BufferDesc
}

func (b *Buffer) Dimension() driver.ResourceDimension { return driver.DimensionBuffer }
func (b *Buffer) Desc() driver.BufferDesc              { return b.desc }

type Texture2D struct {
	unknown
	desc driver.Texture2DDesc
}

func (t *Texture2D) Dimension() driver.ResourceDimension { return driver.DimensionTexture2D }
func (t *Texture2D) Desc() driver.Texture2DDesc           { return t.desc }

type RenderTargetView struct {
	unknown
	tex *Texture2D
}

// Resource returns the viewed texture. The view keeps it alive.
func (v *RenderTargetView) Resource() driver.Texture2D { return v.tex }

type VertexShader struct{ unknown }

func (s *VertexShader) Stage() driver.ShaderStage { return driver.StageVertex }

type PixelShader struct{ unknown }

func (s *PixelShader) Stage() driver.ShaderStage { return driver.StagePixel }

type InputLayout struct {
	unknown
	elements []driver.InputElementDesc
}

func (l *InputLayout) Elements() []driver.InputElementDesc {
	return append([]driver.InputElementDesc(nil), l.elements...)
}
