//go:build windows

package d3d11

import (
	"syscall"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
)

// swapChainDesc1 is DXGI_SWAP_CHAIN_DESC1. It differs from the driver type
// only in Stereo being a BOOL.
type swapChainDesc1 struct {
	Width         uint32
	Height        uint32
	Format        uint32
	Stereo        int32
	SampleCount   uint32
	SampleQuality uint32
	BufferUsage   uint32
	BufferCount   uint32
	Scaling       uint32
	SwapEffect    uint32
	AlphaMode     uint32
	Flags         uint32
}

func nativeSwapChainDesc(d *driver.SwapChainDesc1) swapChainDesc1 {
	n := swapChainDesc1{
		Width:         d.Width,
		Height:        d.Height,
		Format:        uint32(d.Format),
		SampleCount:   d.SampleDesc.Count,
		SampleQuality: d.SampleDesc.Quality,
		BufferUsage:   d.BufferUsage,
		BufferCount:   d.BufferCount,
		Scaling:       uint32(d.Scaling),
		SwapEffect:    uint32(d.SwapEffect),
		AlphaMode:     uint32(d.AlphaMode),
		Flags:         d.Flags,
	}
	if d.Stereo {
		n.Stereo = 1
	}
	return n
}

func (n *swapChainDesc1) driverDesc() driver.SwapChainDesc1 {
	return driver.SwapChainDesc1{
		Width:       n.Width,
		Height:      n.Height,
		Format:      driver.Format(n.Format),
		Stereo:      n.Stereo != 0,
		SampleDesc:  driver.SampleDesc{Count: n.SampleCount, Quality: n.SampleQuality},
		BufferUsage: n.BufferUsage,
		BufferCount: n.BufferCount,
		Scaling:     driver.Scaling(n.Scaling),
		SwapEffect:  driver.SwapEffect(n.SwapEffect),
		AlphaMode:   driver.AlphaMode(n.AlphaMode),
		Flags:       n.Flags,
	}
}

// Factory is an IDXGIFactory2.
type Factory struct {
	unknown
	log logrus.FieldLogger
}

func (f *Factory) CreateSwapChainForHwnd(device driver.Device, window driver.Window, desc *driver.SwapChainDesc1) (driver.Status, driver.SwapChain) {
	dev, ok := device.(*Device)
	if !ok || window == nil || window.Handle() == 0 || desc == nil {
		return driver.ErrInvalidArg, nil
	}
	native := nativeSwapChainDesc(desc)
	var sc uintptr
	status := hresult(syscall.SyscallN(method(f.ptr, factory2CreateSwapChainForHwnd), f.ptr,
		dev.ptr,
		window.Handle(),
		uintptr(unsafe.Pointer(&native)),
		0, // pFullscreenDesc
		0, // pRestrictToOutput
		uintptr(unsafe.Pointer(&sc)),
	))
	if status.Failed() {
		f.log.WithField("status", status).Warn("CreateSwapChainForHwnd failed")
		return status, nil
	}
	return status, &SwapChain{unknown: unknown{sc}, log: f.log}
}

// SwapChain is an IDXGISwapChain1.
type SwapChain struct {
	unknown
	log logrus.FieldLogger
}

func (s *SwapChain) Desc() driver.SwapChainDesc1 {
	var n swapChainDesc1
	if status := hresult(syscall.SyscallN(method(s.ptr, swapChain1GetDesc1), s.ptr, uintptr(unsafe.Pointer(&n)))); status.Failed() {
		return driver.SwapChainDesc1{}
	}
	return n.driverDesc()
}

func (s *SwapChain) GetBuffer(index uint32) (driver.Status, driver.Texture2D) {
	var tex uintptr
	status := hresult(syscall.SyscallN(method(s.ptr, swapChainGetBuffer), s.ptr,
		uintptr(index),
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&tex)),
	))
	if status.Failed() {
		return status, nil
	}
	t := &Texture2D{unknown: unknown{tex}}
	syscall.SyscallN(method(tex, textureGetDesc), tex, uintptr(unsafe.Pointer(&t.desc)))
	return status, t
}

// Present returns DXGI's status unchanged: DXGI_STATUS_OCCLUDED succeeds and
// a removed device fails with DXGI_ERROR_DEVICE_REMOVED.
func (s *SwapChain) Present(syncInterval uint32, flags driver.PresentFlag) driver.Status {
	status := hresult(syscall.SyscallN(method(s.ptr, swapChainPresent), s.ptr, uintptr(syncInterval), uintptr(flags)))
	if status.Failed() {
		s.log.WithField("status", status).Warn("present failed")
	}
	return status
}
