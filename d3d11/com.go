//go:build windows

package d3d11

import (
	"syscall"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"golang.org/x/sys/windows"
)

var (
	d3d11DLL       = windows.NewLazySystemDLL("d3d11.dll")
	dxgiDLL        = windows.NewLazySystemDLL("dxgi.dll")
	d3dcompilerDLL = windows.NewLazySystemDLL("d3dcompiler_47.dll")

	procD3D11CreateDevice  = d3d11DLL.NewProc("D3D11CreateDevice")
	procCreateDXGIFactory1 = dxgiDLL.NewProc("CreateDXGIFactory1")
	procD3DCompile         = d3dcompilerDLL.NewProc("D3DCompile")
)

// Vtable slots. IUnknown takes 0 to 2 and ID3D11DeviceChild 3 to 6.
const (
	vtblQueryInterface = 0
	vtblAddRef         = 1
	vtblRelease        = 2

	blobGetBufferPointer = 3
	blobGetBufferSize    = 4

	deviceCreateBuffer           = 3
	deviceCreateTexture2D        = 5
	deviceCreateRenderTargetView = 9
	deviceCreateInputLayout      = 11
	deviceCreateVertexShader     = 12
	deviceCreatePixelShader      = 15
	deviceGetDeviceRemovedReason = 39

	textureGetDesc = 10

	ctxPSSetShader            = 9
	ctxVSSetShader            = 11
	ctxDraw                   = 13
	ctxMap                    = 14
	ctxUnmap                  = 15
	ctxIASetInputLayout       = 17
	ctxIASetVertexBuffers     = 18
	ctxIASetPrimitiveTopology = 24
	ctxOMSetRenderTargets     = 33
	ctxRSSetViewports         = 44
	ctxCopyResource           = 47
	ctxClearRenderTargetView  = 50

	factory2CreateSwapChainForHwnd = 15

	swapChainPresent   = 8
	swapChainGetBuffer = 9
	swapChain1GetDesc1 = 18
)

const (
	driverTypeHardware = 1
	sdkVersion         = 7

	// D3D_COMPILE_STANDARD_FILE_INCLUDE
	standardFileInclude = 1
)

type guid struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

var (
	iidID3D11Texture2D = guid{0x6f15aaf2, 0xd208, 0x4e89, [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iidIDXGIFactory2   = guid{0x50c83a1c, 0xe072, 0x4c48, [8]byte{0x87, 0xb0, 0x36, 0x30, 0xfa, 0x36, 0xa6, 0xd0}}
)

// method resolves slot idx in the vtable of obj.
func method(obj uintptr, idx int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// hresult converts the result of a syscall returning an HRESULT. Calls pass
// their pointers inline to syscall.SyscallN so the pointees stay put.
func hresult(r1, _ uintptr, _ syscall.Errno) driver.Status {
	return driver.Status(int32(uint32(r1)))
}

// unknown is a COM interface pointer. Every object of this package embeds
// one; the reference count lives behind the vtable.
type unknown struct {
	ptr uintptr
}

func (u *unknown) AddRef() uint32 {
	n, _, _ := syscall.SyscallN(method(u.ptr, vtblAddRef), u.ptr)
	return uint32(n)
}

func (u *unknown) Release() uint32 {
	n, _, _ := syscall.SyscallN(method(u.ptr, vtblRelease), u.ptr)
	return uint32(n)
}

func (u *unknown) com() uintptr { return u.ptr }

type comObject interface {
	com() uintptr
}

// comPtr returns the interface pointer behind v, or 0 for nil and for
// objects of other platforms.
func comPtr(v any) uintptr {
	if o, ok := v.(comObject); ok {
		return o.com()
	}
	return 0
}

func release(ptr uintptr) {
	if ptr != 0 {
		syscall.SyscallN(method(ptr, vtblRelease), ptr)
	}
}

// blob is an ID3DBlob.
type blob struct {
	unknown
}

func (b *blob) Bytes() []byte {
	p, _, _ := syscall.SyscallN(method(b.ptr, blobGetBufferPointer), b.ptr)
	n, _, _ := syscall.SyscallN(method(b.ptr, blobGetBufferSize), b.ptr)
	if p == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
}

// hostBlob holds bytes produced in Go, such as front end diagnostics.
type hostBlob struct {
	refs int32
	data []byte
}

func newHostBlob(data []byte) *hostBlob {
	return &hostBlob{refs: 1, data: data}
}

func (b *hostBlob) AddRef() uint32 {
	b.refs++
	return uint32(b.refs)
}

func (b *hostBlob) Release() uint32 {
	if b.refs <= 0 {
		panic("d3d11: Release on freed blob")
	}
	b.refs--
	return uint32(b.refs)
}

func (b *hostBlob) Bytes() []byte { return b.data }
