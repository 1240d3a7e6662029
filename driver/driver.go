// Package driver is the contract between the diesel core and the native
// graphics platforms. Every object a platform hands out is reference counted:
// the creator receives one reference and owns it until Release.
package driver

import (
	"sort"
	"sync"
)

// Unknown is the reference counting surface every platform object carries.
// Both methods return the count after the operation.
type Unknown interface {
	AddRef() uint32
	Release() uint32
}

// Window is a native window a swapchain can present into.
type Window interface {
	// Handle is the OS window handle (HWND on windows). Platforms that do not
	// present to an OS window may ignore it.
	Handle() uintptr
	ClientSize() (width, height int)
}

// WindowValidity is implemented by windows that can report being destroyed.
type WindowValidity interface {
	Valid() bool
}

// Platform is the entry point of a native graphics API.
type Platform interface {
	Name() string
	// CreateDevice returns a hardware device with its immediate context. On
	// failure both objects are nil.
	CreateDevice(flags CreateDeviceFlag) (Status, Device, DeviceContext)
	CreateFactory() (Status, Factory)
	// Compile turns source into bytecode for target (a profile such as
	// "vs_5_0"). The second blob holds diagnostics and may be non-nil on
	// success or failure.
	Compile(source []byte, sourceName, entryPoint, target string, flags CompileFlag) (Status, Blob, Blob)
}

type Blob interface {
	Unknown
	Bytes() []byte
}

type Device interface {
	Unknown
	CreateBuffer(desc *BufferDesc, initial *SubresourceData) (Status, Buffer)
	CreateTexture2D(desc *Texture2DDesc, initial *SubresourceData) (Status, Texture2D)
	// CreateRenderTargetView creates a view with default parameters, the
	// format taken from the texture.
	CreateRenderTargetView(resource Texture2D) (Status, RenderTargetView)
	CreateInputLayout(elements []InputElementDesc, bytecode []byte) (Status, InputLayout)
	CreateVertexShader(bytecode []byte) (Status, VertexShader)
	CreatePixelShader(bytecode []byte) (Status, PixelShader)
	// RemovedReason is StatusOK while the device is usable.
	RemovedReason() Status
}

// DeviceContext records and submits commands in call order. Bound objects are
// referenced by the context until replaced or the context is released.
type DeviceContext interface {
	Unknown
	OMSetRenderTargets(views []RenderTargetView)
	RSSetViewports(viewports []Viewport)
	ClearRenderTargetView(view RenderTargetView, color [4]float32)
	VSSetShader(shader VertexShader)
	PSSetShader(shader PixelShader)
	IASetVertexBuffers(startSlot uint32, buffers []Buffer, strides, offsets []uint32)
	IASetPrimitiveTopology(topology PrimitiveTopology)
	IASetInputLayout(layout InputLayout)
	Draw(vertexCount, startVertex uint32)
	CopyResource(dst, src Resource)
	Map(resource Resource, subresource uint32, mapType MapType) (Status, MappedSubresource)
	Unmap(resource Resource, subresource uint32)
}

type Resource interface {
	Unknown
	Dimension() ResourceDimension
}

type Buffer interface {
	Resource
	Desc() BufferDesc
}

type Texture2D interface {
	Resource
	Desc() Texture2DDesc
}

type RenderTargetView interface {
	Unknown
	// Resource returns the viewed texture without adding a reference.
	Resource() Texture2D
}

type VertexShader interface {
	Unknown
	Stage() ShaderStage
}

type PixelShader interface {
	Unknown
	Stage() ShaderStage
}

type InputLayout interface {
	Unknown
	Elements() []InputElementDesc
}

type Factory interface {
	Unknown
	CreateSwapChainForHwnd(device Device, window Window, desc *SwapChainDesc1) (Status, SwapChain)
}

type SwapChain interface {
	Unknown
	// GetBuffer returns back buffer index. With flip effects index 0 always
	// refers to the buffer currently being rendered.
	GetBuffer(index uint32) (Status, Texture2D)
	Present(syncInterval uint32, flags PresentFlag) Status
	Desc() SwapChainDesc1
}

var (
	mu        sync.Mutex
	platforms = map[string]func() (Platform, error){}
)

// Register makes a platform constructor available by name. Platforms call it
// from init.
func Register(name string, open func() (Platform, error)) {
	mu.Lock()
	defer mu.Unlock()
	platforms[name] = open
}

// Open constructs the named platform.
func Open(name string) (Platform, error) {
	mu.Lock()
	open, ok := platforms[name]
	mu.Unlock()
	if !ok {
		return nil, &UnknownPlatformError{Name: name}
	}
	return open()
}

// Platforms lists registered names in order.
func Platforms() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type UnknownPlatformError struct {
	Name string
}

func (e *UnknownPlatformError) Error() string {
	return "driver: unknown platform " + e.Name
}
