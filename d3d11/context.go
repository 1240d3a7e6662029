//go:build windows

package d3d11

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
)

type mappedSubresource struct {
	Data       uintptr
	RowPitch   uint32
	DepthPitch uint32
}

// Context is the immediate ID3D11DeviceContext. The context itself holds
// references to bound objects.
type Context struct {
	unknown
	log logrus.FieldLogger
}

func (c *Context) OMSetRenderTargets(views []driver.RenderTargetView) {
	ptrs := make([]uintptr, len(views))
	for i, v := range views {
		ptrs[i] = comPtr(v)
	}
	var first *uintptr
	if len(ptrs) > 0 {
		first = &ptrs[0]
	}
	syscall.SyscallN(method(c.ptr, ctxOMSetRenderTargets), c.ptr, uintptr(len(ptrs)), uintptr(unsafe.Pointer(first)), 0)
	runtime.KeepAlive(ptrs)
}

func (c *Context) RSSetViewports(viewports []driver.Viewport) {
	var first *driver.Viewport
	if len(viewports) > 0 {
		first = &viewports[0]
	}
	syscall.SyscallN(method(c.ptr, ctxRSSetViewports), c.ptr, uintptr(len(viewports)), uintptr(unsafe.Pointer(first)))
}

func (c *Context) ClearRenderTargetView(view driver.RenderTargetView, color [4]float32) {
	ptr := comPtr(view)
	if ptr == 0 {
		c.log.Warn("ClearRenderTargetView: no view")
		return
	}
	syscall.SyscallN(method(c.ptr, ctxClearRenderTargetView), c.ptr, ptr, uintptr(unsafe.Pointer(&color[0])))
}

func (c *Context) VSSetShader(s driver.VertexShader) {
	syscall.SyscallN(method(c.ptr, ctxVSSetShader), c.ptr, comPtr(s), 0, 0)
}

func (c *Context) PSSetShader(s driver.PixelShader) {
	syscall.SyscallN(method(c.ptr, ctxPSSetShader), c.ptr, comPtr(s), 0, 0)
}

func (c *Context) IASetInputLayout(layout driver.InputLayout) {
	syscall.SyscallN(method(c.ptr, ctxIASetInputLayout), c.ptr, comPtr(layout))
}

func (c *Context) IASetVertexBuffers(startSlot uint32, buffers []driver.Buffer, strides, offsets []uint32) {
	n := len(buffers)
	if len(strides) < n || len(offsets) < n {
		c.log.Warn("IASetVertexBuffers: fewer strides or offsets than buffers")
		return
	}
	if n == 0 {
		return
	}
	ptrs := make([]uintptr, n)
	for i, b := range buffers {
		ptrs[i] = comPtr(b)
	}
	syscall.SyscallN(method(c.ptr, ctxIASetVertexBuffers), c.ptr,
		uintptr(startSlot),
		uintptr(n),
		uintptr(unsafe.Pointer(&ptrs[0])),
		uintptr(unsafe.Pointer(&strides[0])),
		uintptr(unsafe.Pointer(&offsets[0])),
	)
	runtime.KeepAlive(ptrs)
}

// Topology values equal D3D_PRIMITIVE_TOPOLOGY.
func (c *Context) IASetPrimitiveTopology(topology driver.PrimitiveTopology) {
	syscall.SyscallN(method(c.ptr, ctxIASetPrimitiveTopology), c.ptr, uintptr(topology))
}

func (c *Context) Draw(vertexCount, startVertex uint32) {
	syscall.SyscallN(method(c.ptr, ctxDraw), c.ptr, uintptr(vertexCount), uintptr(startVertex))
}

func (c *Context) CopyResource(dst, src driver.Resource) {
	d, s := comPtr(dst), comPtr(src)
	if d == 0 || s == 0 {
		c.log.Warn("CopyResource: foreign or missing resource")
		return
	}
	syscall.SyscallN(method(c.ptr, ctxCopyResource), c.ptr, d, s)
}

func (c *Context) Map(res driver.Resource, subresource uint32, mapType driver.MapType) (driver.Status, driver.MappedSubresource) {
	ptr := comPtr(res)
	if ptr == 0 {
		return driver.ErrInvalidArg, driver.MappedSubresource{}
	}
	var m mappedSubresource
	status := hresult(syscall.SyscallN(method(c.ptr, ctxMap), c.ptr, ptr, uintptr(subresource), uintptr(mapType), 0, uintptr(unsafe.Pointer(&m))))
	if status.Failed() {
		return status, driver.MappedSubresource{}
	}
	var size int
	switch r := res.(type) {
	case *Buffer:
		size = int(r.desc.ByteWidth)
	case *Texture2D:
		size = int(m.RowPitch) * int(r.desc.Height)
	}
	out := driver.MappedSubresource{RowPitch: m.RowPitch, DepthPitch: m.DepthPitch}
	if m.Data != 0 && size > 0 {
		out.Data = unsafe.Slice((*byte)(unsafe.Pointer(m.Data)), size)
	}
	return status, out
}

func (c *Context) Unmap(res driver.Resource, subresource uint32) {
	if ptr := comPtr(res); ptr != 0 {
		syscall.SyscallN(method(c.ptr, ctxUnmap), c.ptr, ptr, uintptr(subresource))
	}
}
