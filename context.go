package diesel

import (
	"unsafe"

	"github.com/andewx/diesel/driver"
)

// Vertex is the fixed vertex layout: one float3 position.
type Vertex [3]float32

// VertexStride is the byte stride IASetVertexBuffer binds with.
const VertexStride = uint32(unsafe.Sizeof(Vertex{}))

// DeviceContext is the immediate context. Each setter is one platform call;
// the context is the single writer of pipeline state, so pass it by pointer
// and never share it between goroutines.
type DeviceContext struct {
	ref *Ref[driver.DeviceContext]
}

func (c *DeviceContext) Release() { c.ref.Release() }

// SetRenderTarget binds a single render target with no depth stencil.
func (c *DeviceContext) SetRenderTarget(rtv *RenderTargetView) {
	c.ref.Get().OMSetRenderTargets([]driver.RenderTargetView{rtv.ref.Get()})
}

func (c *DeviceContext) SetViewport(vp driver.Viewport) {
	c.ref.Get().RSSetViewports([]driver.Viewport{vp})
}

func (c *DeviceContext) ClearRenderTargetView(rtv *RenderTargetView, color [4]float32) {
	c.ref.Get().ClearRenderTargetView(rtv.ref.Get(), color)
}

func (c *DeviceContext) VSSetShader(vs *VertexShader) {
	c.ref.Get().VSSetShader(vs.ref.Get())
}

func (c *DeviceContext) PSSetShader(ps *PixelShader) {
	c.ref.Get().PSSetShader(ps.ref.Get())
}

// IASetVertexBuffer binds buf at slot 0 with the Vertex stride.
func (c *DeviceContext) IASetVertexBuffer(buf *Buffer) {
	c.ref.Get().IASetVertexBuffers(0, []driver.Buffer{buf.ref.Get()}, []uint32{VertexStride}, []uint32{0})
}

func (c *DeviceContext) IASetPrimitiveTopology(t driver.PrimitiveTopology) {
	c.ref.Get().IASetPrimitiveTopology(t)
}

func (c *DeviceContext) IASetInputLayout(layout *InputLayout) {
	c.ref.Get().IASetInputLayout(layout.ref.Get())
}

func (c *DeviceContext) Draw(vertexCount, startVertex uint32) {
	c.ref.Get().Draw(vertexCount, startVertex)
}

func (c *DeviceContext) CopyResource(dst, src Resource) {
	c.ref.Get().CopyResource(dst.resource(), src.resource())
}

// Map exposes subresource 0 of res to the CPU until Unmap.
func (c *DeviceContext) Map(res Resource, mapType driver.MapType) (driver.MappedSubresource, error) {
	status, mapped := c.ref.Get().Map(res.resource(), 0, mapType)
	if err := WrapUnit("map", status); err != nil {
		return driver.MappedSubresource{}, err
	}
	return mapped, nil
}

func (c *DeviceContext) Unmap(res Resource) {
	c.ref.Get().Unmap(res.resource(), 0)
}

// ReadBuffer copies buf into a staging buffer and returns its bytes.
func (c *DeviceContext) ReadBuffer(dev *Device, buf *Buffer) ([]byte, error) {
	desc := buf.Desc()
	staging, err := dev.CreateBuffer(driver.BufferDesc{
		ByteWidth:      desc.ByteWidth,
		Usage:          driver.UsageStaging,
		CPUAccessFlags: driver.CPUAccessRead,
	}, nil)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	c.CopyResource(staging, buf)
	mapped, err := c.Map(staging, driver.MapRead)
	if err != nil {
		return nil, err
	}
	out := make([]byte, desc.ByteWidth)
	copy(out, mapped.Data)
	c.Unmap(staging)
	return out, nil
}
