package diesel

import (
	"math"
	"unsafe"

	"github.com/andewx/diesel/driver"
)

// Device owns the platform device. It is created once and released at exit.
type Device struct {
	ref *Ref[driver.Device]
}

// CreateDevice asks p for a hardware device with BGRA back buffer support and
// its immediate context. There is no fallback: a host without a usable GPU
// gets the platform's error.
func CreateDevice(p driver.Platform) (*Device, *DeviceContext, error) {
	status, rawDevice, rawContext := p.CreateDevice(driver.CreateDeviceBGRASupport)
	dev, err := Wrap("create device", status, rawDevice, func(r *Ref[driver.Device]) *Device {
		return &Device{ref: r}
	})
	if err != nil {
		if status.Succeeded() && !isNil(rawContext) {
			rawContext.Release()
		}
		return nil, nil, err
	}
	ctx, err := Wrap("create device", status, rawContext, func(r *Ref[driver.DeviceContext]) *DeviceContext {
		return &DeviceContext{ref: r}
	})
	if err != nil {
		dev.Release()
		return nil, nil, err
	}
	return dev, ctx, nil
}

func (d *Device) Release() { d.ref.Release() }

// RemovedReason reports why the device was lost, StatusOK while it works.
func (d *Device) RemovedReason() driver.Status {
	return d.ref.Get().RemovedReason()
}

func (d *Device) CreateRenderTargetView(tex *Texture2D) (*RenderTargetView, error) {
	status, raw := d.ref.Get().CreateRenderTargetView(tex.ref.Get())
	return Wrap("create render target view", status, raw, func(r *Ref[driver.RenderTargetView]) *RenderTargetView {
		return &RenderTargetView{ref: r}
	})
}

func (d *Device) CreateTexture2D(desc driver.Texture2DDesc, initial *driver.SubresourceData) (*Texture2D, error) {
	status, raw := d.ref.Get().CreateTexture2D(&desc, initial)
	return Wrap("create texture2d", status, raw, func(r *Ref[driver.Texture2D]) *Texture2D {
		return &Texture2D{ref: r}
	})
}

// CreateBufferFromData creates a buffer initialized with data. The byte width
// is len(data) times the element size. With isSRV the element size is also the
// structure stride. Sizes beyond 32 bits panic with a *PreconditionError.
func CreateBufferFromData[T any](d *Device, data []T, usage driver.Usage, bind driver.BindFlag,
	cpu driver.CPUAccessFlag, misc driver.ResourceMiscFlag, isSRV bool) (*Buffer, error) {

	var elem T
	width, stride := bufferSizes(uint64(len(data)), uint64(unsafe.Sizeof(elem)), isSRV)
	desc := driver.BufferDesc{
		ByteWidth:           width,
		Usage:               usage,
		BindFlags:           bind,
		CPUAccessFlags:      cpu,
		MiscFlags:           misc,
		StructureByteStride: stride,
	}
	var initial *driver.SubresourceData
	if width > 0 {
		initial = &driver.SubresourceData{
			SysMem: unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), width),
		}
	}
	return d.CreateBuffer(desc, initial)
}

// CreateBuffer creates a buffer from an explicit description.
func (d *Device) CreateBuffer(desc driver.BufferDesc, initial *driver.SubresourceData) (*Buffer, error) {
	status, raw := d.ref.Get().CreateBuffer(&desc, initial)
	return Wrap("create buffer", status, raw, func(r *Ref[driver.Buffer]) *Buffer {
		return &Buffer{ref: r}
	})
}

func bufferSizes(count, elemSize uint64, isSRV bool) (width, stride uint32) {
	if elemSize > math.MaxUint32 {
		panic(precondition("buffer element size %d exceeds 32 bits", elemSize))
	}
	if count != 0 && elemSize > math.MaxUint32/count {
		panic(precondition("buffer of %d elements of %d bytes exceeds 32 bits", count, elemSize))
	}
	width = uint32(count * elemSize)
	if isSRV {
		stride = uint32(elemSize)
	}
	return width, stride
}

func (d *Device) CreateVertexShader(blob *ShaderBlob) (*VertexShader, error) {
	status, raw := d.ref.Get().CreateVertexShader(blob.Bytes())
	return Wrap("create vertex shader", status, raw, func(r *Ref[driver.VertexShader]) *VertexShader {
		return &VertexShader{ref: r}
	})
}

func (d *Device) CreatePixelShader(blob *ShaderBlob) (*PixelShader, error) {
	status, raw := d.ref.Get().CreatePixelShader(blob.Bytes())
	return Wrap("create pixel shader", status, raw, func(r *Ref[driver.PixelShader]) *PixelShader {
		return &PixelShader{ref: r}
	})
}

// CreateInputLayout builds a layout checked against the input signature in
// bytecode, which must be the vertex shader the layout will be drawn with.
func (d *Device) CreateInputLayout(elements []driver.InputElementDesc, bytecode *ShaderBlob) (*InputLayout, error) {
	if uint64(len(elements)) > math.MaxUint32 {
		panic(precondition("%d input elements exceed 32 bits", len(elements)))
	}
	status, raw := d.ref.Get().CreateInputLayout(elements, bytecode.Bytes())
	return Wrap("create input layout", status, raw, func(r *Ref[driver.InputLayout]) *InputLayout {
		return &InputLayout{ref: r}
	})
}
