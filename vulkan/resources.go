package vulkan

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	vk "github.com/vulkan-go/vulkan"
)

var colorRange = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

var colorLayers = vk.ImageSubresourceLayers{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LayerCount: 1,
}

type Buffer struct {
	object
	desc   driver.BufferDesc
	mem    *memBuffer
	mapped bool
}

func (b *Buffer) Dimension() driver.ResourceDimension { return driver.DimensionBuffer }
func (b *Buffer) Desc() driver.BufferDesc              { return b.desc }

// Texture2D is an optimal tiled image in device memory. Staging textures have
// no image; their texels live in a linear host buffer. Dynamic textures have
// both, the host buffer being uploaded on Unmap.
type Texture2D struct {
	object
	desc   driver.Texture2DDesc
	device *Device
	pitch  int
	mapped bool

	image  vk.Image
	memory vk.DeviceMemory
	layout vk.ImageLayout
	host   *memBuffer
}

func (t *Texture2D) Dimension() driver.ResourceDimension { return driver.DimensionTexture2D }
func (t *Texture2D) Desc() driver.Texture2DDesc           { return t.desc }

func (t *Texture2D) extent() vk.Extent3D {
	return vk.Extent3D{Width: t.desc.Width, Height: t.desc.Height, Depth: 1}
}

func (t *Texture2D) destroy() {
	if t.host != nil {
		t.host.destroy()
	}
	if t.image != nil {
		vk.DestroyImage(t.device.handle, t.image, nil)
		vk.FreeMemory(t.device.handle, t.memory, nil)
	}
}

// transition records a barrier moving t to layout. The tracked layout is
// valid because every recording is submitted and waited on in order.
func (t *Texture2D) transition(cmd vk.CommandBuffer, layout vk.ImageLayout) {
	if t.layout == layout {
		return
	}
	imageBarrier(cmd, t.image, t.layout, layout)
	t.layout = layout
}

func (t *Texture2D) bufferCopy() []vk.BufferImageCopy {
	return []vk.BufferImageCopy{{
		BufferRowLength:   t.desc.Width,
		BufferImageHeight: t.desc.Height,
		ImageSubresource:  colorLayers,
		ImageExtent:       t.extent(),
	}}
}

// upload copies the host buffer into the image.
func (t *Texture2D) upload(cmd vk.CommandBuffer) {
	t.transition(cmd, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(cmd, t.host.buffer, t.image, vk.ImageLayoutTransferDstOptimal, 1, t.bufferCopy())
	t.rest(cmd)
}

// rest returns a render target to the layout draws expect.
func (t *Texture2D) rest(cmd vk.CommandBuffer) {
	if t.desc.BindFlags&driver.BindRenderTarget != 0 {
		t.transition(cmd, vk.ImageLayoutColorAttachmentOptimal)
	}
}

func (d *Device) newTexture(desc driver.Texture2DDesc, data []byte) (*Texture2D, driver.Status) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArraySize == 0 {
		desc.ArraySize = 1
	}
	if desc.SampleDesc.Count == 0 {
		desc.SampleDesc.Count = 1
	}
	format := vkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, driver.ErrInvalidArg
	}
	t := &Texture2D{
		desc:   desc,
		device: d,
		pitch:  int(desc.Width) * desc.Format.Size(),
		layout: vk.ImageLayoutUndefined,
	}
	size := t.pitch * int(desc.Height)

	if desc.Usage == driver.UsageStaging || desc.Usage == driver.UsageDynamic {
		host, ret := d.newMemBuffer(size, vk.BufferUsageTransferSrcBit|vk.BufferUsageTransferDstBit, data)
		if isError(ret) {
			return nil, d.check(ret)
		}
		t.host = host
		if desc.Usage == driver.UsageStaging {
			d.child(&t.object, t.destroy)
			return t, driver.StatusOK
		}
	}

	ret := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        t.extent(),
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(imageUsage(desc.BindFlags)),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &t.image)
	if isError(ret) {
		t.destroy()
		return nil, d.check(ret)
	}
	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, t.image, &memReqs)
	memReqs.Deref()
	if t.memory, ret = d.allocate(memReqs, vk.MemoryPropertyDeviceLocalBit); isError(ret) {
		vk.DestroyImage(d.handle, t.image, nil)
		t.image = nil
		t.destroy()
		return nil, d.check(ret)
	}
	vk.BindImageMemory(d.handle, t.image, t.memory, 0)

	var staging *memBuffer
	if data != nil && t.host == nil {
		staging, ret = d.newMemBuffer(size, vk.BufferUsageTransferSrcBit, data)
		if isError(ret) {
			t.destroy()
			return nil, d.check(ret)
		}
		defer staging.destroy()
	}
	status := d.submit(nil, func(cmd vk.CommandBuffer) {
		switch {
		case t.host != nil && data != nil:
			t.upload(cmd)
		case staging != nil:
			t.transition(cmd, vk.ImageLayoutTransferDstOptimal)
			vk.CmdCopyBufferToImage(cmd, staging.buffer, t.image, vk.ImageLayoutTransferDstOptimal, 1, t.bufferCopy())
			t.rest(cmd)
		default:
			t.transition(cmd, vk.ImageLayoutTransferDstOptimal)
			t.rest(cmd)
		}
	})
	if status.Failed() {
		t.destroy()
		return nil, status
	}
	d.child(&t.object, t.destroy)
	return t, driver.StatusOK
}

// RenderTargetView owns an image view and one framebuffer per render pass it
// has been drawn with.
type RenderTargetView struct {
	object
	tex          *Texture2D
	view         vk.ImageView
	framebuffers map[vk.RenderPass]vk.Framebuffer
}

func (v *RenderTargetView) Resource() driver.Texture2D { return v.tex }

func (v *RenderTargetView) framebuffer(pass vk.RenderPass) (vk.Framebuffer, driver.Status) {
	if fb, ok := v.framebuffers[pass]; ok {
		return fb, driver.StatusOK
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(v.tex.device.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{v.view},
		Width:           v.tex.desc.Width,
		Height:          v.tex.desc.Height,
		Layers:          1,
	}, nil, &fb)
	if isError(ret) {
		return fb, v.tex.device.check(ret)
	}
	v.framebuffers[pass] = fb
	return fb, driver.StatusOK
}

func (v *RenderTargetView) destroy() {
	dev := v.tex.device.handle
	for pass, fb := range v.framebuffers {
		vk.DestroyFramebuffer(dev, fb, nil)
		delete(v.framebuffers, pass)
	}
	vk.DestroyImageView(dev, v.view, nil)
	v.tex.Release()
}

// module is a loaded shader. Its entry point is the one named in the
// bytecode.
type module struct {
	device *Device
	handle vk.ShaderModule
	code   *shader.Bytecode
}

func (m *module) destroy(owner any) {
	m.device.evict(owner)
	vk.DestroyShaderModule(m.device.handle, m.handle, nil)
}

type VertexShader struct {
	object
	*module
}

func (s *VertexShader) Stage() driver.ShaderStage { return driver.StageVertex }

type PixelShader struct {
	object
	*module
}

func (s *PixelShader) Stage() driver.ShaderStage { return driver.StagePixel }

type InputLayout struct {
	object
	elements []driver.InputElementDesc
	offsets  []uint32
	inputs   shader.Signature
}

func (l *InputLayout) Elements() []driver.InputElementDesc {
	return append([]driver.InputElementDesc(nil), l.elements...)
}
