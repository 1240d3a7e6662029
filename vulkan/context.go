package vulkan

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

type vertexBinding struct {
	buf    *Buffer
	stride uint32
	offset uint32
}

// Context is the immediate context. Every command is submitted and waited on
// before the call returns.
type Context struct {
	object
	device *Device
	log    logrus.FieldLogger

	rtv      *RenderTargetView
	viewport driver.Viewport
	hasView  bool
	vs       *VertexShader
	ps       *PixelShader
	layout   *InputLayout
	vbs      [vertexSlots]vertexBinding
	topology driver.PrimitiveTopology
}

func newContext(dev *Device) *Context {
	c := &Context{device: dev, log: dev.log.WithField("context", "immediate")}
	dev.child(&c.object, c.unbindAll)
	return c
}

func (c *Context) unbindAll() {
	if c.rtv != nil {
		c.rtv.Release()
		c.rtv = nil
	}
	if c.vs != nil {
		c.vs.Release()
		c.vs = nil
	}
	if c.ps != nil {
		c.ps.Release()
		c.ps = nil
	}
	if c.layout != nil {
		c.layout.Release()
		c.layout = nil
	}
	for i := range c.vbs {
		if c.vbs[i].buf != nil {
			c.vbs[i].buf.Release()
		}
		c.vbs[i] = vertexBinding{}
	}
}

// OMSetRenderTargets binds the first view; further views are ignored.
func (c *Context) OMSetRenderTargets(views []driver.RenderTargetView) {
	var next *RenderTargetView
	if len(views) > 0 {
		next, _ = views[0].(*RenderTargetView)
	}
	if len(views) > 1 {
		c.log.WithField("views", len(views)).Debug("only the first render target is bound")
	}
	if next != nil {
		next.AddRef()
	}
	if c.rtv != nil {
		c.rtv.Release()
	}
	c.rtv = next
}

func (c *Context) RSSetViewports(viewports []driver.Viewport) {
	c.hasView = len(viewports) > 0
	if c.hasView {
		c.viewport = viewports[0]
	}
}

func (c *Context) ClearRenderTargetView(view driver.RenderTargetView, color [4]float32) {
	v, ok := view.(*RenderTargetView)
	if !ok || v == nil || c.device.lost() {
		return
	}
	d := c.device
	pass, status := d.renderPass(vkFormat(v.tex.desc.Format), true)
	if status.Failed() {
		return
	}
	fb, status := v.framebuffer(pass)
	if status.Failed() {
		return
	}
	clearValues := []vk.ClearValue{
		vk.NewClearValue(color[:]),
	}
	status = d.submit(nil, func(cmd vk.CommandBuffer) {
		vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
			SType:           vk.StructureTypeRenderPassBeginInfo,
			RenderPass:      pass,
			Framebuffer:     fb,
			RenderArea:      vk.Rect2D{Extent: vk.Extent2D{Width: v.tex.desc.Width, Height: v.tex.desc.Height}},
			ClearValueCount: uint32(len(clearValues)),
			PClearValues:    clearValues,
		}, vk.SubpassContentsInline)
		vk.CmdEndRenderPass(cmd)
		v.tex.layout = vk.ImageLayoutColorAttachmentOptimal
	})
	if status.Failed() {
		c.log.WithField("status", status).Error("clear failed")
	}
}

func (c *Context) VSSetShader(s driver.VertexShader) {
	next, _ := s.(*VertexShader)
	if next != nil {
		next.AddRef()
	}
	if c.vs != nil {
		c.vs.Release()
	}
	c.vs = next
}

func (c *Context) PSSetShader(s driver.PixelShader) {
	next, _ := s.(*PixelShader)
	if next != nil {
		next.AddRef()
	}
	if c.ps != nil {
		c.ps.Release()
	}
	c.ps = next
}

func (c *Context) IASetInputLayout(layout driver.InputLayout) {
	next, _ := layout.(*InputLayout)
	if next != nil {
		next.AddRef()
	}
	if c.layout != nil {
		c.layout.Release()
	}
	c.layout = next
}

func (c *Context) IASetVertexBuffers(startSlot uint32, buffers []driver.Buffer, strides, offsets []uint32) {
	for i, b := range buffers {
		slot := int(startSlot) + i
		if slot >= vertexSlots {
			break
		}
		next, _ := b.(*Buffer)
		if next != nil {
			next.AddRef()
		}
		if old := c.vbs[slot].buf; old != nil {
			old.Release()
		}
		vb := vertexBinding{buf: next}
		if i < len(strides) {
			vb.stride = strides[i]
		}
		if i < len(offsets) {
			vb.offset = offsets[i]
		}
		c.vbs[slot] = vb
	}
}

func (c *Context) IASetPrimitiveTopology(topology driver.PrimitiveTopology) {
	c.topology = topology
}

// Draw records a render pass drawing vertexCount vertices into the bound
// target. Draws with an incomplete pipeline, a layout that does not feed the
// vertex shader, an unbound vertex slot or an unknown topology are dropped
// with a warning.
func (c *Context) Draw(vertexCount, startVertex uint32) {
	d := c.device
	if d.lost() || vertexCount == 0 {
		return
	}
	log := c.log.WithField("vertices", vertexCount)
	switch {
	case c.vs == nil || c.ps == nil || c.layout == nil:
		log.Warn("draw dropped: shaders or input layout not bound")
		return
	case c.rtv == nil || !c.hasView:
		log.Warn("draw dropped: no render target or viewport")
		return
	}
	if err := shader.ValidateLayout(c.layout.elements, c.vs.code.Inputs); err != nil {
		log.WithError(err).Warn("draw dropped: input layout does not match the vertex shader")
		return
	}
	topology, ok := vkTopology(c.topology)
	if !ok {
		log.WithField("topology", c.topology).Warn("draw dropped: unsupported topology")
		return
	}

	key := pipelineKey{vs: c.vs, ps: c.ps, layout: c.layout, topology: topology}
	var slots []uint32
	seen := map[uint32]bool{}
	for _, sig := range c.vs.code.Inputs {
		i, ok := shader.Match(c.layout.elements, sig)
		if !ok {
			continue
		}
		slot := c.layout.elements[i].InputSlot
		if c.vbs[slot].buf == nil {
			log.WithField("slot", slot).Warn("draw dropped: vertex buffer not bound")
			return
		}
		if !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
		key.strides[slot] = c.vbs[slot].stride
	}

	tex := c.rtv.tex
	var status driver.Status
	if key.pass, status = d.renderPass(vkFormat(tex.desc.Format), false); status.Failed() {
		return
	}
	fb, status := c.rtv.framebuffer(key.pass)
	if status.Failed() {
		return
	}
	pipeline, status := d.pipeline(key)
	if status.Failed() {
		log.WithField("status", status).Warn("draw dropped: no pipeline")
		return
	}

	extent := vk.Rect2D{Extent: vk.Extent2D{Width: tex.desc.Width, Height: tex.desc.Height}}
	scissor := clampRect(vkScissor(c.viewport), extent.Extent)
	status = d.submit(nil, func(cmd vk.CommandBuffer) {
		tex.transition(cmd, vk.ImageLayoutColorAttachmentOptimal)
		vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
			SType:       vk.StructureTypeRenderPassBeginInfo,
			RenderPass:  key.pass,
			Framebuffer: fb,
			RenderArea:  extent,
		}, vk.SubpassContentsInline)
		vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline)
		vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{vkViewport(c.viewport)})
		vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{scissor})
		for _, slot := range slots {
			vb := c.vbs[slot]
			vk.CmdBindVertexBuffers(cmd, slot, 1, []vk.Buffer{vb.buf.mem.buffer}, []vk.DeviceSize{vk.DeviceSize(vb.offset)})
		}
		vk.CmdDraw(cmd, vertexCount, 1, startVertex, 0)
		vk.CmdEndRenderPass(cmd)
	})
	if status.Failed() {
		log.WithField("status", status).Error("draw failed")
	}
}

func clampRect(r vk.Rect2D, extent vk.Extent2D) vk.Rect2D {
	x0, y0 := min(uint32(r.Offset.X), extent.Width), min(uint32(r.Offset.Y), extent.Height)
	x1 := min(uint32(r.Offset.X)+r.Extent.Width, extent.Width)
	y1 := min(uint32(r.Offset.Y)+r.Extent.Height, extent.Height)
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(x0), Y: int32(y0)},
		Extent: vk.Extent2D{Width: x1 - x0, Height: y1 - y0},
	}
}

func (c *Context) CopyResource(dst, src driver.Resource) {
	d := c.device
	if d.lost() {
		return
	}
	var record func(cmd vk.CommandBuffer)
	switch dt := dst.(type) {
	case *Buffer:
		s, ok := src.(*Buffer)
		if !ok || dt == s || dt.desc.Usage == driver.UsageImmutable || dt.desc.ByteWidth != s.desc.ByteWidth {
			c.log.Warn("CopyResource: incompatible buffers")
			return
		}
		record = func(cmd vk.CommandBuffer) {
			vk.CmdCopyBuffer(cmd, s.mem.buffer, dt.mem.buffer, 1, []vk.BufferCopy{{Size: vk.DeviceSize(s.desc.ByteWidth)}})
		}
	case *Texture2D:
		s, ok := src.(*Texture2D)
		if !ok || dt == s || dt.desc.Usage == driver.UsageImmutable ||
			dt.desc.Width != s.desc.Width || dt.desc.Height != s.desc.Height || dt.desc.Format != s.desc.Format {
			c.log.Warn("CopyResource: incompatible textures")
			return
		}
		record = func(cmd vk.CommandBuffer) { copyTexture(cmd, dt, s) }
	default:
		c.log.Warn("CopyResource: foreign resource")
		return
	}
	if status := d.submit(nil, record); status.Failed() {
		c.log.WithField("status", status).Error("copy failed")
	}
}

// copyTexture copies between any pair of image backed and host backed
// textures of equal shape.
func copyTexture(cmd vk.CommandBuffer, dst, src *Texture2D) {
	switch {
	case src.image != nil && dst.image != nil:
		src.transition(cmd, vk.ImageLayoutTransferSrcOptimal)
		dst.transition(cmd, vk.ImageLayoutTransferDstOptimal)
		vk.CmdCopyImage(cmd, src.image, vk.ImageLayoutTransferSrcOptimal, dst.image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageCopy{{
				SrcSubresource: colorLayers,
				DstSubresource: colorLayers,
				Extent:         src.extent(),
			}})
		src.rest(cmd)
		dst.rest(cmd)
	case src.image != nil:
		src.transition(cmd, vk.ImageLayoutTransferSrcOptimal)
		vk.CmdCopyImageToBuffer(cmd, src.image, vk.ImageLayoutTransferSrcOptimal, dst.host.buffer, 1, src.bufferCopy())
		src.rest(cmd)
	case dst.image != nil:
		dst.transition(cmd, vk.ImageLayoutTransferDstOptimal)
		vk.CmdCopyBufferToImage(cmd, src.host.buffer, dst.image, vk.ImageLayoutTransferDstOptimal, 1, dst.bufferCopy())
		dst.rest(cmd)
	default:
		vk.CmdCopyBuffer(cmd, src.host.buffer, dst.host.buffer, 1, []vk.BufferCopy{{Size: vk.DeviceSize(src.host.size)}})
	}
}

// Map exposes host memory. Reads need a staging resource with CPU read access
// and writes need CPU write access. Memory is coherent so no flush is needed.
func (c *Context) Map(res driver.Resource, subresource uint32, mapType driver.MapType) (driver.Status, driver.MappedSubresource) {
	if c.device.lost() {
		return driver.ErrDeviceRemoved, driver.MappedSubresource{}
	}
	if subresource != 0 {
		return driver.ErrInvalidArg, driver.MappedSubresource{}
	}
	var (
		usage  driver.Usage
		cpu    driver.CPUAccessFlag
		mem    *memBuffer
		pitch  uint32
		mapped *bool
	)
	switch r := res.(type) {
	case *Buffer:
		usage, cpu, mem, mapped = r.desc.Usage, r.desc.CPUAccessFlags, r.mem, &r.mapped
		pitch = r.desc.ByteWidth
	case *Texture2D:
		usage, cpu, mem, mapped = r.desc.Usage, r.desc.CPUAccessFlags, r.host, &r.mapped
		pitch = uint32(r.pitch)
	default:
		return driver.ErrInvalidArg, driver.MappedSubresource{}
	}

	ok := false
	switch mapType {
	case driver.MapRead:
		ok = usage == driver.UsageStaging && cpu&driver.CPUAccessRead != 0
	case driver.MapWrite:
		ok = usage == driver.UsageStaging && cpu&driver.CPUAccessWrite != 0
	case driver.MapReadWrite:
		ok = usage == driver.UsageStaging && cpu&driver.CPUAccessRead != 0 && cpu&driver.CPUAccessWrite != 0
	case driver.MapWriteDiscard:
		ok = usage == driver.UsageDynamic && cpu&driver.CPUAccessWrite != 0
	}
	if !ok || mem == nil || *mapped {
		return driver.ErrInvalidArg, driver.MappedSubresource{}
	}
	*mapped = true
	data := mem.bytes()
	return driver.StatusOK, driver.MappedSubresource{Data: data, RowPitch: pitch, DepthPitch: uint32(len(data))}
}

// Unmap ends a mapping. Dynamic textures upload their host copy here.
func (c *Context) Unmap(res driver.Resource, subresource uint32) {
	switch r := res.(type) {
	case *Buffer:
		r.mapped = false
	case *Texture2D:
		if !r.mapped {
			return
		}
		r.mapped = false
		if r.image != nil && r.host != nil {
			if status := c.device.submit(nil, r.upload); status.Failed() {
				c.log.WithField("status", status).Error("texture upload failed")
			}
		}
	}
}
