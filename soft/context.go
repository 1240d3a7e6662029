package soft

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/sirupsen/logrus"
)

const vertexSlots = 16

type vertexBinding struct {
	buf    *Buffer
	stride uint32
	offset uint32
}

// Context is the immediate context. Commands execute when they are issued.
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

	// machines cache one interpreter per bound program.
	vsm, psm *machine
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
	c.vsm, c.psm = nil, nil
}

// OMSetRenderTargets binds the first view. A single render target is
// supported; further views are ignored.
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
	fill(v.tex, color)
}

func (c *Context) VSSetShader(s driver.VertexShader) {
	next, _ := s.(*VertexShader)
	if next != nil {
		next.AddRef()
	}
	if c.vs != nil {
		c.vs.Release()
	}
	c.vs, c.vsm = next, nil
}

func (c *Context) PSSetShader(s driver.PixelShader) {
	next, _ := s.(*PixelShader)
	if next != nil {
		next.AddRef()
	}
	if c.ps != nil {
		c.ps.Release()
	}
	c.ps, c.psm = next, nil
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

// Draw runs the bound pipeline over vertexCount vertices. Draws with an
// incomplete pipeline, a layout that does not feed the vertex shader, or an
// unsupported topology are dropped with a warning.
func (c *Context) Draw(vertexCount, startVertex uint32) {
	if c.device.lost() || vertexCount == 0 {
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
	if err := shader.ValidateLayout(c.layout.elements, c.vs.prog.code.Inputs); err != nil {
		log.WithError(err).Warn("draw dropped: input layout does not match the vertex shader")
		return
	}
	var tris [][3]int
	switch c.topology {
	case driver.TopologyTriangleList:
		for i := 0; i+2 < int(vertexCount); i += 3 {
			tris = append(tris, [3]int{i, i + 1, i + 2})
		}
	case driver.TopologyTriangleStrip:
		for i := 0; i+2 < int(vertexCount); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]int{i, i + 1, i + 2})
			} else {
				tris = append(tris, [3]int{i + 1, i, i + 2})
			}
		}
	default:
		log.WithField("topology", c.topology).Warn("draw dropped: unsupported topology")
		return
	}

	if c.vsm == nil {
		c.vsm = newMachine(c.vs.prog.module)
	}
	if c.psm == nil {
		c.psm = newMachine(c.ps.prog.module)
	}
	outs := make([]*stageIO, vertexCount)
	for i := range outs {
		out, _, err := c.vsm.invoke(c.vs.prog.entry, c.fetch(startVertex+uint32(i)))
		if err != nil {
			log.WithError(err).Error("vertex shader failed")
			return
		}
		outs[i] = out
	}

	clip := scissor(c.viewport, c.rtv.tex)
	for _, t := range tris {
		var sv [3]screenVertex
		visible := true
		for k, idx := range t {
			sv[k], visible = project(c.viewport, outs[idx])
			if !visible {
				break
			}
		}
		if !visible {
			continue
		}
		if err := triangle(sv, clip, c.rtv.tex, c.psm, c.ps.prog.entry); err != nil {
			log.WithError(err).Error("pixel shader failed")
			return
		}
	}
}

// fetch assembles the vertex shader inputs of vertex index from the bound
// vertex buffers. Reads past the end of a buffer return zero.
func (c *Context) fetch(index uint32) *stageIO {
	in := &stageIO{vertexIndex: index, loc: map[uint32]attr{}}
	for _, sig := range c.vs.prog.code.Inputs {
		i, ok := shader.Match(c.layout.elements, sig)
		if !ok {
			continue
		}
		el := c.layout.elements[i]
		vb := c.vbs[el.InputSlot%vertexSlots]
		if vb.buf == nil {
			in.loc[sig.Index] = attr{v: []float64{0, 0, 0, 0}}
			continue
		}
		// Draw has no instances, so per-instance data reads element zero.
		step := uint64(index)
		if el.InputSlotClass == driver.InputPerInstanceData {
			step = 0
		}
		at := uint64(vb.offset) + step*uint64(vb.stride) + uint64(c.layout.offsets[i])
		var raw []byte
		if end := at + uint64(el.Format.Size()); end <= uint64(len(vb.buf.data)) {
			raw = vb.buf.data[at:end]
		}
		v := decode(el.Format, raw)
		if raw == nil {
			v = []float64{0, 0, 0, 0}
		}
		in.loc[sig.Index] = attr{v: v}
	}
	return in
}

func (c *Context) CopyResource(dst, src driver.Resource) {
	if c.device.lost() {
		return
	}
	switch d := dst.(type) {
	case *Buffer:
		s, ok := src.(*Buffer)
		if !ok || d == s || d.desc.Usage == driver.UsageImmutable || d.desc.ByteWidth != s.desc.ByteWidth {
			c.log.Warn("CopyResource: incompatible buffers")
			return
		}
		copy(d.data, s.data)
	case *Texture2D:
		s, ok := src.(*Texture2D)
		if !ok || d == s || d.desc.Usage == driver.UsageImmutable ||
			d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height || d.desc.Format != s.desc.Format {
			c.log.Warn("CopyResource: incompatible textures")
			return
		}
		copy(d.data, s.data)
	default:
		c.log.Warn("CopyResource: foreign resource")
	}
}

// Map exposes resource memory. Reads need a staging resource with CPU read
// access and writes need CPU write access.
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
		data   []byte
		pitch  uint32
		mapped *bool
	)
	switch r := res.(type) {
	case *Buffer:
		usage, cpu, data, mapped = r.desc.Usage, r.desc.CPUAccessFlags, r.data, &r.mapped
		pitch = r.desc.ByteWidth
	case *Texture2D:
		usage, cpu, data, mapped = r.desc.Usage, r.desc.CPUAccessFlags, r.data, &r.mapped
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
	if !ok || *mapped {
		return driver.ErrInvalidArg, driver.MappedSubresource{}
	}
	*mapped = true
	return driver.StatusOK, driver.MappedSubresource{Data: data, RowPitch: pitch, DepthPitch: uint32(len(data))}
}

func (c *Context) Unmap(res driver.Resource, subresource uint32) {
	switch r := res.(type) {
	case *Buffer:
		r.mapped = false
	case *Texture2D:
		r.mapped = false
	}
}
