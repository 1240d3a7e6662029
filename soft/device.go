package soft

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/gogpu/naga/ir"
	"github.com/sirupsen/logrus"
)

type Device struct {
	object
	flags   driver.CreateDeviceFlag
	removed driver.Status
	log     logrus.FieldLogger
}

func (d *Device) RemovedReason() driver.Status { return d.removed }

func (d *Device) lost() bool { return d.removed.Failed() }

type Buffer struct {
	object
	desc   driver.BufferDesc
	data   []byte
	mapped bool
}

func (b *Buffer) Dimension() driver.ResourceDimension { return driver.DimensionBuffer }
func (b *Buffer) Desc() driver.BufferDesc              { return b.desc }

type Texture2D struct {
	object
	desc   driver.Texture2DDesc
	pitch  int
	data   []byte
	mapped bool
}

func (t *Texture2D) Dimension() driver.ResourceDimension { return driver.DimensionTexture2D }
func (t *Texture2D) Desc() driver.Texture2DDesc           { return t.desc }

type RenderTargetView struct {
	object
	tex *Texture2D
}

func (v *RenderTargetView) Resource() driver.Texture2D { return v.tex }

type VertexShader struct {
	object
	prog *program
}

func (s *VertexShader) Stage() driver.ShaderStage { return driver.StageVertex }

type PixelShader struct {
	object
	prog *program
}

func (s *PixelShader) Stage() driver.ShaderStage { return driver.StagePixel }

type InputLayout struct {
	object
	elements []driver.InputElementDesc
	offsets  []uint32
}

func (l *InputLayout) Elements() []driver.InputElementDesc {
	return append([]driver.InputElementDesc(nil), l.elements...)
}

// program is a loaded entry point ready for the interpreter.
type program struct {
	code   *shader.Bytecode
	module *ir.Module
	entry  *ir.EntryPoint
}

func validAccess(usage driver.Usage, bind driver.BindFlag, cpu driver.CPUAccessFlag, hasInit bool) bool {
	switch usage {
	case driver.UsageDefault:
		return cpu == 0
	case driver.UsageImmutable:
		return cpu == 0 && hasInit
	case driver.UsageDynamic:
		return cpu == driver.CPUAccessWrite
	case driver.UsageStaging:
		return bind == 0 && cpu != 0
	}
	return false
}

func (d *Device) CreateBuffer(desc *driver.BufferDesc, initial *driver.SubresourceData) (driver.Status, driver.Buffer) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	if desc == nil {
		return driver.ErrPointer, nil
	}
	hasInit := initial != nil && initial.SysMem != nil
	if desc.ByteWidth == 0 || !validAccess(desc.Usage, desc.BindFlags, desc.CPUAccessFlags, hasInit) {
		return driver.ErrInvalidArg, nil
	}
	if desc.MiscFlags&driver.ResourceMiscBufferStructured != 0 {
		if s := desc.StructureByteStride; s == 0 || desc.ByteWidth%s != 0 {
			return driver.ErrInvalidArg, nil
		}
	}
	if hasInit && uint64(len(initial.SysMem)) < uint64(desc.ByteWidth) {
		return driver.ErrInvalidArg, nil
	}
	b := &Buffer{desc: *desc, data: make([]byte, desc.ByteWidth)}
	if hasInit {
		copy(b.data, initial.SysMem)
	}
	b.init(d.platform, nil)
	return driver.StatusOK, b
}

func (d *Device) CreateTexture2D(desc *driver.Texture2DDesc, initial *driver.SubresourceData) (driver.Status, driver.Texture2D) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	if desc == nil {
		return driver.ErrPointer, nil
	}
	hasInit := initial != nil && initial.SysMem != nil
	size := desc.Format.Size()
	switch {
	case desc.Width == 0 || desc.Height == 0 || size == 0:
		return driver.ErrInvalidArg, nil
	case desc.MipLevels > 1 || desc.ArraySize > 1 || desc.SampleDesc.Count > 1:
		return driver.ErrUnsupported, nil
	case !validAccess(desc.Usage, desc.BindFlags, desc.CPUAccessFlags, hasInit):
		return driver.ErrInvalidArg, nil
	case desc.BindFlags&driver.BindRenderTarget != 0 && !desc.Format.Renderable():
		return driver.ErrInvalidArg, nil
	}
	t := newTexture(*desc)
	if hasInit {
		srcPitch := int(initial.SysMemPitch)
		if srcPitch == 0 {
			srcPitch = t.pitch
		}
		if len(initial.SysMem) < srcPitch*(int(desc.Height)-1)+t.pitch {
			return driver.ErrInvalidArg, nil
		}
		for y := 0; y < int(desc.Height); y++ {
			copy(t.data[y*t.pitch:(y+1)*t.pitch], initial.SysMem[y*srcPitch:])
		}
	}
	t.init(d.platform, nil)
	return driver.StatusOK, t
}

func newTexture(desc driver.Texture2DDesc) *Texture2D {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArraySize == 0 {
		desc.ArraySize = 1
	}
	if desc.SampleDesc.Count == 0 {
		desc.SampleDesc.Count = 1
	}
	pitch := int(desc.Width) * desc.Format.Size()
	return &Texture2D{desc: desc, pitch: pitch, data: make([]byte, pitch*int(desc.Height))}
}

func (d *Device) CreateRenderTargetView(res driver.Texture2D) (driver.Status, driver.RenderTargetView) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	tex, ok := res.(*Texture2D)
	if !ok || tex == nil {
		return driver.ErrInvalidArg, nil
	}
	if tex.desc.BindFlags&driver.BindRenderTarget == 0 || !tex.desc.Format.Renderable() {
		return driver.ErrInvalidArg, nil
	}
	tex.AddRef()
	v := &RenderTargetView{tex: tex}
	v.init(d.platform, func() { tex.Release() })
	return driver.StatusOK, v
}

func (d *Device) load(bytecode []byte, stage driver.ShaderStage) (driver.Status, *program) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	bc, m, ep, err := shader.Load(bytecode)
	if err != nil || bc.Profile.Stage != stage {
		d.log.WithError(err).WithField("stage", stage).Warn("rejected shader bytecode")
		return driver.ErrInvalidArg, nil
	}
	return driver.StatusOK, &program{code: bc, module: m, entry: ep}
}

func (d *Device) CreateVertexShader(bytecode []byte) (driver.Status, driver.VertexShader) {
	status, prog := d.load(bytecode, driver.StageVertex)
	if prog == nil {
		return status, nil
	}
	s := &VertexShader{prog: prog}
	s.init(d.platform, nil)
	return status, s
}

func (d *Device) CreatePixelShader(bytecode []byte) (driver.Status, driver.PixelShader) {
	status, prog := d.load(bytecode, driver.StagePixel)
	if prog == nil {
		return status, nil
	}
	s := &PixelShader{prog: prog}
	s.init(d.platform, nil)
	return status, s
}

// CreateInputLayout checks elements against the input signature carried in
// the vertex bytecode.
func (d *Device) CreateInputLayout(elements []driver.InputElementDesc, bytecode []byte) (driver.Status, driver.InputLayout) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	bc, err := shader.Decode(bytecode)
	if err != nil || bc.Profile.Stage != driver.StageVertex {
		return driver.ErrInvalidArg, nil
	}
	if err := shader.ValidateLayout(elements, bc.Inputs); err != nil {
		d.log.WithError(err).Warn("input layout rejected")
		return driver.ErrInvalidArg, nil
	}
	l := &InputLayout{
		elements: append([]driver.InputElementDesc(nil), elements...),
		offsets:  shader.ResolveOffsets(elements),
	}
	l.init(d.platform, nil)
	return driver.StatusOK, l
}
