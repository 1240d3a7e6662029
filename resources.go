package diesel

import "github.com/andewx/diesel/driver"

// Resource is a GPU resource usable with CopyResource and Map.
type Resource interface {
	resource() driver.Resource
	Release()
}

type Texture2D struct {
	ref *Ref[driver.Texture2D]
}

func (t *Texture2D) Desc() driver.Texture2DDesc { return t.ref.Get().Desc() }
func (t *Texture2D) Clone() *Texture2D          { return &Texture2D{ref: t.ref.Clone()} }
func (t *Texture2D) Release()                   { t.ref.Release() }
func (t *Texture2D) resource() driver.Resource  { return t.ref.Get() }

type Buffer struct {
	ref *Ref[driver.Buffer]
}

func (b *Buffer) Desc() driver.BufferDesc   { return b.ref.Get().Desc() }
func (b *Buffer) Clone() *Buffer            { return &Buffer{ref: b.ref.Clone()} }
func (b *Buffer) Release()                  { b.ref.Release() }
func (b *Buffer) resource() driver.Resource { return b.ref.Get() }

// RenderTargetView references, but does not own, the texture memory it views.
type RenderTargetView struct {
	ref *Ref[driver.RenderTargetView]
}

func (v *RenderTargetView) Clone() *RenderTargetView { return &RenderTargetView{ref: v.ref.Clone()} }
func (v *RenderTargetView) Release()                 { v.ref.Release() }

type VertexShader struct {
	ref *Ref[driver.VertexShader]
}

func (s *VertexShader) Clone() *VertexShader { return &VertexShader{ref: s.ref.Clone()} }
func (s *VertexShader) Release()             { s.ref.Release() }

type PixelShader struct {
	ref *Ref[driver.PixelShader]
}

func (s *PixelShader) Clone() *PixelShader { return &PixelShader{ref: s.ref.Clone()} }
func (s *PixelShader) Release()            { s.ref.Release() }

type InputLayout struct {
	ref *Ref[driver.InputLayout]
}

func (l *InputLayout) Elements() []driver.InputElementDesc { return l.ref.Get().Elements() }
func (l *InputLayout) Clone() *InputLayout                 { return &InputLayout{ref: l.ref.Clone()} }
func (l *InputLayout) Release()                            { l.ref.Release() }

// ShaderBlob is compiled bytecode.
type ShaderBlob struct {
	ref *Ref[driver.Blob]
}

func (b *ShaderBlob) Bytes() []byte      { return b.ref.Get().Bytes() }
func (b *ShaderBlob) Clone() *ShaderBlob { return &ShaderBlob{ref: b.ref.Clone()} }
func (b *ShaderBlob) Release()           { b.ref.Release() }
