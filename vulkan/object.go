package vulkan

import "sync/atomic"

// object is the reference count shared by every platform object. free
// destroys the Vulkan handles once the count reaches zero.
type object struct {
	refs     atomic.Int32
	platform *Platform
	free     func()
}

func (o *object) init(p *Platform, free func()) {
	o.refs.Store(1)
	o.platform = p
	o.free = free
	p.live.Add(1)
}

func (o *object) AddRef() uint32 {
	n := o.refs.Add(1)
	if n <= 1 {
		panic("vulkan: AddRef on freed object")
	}
	return uint32(n)
}

func (o *object) Release() uint32 {
	n := o.refs.Add(-1)
	if n < 0 {
		panic("vulkan: Release on freed object")
	}
	if n == 0 {
		if o.free != nil {
			o.free()
		}
		o.platform.live.Add(-1)
	}
	return uint32(n)
}

type blob struct {
	object
	data []byte
}

func newBlob(p *Platform, data []byte) *blob {
	b := &blob{data: data}
	b.init(p, nil)
	return b
}

func (b *blob) Bytes() []byte { return b.data }
