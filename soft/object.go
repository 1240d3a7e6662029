package soft

// object is the shared reference count. free runs once when the count drops
// to zero.
type object struct {
	refs     int32
	platform *Platform
	free     func()
}

func (o *object) init(p *Platform, free func()) {
	o.refs = 1
	o.platform = p
	o.free = free
	p.live.Add(1)
}

func (o *object) AddRef() uint32 {
	if o.refs <= 0 {
		panic("soft: AddRef on freed object")
	}
	o.refs++
	return uint32(o.refs)
}

func (o *object) Release() uint32 {
	if o.refs <= 0 {
		panic("soft: Release on freed object")
	}
	o.refs--
	if o.refs == 0 {
		if o.free != nil {
			o.free()
		}
		o.platform.live.Add(-1)
	}
	return uint32(o.refs)
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
