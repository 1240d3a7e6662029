package diesel

import (
	"testing"

	"github.com/andewx/diesel/driver"
)

type counted struct {
	refs uint32
}

func (c *counted) AddRef() uint32 {
	c.refs++
	return c.refs
}

func (c *counted) Release() uint32 {
	c.refs--
	return c.refs
}

func expectPrecondition(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if _, ok := r.(*PreconditionError); !ok {
			t.Errorf("%s: recovered %v, want *PreconditionError", what, r)
		}
	}()
	fn()
}

func TestRef(t *testing.T) {
	obj := &counted{refs: 1}
	r := Adopt[driver.Unknown](obj)
	if obj.refs != 1 {
		t.Fatalf("Adopt changed the count to %d", obj.refs)
	}
	c := r.Clone()
	if obj.refs != 2 {
		t.Fatalf("Clone left the count at %d", obj.refs)
	}
	r.Release()
	r.Release()
	if obj.refs != 1 || r.Valid() {
		t.Errorf("after double release: refs %d valid %v", obj.refs, r.Valid())
	}
	if c.Get() != driver.Unknown(obj) {
		t.Error("clone lost its object")
	}
	c.Release()
	if obj.refs != 0 {
		t.Errorf("refs = %d after releasing every owner", obj.refs)
	}
	expectPrecondition(t, "Get after Release", func() { r.Get() })
	expectPrecondition(t, "Clone after Release", func() { c.Clone() })
}

func TestWrap(t *testing.T) {
	ran := false
	ctor := func(r *Ref[driver.Unknown]) *Ref[driver.Unknown] {
		ran = true
		return r
	}

	obj := &counted{refs: 1}
	_, err := Wrap[driver.Unknown]("op", driver.ErrOutOfMemory, obj, ctor)
	if ran || obj.refs != 1 {
		t.Errorf("failure ran ctor=%v refs=%d", ran, obj.refs)
	}
	if e, ok := err.(*Error); !ok || e.Status != driver.ErrOutOfMemory || e.Op != "op" {
		t.Errorf("error %#v", err)
	}

	_, err = Wrap[driver.Unknown]("op", driver.StatusOK, nil, ctor)
	if StatusOf(err) != driver.ErrPointer || ran {
		t.Errorf("success without object: %v", err)
	}

	r, err := Wrap[driver.Unknown]("op", driver.StatusOK, obj, ctor)
	if err != nil || !ran || !r.Valid() {
		t.Fatalf("success: %v ran=%v", err, ran)
	}
	r.Release()
	if obj.refs != 0 {
		t.Errorf("refs = %d", obj.refs)
	}

	if err := WrapUnit("present", driver.StatusOccluded); err != nil {
		t.Errorf("occluded is not an error: %v", err)
	}
	if StatusOf(WrapUnit("present", driver.ErrDeviceRemoved)) != driver.ErrDeviceRemoved {
		t.Error("status lost")
	}
}

func TestBufferSizes(t *testing.T) {
	width, stride := bufferSizes(3, 12, true)
	if width != 36 || stride != 12 {
		t.Errorf("bufferSizes = %d, %d", width, stride)
	}
	if _, stride := bufferSizes(3, 12, false); stride != 0 {
		t.Errorf("stride without SRV = %d", stride)
	}
	expectPrecondition(t, "width overflow", func() { bufferSizes(1<<20, 1<<13, false) })
	expectPrecondition(t, "element overflow", func() { bufferSizes(1, 1<<33, false) })
}
