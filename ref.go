package diesel

import "github.com/andewx/diesel/driver"

// Ref owns one reference to a platform object. Clone adds a reference,
// Release drops the one this Ref holds. A Ref is not safe for concurrent use.
type Ref[T driver.Unknown] struct {
	obj  T
	live bool
}

// Adopt takes over the reference the caller already holds on obj. It does not
// call AddRef.
func Adopt[T driver.Unknown](obj T) *Ref[T] {
	return &Ref[T]{obj: obj, live: true}
}

// Get borrows the object. The result must not outlive r and must not be
// released by the caller.
func (r *Ref[T]) Get() T {
	if r == nil || !r.live {
		panic(precondition("use of released %T", r))
	}
	return r.obj
}

// Valid reports whether r still holds its reference.
func (r *Ref[T]) Valid() bool {
	return r != nil && r.live
}

func (r *Ref[T]) Clone() *Ref[T] {
	obj := r.Get()
	obj.AddRef()
	return &Ref[T]{obj: obj, live: true}
}

// Release drops the reference. Further calls are no-ops.
func (r *Ref[T]) Release() {
	if r == nil || !r.live {
		return
	}
	r.live = false
	r.obj.Release()
	var zero T
	r.obj = zero
}
