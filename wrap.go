package diesel

import "github.com/andewx/diesel/driver"

// Wrap turns the result of a creating platform call into an owned object.
// On success it adopts raw's reference and hands it to ctor. On failure raw
// is dropped untouched and ctor never runs; whatever the platform returned
// next to a failure code is not ours to release.
func Wrap[T driver.Unknown, U any](op string, status driver.Status, raw T, ctor func(*Ref[T]) U) (U, error) {
	var zero U
	if status.Failed() {
		return zero, &Error{Op: op, Status: status}
	}
	if isNil(raw) {
		return zero, &Error{Op: op, Status: driver.ErrPointer, Detail: "platform reported success without an object"}
	}
	return ctor(Adopt(raw)), nil
}

// WrapUnit is Wrap for calls that produce no object.
func WrapUnit(op string, status driver.Status) error {
	return NewError(op, status)
}

func isNil[T driver.Unknown](v T) bool {
	// T is an interface type in every use, so a missing object is a nil
	// interface value.
	return any(v) == nil
}
